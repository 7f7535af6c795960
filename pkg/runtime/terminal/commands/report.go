package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/de-tools/cloud-sentry/pkg/runtime/terminal/export"
	"github.com/de-tools/cloud-sentry/pkg/services/evidence"
)

type ReportCmd struct {
	configPath string
	account    string
	logger     zerolog.Logger
	reporter   *export.Reporter
}

func NewReportCmd(logger zerolog.Logger, reporter *export.Reporter) *cobra.Command {
	rc := &ReportCmd{logger: logger, reporter: reporter}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a compliance report and store it in the evidence store",
		RunE:  rc.run,
	}

	cmd.Flags().StringVar(&rc.configPath, "config", "", "Path to the configuration file")
	cmd.Flags().StringVar(&rc.account, "account", "", "Account to report on")

	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func (rc *ReportCmd) run(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(rc.logger.WithContext(context.Background()), 5*time.Minute)
	defer cancel()

	rt, err := buildRuntime(ctx, rc.configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.cfg.GetAccount(rc.account); err != nil {
		return fmt.Errorf("unknown account %q. Configured accounts: %s",
			rc.account, strings.Join(accountNames(rt.cfg), ", "))
	}

	ref, err := evidence.NewReporter(rt.findings, rt.auditLog, rt.blobs).Generate(ctx, rc.account)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	return rc.reporter.HandleReportRef(ref)
}
