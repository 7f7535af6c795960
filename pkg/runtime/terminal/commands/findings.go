package commands

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/runtime/terminal/export"
	findingstore "github.com/de-tools/cloud-sentry/pkg/store/findings"
)

type FindingsCmd struct {
	configPath string
	account    string
	controlID  string
	status     string
	logger     zerolog.Logger
	reporter   *export.Reporter
}

func NewFindingsCmd(logger zerolog.Logger, reporter *export.Reporter) *cobra.Command {
	fc := &FindingsCmd{logger: logger, reporter: reporter}
	cmd := &cobra.Command{
		Use:   "findings",
		Short: "List recorded findings",
		RunE:  fc.run,
	}

	cmd.Flags().StringVar(&fc.configPath, "config", "", "Path to the configuration file")
	cmd.Flags().StringVar(&fc.account, "account", "", "Filter by account")
	cmd.Flags().StringVar(&fc.controlID, "control", "", "Filter by control ID")
	cmd.Flags().StringVar(&fc.status, "status", "", "Filter by status (PASS, FAIL, ERROR, FIXED, MANUAL)")

	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func (fc *FindingsCmd) run(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(fc.logger.WithContext(context.Background()), 60*time.Second)
	defer cancel()

	rt, err := buildRuntime(ctx, fc.configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	status := domain.FindingStatus(fc.status)
	if fc.status != "" && !status.Valid() {
		return domain.NewValidationError("unknown finding status %q", fc.status)
	}

	findings, err := rt.findings.List(ctx, findingstore.Filter{
		Account:   fc.account,
		ControlID: fc.controlID,
		Status:    status,
	})
	if err != nil {
		return err
	}

	return fc.reporter.HandleFindings(findings)
}
