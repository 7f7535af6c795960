package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/runtime/terminal/export"
	"github.com/de-tools/cloud-sentry/pkg/services/remediate"
	findingstore "github.com/de-tools/cloud-sentry/pkg/store/findings"
)

type ScanCmd struct {
	configPath string
	account    string
	controls   []string
	planFixes  bool
	logger     zerolog.Logger
	reporter   *export.Reporter
}

func NewScanCmd(logger zerolog.Logger, reporter *export.Reporter) *cobra.Command {
	sc := &ScanCmd{logger: logger, reporter: reporter}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Evaluate compliance controls against an account",
		RunE:  sc.run,
	}

	cmd.Flags().StringVar(&sc.configPath, "config", "", "Path to the configuration file")
	cmd.Flags().StringVar(&sc.account, "account", "", "Account to scan")
	cmd.Flags().StringSliceVar(&sc.controls, "controls", nil, "Control IDs to run (default: all controls for the account's provider)")
	cmd.Flags().BoolVar(&sc.planFixes, "plan-fixes", false, "Simulate remediation for failing findings after the scan")

	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func (sc *ScanCmd) run(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(sc.logger.WithContext(context.Background()), 30*time.Minute)
	defer cancel()

	rt, err := buildRuntime(ctx, sc.configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	account, err := rt.cfg.GetAccount(sc.account)
	if err != nil {
		return fmt.Errorf("unknown account %q. Configured accounts: %s",
			sc.account, strings.Join(accountNames(rt.cfg), ", "))
	}

	summary, err := rt.detect.Scan(ctx, account, sc.controls)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	failing, err := rt.findings.List(ctx, findingstore.Filter{
		ScanID: summary.ScanID,
		Status: domain.StatusFail,
	})
	if err != nil {
		return fmt.Errorf("failed to list findings: %w", err)
	}

	if err := sc.reporter.HandleScan(summary, failing); err != nil {
		return err
	}

	if !sc.planFixes || len(failing) == 0 {
		return nil
	}

	plan := make([]domain.RemediationResult, 0, len(failing))
	for _, f := range failing {
		result, err := rt.remediate.Remediate(ctx, account, f.ID, remediate.Options{
			DryRun: true,
			Actor:  "cli",
		})
		if err != nil {
			result = domain.RemediationResult{
				FindingID:  f.ID,
				ControlID:  f.ControlID,
				ResourceID: f.ResourceID,
				Message:    err.Error(),
			}
		}
		plan = append(plan, result)
	}

	return sc.reporter.HandleRemediationPlan(plan)
}
