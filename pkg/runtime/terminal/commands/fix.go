package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/runtime/terminal/export"
	"github.com/de-tools/cloud-sentry/pkg/services/remediate"
)

type FixCmd struct {
	configPath string
	findingID  string
	actor      string
	approvedBy string
	dryRun     bool
	rollback   bool
	logger     zerolog.Logger
	reporter   *export.Reporter
}

func NewFixCmd(logger zerolog.Logger, reporter *export.Reporter) *cobra.Command {
	fc := &FixCmd{logger: logger, reporter: reporter}
	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Remediate a failing finding, or roll a fix back",
		RunE:  fc.run,
	}

	cmd.Flags().StringVar(&fc.configPath, "config", "", "Path to the configuration file")
	cmd.Flags().StringVar(&fc.findingID, "finding", "", "Finding ID to act on")
	cmd.Flags().StringVar(&fc.actor, "actor", "", "Who is performing the action")
	cmd.Flags().StringVar(&fc.approvedBy, "approved-by", "", "Approver for high risk remediations")
	cmd.Flags().BoolVar(&fc.dryRun, "dry-run", false, "Simulate without touching the resource")
	cmd.Flags().BoolVar(&fc.rollback, "rollback", false, "Undo a previously applied fix")

	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("finding")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}

func (fc *FixCmd) run(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(fc.logger.WithContext(context.Background()), 5*time.Minute)
	defer cancel()

	rt, err := buildRuntime(ctx, fc.configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	finding, err := rt.findings.Get(ctx, fc.findingID)
	if err != nil {
		return fmt.Errorf("failed to load finding %s: %w", fc.findingID, err)
	}
	account, err := rt.cfg.GetAccount(finding.Account)
	if err != nil {
		return fmt.Errorf("finding %s belongs to unconfigured account %q", fc.findingID, finding.Account)
	}

	var result domain.RemediationResult
	if fc.rollback {
		result, err = rt.remediate.Rollback(ctx, account, fc.findingID, fc.actor)
	} else {
		result, err = rt.remediate.Remediate(ctx, account, fc.findingID, remediate.Options{
			DryRun:     fc.dryRun,
			Actor:      fc.actor,
			ApprovedBy: fc.approvedBy,
		})
	}
	if err != nil {
		return err
	}

	return fc.reporter.HandleRemediationPlan([]domain.RemediationResult{result})
}
