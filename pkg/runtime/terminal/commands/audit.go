package commands

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/runtime/terminal/export"
	auditstore "github.com/de-tools/cloud-sentry/pkg/store/audit"
)

type AuditCmd struct {
	configPath string
	account    string
	findingID  string
	eventType  string
	logger     zerolog.Logger
	reporter   *export.Reporter
}

func NewAuditCmd(logger zerolog.Logger, reporter *export.Reporter) *cobra.Command {
	ac := &AuditCmd{logger: logger, reporter: reporter}
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List audit ledger entries",
		RunE:  ac.run,
	}

	cmd.Flags().StringVar(&ac.configPath, "config", "", "Path to the configuration file")
	cmd.Flags().StringVar(&ac.account, "account", "", "Filter by account")
	cmd.Flags().StringVar(&ac.findingID, "finding", "", "Filter by finding ID")
	cmd.Flags().StringVar(&ac.eventType, "type", "", "Filter by event type (scan, detection, remediation, approval, rollback)")

	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func (ac *AuditCmd) run(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(ac.logger.WithContext(context.Background()), 60*time.Second)
	defer cancel()

	rt, err := buildRuntime(ctx, ac.configPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	entries, err := rt.auditLog.List(ctx, auditstore.Filter{
		Account:   ac.account,
		FindingID: ac.findingID,
		EventType: domain.AuditEventType(ac.eventType),
	})
	if err != nil {
		return err
	}

	return ac.reporter.HandleAudit(entries)
}
