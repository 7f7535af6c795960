package aws

import (
	"context"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/services/provider"
)

const minBackupRetentionDays = 7

type rdsEncryptionControl struct{}

func (c *rdsEncryptionControl) Meta() domain.ControlMeta {
	return domain.ControlMeta{
		ID:          "AWS-RDS-001",
		Title:       "RDS Encryption",
		Description: "RDS instances must have storage encryption enabled",
		Provider:    "aws",
		Severity:    domain.SeverityHigh,
		Category:    "Encryption",
		Frameworks: map[string][]string{
			"ISO27001": {"A.10.1.1"},
			"GDPR":     {"Art.32"},
		},
		// Enabling encryption means recreating the instance from a
		// snapshot; no safe automated path.
		AutoRemediable:  false,
		RemediationRisk: domain.RiskHigh,
	}
}

func (c *rdsEncryptionControl) Detect(ctx context.Context, prov provider.Provider) ([]domain.FindingDraft, error) {
	instances, err := prov.ListResources(ctx, provider.ResourceRDSInstance)
	if err != nil {
		return nil, err
	}

	var drafts []domain.FindingDraft
	for _, db := range instances {
		if stateBool(db.State, "storage_encrypted") {
			continue
		}
		drafts = append(drafts, failDraft(db, map[string]any{"db": db.ID}))
	}
	return drafts, nil
}

type rdsPublicAccessControl struct{}

func (c *rdsPublicAccessControl) Meta() domain.ControlMeta {
	return domain.ControlMeta{
		ID:          "AWS-RDS-002",
		Title:       "RDS Not Public",
		Description: "RDS instances must not be publicly accessible",
		Provider:    "aws",
		Severity:    domain.SeverityCritical,
		Category:    "Network",
		Frameworks: map[string][]string{
			"ISO27001": {"A.13.1.3"},
			"SOC2":     {"CC6.6"},
		},
		AutoRemediable:  false,
		RemediationRisk: domain.RiskHigh,
	}
}

func (c *rdsPublicAccessControl) Detect(ctx context.Context, prov provider.Provider) ([]domain.FindingDraft, error) {
	instances, err := prov.ListResources(ctx, provider.ResourceRDSInstance)
	if err != nil {
		return nil, err
	}

	var drafts []domain.FindingDraft
	for _, db := range instances {
		if !stateBool(db.State, "publicly_accessible") {
			continue
		}
		drafts = append(drafts, failDraft(db, map[string]any{"db": db.ID}))
	}
	return drafts, nil
}

type rdsBackupControl struct{}

func (c *rdsBackupControl) Meta() domain.ControlMeta {
	return domain.ControlMeta{
		ID:          "AWS-RDS-003",
		Title:       "RDS Automated Backups",
		Description: "RDS instances must retain automated backups for at least a week",
		Provider:    "aws",
		Severity:    domain.SeverityMedium,
		Category:    "Backup",
		Frameworks: map[string][]string{
			"ISO27001": {"A.12.3.1"},
			"SOC2":     {"A1.2"},
		},
		AutoRemediable:  false,
		RemediationRisk: domain.RiskMedium,
	}
}

func (c *rdsBackupControl) Detect(ctx context.Context, prov provider.Provider) ([]domain.FindingDraft, error) {
	instances, err := prov.ListResources(ctx, provider.ResourceRDSInstance)
	if err != nil {
		return nil, err
	}

	var drafts []domain.FindingDraft
	for _, db := range instances {
		retention := stateInt(db.State, "backup_retention_period")
		if retention >= minBackupRetentionDays {
			continue
		}
		drafts = append(drafts, failDraft(db, map[string]any{
			"db":             db.ID,
			"retention_days": retention,
		}))
	}
	return drafts, nil
}

func stateInt(state map[string]any, key string) int {
	switch v := state[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
