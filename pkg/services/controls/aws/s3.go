package aws

import (
	"context"
	"strings"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/services/controls"
	"github.com/de-tools/cloud-sentry/pkg/services/provider"
)

// Controls returns the compiled-in AWS control set.
func Controls() []controls.Control {
	return []controls.Control{
		&s3PublicAccessControl{},
		&s3EncryptionControl{},
		&s3VersioningControl{},
		&ec2PublicIPControl{},
		&ebsEncryptionControl{},
		&securityGroupOpenIngressControl{},
		&rdsEncryptionControl{},
		&rdsPublicAccessControl{},
		&rdsBackupControl{},
	}
}

// bucketName recovers the bucket name from a finding, preferring the
// captured evidence over parsing the ARN.
func bucketName(f domain.Finding) string {
	if b, ok := f.Evidence["bucket"].(string); ok && b != "" {
		return b
	}
	return strings.TrimPrefix(f.ResourceID, "arn:aws:s3:::")
}

func failDraft(r provider.Resource, details map[string]any) domain.FindingDraft {
	return domain.FindingDraft{
		Status:       domain.StatusFail,
		ResourceID:   r.ID,
		ResourceType: string(r.Type),
		Details:      details,
		Evidence:     r.State,
	}
}

func stateBool(state map[string]any, key string) bool {
	v, ok := state[key].(bool)
	return ok && v
}

func stateMap(state map[string]any, key string) map[string]any {
	v, _ := state[key].(map[string]any)
	return v
}

type s3PublicAccessControl struct{}

func (c *s3PublicAccessControl) Meta() domain.ControlMeta {
	return domain.ControlMeta{
		ID:          "AWS-S3-001",
		Title:       "Block Public Access",
		Description: "S3 buckets must block public access",
		Provider:    "aws",
		Severity:    domain.SeverityCritical,
		Category:    "Storage",
		Frameworks: map[string][]string{
			"ISO27001": {"A.13.1.3"},
			"GDPR":     {"Art.32"},
		},
		AutoRemediable:  true,
		RemediationRisk: domain.RiskHigh,
	}
}

func (c *s3PublicAccessControl) Detect(ctx context.Context, prov provider.Provider) ([]domain.FindingDraft, error) {
	buckets, err := prov.ListResources(ctx, provider.ResourceS3Bucket)
	if err != nil {
		return nil, err
	}

	var drafts []domain.FindingDraft
	for _, b := range buckets {
		block := stateMap(b.State, "public_access_block")
		if stateBool(block, "block_public_acls") && stateBool(block, "block_public_policy") {
			continue
		}
		drafts = append(drafts, failDraft(b, map[string]any{
			"bucket":              b.Name,
			"public_access_block": block,
		}))
	}
	return drafts, nil
}

func (c *s3PublicAccessControl) Remediate(
	ctx context.Context,
	prov provider.Provider,
	f domain.Finding,
	dryRun bool,
) (domain.RemediationOutcome, error) {
	bucket := bucketName(f)

	current, err := prov.DescribeResource(ctx, provider.ResourceS3Bucket, bucket)
	if err != nil {
		return failedOutcome(f, err), nil
	}

	before := stateMap(current.State, "public_access_block")
	after := map[string]any{
		"block_public_acls":       true,
		"ignore_public_acls":      true,
		"block_public_policy":     true,
		"restrict_public_buckets": true,
	}
	rollback := map[string]any{
		"bucket":              bucket,
		"public_access_block": before,
	}

	if dryRun {
		return domain.RemediationOutcome{
			Success:      true,
			ResourceID:   f.ResourceID,
			BeforeState:  map[string]any{"public_access_block": before},
			AfterState:   map[string]any{"public_access_block": after},
			RollbackData: rollback,
		}, nil
	}

	if _, err := prov.MutateResource(ctx, provider.ResourceS3Bucket, bucket, "put_public_access_block", after); err != nil {
		return failedOutcome(f, err), nil
	}

	return domain.RemediationOutcome{
		Success:      true,
		ResourceID:   f.ResourceID,
		BeforeState:  map[string]any{"public_access_block": before},
		AfterState:   map[string]any{"public_access_block": after},
		RollbackData: rollback,
	}, nil
}

func (c *s3PublicAccessControl) Rollback(
	ctx context.Context,
	prov provider.Provider,
	f domain.Finding,
	rollbackData map[string]any,
) (domain.RemediationOutcome, error) {
	bucket, _ := rollbackData["bucket"].(string)
	if bucket == "" {
		bucket = bucketName(f)
	}
	prior := stateMap(rollbackData, "public_access_block")

	params := map[string]any{
		"block_public_acls":       stateBool(prior, "block_public_acls"),
		"ignore_public_acls":      stateBool(prior, "ignore_public_acls"),
		"block_public_policy":     stateBool(prior, "block_public_policy"),
		"restrict_public_buckets": stateBool(prior, "restrict_public_buckets"),
	}
	if _, err := prov.MutateResource(ctx, provider.ResourceS3Bucket, bucket, "put_public_access_block", params); err != nil {
		return failedOutcome(f, err), nil
	}

	return domain.RemediationOutcome{
		Success:    true,
		ResourceID: f.ResourceID,
		AfterState: map[string]any{"public_access_block": prior},
	}, nil
}

type s3EncryptionControl struct{}

func (c *s3EncryptionControl) Meta() domain.ControlMeta {
	return domain.ControlMeta{
		ID:          "AWS-S3-002",
		Title:       "S3 Default Encryption",
		Description: "S3 buckets must have default encryption",
		Provider:    "aws",
		Severity:    domain.SeverityHigh,
		Category:    "Encryption",
		Frameworks: map[string][]string{
			"ISO27001": {"A.10.1.1"},
			"SOC2":     {"CC6.1"},
		},
		AutoRemediable:  true,
		RemediationRisk: domain.RiskLow,
	}
}

func (c *s3EncryptionControl) Detect(ctx context.Context, prov provider.Provider) ([]domain.FindingDraft, error) {
	buckets, err := prov.ListResources(ctx, provider.ResourceS3Bucket)
	if err != nil {
		return nil, err
	}

	var drafts []domain.FindingDraft
	for _, b := range buckets {
		if stateBool(b.State, "encryption_enabled") {
			continue
		}
		drafts = append(drafts, failDraft(b, map[string]any{"bucket": b.Name}))
	}
	return drafts, nil
}

func (c *s3EncryptionControl) Remediate(
	ctx context.Context,
	prov provider.Provider,
	f domain.Finding,
	dryRun bool,
) (domain.RemediationOutcome, error) {
	bucket := bucketName(f)

	outcome := domain.RemediationOutcome{
		Success:      true,
		ResourceID:   f.ResourceID,
		BeforeState:  map[string]any{"encryption_enabled": false},
		AfterState:   map[string]any{"encryption_enabled": true, "algorithm": "AES256"},
		RollbackData: map[string]any{"bucket": bucket, "encryption_enabled": false},
	}
	if dryRun {
		return outcome, nil
	}

	if _, err := prov.MutateResource(ctx, provider.ResourceS3Bucket, bucket, "put_bucket_encryption", nil); err != nil {
		return failedOutcome(f, err), nil
	}
	return outcome, nil
}

func (c *s3EncryptionControl) Rollback(
	ctx context.Context,
	prov provider.Provider,
	f domain.Finding,
	rollbackData map[string]any,
) (domain.RemediationOutcome, error) {
	bucket, _ := rollbackData["bucket"].(string)
	if bucket == "" {
		bucket = bucketName(f)
	}

	if _, err := prov.MutateResource(ctx, provider.ResourceS3Bucket, bucket, "delete_bucket_encryption", nil); err != nil {
		return failedOutcome(f, err), nil
	}
	return domain.RemediationOutcome{
		Success:    true,
		ResourceID: f.ResourceID,
		AfterState: map[string]any{"encryption_enabled": false},
	}, nil
}

type s3VersioningControl struct{}

func (c *s3VersioningControl) Meta() domain.ControlMeta {
	return domain.ControlMeta{
		ID:          "AWS-S3-003",
		Title:       "S3 Versioning",
		Description: "S3 versioning must be enabled for recovery",
		Provider:    "aws",
		Severity:    domain.SeverityMedium,
		Category:    "Backup",
		Frameworks: map[string][]string{
			"ISO27001": {"A.12.3.1"},
			"SOC2":     {"A1.2"},
		},
		AutoRemediable:  true,
		RemediationRisk: domain.RiskLow,
	}
}

func (c *s3VersioningControl) Detect(ctx context.Context, prov provider.Provider) ([]domain.FindingDraft, error) {
	buckets, err := prov.ListResources(ctx, provider.ResourceS3Bucket)
	if err != nil {
		return nil, err
	}

	var drafts []domain.FindingDraft
	for _, b := range buckets {
		if stateBool(b.State, "versioning_enabled") {
			continue
		}
		drafts = append(drafts, failDraft(b, map[string]any{"bucket": b.Name}))
	}
	return drafts, nil
}

func (c *s3VersioningControl) Remediate(
	ctx context.Context,
	prov provider.Provider,
	f domain.Finding,
	dryRun bool,
) (domain.RemediationOutcome, error) {
	bucket := bucketName(f)

	outcome := domain.RemediationOutcome{
		Success:      true,
		ResourceID:   f.ResourceID,
		BeforeState:  map[string]any{"versioning_enabled": false},
		AfterState:   map[string]any{"versioning_enabled": true},
		RollbackData: map[string]any{"bucket": bucket, "versioning_enabled": false},
	}
	if dryRun {
		return outcome, nil
	}

	if _, err := prov.MutateResource(ctx, provider.ResourceS3Bucket, bucket, "put_bucket_versioning", map[string]any{"enabled": true}); err != nil {
		return failedOutcome(f, err), nil
	}
	return outcome, nil
}

func (c *s3VersioningControl) Rollback(
	ctx context.Context,
	prov provider.Provider,
	f domain.Finding,
	rollbackData map[string]any,
) (domain.RemediationOutcome, error) {
	bucket, _ := rollbackData["bucket"].(string)
	if bucket == "" {
		bucket = bucketName(f)
	}

	if _, err := prov.MutateResource(ctx, provider.ResourceS3Bucket, bucket, "put_bucket_versioning", map[string]any{"enabled": false}); err != nil {
		return failedOutcome(f, err), nil
	}
	return domain.RemediationOutcome{
		Success:    true,
		ResourceID: f.ResourceID,
		AfterState: map[string]any{"versioning_enabled": false},
	}, nil
}

func failedOutcome(f domain.Finding, err error) domain.RemediationOutcome {
	return domain.RemediationOutcome{
		Success:      false,
		ResourceID:   f.ResourceID,
		ErrorMessage: err.Error(),
	}
}
