package aws

import (
	"context"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/services/provider"
)

type ec2PublicIPControl struct{}

func (c *ec2PublicIPControl) Meta() domain.ControlMeta {
	return domain.ControlMeta{
		ID:          "AWS-EC2-001",
		Title:       "No Public IPs",
		Description: "EC2 instances should not carry public IP addresses",
		Provider:    "aws",
		Severity:    domain.SeverityHigh,
		Category:    "Network",
		Frameworks: map[string][]string{
			"ISO27001": {"A.13.1.1"},
			"SOC2":     {"CC6.6"},
		},
		// Detaching a public IP interrupts live traffic; this stays a
		// human decision.
		AutoRemediable:  false,
		RemediationRisk: domain.RiskHigh,
	}
}

func (c *ec2PublicIPControl) Detect(ctx context.Context, prov provider.Provider) ([]domain.FindingDraft, error) {
	instances, err := prov.ListResources(ctx, provider.ResourceEC2Instance)
	if err != nil {
		return nil, err
	}

	var drafts []domain.FindingDraft
	for _, inst := range instances {
		ip, _ := inst.State["public_ip"].(string)
		if ip == "" {
			continue
		}
		drafts = append(drafts, failDraft(inst, map[string]any{
			"instance":  inst.ID,
			"public_ip": ip,
		}))
	}
	return drafts, nil
}

type ebsEncryptionControl struct{}

func (c *ebsEncryptionControl) Meta() domain.ControlMeta {
	return domain.ControlMeta{
		ID:          "AWS-EC2-002",
		Title:       "EBS Encryption",
		Description: "EBS volumes must be encrypted at rest",
		Provider:    "aws",
		Severity:    domain.SeverityHigh,
		Category:    "Encryption",
		Frameworks: map[string][]string{
			"ISO27001": {"A.10.1.1"},
			"GDPR":     {"Art.32"},
		},
		// Encrypting an existing volume requires snapshot/restore; no
		// accurate dry-run exists, so no auto-remediation.
		AutoRemediable:  false,
		RemediationRisk: domain.RiskHigh,
	}
}

func (c *ebsEncryptionControl) Detect(ctx context.Context, prov provider.Provider) ([]domain.FindingDraft, error) {
	volumes, err := prov.ListResources(ctx, provider.ResourceEBSVolume)
	if err != nil {
		return nil, err
	}

	var drafts []domain.FindingDraft
	for _, vol := range volumes {
		if stateBool(vol.State, "encrypted") {
			continue
		}
		drafts = append(drafts, failDraft(vol, map[string]any{"volume": vol.ID}))
	}
	return drafts, nil
}

type securityGroupOpenIngressControl struct{}

func (c *securityGroupOpenIngressControl) Meta() domain.ControlMeta {
	return domain.ControlMeta{
		ID:          "AWS-SG-001",
		Title:       "No Open Ingress",
		Description: "Security groups must not allow ingress from 0.0.0.0/0",
		Provider:    "aws",
		Severity:    domain.SeverityCritical,
		Category:    "Network",
		Frameworks: map[string][]string{
			"ISO27001": {"A.13.1.1"},
			"SOC2":     {"CC6.6"},
		},
		AutoRemediable:  true,
		RemediationRisk: domain.RiskHigh,
	}
}

func (c *securityGroupOpenIngressControl) Detect(ctx context.Context, prov provider.Provider) ([]domain.FindingDraft, error) {
	groups, err := prov.ListResources(ctx, provider.ResourceSecurityGroup)
	if err != nil {
		return nil, err
	}

	var drafts []domain.FindingDraft
	for _, sg := range groups {
		open, _ := sg.State["open_ingress"].([]any)
		if len(open) == 0 {
			continue
		}
		drafts = append(drafts, failDraft(sg, map[string]any{
			"group":        sg.ID,
			"open_ingress": open,
		}))
	}
	return drafts, nil
}

func (c *securityGroupOpenIngressControl) Remediate(
	ctx context.Context,
	prov provider.Provider,
	f domain.Finding,
	dryRun bool,
) (domain.RemediationOutcome, error) {
	current, err := prov.DescribeResource(ctx, provider.ResourceSecurityGroup, f.ResourceID)
	if err != nil {
		return failedOutcome(f, err), nil
	}

	open, _ := current.State["open_ingress"].([]any)
	if len(open) == 0 {
		return domain.RemediationOutcome{
			Success:      false,
			ResourceID:   f.ResourceID,
			ErrorMessage: "no open ingress rules left to revoke",
		}, nil
	}

	outcome := domain.RemediationOutcome{
		Success:      true,
		ResourceID:   f.ResourceID,
		BeforeState:  map[string]any{"open_ingress": open},
		AfterState:   map[string]any{"open_ingress": []any{}},
		RollbackData: map[string]any{"group": f.ResourceID, "rules": open},
	}
	if dryRun {
		return outcome, nil
	}

	for _, rule := range open {
		params, _ := rule.(map[string]any)
		if _, err := prov.MutateResource(ctx, provider.ResourceSecurityGroup, f.ResourceID, "revoke_ingress", params); err != nil {
			return failedOutcome(f, err), nil
		}
	}
	return outcome, nil
}

func (c *securityGroupOpenIngressControl) Rollback(
	ctx context.Context,
	prov provider.Provider,
	f domain.Finding,
	rollbackData map[string]any,
) (domain.RemediationOutcome, error) {
	group, _ := rollbackData["group"].(string)
	if group == "" {
		group = f.ResourceID
	}
	rules, _ := rollbackData["rules"].([]any)

	for _, rule := range rules {
		params, _ := rule.(map[string]any)
		if _, err := prov.MutateResource(ctx, provider.ResourceSecurityGroup, group, "authorize_ingress", params); err != nil {
			return failedOutcome(f, err), nil
		}
	}

	return domain.RemediationOutcome{
		Success:    true,
		ResourceID: f.ResourceID,
		AfterState: map[string]any{"open_ingress": rules},
	}, nil
}
