package azure

import (
	"context"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/services/controls"
	"github.com/de-tools/cloud-sentry/pkg/services/provider"
)

// Controls returns the compiled-in Azure control set.
func Controls() []controls.Control {
	return []controls.Control{
		&storageHTTPSControl{},
		&nsgOpenIngressControl{},
	}
}

type storageHTTPSControl struct{}

func (c *storageHTTPSControl) Meta() domain.ControlMeta {
	return domain.ControlMeta{
		ID:          "AZ-ST-001",
		Title:       "Storage HTTPS Only",
		Description: "Storage accounts must require secure transfer",
		Provider:    "azure",
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

func (c *storageHTTPSControl) Detect(ctx context.Context, prov provider.Provider) ([]domain.FindingDraft, error) {
	accounts, err := prov.ListResources(ctx, provider.ResourceStorageAccount)
	if err != nil {
		return nil, err
	}

	var drafts []domain.FindingDraft
	for _, acc := range accounts {
		https, _ := acc.State["https_only"].(bool)
		if https {
			continue
		}
		drafts = append(drafts, domain.FindingDraft{
			Status:       domain.StatusFail,
			ResourceID:   acc.ID,
			ResourceType: string(acc.Type),
			Details:      map[string]any{"account": acc.Name},
			Evidence:     acc.State,
		})
	}
	return drafts, nil
}

func (c *storageHTTPSControl) Remediate(
	ctx context.Context,
	prov provider.Provider,
	f domain.Finding,
	dryRun bool,
) (domain.RemediationOutcome, error) {
	outcome := domain.RemediationOutcome{
		Success:      true,
		ResourceID:   f.ResourceID,
		BeforeState:  map[string]any{"https_only": false},
		AfterState:   map[string]any{"https_only": true},
		RollbackData: map[string]any{"https_only": false},
	}
	if dryRun {
		return outcome, nil
	}

	_, err := prov.MutateResource(ctx, provider.ResourceStorageAccount, f.ResourceID, "update_account", map[string]any{"https_only": true})
	if err != nil {
		return domain.RemediationOutcome{
			Success:      false,
			ResourceID:   f.ResourceID,
			ErrorMessage: err.Error(),
		}, nil
	}
	return outcome, nil
}

func (c *storageHTTPSControl) Rollback(
	ctx context.Context,
	prov provider.Provider,
	f domain.Finding,
	rollbackData map[string]any,
) (domain.RemediationOutcome, error) {
	https, _ := rollbackData["https_only"].(bool)

	_, err := prov.MutateResource(ctx, provider.ResourceStorageAccount, f.ResourceID, "update_account", map[string]any{"https_only": https})
	if err != nil {
		return domain.RemediationOutcome{
			Success:      false,
			ResourceID:   f.ResourceID,
			ErrorMessage: err.Error(),
		}, nil
	}
	return domain.RemediationOutcome{
		Success:    true,
		ResourceID: f.ResourceID,
		AfterState: map[string]any{"https_only": https},
	}, nil
}

type nsgOpenIngressControl struct{}

func (c *nsgOpenIngressControl) Meta() domain.ControlMeta {
	return domain.ControlMeta{
		ID:          "AZ-NSG-001",
		Title:       "No Open NSG Ingress",
		Description: "Network security groups must not allow inbound traffic from any source",
		Provider:    "azure",
		Severity:    domain.SeverityCritical,
		Category:    "Network",
		Frameworks: map[string][]string{
			"ISO27001": {"A.13.1.1"},
			"SOC2":     {"CC6.6"},
		},
		// Revoking NSG rules can sever management access; left to humans.
		AutoRemediable:  false,
		RemediationRisk: domain.RiskHigh,
	}
}

func (c *nsgOpenIngressControl) Detect(ctx context.Context, prov provider.Provider) ([]domain.FindingDraft, error) {
	groups, err := prov.ListResources(ctx, provider.ResourceNSG)
	if err != nil {
		return nil, err
	}

	var drafts []domain.FindingDraft
	for _, nsg := range groups {
		open, _ := nsg.State["open_ingress"].([]any)
		if len(open) == 0 {
			continue
		}
		drafts = append(drafts, domain.FindingDraft{
			Status:       domain.StatusFail,
			ResourceID:   nsg.ID,
			ResourceType: string(nsg.Type),
			Details:      map[string]any{"nsg": nsg.Name, "open_ingress": open},
			Evidence:     nsg.State,
		})
	}
	return drafts, nil
}
