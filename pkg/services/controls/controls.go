// Package controls defines the compliance control contract. A control is a
// named, versioned policy unit: Detect evaluates resources read-only, and
// controls that can repair what they find additionally implement Remediator.
package controls

import (
	"context"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/services/provider"
)

// Control evaluates one compliance requirement against the resources of a
// single account. Detect must only issue read calls against the provider and
// must not persist anything itself; persistence is the detection engine's
// job. A failure to evaluate an individual resource is emitted as an
// ERROR-status draft, not an error return.
type Control interface {
	Meta() domain.ControlMeta
	Detect(ctx context.Context, prov provider.Provider) ([]domain.FindingDraft, error)
}

// Remediator is implemented by controls whose metadata declares
// AutoRemediable. With dryRun true, Remediate performs only read operations
// and Success means "this fix would succeed".
//
// Rollback restores the specific prior configuration captured in
// rollbackData at fix time; it never re-detects and re-fixes.
type Remediator interface {
	Control
	Remediate(ctx context.Context, prov provider.Provider, f domain.Finding, dryRun bool) (domain.RemediationOutcome, error)
	Rollback(ctx context.Context, prov provider.Provider, f domain.Finding, rollbackData map[string]any) (domain.RemediationOutcome, error)
}

// ErrorDraft builds the ERROR finding draft controls emit when a single
// resource cannot be evaluated.
func ErrorDraft(r provider.Resource, err error) domain.FindingDraft {
	return domain.FindingDraft{
		Status:       domain.StatusError,
		ResourceID:   r.ID,
		ResourceType: string(r.Type),
		Details:      map[string]any{"error": err.Error()},
	}
}
