package findings

import (
	"context"
	"time"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
)

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	Account   string
	ControlID string
	ScanID    string
	Status    domain.FindingStatus
	Severity  domain.Severity
}

// StatusUpdate carries the fields a status transition is allowed to touch.
// Everything else on a finding is immutable after creation.
type StatusUpdate struct {
	EvidenceBefore string
	EvidenceAfter  string
	RollbackData   map[string]any
	ApprovedBy     string
	ExecutedAt     *time.Time
	ResolvedAt     *time.Time
}

// Store persists findings. Findings are never deleted; a re-scan creates
// new rows. UpdateStatus is a compare-and-set on the current status: it
// fails with *domain.ConflictError when the finding is not in the expected
// state and with domain.ErrIllegalTransition when the transition is outside
// the legal graph.
type Store interface {
	Create(ctx context.Context, f domain.Finding) (domain.Finding, error)
	Get(ctx context.Context, id string) (domain.Finding, error)
	List(ctx context.Context, filter Filter) ([]domain.Finding, error)

	// Latest returns the most recently detected finding for one
	// account/control/resource triple, or domain.ErrNotFound.
	Latest(ctx context.Context, account, controlID, resourceID string) (domain.Finding, error)

	UpdateStatus(ctx context.Context, id string, from, to domain.FindingStatus, update StatusUpdate) (domain.Finding, error)
}
