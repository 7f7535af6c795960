package audit

import (
	"context"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
)

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	Account   string
	FindingID string
	ControlID string
	EventType domain.AuditEventType
}

// Store is the append-only ledger backing. There is deliberately no update
// or delete; corrections are new entries.
type Store interface {
	Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error)
	List(ctx context.Context, filter Filter) ([]domain.AuditEntry, error)
}
