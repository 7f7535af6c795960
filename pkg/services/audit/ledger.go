package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	auditstore "github.com/de-tools/cloud-sentry/pkg/store/audit"
)

// Ledger is the single write path into the audit log. It stamps entries
// and guarantees callers never report success on a lost write; a failed
// append surfaces as *domain.PersistenceError from the store.
type Ledger struct {
	store auditstore.Store
	now   func() time.Time
}

func NewLedger(store auditstore.Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

func (l *Ledger) Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	logger := zerolog.Ctx(ctx)

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now().UTC()
	}
	if entry.Actor == "" {
		entry.Actor = domain.ActorSystem
	}

	appended, err := l.store.Append(ctx, entry)
	if err != nil {
		logger.Error().Err(err).
			Str("event_type", string(entry.EventType)).
			Str("finding_id", entry.FindingID).
			Msg("audit append failed")
		return domain.AuditEntry{}, err
	}
	return appended, nil
}

func (l *Ledger) List(ctx context.Context, filter auditstore.Filter) ([]domain.AuditEntry, error) {
	return l.store.List(ctx, filter)
}
