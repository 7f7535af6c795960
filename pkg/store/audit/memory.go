package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
)

type memoryStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func NewMemoryStore() Store {
	return &memoryStore{}
}

func (s *memoryStore) Append(_ context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		return domain.AuditEntry{}, &domain.PersistenceError{
			Op:  "audit.Append",
			Err: fmt.Errorf("entry %s has no timestamp", entry.ID),
		}
	}

	// Stored entries never share maps with the caller; a ledger row must
	// stay exactly as written.
	s.entries = append(s.entries, cloneEntry(entry))
	return entry, nil
}

func (s *memoryStore) List(_ context.Context, filter Filter) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.AuditEntry, 0)
	for _, e := range s.entries {
		if filter.Account != "" && e.Account != filter.Account {
			continue
		}
		if filter.FindingID != "" && e.FindingID != filter.FindingID {
			continue
		}
		if filter.ControlID != "" && e.ControlID != filter.ControlID {
			continue
		}
		if filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	return out, nil
}

func cloneEntry(e domain.AuditEntry) domain.AuditEntry {
	out := e
	out.BeforeState = cloneMap(e.BeforeState)
	out.AfterState = cloneMap(e.AfterState)
	out.Details = cloneMap(e.Details)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
