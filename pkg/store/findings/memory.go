package findings

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
)

// memoryStore keeps findings in insertion order under one mutex, which also
// gives the per-finding write serialization the engines rely on.
type memoryStore struct {
	mu      sync.Mutex
	byID    map[string]*domain.Finding
	ordered []string
}

func NewMemoryStore() Store {
	return &memoryStore{byID: make(map[string]*domain.Finding)}
}

func (s *memoryStore) Create(_ context.Context, f domain.Finding) (domain.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if _, exists := s.byID[f.ID]; exists {
		return domain.Finding{}, &domain.PersistenceError{
			Op:  "findings.Create",
			Err: fmt.Errorf("duplicate finding id %s", f.ID),
		}
	}
	if !f.Status.Valid() {
		return domain.Finding{}, &domain.PersistenceError{
			Op:  "findings.Create",
			Err: fmt.Errorf("invalid status %q", f.Status),
		}
	}

	stored := cloneFinding(f)
	s.byID[f.ID] = &stored
	s.ordered = append(s.ordered, f.ID)
	return cloneFinding(stored), nil
}

func (s *memoryStore) Get(_ context.Context, id string) (domain.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.byID[id]
	if !ok {
		return domain.Finding{}, fmt.Errorf("finding %s: %w", id, domain.ErrNotFound)
	}
	return cloneFinding(*f), nil
}

func (s *memoryStore) List(_ context.Context, filter Filter) ([]domain.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Finding, 0)
	for _, id := range s.ordered {
		f := s.byID[id]
		if !matches(f, filter) {
			continue
		}
		out = append(out, cloneFinding(*f))
	}
	return out, nil
}

func (s *memoryStore) Latest(_ context.Context, account, controlID, resourceID string) (domain.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.ordered) - 1; i >= 0; i-- {
		f := s.byID[s.ordered[i]]
		if f.Account == account && f.ControlID == controlID && f.ResourceID == resourceID {
			return cloneFinding(*f), nil
		}
	}
	return domain.Finding{}, fmt.Errorf("finding for %s/%s/%s: %w", account, controlID, resourceID, domain.ErrNotFound)
}

func (s *memoryStore) UpdateStatus(
	_ context.Context,
	id string,
	from, to domain.FindingStatus,
	update StatusUpdate,
) (domain.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.byID[id]
	if !ok {
		return domain.Finding{}, fmt.Errorf("finding %s: %w", id, domain.ErrNotFound)
	}
	if f.Status != from {
		return domain.Finding{}, domain.NewConflictError(id, "status is %s, expected %s", f.Status, from)
	}
	if !from.CanTransitionTo(to) {
		return domain.Finding{}, fmt.Errorf("%s -> %s: %w", from, to, domain.ErrIllegalTransition)
	}

	f.Status = to
	if update.EvidenceBefore != "" {
		f.EvidenceBefore = update.EvidenceBefore
	}
	if update.EvidenceAfter != "" {
		f.EvidenceAfter = update.EvidenceAfter
	}
	if update.ApprovedBy != "" {
		f.ApprovedBy = update.ApprovedBy
	}
	if update.ExecutedAt != nil {
		f.ExecutedAt = update.ExecutedAt
	}
	f.ResolvedAt = update.ResolvedAt

	// Rollback data lives on a finding exactly while it is FIXED.
	if to == domain.StatusFixed {
		f.RollbackData = cloneMap(update.RollbackData)
	} else {
		f.RollbackData = nil
	}

	return cloneFinding(*f), nil
}

func matches(f *domain.Finding, filter Filter) bool {
	if filter.Account != "" && f.Account != filter.Account {
		return false
	}
	if filter.ControlID != "" && f.ControlID != filter.ControlID {
		return false
	}
	if filter.ScanID != "" && f.ScanID != filter.ScanID {
		return false
	}
	if filter.Status != "" && f.Status != filter.Status {
		return false
	}
	if filter.Severity != "" && f.RiskLevel != filter.Severity {
		return false
	}
	return true
}

func cloneFinding(f domain.Finding) domain.Finding {
	out := f
	out.Details = cloneMap(f.Details)
	out.Evidence = cloneMap(f.Evidence)
	out.RollbackData = cloneMap(f.RollbackData)
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
