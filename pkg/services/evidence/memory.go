package evidence

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
)

type memoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewMemoryStore() Store {
	return &memoryStore{blobs: make(map[string][]byte)}
}

func (s *memoryStore) Put(_ context.Context, blob []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := fmt.Sprintf("evidence/%s.json", uuid.NewString())
	stored := make([]byte, len(blob))
	copy(stored, blob)
	s.blobs[ref] = stored
	return ref, nil
}

func (s *memoryStore) Get(_ context.Context, ref string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, ok := s.blobs[ref]
	if !ok {
		return nil, fmt.Errorf("evidence %s: %w", ref, domain.ErrNotFound)
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, nil
}
