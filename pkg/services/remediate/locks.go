package remediate

import "sync"

// findingLocks serializes remediation per finding. Acquisition never
// blocks; a second actor touching an in-flight finding is told to back off
// instead of queueing behind a cloud mutation of unknown duration.
type findingLocks struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func newFindingLocks() *findingLocks {
	return &findingLocks{inflight: make(map[string]struct{})}
}

func (l *findingLocks) TryAcquire(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.inflight[id]; held {
		return false
	}
	l.inflight[id] = struct{}{}
	return true
}

func (l *findingLocks) Release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inflight, id)
}
