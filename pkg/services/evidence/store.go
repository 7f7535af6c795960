package evidence

import "context"

// Store is the write-once blob store for evidence snapshots and reports.
// Put returns an opaque reference that findings and audit entries carry
// instead of the blob itself.
type Store interface {
	Put(ctx context.Context, blob []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}
