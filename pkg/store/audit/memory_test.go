package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
)

func TestMemoryStore_AppendAssignsID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	entry, err := store.Append(ctx, domain.AuditEntry{
		FindingID: "f-1",
		EventType: domain.EventDetection,
		Action:    "detect",
		Actor:     domain.ActorSystem,
		Account:   "prod",
		ControlID: "AWS-S3-001",
		Outcome:   domain.OutcomeSuccess,
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
}

func TestMemoryStore_AppendRequiresTimestamp(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Append(context.Background(), domain.AuditEntry{
		EventType: domain.EventScan,
		Actor:     domain.ActorSystem,
	})
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
}

func TestMemoryStore_StoredEntriesAreImmutable(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	details := map[string]any{"scan_id": "scan-1"}
	_, err := store.Append(ctx, domain.AuditEntry{
		FindingID: "f-1",
		EventType: domain.EventDetection,
		Actor:     domain.ActorSystem,
		Details:   details,
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)

	// Neither the caller's map nor a listed copy may reach the stored row.
	details["scan_id"] = "tampered"

	listed, err := store.List(ctx, Filter{FindingID: "f-1"})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "scan-1", listed[0].Details["scan_id"])

	listed[0].Details["scan_id"] = "tampered-again"

	again, err := store.List(ctx, Filter{FindingID: "f-1"})
	require.NoError(t, err)
	assert.Equal(t, "scan-1", again[0].Details["scan_id"])
}

func TestMemoryStore_ListFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	entries := []domain.AuditEntry{
		{FindingID: "f-1", EventType: domain.EventDetection, Account: "prod", ControlID: "AWS-S3-001", Actor: domain.ActorSystem, Outcome: domain.OutcomeSuccess, Timestamp: now},
		{FindingID: "f-1", EventType: domain.EventRemediation, Account: "prod", ControlID: "AWS-S3-001", Actor: "alice", Outcome: domain.OutcomeSuccess, Timestamp: now},
		{FindingID: "f-2", EventType: domain.EventDetection, Account: "staging", ControlID: "AWS-SG-001", Actor: domain.ActorSystem, Outcome: domain.OutcomeSuccess, Timestamp: now},
	}
	for _, e := range entries {
		_, err := store.Append(ctx, e)
		require.NoError(t, err)
	}

	all, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byFinding, err := store.List(ctx, Filter{FindingID: "f-1"})
	require.NoError(t, err)
	assert.Len(t, byFinding, 2)

	remediations, err := store.List(ctx, Filter{FindingID: "f-1", EventType: domain.EventRemediation})
	require.NoError(t, err)
	require.Len(t, remediations, 1)
	assert.Equal(t, "alice", remediations[0].Actor)

	staging, err := store.List(ctx, Filter{Account: "staging"})
	require.NoError(t, err)
	assert.Len(t, staging, 1)
}
