package sql

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/store/audit"
)

var auditCols = []string{
	"id", "finding_id", "event_type", "action", "actor", "account", "control_id",
	"resource_id", "before_state", "after_state", "details", "outcome", "error_message", "timestamp",
}

func TestAuditStore_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewAuditStore(db)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_log")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry, err := store.Append(context.Background(), domain.AuditEntry{
		FindingID: "f-1",
		EventType: domain.EventRemediation,
		Action:    "put_public_access_block",
		Actor:     "alice",
		Account:   "prod",
		ControlID: "AWS-S3-001",
		Outcome:   domain.OutcomeSuccess,
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditStore_AppendRequiresTimestamp(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewAuditStore(db)
	require.NoError(t, err)

	_, err = store.Append(context.Background(), domain.AuditEntry{
		EventType: domain.EventScan,
		Actor:     domain.ActorSystem,
	})
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
}

func TestAuditStore_ListByFinding(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewAuditStore(db)
	require.NoError(t, err)

	ts := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(auditCols).
		AddRow("a-1", "f-1", "detection", "detect", "system", "prod", "AWS-S3-001",
			"arn:aws:s3:::bucket-a", nil, nil, nil, "success", "", ts).
		AddRow("a-2", "f-1", "remediation", "put_public_access_block", "alice", "prod", "AWS-S3-001",
			"arn:aws:s3:::bucket-a", []byte(`{"block_public_acls":false}`), []byte(`{"block_public_acls":true}`), nil, "success", "", ts.Add(time.Minute))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("f-1").
		WillReturnRows(rows)

	got, err := store.List(context.Background(), audit.Filter{FindingID: "f-1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.EventDetection, got[0].EventType)
	assert.Equal(t, domain.EventRemediation, got[1].EventType)
	assert.Equal(t, true, got[1].AfterState["block_public_acls"])
}
