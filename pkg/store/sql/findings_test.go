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
	"github.com/de-tools/cloud-sentry/pkg/store/findings"
)

var findingCols = []string{
	"id", "account", "control_id", "scan_id", "resource_id", "resource_type",
	"status", "risk_level", "details", "evidence", "evidence_before", "evidence_after",
	"rollback_data", "approved_by", "executed_at", "detected_at", "resolved_at",
}

func TestFindingStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewFindingStore(db)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO findings")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	created, err := store.Create(context.Background(), domain.Finding{
		Account:    "prod",
		ControlID:  "AWS-S3-001",
		ScanID:     "scan-1",
		ResourceID: "arn:aws:s3:::bucket-a",
		Status:     domain.StatusFail,
		RiskLevel:  domain.SeverityCritical,
		Details:    map[string]any{"bucket": "bucket-a"},
		DetectedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindingStore_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewFindingStore(db)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(findingCols))

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindingStore_ListByScan(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewFindingStore(db)
	require.NoError(t, err)

	detected := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(findingCols).AddRow(
		"f-1", "prod", "AWS-S3-001", "scan-1", "arn:aws:s3:::bucket-a", "s3_bucket",
		"FAIL", "critical", []byte(`{"bucket":"bucket-a"}`), nil, "", "",
		nil, "", nil, detected, nil,
	)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("scan-1").
		WillReturnRows(rows)

	got, err := store.List(context.Background(), findings.Filter{ScanID: "scan-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.StatusFail, got[0].Status)
	assert.Equal(t, "bucket-a", got[0].Details["bucket"])
	assert.Equal(t, detected, got[0].DetectedAt)
}

func TestFindingStore_UpdateStatusConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewFindingStore(db)
	require.NoError(t, err)

	// CAS misses, then the follow-up read reports the actual status.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE findings")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("f-1").
		WillReturnRows(sqlmock.NewRows(findingCols).AddRow(
			"f-1", "prod", "AWS-S3-001", "scan-1", "arn:aws:s3:::bucket-a", "s3_bucket",
			"FIXED", "critical", nil, nil, "", "",
			[]byte(`{"block_public_acls":false}`), "", nil, time.Now().UTC(), nil,
		))

	_, err = store.UpdateStatus(context.Background(), "f-1", domain.StatusFail, domain.StatusFixed, findings.StatusUpdate{})
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "f-1", conflict.FindingID)
}

func TestFindingStore_UpdateStatusIllegal(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewFindingStore(db)
	require.NoError(t, err)

	_, err = store.UpdateStatus(context.Background(), "f-1", domain.StatusPass, domain.StatusFixed, findings.StatusUpdate{})
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}
