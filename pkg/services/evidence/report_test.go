package evidence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	auditstore "github.com/de-tools/cloud-sentry/pkg/store/audit"
	findingstore "github.com/de-tools/cloud-sentry/pkg/store/findings"
)

func TestReporter_Generate(t *testing.T) {
	ctx := context.Background()
	findings := findingstore.NewMemoryStore()
	auditLog := auditstore.NewMemoryStore()
	blobs := NewMemoryStore()

	now := time.Now().UTC()
	_, err := findings.Create(ctx, domain.Finding{
		Account:    "prod",
		ControlID:  "AWS-S3-001",
		ScanID:     "scan-1",
		ResourceID: "arn:aws:s3:::bucket-a",
		Status:     domain.StatusFail,
		RiskLevel:  domain.SeverityCritical,
		DetectedAt: now,
	})
	require.NoError(t, err)
	_, err = findings.Create(ctx, domain.Finding{
		Account:    "prod",
		ControlID:  "AWS-S3-002",
		ScanID:     "scan-1",
		ResourceID: "-",
		Status:     domain.StatusPass,
		DetectedAt: now,
	})
	require.NoError(t, err)
	_, err = auditLog.Append(ctx, domain.AuditEntry{
		EventType: domain.EventScan,
		Actor:     domain.ActorSystem,
		Account:   "prod",
		Outcome:   domain.OutcomeSuccess,
		Timestamp: now,
	})
	require.NoError(t, err)

	reporter := NewReporter(findings, auditLog, blobs)
	ref, err := reporter.Generate(ctx, "prod")
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	blob, err := blobs.Get(ctx, ref)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(blob, &doc))
	assert.Equal(t, "prod", doc["account"])

	score := doc["score"].(map[string]any)
	assert.Equal(t, float64(2), score["total"])
	assert.Equal(t, float64(50), score["score"])

	assert.Len(t, doc["findings"], 2)
	assert.Len(t, doc["audit_trail"], 1)
}
