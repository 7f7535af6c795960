package remediate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	auditsvc "github.com/de-tools/cloud-sentry/pkg/services/audit"
	"github.com/de-tools/cloud-sentry/pkg/services/controls"
	"github.com/de-tools/cloud-sentry/pkg/services/evidence"
	"github.com/de-tools/cloud-sentry/pkg/services/provider"
	"github.com/de-tools/cloud-sentry/pkg/services/registry"
	auditstore "github.com/de-tools/cloud-sentry/pkg/store/audit"
	findingstore "github.com/de-tools/cloud-sentry/pkg/store/findings"
)

type stubProvider struct{}

func (p *stubProvider) Name() string { return "aws" }
func (p *stubProvider) ListResources(_ context.Context, _ provider.ResourceType) ([]provider.Resource, error) {
	return nil, nil
}
func (p *stubProvider) DescribeResource(_ context.Context, rt provider.ResourceType, id string) (provider.Resource, error) {
	return provider.Resource{ID: id, Type: rt, State: map[string]any{"public": true}}, nil
}
func (p *stubProvider) MutateResource(_ context.Context, _ provider.ResourceType, _, _ string, _ map[string]any) (map[string]any, error) {
	return nil, nil
}

type stubRemediator struct {
	meta         domain.ControlMeta
	remediateOut domain.RemediationOutcome
	remediateErr error
	rollbackOut  domain.RemediationOutcome
	rollbackErr  error
}

func (c *stubRemediator) Meta() domain.ControlMeta { return c.meta }
func (c *stubRemediator) Detect(_ context.Context, _ provider.Provider) ([]domain.FindingDraft, error) {
	return nil, nil
}
func (c *stubRemediator) Remediate(_ context.Context, _ provider.Provider, _ domain.Finding, _ bool) (domain.RemediationOutcome, error) {
	return c.remediateOut, c.remediateErr
}
func (c *stubRemediator) Rollback(_ context.Context, _ provider.Provider, _ domain.Finding, _ map[string]any) (domain.RemediationOutcome, error) {
	return c.rollbackOut, c.rollbackErr
}

type manualControl struct {
	meta domain.ControlMeta
}

func (c *manualControl) Meta() domain.ControlMeta { return c.meta }
func (c *manualControl) Detect(_ context.Context, _ provider.Provider) ([]domain.FindingDraft, error) {
	return nil, nil
}

type fixture struct {
	engine   *Engine
	findings findingstore.Store
	audit    auditstore.Store
	account  domain.Account
}

func setupFixture(t *testing.T, ctls ...controls.Control) *fixture {
	ctlRegistry, err := registry.NewControlRegistry(ctls)
	require.NoError(t, err)

	providers := registry.NewProviderRegistry(map[string]provider.Factory{
		"aws": func(_ context.Context, _ domain.Account) (provider.Provider, error) {
			return &stubProvider{}, nil
		},
	})

	findings := findingstore.NewMemoryStore()
	auditLog := auditstore.NewMemoryStore()
	engine := NewEngine(ctlRegistry, providers, findings, auditsvc.NewLedger(auditLog), evidence.NewMemoryStore())

	return &fixture{
		engine:   engine,
		findings: findings,
		audit:    auditLog,
		account:  domain.Account{Name: "prod", Provider: "aws"},
	}
}

func (f *fixture) createFailFinding(t *testing.T, controlID string) domain.Finding {
	created, err := f.findings.Create(context.Background(), domain.Finding{
		Account:      "prod",
		ControlID:    controlID,
		ScanID:       "scan-1",
		ResourceID:   "arn:aws:s3:::bucket-a",
		ResourceType: "s3_bucket",
		Status:       domain.StatusFail,
		RiskLevel:    domain.SeverityCritical,
		DetectedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)
	return created
}

func remediableMeta(id string, risk domain.RiskTier) domain.ControlMeta {
	return domain.ControlMeta{
		ID:              id,
		Title:           id,
		Provider:        "aws",
		Severity:        domain.SeverityCritical,
		AutoRemediable:  true,
		RemediationRisk: risk,
	}
}

func successOutcome() domain.RemediationOutcome {
	return domain.RemediationOutcome{
		Success:      true,
		ResourceID:   "arn:aws:s3:::bucket-a",
		BeforeState:  map[string]any{"public": true},
		AfterState:   map[string]any{"public": false},
		RollbackData: map[string]any{"public": true},
	}
}

func TestEngine_Remediate_DryRun(t *testing.T) {
	ctl := &stubRemediator{
		meta:         remediableMeta("AWS-S3-001", domain.RiskHigh),
		remediateOut: successOutcome(),
	}
	f := setupFixture(t, ctl)
	finding := f.createFailFinding(t, "AWS-S3-001")
	ctx := context.Background()

	result, err := f.engine.Remediate(ctx, f.account, finding.ID, Options{DryRun: true, Actor: "alice"})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.True(t, result.Success)

	// Dry run never touches the finding.
	got, err := f.findings.Get(ctx, finding.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFail, got.Status)
	assert.Empty(t, got.EvidenceBefore)

	entries, err := f.audit.List(ctx, auditstore.Filter{FindingID: finding.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].Details["dry_run"])
}

func TestEngine_Remediate_ExecuteSuccess(t *testing.T) {
	ctl := &stubRemediator{
		meta:         remediableMeta("AWS-S3-002", domain.RiskLow),
		remediateOut: successOutcome(),
	}
	f := setupFixture(t, ctl)
	finding := f.createFailFinding(t, "AWS-S3-002")
	ctx := context.Background()

	result, err := f.engine.Remediate(ctx, f.account, finding.ID, Options{Actor: "alice"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.DryRun)

	got, err := f.findings.Get(ctx, finding.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFixed, got.Status)
	assert.NotEmpty(t, got.RollbackData)
	assert.NotEmpty(t, got.EvidenceBefore)
	assert.NotEmpty(t, got.EvidenceAfter)
	require.NotNil(t, got.ExecutedAt)
	require.NotNil(t, got.ResolvedAt)

	remediations, err := f.audit.List(ctx, auditstore.Filter{FindingID: finding.ID, EventType: domain.EventRemediation})
	require.NoError(t, err)
	require.Len(t, remediations, 1)
	assert.Equal(t, domain.OutcomeSuccess, remediations[0].Outcome)

	approvals, err := f.audit.List(ctx, auditstore.Filter{FindingID: finding.ID, EventType: domain.EventApproval})
	require.NoError(t, err)
	assert.Empty(t, approvals)
}

func TestEngine_Remediate_HighRiskRequiresApprover(t *testing.T) {
	ctl := &stubRemediator{
		meta:         remediableMeta("AWS-S3-001", domain.RiskHigh),
		remediateOut: successOutcome(),
	}
	f := setupFixture(t, ctl)
	finding := f.createFailFinding(t, "AWS-S3-001")
	ctx := context.Background()

	_, err := f.engine.Remediate(ctx, f.account, finding.ID, Options{Actor: "alice"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	got, err := f.findings.Get(ctx, finding.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFail, got.Status)
}

func TestEngine_Remediate_HighRiskApproved(t *testing.T) {
	ctl := &stubRemediator{
		meta:         remediableMeta("AWS-S3-001", domain.RiskHigh),
		remediateOut: successOutcome(),
	}
	f := setupFixture(t, ctl)
	finding := f.createFailFinding(t, "AWS-S3-001")
	ctx := context.Background()

	result, err := f.engine.Remediate(ctx, f.account, finding.ID, Options{Actor: "alice", ApprovedBy: "bob"})
	require.NoError(t, err)
	assert.True(t, result.Success)

	got, err := f.findings.Get(ctx, finding.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFixed, got.Status)
	assert.Equal(t, "bob", got.ApprovedBy)

	approvals, err := f.audit.List(ctx, auditstore.Filter{FindingID: finding.ID, EventType: domain.EventApproval})
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	assert.Equal(t, "bob", approvals[0].Actor)
}

func TestEngine_Remediate_ManualControl(t *testing.T) {
	ctl := &manualControl{meta: domain.ControlMeta{
		ID:       "AWS-EC2-001",
		Title:    "AWS-EC2-001",
		Provider: "aws",
		Severity: domain.SeverityHigh,
	}}
	f := setupFixture(t, ctl)
	finding := f.createFailFinding(t, "AWS-EC2-001")
	ctx := context.Background()

	result, err := f.engine.Remediate(ctx, f.account, finding.ID, Options{Actor: "alice"})
	require.NoError(t, err)
	assert.True(t, result.Success)

	got, err := f.findings.Get(ctx, finding.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusManual, got.Status)
}

func TestEngine_Remediate_FailureKeepsFail(t *testing.T) {
	ctl := &stubRemediator{
		meta: remediableMeta("AWS-S3-002", domain.RiskLow),
		remediateOut: domain.RemediationOutcome{
			Success:      false,
			ResourceID:   "arn:aws:s3:::bucket-a",
			ErrorMessage: "access denied",
		},
	}
	f := setupFixture(t, ctl)
	finding := f.createFailFinding(t, "AWS-S3-002")
	ctx := context.Background()

	result, err := f.engine.Remediate(ctx, f.account, finding.ID, Options{Actor: "alice"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "access denied", result.Message)

	got, err := f.findings.Get(ctx, finding.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFail, got.Status)

	remediations, err := f.audit.List(ctx, auditstore.Filter{FindingID: finding.ID, EventType: domain.EventRemediation})
	require.NoError(t, err)
	require.Len(t, remediations, 1)
	assert.Equal(t, domain.OutcomeFailure, remediations[0].Outcome)
	assert.Equal(t, "access denied", remediations[0].ErrorMessage)
}

func TestEngine_Remediate_NonFailFinding(t *testing.T) {
	ctl := &stubRemediator{meta: remediableMeta("AWS-S3-002", domain.RiskLow)}
	f := setupFixture(t, ctl)
	ctx := context.Background()

	created, err := f.findings.Create(ctx, domain.Finding{
		Account:    "prod",
		ControlID:  "AWS-S3-002",
		ScanID:     "scan-1",
		ResourceID: "-",
		Status:     domain.StatusPass,
		DetectedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = f.engine.Remediate(ctx, f.account, created.ID, Options{Actor: "alice"})
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestEngine_Remediate_LockConflict(t *testing.T) {
	ctl := &stubRemediator{meta: remediableMeta("AWS-S3-002", domain.RiskLow)}
	f := setupFixture(t, ctl)
	finding := f.createFailFinding(t, "AWS-S3-002")

	require.True(t, f.engine.locks.TryAcquire(finding.ID))
	defer f.engine.locks.Release(finding.ID)

	_, err := f.engine.Remediate(context.Background(), f.account, finding.ID, Options{Actor: "alice"})
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
}

// gatedRemediator blocks inside Remediate until released, so a second
// caller can be lined up while the first one still holds the finding lock.
type gatedRemediator struct {
	stubRemediator
	entered chan struct{}
	release chan struct{}
}

func (c *gatedRemediator) Remediate(ctx context.Context, p provider.Provider, f domain.Finding, dryRun bool) (domain.RemediationOutcome, error) {
	close(c.entered)
	<-c.release
	return c.stubRemediator.Remediate(ctx, p, f, dryRun)
}

func TestEngine_Remediate_ConcurrentCallsOneWins(t *testing.T) {
	ctl := &gatedRemediator{
		stubRemediator: stubRemediator{
			meta:         remediableMeta("AWS-S3-002", domain.RiskLow),
			remediateOut: successOutcome(),
		},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := setupFixture(t, ctl)
	finding := f.createFailFinding(t, "AWS-S3-002")
	ctx := context.Background()

	type outcome struct {
		result domain.RemediationResult
		err    error
	}
	first := make(chan outcome, 1)
	second := make(chan outcome, 1)

	go func() {
		r, err := f.engine.Remediate(ctx, f.account, finding.ID, Options{Actor: "alice"})
		first <- outcome{result: r, err: err}
	}()
	<-ctl.entered

	go func() {
		r, err := f.engine.Remediate(ctx, f.account, finding.ID, Options{Actor: "bob"})
		second <- outcome{result: r, err: err}
	}()

	loser := <-second
	var conflict *domain.ConflictError
	require.ErrorAs(t, loser.err, &conflict)

	close(ctl.release)
	winner := <-first
	require.NoError(t, winner.err)
	assert.True(t, winner.result.Success)

	got, err := f.findings.Get(ctx, finding.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFixed, got.Status)

	remediations, err := f.audit.List(ctx, auditstore.Filter{FindingID: finding.ID, EventType: domain.EventRemediation})
	require.NoError(t, err)
	assert.Len(t, remediations, 1)
}

func TestEngine_Rollback(t *testing.T) {
	ctl := &stubRemediator{
		meta:         remediableMeta("AWS-S3-002", domain.RiskLow),
		remediateOut: successOutcome(),
		rollbackOut: domain.RemediationOutcome{
			Success:    true,
			ResourceID: "arn:aws:s3:::bucket-a",
			AfterState: map[string]any{"public": true},
		},
	}
	f := setupFixture(t, ctl)
	finding := f.createFailFinding(t, "AWS-S3-002")
	ctx := context.Background()

	_, err := f.engine.Remediate(ctx, f.account, finding.ID, Options{Actor: "alice"})
	require.NoError(t, err)

	result, err := f.engine.Rollback(ctx, f.account, finding.ID, "alice")
	require.NoError(t, err)
	assert.True(t, result.Success)

	got, err := f.findings.Get(ctx, finding.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFail, got.Status)
	assert.Empty(t, got.RollbackData)

	rollbacks, err := f.audit.List(ctx, auditstore.Filter{FindingID: finding.ID, EventType: domain.EventRollback})
	require.NoError(t, err)
	require.Len(t, rollbacks, 1)
	assert.Equal(t, domain.OutcomeSuccess, rollbacks[0].Outcome)
}

func TestEngine_Rollback_RequiresFixed(t *testing.T) {
	ctl := &stubRemediator{meta: remediableMeta("AWS-S3-002", domain.RiskLow)}
	f := setupFixture(t, ctl)
	finding := f.createFailFinding(t, "AWS-S3-002")

	_, err := f.engine.Rollback(context.Background(), f.account, finding.ID, "alice")
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
}
