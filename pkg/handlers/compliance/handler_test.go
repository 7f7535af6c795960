package compliance

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/cloud-sentry/pkg/models/api"
	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/services/controls"
	"github.com/de-tools/cloud-sentry/pkg/services/provider"
	"github.com/de-tools/cloud-sentry/pkg/services/registry"
	"github.com/de-tools/cloud-sentry/pkg/services/remediate"
	auditstore "github.com/de-tools/cloud-sentry/pkg/store/audit"
	findingstore "github.com/de-tools/cloud-sentry/pkg/store/findings"
)

type mockScanner struct {
	mock.Mock
}

func (m *mockScanner) Scan(ctx context.Context, account domain.Account, controlIDs []string) (domain.ScanSummary, error) {
	args := m.Called(ctx, account, controlIDs)
	return args.Get(0).(domain.ScanSummary), args.Error(1)
}

func (m *mockScanner) Score(ctx context.Context, account string) (domain.ComplianceScore, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(domain.ComplianceScore), args.Error(1)
}

type mockFixer struct {
	mock.Mock
}

func (m *mockFixer) Remediate(ctx context.Context, account domain.Account, findingID string, opts remediate.Options) (domain.RemediationResult, error) {
	args := m.Called(ctx, account, findingID, opts)
	return args.Get(0).(domain.RemediationResult), args.Error(1)
}

func (m *mockFixer) Rollback(ctx context.Context, account domain.Account, findingID, actor string) (domain.RemediationResult, error) {
	args := m.Called(ctx, account, findingID, actor)
	return args.Get(0).(domain.RemediationResult), args.Error(1)
}

type mockReporter struct {
	mock.Mock
}

func (m *mockReporter) Generate(ctx context.Context, account string) (string, error) {
	args := m.Called(ctx, account)
	return args.String(0), args.Error(1)
}

type staticAccounts map[string]domain.Account

func (s staticAccounts) GetAccount(name string) (domain.Account, error) {
	acc, ok := s[name]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return acc, nil
}

type stubControl struct {
	meta domain.ControlMeta
}

func (c *stubControl) Meta() domain.ControlMeta { return c.meta }
func (c *stubControl) Detect(_ context.Context, _ provider.Provider) ([]domain.FindingDraft, error) {
	return nil, nil
}

type fixture struct {
	handler  *Handler
	scanner  *mockScanner
	fixer    *mockFixer
	reporter *mockReporter
	findings findingstore.Store
}

func newFixture(t *testing.T) *fixture {
	ctlRegistry, err := registry.NewControlRegistry([]controls.Control{
		&stubControl{meta: domain.ControlMeta{
			ID:       "AWS-S3-001",
			Title:    "S3 Public Access Block",
			Provider: "aws",
			Severity: domain.SeverityCritical,
		}},
		&stubControl{meta: domain.ControlMeta{
			ID:       "AZ-ST-001",
			Title:    "Storage HTTPS Only",
			Provider: "azure",
			Severity: domain.SeverityHigh,
		}},
	})
	require.NoError(t, err)

	scanner := new(mockScanner)
	fixer := new(mockFixer)
	reporter := new(mockReporter)
	findings := findingstore.NewMemoryStore()

	handler := NewHandler(
		staticAccounts{"prod": {Name: "prod", Provider: "aws", Region: "us-east-1"}},
		scanner,
		fixer,
		reporter,
		ctlRegistry,
		findings,
		auditstore.NewMemoryStore(),
	)

	return &fixture{
		handler:  handler,
		scanner:  scanner,
		fixer:    fixer,
		reporter: reporter,
		findings: findings,
	}
}

func withURLParams(req *http.Request, params map[string]string) *http.Request {
	ctx := chi.NewRouteContext()
	for k, v := range params {
		ctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, ctx))
}

func TestStartScan(t *testing.T) {
	f := newFixture(t)
	account := domain.Account{Name: "prod", Provider: "aws", Region: "us-east-1"}

	f.scanner.On("Scan", mock.Anything, account, []string(nil)).Return(domain.ScanSummary{
		ScanID:      "scan-1",
		Account:     "prod",
		ControlsRun: 3,
		Pass:        2,
		Fail:        1,
	}, nil)

	req := httptest.NewRequest("POST", "/api/v1/accounts/prod/scans", nil)
	req = withURLParams(req, map[string]string{"account": "prod"})
	rec := httptest.NewRecorder()

	f.handler.StartScan(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var response api.ScanSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "scan-1", response.ScanId)
	assert.Equal(t, 1, response.Fail)
	f.scanner.AssertExpectations(t)
}

func TestStartScan_UnknownAccount(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("POST", "/api/v1/accounts/ghost/scans", nil)
	req = withURLParams(req, map[string]string{"account": "ghost"})
	rec := httptest.NewRecorder()

	f.handler.StartScan(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartScan_ValidationError(t *testing.T) {
	f := newFixture(t)
	account := domain.Account{Name: "prod", Provider: "aws", Region: "us-east-1"}

	f.scanner.On("Scan", mock.Anything, account, []string{"NOPE-001"}).Return(
		domain.ScanSummary{}, domain.NewValidationError("unknown control %q", "NOPE-001"))

	body, _ := json.Marshal(api.ScanRequest{Controls: []string{"NOPE-001"}})
	req := httptest.NewRequest("POST", "/api/v1/accounts/prod/scans", bytes.NewReader(body))
	req = withURLParams(req, map[string]string{"account": "prod"})
	rec := httptest.NewRecorder()

	f.handler.StartScan(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetScore(t *testing.T) {
	f := newFixture(t)

	f.scanner.On("Score", mock.Anything, "prod").Return(domain.ComplianceScore{
		Account: "prod",
		Score:   75,
		Total:   4,
		Pass:    3,
		Fail:    1,
		BySeverity: map[domain.Severity]int{
			domain.SeverityCritical: 1,
		},
	}, nil)

	req := httptest.NewRequest("GET", "/api/v1/accounts/prod/score", nil)
	req = withURLParams(req, map[string]string{"account": "prod"})
	rec := httptest.NewRecorder()

	f.handler.GetScore(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var response api.ComplianceScore
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, float64(75), response.Score)
	assert.Equal(t, 1, response.BySeverity["critical"])
}

func TestGenerateReport(t *testing.T) {
	f := newFixture(t)

	f.reporter.On("Generate", mock.Anything, "prod").Return("evidence/report-1.json", nil)

	req := httptest.NewRequest("POST", "/api/v1/accounts/prod/report", nil)
	req = withURLParams(req, map[string]string{"account": "prod"})
	rec := httptest.NewRecorder()

	f.handler.GenerateReport(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var response api.ReportRef
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "evidence/report-1.json", response.Ref)
}

func TestListFindings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.findings.Create(ctx, domain.Finding{
		Account:    "prod",
		ControlID:  "AWS-S3-001",
		ScanID:     "scan-1",
		ResourceID: "arn:aws:s3:::bucket-a",
		Status:     domain.StatusFail,
		RiskLevel:  domain.SeverityCritical,
		DetectedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/findings?account=prod&status=FAIL", nil)
	rec := httptest.NewRecorder()

	f.handler.ListFindings(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var response []api.Finding
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	require.Len(t, response, 1)
	assert.Equal(t, "AWS-S3-001", response[0].ControlId)
}

func TestListFindings_InvalidStatus(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("GET", "/api/v1/findings?status=BROKEN", nil)
	rec := httptest.NewRecorder()

	f.handler.ListFindings(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemediate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	finding, err := f.findings.Create(ctx, domain.Finding{
		Account:    "prod",
		ControlID:  "AWS-S3-001",
		ScanID:     "scan-1",
		ResourceID: "arn:aws:s3:::bucket-a",
		Status:     domain.StatusFail,
		DetectedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	account := domain.Account{Name: "prod", Provider: "aws", Region: "us-east-1"}
	f.fixer.On("Remediate", mock.Anything, account, finding.ID, remediate.Options{
		DryRun: true,
		Actor:  "alice",
	}).Return(domain.RemediationResult{
		FindingID: finding.ID,
		ControlID: "AWS-S3-001",
		DryRun:    true,
		Success:   true,
	}, nil)

	body, _ := json.Marshal(api.RemediateRequest{DryRun: true, Actor: "alice"})
	req := httptest.NewRequest("POST", "/api/v1/findings/"+finding.ID+"/remediate", bytes.NewReader(body))
	req = withURLParams(req, map[string]string{"id": finding.ID})
	rec := httptest.NewRecorder()

	f.handler.Remediate(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var response api.RemediationResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.True(t, response.DryRun)
	assert.True(t, response.Success)
	f.fixer.AssertExpectations(t)
}

func TestRemediate_MissingActor(t *testing.T) {
	f := newFixture(t)

	body, _ := json.Marshal(api.RemediateRequest{DryRun: true})
	req := httptest.NewRequest("POST", "/api/v1/findings/f-1/remediate", bytes.NewReader(body))
	req = withURLParams(req, map[string]string{"id": "f-1"})
	rec := httptest.NewRecorder()

	f.handler.Remediate(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemediate_Conflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	finding, err := f.findings.Create(ctx, domain.Finding{
		Account:    "prod",
		ControlID:  "AWS-S3-001",
		ScanID:     "scan-1",
		ResourceID: "arn:aws:s3:::bucket-a",
		Status:     domain.StatusFail,
		DetectedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	account := domain.Account{Name: "prod", Provider: "aws", Region: "us-east-1"}
	f.fixer.On("Remediate", mock.Anything, account, finding.ID, mock.Anything).Return(
		domain.RemediationResult{}, domain.NewConflictError(finding.ID, "remediation already in progress"))

	body, _ := json.Marshal(api.RemediateRequest{Actor: "alice"})
	req := httptest.NewRequest("POST", "/api/v1/findings/"+finding.ID+"/remediate", bytes.NewReader(body))
	req = withURLParams(req, map[string]string{"id": finding.ID})
	rec := httptest.NewRecorder()

	f.handler.Remediate(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListControls(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("GET", "/api/v1/controls", nil)
	rec := httptest.NewRecorder()

	f.handler.ListControls(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var response []api.Control
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Len(t, response, 2)

	req = httptest.NewRequest("GET", "/api/v1/controls?provider=azure", nil)
	rec = httptest.NewRecorder()

	f.handler.ListControls(rec, req)

	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	require.Len(t, response, 1)
	assert.Equal(t, "AZ-ST-001", response[0].Id)
}

func TestRollback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	finding, err := f.findings.Create(ctx, domain.Finding{
		Account:    "prod",
		ControlID:  "AWS-S3-001",
		ScanID:     "scan-1",
		ResourceID: "arn:aws:s3:::bucket-a",
		Status:     domain.StatusFixed,
		DetectedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	account := domain.Account{Name: "prod", Provider: "aws", Region: "us-east-1"}
	f.fixer.On("Rollback", mock.Anything, account, finding.ID, "alice").Return(domain.RemediationResult{
		FindingID: finding.ID,
		Success:   true,
	}, nil)

	body, _ := json.Marshal(api.RollbackRequest{Actor: "alice"})
	req := httptest.NewRequest("POST", "/api/v1/findings/"+finding.ID+"/rollback", bytes.NewReader(body))
	req = withURLParams(req, map[string]string{"id": finding.ID})
	rec := httptest.NewRecorder()

	f.handler.Rollback(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	f.fixer.AssertExpectations(t)
}
