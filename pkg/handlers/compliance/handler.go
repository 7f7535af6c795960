package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/de-tools/cloud-sentry/pkg/adapters"
	"github.com/de-tools/cloud-sentry/pkg/models/api"
	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/services/registry"
	"github.com/de-tools/cloud-sentry/pkg/services/remediate"
	auditstore "github.com/de-tools/cloud-sentry/pkg/store/audit"
	findingstore "github.com/de-tools/cloud-sentry/pkg/store/findings"
)

type AccountResolver interface {
	GetAccount(name string) (domain.Account, error)
}

type Scanner interface {
	Scan(ctx context.Context, account domain.Account, controlIDs []string) (domain.ScanSummary, error)
	Score(ctx context.Context, account string) (domain.ComplianceScore, error)
}

type Fixer interface {
	Remediate(ctx context.Context, account domain.Account, findingID string, opts remediate.Options) (domain.RemediationResult, error)
	Rollback(ctx context.Context, account domain.Account, findingID, actor string) (domain.RemediationResult, error)
}

type Reporter interface {
	Generate(ctx context.Context, account string) (string, error)
}

type Handler struct {
	accounts AccountResolver
	scanner  Scanner
	fixer    Fixer
	reporter Reporter
	controls *registry.ControlRegistry
	findings findingstore.Store
	auditLog auditstore.Store
}

func NewHandler(
	accounts AccountResolver,
	scanner Scanner,
	fixer Fixer,
	reporter Reporter,
	controls *registry.ControlRegistry,
	findings findingstore.Store,
	auditLog auditstore.Store,
) *Handler {
	return &Handler{
		accounts: accounts,
		scanner:  scanner,
		fixer:    fixer,
		reporter: reporter,
		controls: controls,
		findings: findings,
		auditLog: auditLog,
	}
}

func (h *Handler) StartScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	account, err := h.accounts.GetAccount(chi.URLParam(r, "account"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	var req api.ScanRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(ctx, w, domain.NewValidationError("invalid scan request: %v", err))
			return
		}
	}

	summary, err := h.scanner.Scan(ctx, account, req.Controls)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, adapters.MapScanSummaryDomainToApi(summary))
}

func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	account, err := h.accounts.GetAccount(chi.URLParam(r, "account"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	score, err := h.scanner.Score(ctx, account.Name)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, adapters.MapComplianceScoreDomainToApi(score))
}

func (h *Handler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	account, err := h.accounts.GetAccount(chi.URLParam(r, "account"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	ref, err := h.reporter.Generate(ctx, account.Name)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, api.ReportRef{Ref: ref})
}

func (h *Handler) ListFindings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := findingstore.Filter{
		Account:   q.Get("account"),
		ControlID: q.Get("control_id"),
		ScanID:    q.Get("scan_id"),
		Status:    domain.FindingStatus(q.Get("status")),
		Severity:  domain.Severity(q.Get("severity")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(ctx, w, domain.NewValidationError("invalid status %q", filter.Status))
		return
	}

	rows, err := h.findings.List(ctx, filter)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	response := make([]api.Finding, 0, len(rows))
	for _, f := range rows {
		response = append(response, adapters.MapFindingDomainToApi(f))
	}
	writeJSON(ctx, w, http.StatusOK, response)
}

func (h *Handler) GetFinding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	f, err := h.findings.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, adapters.MapFindingDomainToApi(f))
}

func (h *Handler) Remediate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	findingID := chi.URLParam(r, "id")

	var req api.RemediateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, w, domain.NewValidationError("invalid remediate request: %v", err))
		return
	}
	if req.Actor == "" {
		writeError(ctx, w, domain.NewValidationError("actor is required"))
		return
	}

	account, err := h.accountForFinding(ctx, findingID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	result, err := h.fixer.Remediate(ctx, account, findingID, remediate.Options{
		DryRun:     req.DryRun,
		Actor:      req.Actor,
		ApprovedBy: req.ApprovedBy,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, adapters.MapRemediationResultDomainToApi(result))
}

func (h *Handler) Rollback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	findingID := chi.URLParam(r, "id")

	var req api.RollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, w, domain.NewValidationError("invalid rollback request: %v", err))
		return
	}
	if req.Actor == "" {
		writeError(ctx, w, domain.NewValidationError("actor is required"))
		return
	}

	account, err := h.accountForFinding(ctx, findingID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	result, err := h.fixer.Rollback(ctx, account, findingID, req.Actor)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, adapters.MapRemediationResultDomainToApi(result))
}

func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	entries, err := h.auditLog.List(ctx, auditstore.Filter{
		Account:   q.Get("account"),
		FindingID: q.Get("finding_id"),
		ControlID: q.Get("control_id"),
		EventType: domain.AuditEventType(q.Get("event_type")),
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	response := make([]api.AuditEntry, 0, len(entries))
	for _, e := range entries {
		response = append(response, adapters.MapAuditEntryDomainToApi(e))
	}
	writeJSON(ctx, w, http.StatusOK, response)
}

func (h *Handler) ListControls(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	providerFilter := r.URL.Query().Get("provider")

	all := h.controls.All()
	response := make([]api.Control, 0, len(all))
	for _, ctl := range all {
		meta := ctl.Meta()
		if providerFilter != "" && meta.Provider != providerFilter {
			continue
		}
		response = append(response, adapters.MapControlMetaDomainToApi(meta))
	}
	writeJSON(ctx, w, http.StatusOK, response)
}

// accountForFinding resolves the configured account a finding belongs to,
// so remediation runs with that account's credentials.
func (h *Handler) accountForFinding(ctx context.Context, findingID string) (domain.Account, error) {
	f, err := h.findings.Get(ctx, findingID)
	if err != nil {
		return domain.Account{}, err
	}
	return h.accounts.GetAccount(f.Account)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	logger := zerolog.Ctx(ctx)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := zerolog.Ctx(ctx)

	var (
		verr     *domain.ValidationError
		conflict *domain.ConflictError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.As(err, &conflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Msg("request failed")
	} else {
		logger.Warn().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(ctx, w, status, api.Error{Error: err.Error()})
}
