package detect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	auditsvc "github.com/de-tools/cloud-sentry/pkg/services/audit"
	"github.com/de-tools/cloud-sentry/pkg/services/controls"
	"github.com/de-tools/cloud-sentry/pkg/services/provider"
	"github.com/de-tools/cloud-sentry/pkg/services/registry"
	"github.com/de-tools/cloud-sentry/pkg/store/findings"
)

const (
	// noResource marks account-level finding rows that summarize a whole
	// control run (PASS and ERROR) rather than a single resource.
	noResource = "-"

	defaultMaxConcurrency = 5
	defaultControlTimeout = 2 * time.Minute
)

type Settings struct {
	MaxConcurrency int
	ControlTimeout time.Duration
}

// Engine runs compliance controls against accounts and persists the
// results. Detection itself is read-only against the cloud; the only writes
// are finding rows and ledger entries.
type Engine struct {
	controls  *registry.ControlRegistry
	providers registry.ProviderRegistry
	findings  findings.Store
	ledger    *auditsvc.Ledger

	maxConcurrency int
	controlTimeout time.Duration
	now            func() time.Time
}

func NewEngine(
	ctl *registry.ControlRegistry,
	providers registry.ProviderRegistry,
	store findings.Store,
	ledger *auditsvc.Ledger,
	settings Settings,
) *Engine {
	if settings.MaxConcurrency <= 0 {
		settings.MaxConcurrency = defaultMaxConcurrency
	}
	if settings.ControlTimeout <= 0 {
		settings.ControlTimeout = defaultControlTimeout
	}
	return &Engine{
		controls:       ctl,
		providers:      providers,
		findings:       store,
		ledger:         ledger,
		maxConcurrency: settings.MaxConcurrency,
		controlTimeout: settings.ControlTimeout,
		now:            time.Now,
	}
}

// Scan evaluates the requested controls against one account. With no
// explicit control IDs it runs every control registered for the account's
// provider. Controls run concurrently up to MaxConcurrency, each under its
// own timeout; one control failing or timing out never aborts the scan.
func (e *Engine) Scan(ctx context.Context, account domain.Account, controlIDs []string) (domain.ScanSummary, error) {
	logger := zerolog.Ctx(ctx)

	toRun, err := e.resolveControls(account, controlIDs)
	if err != nil {
		return domain.ScanSummary{}, err
	}

	prov, err := e.providers.Create(ctx, account)
	if err != nil {
		return domain.ScanSummary{}, err
	}

	summary := domain.ScanSummary{
		ScanID:      uuid.NewString(),
		Account:     account.Name,
		ControlsRun: len(toRun),
		StartedAt:   e.now().UTC(),
	}
	logger.Info().
		Str("scan_id", summary.ScanID).
		Str("account", account.Name).
		Int("controls", len(toRun)).
		Msg("scan started")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sem      = make(chan struct{}, e.maxConcurrency)
		firstErr error
	)

	for _, ctl := range toRun {
		wg.Add(1)
		go func(ctl controls.Control) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			pass, fail, errCount, err := e.runControl(ctx, prov, account, summary.ScanID, ctl)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			summary.Pass += pass
			summary.Fail += fail
			summary.Error += errCount
		}(ctl)
	}
	wg.Wait()

	// A finding that could not be durably written, or written without its
	// ledger entry, must not be reported as a completed scan result.
	if firstErr != nil {
		return domain.ScanSummary{}, firstErr
	}

	summary.CompletedAt = e.now().UTC()

	_, err = e.ledger.Append(ctx, domain.AuditEntry{
		EventType: domain.EventScan,
		Action:    "scan_completed",
		Actor:     domain.ActorSystem,
		Account:   account.Name,
		Outcome:   domain.OutcomeSuccess,
		Details: map[string]any{
			"scan_id":      summary.ScanID,
			"controls_run": summary.ControlsRun,
			"pass":         summary.Pass,
			"fail":         summary.Fail,
			"error":        summary.Error,
		},
	})
	if err != nil {
		return domain.ScanSummary{}, err
	}

	logger.Info().
		Str("scan_id", summary.ScanID).
		Int("pass", summary.Pass).
		Int("fail", summary.Fail).
		Int("error", summary.Error).
		Msg("scan completed")
	return summary, nil
}

// Score aggregates every persisted finding of the account into a single
// compliance score.
func (e *Engine) Score(ctx context.Context, account string) (domain.ComplianceScore, error) {
	all, err := e.findings.List(ctx, findings.Filter{Account: account})
	if err != nil {
		return domain.ComplianceScore{}, err
	}
	return domain.ComputeScore(account, all), nil
}

func (e *Engine) resolveControls(account domain.Account, controlIDs []string) ([]controls.Control, error) {
	if len(controlIDs) == 0 {
		toRun := e.controls.ForProvider(account.Provider)
		if len(toRun) == 0 {
			return nil, domain.NewValidationError("no controls registered for provider %q", account.Provider)
		}
		return toRun, nil
	}

	toRun := make([]controls.Control, 0, len(controlIDs))
	for _, id := range controlIDs {
		ctl, err := e.controls.Get(id)
		if err != nil {
			return nil, domain.NewValidationError("unknown control %q", id)
		}
		if ctl.Meta().Provider != account.Provider {
			return nil, domain.NewValidationError(
				"control %q targets provider %q, account %q is %q",
				id, ctl.Meta().Provider, account.Name, account.Provider)
		}
		toRun = append(toRun, ctl)
	}
	return toRun, nil
}

// runControl executes one control and persists its outcome. Returns the
// pass/fail/error contribution to the scan summary; a persistence failure
// aborts the control's contribution entirely so the summary never counts
// findings that were not durably written and audited.
func (e *Engine) runControl(
	ctx context.Context,
	prov provider.Provider,
	account domain.Account,
	scanID string,
	ctl controls.Control,
) (pass, fail, errCount int, err error) {
	logger := zerolog.Ctx(ctx)
	meta := ctl.Meta()

	cctx, cancel := context.WithTimeout(ctx, e.controlTimeout)
	defer cancel()

	drafts, detectErr := ctl.Detect(cctx, prov)
	if detectErr != nil {
		logger.Warn().Err(detectErr).Str("control", meta.ID).Msg("control evaluation failed")
		err = e.persistDraft(ctx, account, scanID, meta, domain.FindingDraft{
			Status:     domain.StatusError,
			ResourceID: noResource,
			Details:    map[string]any{"error": detectErr.Error()},
		})
		if err != nil {
			return 0, 0, 0, err
		}
		return 0, 0, 1, nil
	}

	for _, draft := range drafts {
		// Detection may only emit FAIL and ERROR drafts; anything else is a
		// misbehaving control and is surfaced as an ERROR finding.
		if draft.Status != domain.StatusFail && draft.Status != domain.StatusError {
			logger.Warn().
				Str("control", meta.ID).
				Str("status", string(draft.Status)).
				Msg("control emitted a draft with an unexpected status")
			draft = domain.FindingDraft{
				Status:       domain.StatusError,
				ResourceID:   draft.ResourceID,
				ResourceType: draft.ResourceType,
				Details: map[string]any{
					"error": fmt.Sprintf("control emitted a %s draft, only FAIL and ERROR are allowed", draft.Status),
				},
			}
		}

		if err = e.persistDraft(ctx, account, scanID, meta, draft); err != nil {
			return 0, 0, 0, err
		}
		if draft.Status == domain.StatusError {
			errCount++
		} else {
			fail++
		}
	}

	if fail == 0 && errCount == 0 {
		if err = e.persistDraft(ctx, account, scanID, meta, domain.FindingDraft{
			Status:     domain.StatusPass,
			ResourceID: noResource,
		}); err != nil {
			return 0, 0, 0, err
		}
		pass = 1
	}
	return pass, fail, errCount, nil
}

// persistDraft stores one finding row and its detection ledger entry. A
// FAIL on a resource whose latest finding is FIXED is a regression and gets
// flagged as such in the ledger. The row and its ledger entry are one
// logical unit: if either write fails the draft is not considered recorded.
func (e *Engine) persistDraft(
	ctx context.Context,
	account domain.Account,
	scanID string,
	meta domain.ControlMeta,
	draft domain.FindingDraft,
) error {
	logger := zerolog.Ctx(ctx)

	regressionOf := ""
	if draft.Status == domain.StatusFail {
		prior, err := e.findings.Latest(ctx, account.Name, meta.ID, draft.ResourceID)
		if err == nil && prior.Status == domain.StatusFixed {
			regressionOf = prior.ID
		}
	}

	created, err := e.findings.Create(ctx, domain.Finding{
		Account:      account.Name,
		ControlID:    meta.ID,
		ScanID:       scanID,
		ResourceID:   draft.ResourceID,
		ResourceType: draft.ResourceType,
		Status:       draft.Status,
		RiskLevel:    meta.Severity,
		Details:      draft.Details,
		Evidence:     draft.Evidence,
		DetectedAt:   e.now().UTC(),
	})
	if err != nil {
		logger.Error().Err(err).
			Str("control", meta.ID).
			Str("resource", draft.ResourceID).
			Msg("failed to persist finding")
		return err
	}

	details := map[string]any{"scan_id": scanID, "status": string(draft.Status)}
	if regressionOf != "" {
		details["regression"] = true
		details["regressed_finding_id"] = regressionOf
	}

	outcome := domain.OutcomeSuccess
	if draft.Status == domain.StatusError {
		outcome = domain.OutcomeFailure
	}

	_, err = e.ledger.Append(ctx, domain.AuditEntry{
		FindingID:  created.ID,
		EventType:  domain.EventDetection,
		Action:     "detect",
		Actor:      domain.ActorSystem,
		Account:    account.Name,
		ControlID:  meta.ID,
		ResourceID: draft.ResourceID,
		Details:    details,
		Outcome:    outcome,
	})
	if err != nil {
		logger.Error().Err(err).
			Str("finding_id", created.ID).
			Msg("failed to append detection ledger entry")
		return err
	}
	return nil
}
