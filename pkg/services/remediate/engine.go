package remediate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	auditsvc "github.com/de-tools/cloud-sentry/pkg/services/audit"
	"github.com/de-tools/cloud-sentry/pkg/services/controls"
	"github.com/de-tools/cloud-sentry/pkg/services/evidence"
	"github.com/de-tools/cloud-sentry/pkg/services/provider"
	"github.com/de-tools/cloud-sentry/pkg/services/registry"
	"github.com/de-tools/cloud-sentry/pkg/store/findings"
)

// Options shapes one remediation request. Actor is who asked; ApprovedBy
// is required for live execution of high-risk fixes.
type Options struct {
	DryRun     bool
	Actor      string
	ApprovedBy string
}

// Engine drives the remediation lifecycle of findings: dry runs, approved
// live fixes with evidence capture, and rollbacks. One finding is worked on
// by at most one request at a time.
type Engine struct {
	controls  *registry.ControlRegistry
	providers registry.ProviderRegistry
	findings  findings.Store
	ledger    *auditsvc.Ledger
	evidence  evidence.Store

	locks *findingLocks
	now   func() time.Time
}

func NewEngine(
	ctl *registry.ControlRegistry,
	providers registry.ProviderRegistry,
	store findings.Store,
	ledger *auditsvc.Ledger,
	evidenceStore evidence.Store,
) *Engine {
	return &Engine{
		controls:  ctl,
		providers: providers,
		findings:  store,
		ledger:    ledger,
		evidence:  evidenceStore,
		locks:     newFindingLocks(),
		now:       time.Now,
	}
}

// Remediate fixes one failing finding, or simulates the fix when DryRun is
// set. A dry run performs no cloud mutation, captures no evidence and never
// changes the finding's status.
func (e *Engine) Remediate(ctx context.Context, account domain.Account, findingID string, opts Options) (domain.RemediationResult, error) {
	if !e.locks.TryAcquire(findingID) {
		return domain.RemediationResult{}, domain.NewConflictError(findingID, "remediation already in progress")
	}
	defer e.locks.Release(findingID)

	f, err := e.findings.Get(ctx, findingID)
	if err != nil {
		return domain.RemediationResult{}, err
	}
	if f.Status != domain.StatusFail {
		return domain.RemediationResult{}, domain.NewConflictError(findingID, "finding is %s, only FAIL findings can be remediated", f.Status)
	}

	ctl, err := e.controls.Get(f.ControlID)
	if err != nil {
		return domain.RemediationResult{}, domain.NewValidationError("finding %s references unknown control %q", findingID, f.ControlID)
	}
	meta := ctl.Meta()

	remediator, ok := ctl.(controls.Remediator)
	if !meta.AutoRemediable || !ok {
		return e.routeToManual(ctx, f, meta, opts)
	}

	if opts.DryRun {
		return e.dryRun(ctx, account, f, remediator, opts)
	}
	return e.execute(ctx, account, f, meta, remediator, opts)
}

// routeToManual marks a finding of a non-remediable control for human
// follow-up. A dry run reports the routing without performing it.
func (e *Engine) routeToManual(ctx context.Context, f domain.Finding, meta domain.ControlMeta, opts Options) (domain.RemediationResult, error) {
	result := domain.RemediationResult{
		FindingID:  f.ID,
		ControlID:  f.ControlID,
		ResourceID: f.ResourceID,
		DryRun:     opts.DryRun,
		Success:    false,
		Message:    fmt.Sprintf("control %s is not auto-remediable, finding requires manual remediation", meta.ID),
	}
	if opts.DryRun {
		return result, nil
	}

	if _, err := e.findings.UpdateStatus(ctx, f.ID, domain.StatusFail, domain.StatusManual, findings.StatusUpdate{}); err != nil {
		return domain.RemediationResult{}, err
	}

	_, err := e.ledger.Append(ctx, domain.AuditEntry{
		FindingID:  f.ID,
		EventType:  domain.EventRemediation,
		Action:     "route_to_manual",
		Actor:      opts.Actor,
		Account:    f.Account,
		ControlID:  f.ControlID,
		ResourceID: f.ResourceID,
		Outcome:    domain.OutcomeSuccess,
	})
	if err != nil {
		return domain.RemediationResult{}, err
	}

	result.Success = true
	result.Message = "finding routed to manual remediation"
	return result, nil
}

func (e *Engine) dryRun(
	ctx context.Context,
	account domain.Account,
	f domain.Finding,
	remediator controls.Remediator,
	opts Options,
) (domain.RemediationResult, error) {
	prov, err := e.providers.Create(ctx, account)
	if err != nil {
		return domain.RemediationResult{}, err
	}

	outcome, err := remediator.Remediate(ctx, prov, f, true)
	if err != nil {
		return domain.RemediationResult{}, err
	}

	_, err = e.ledger.Append(ctx, domain.AuditEntry{
		FindingID:   f.ID,
		EventType:   domain.EventRemediation,
		Action:      "dry_run",
		Actor:       opts.Actor,
		Account:     f.Account,
		ControlID:   f.ControlID,
		ResourceID:  f.ResourceID,
		BeforeState: outcome.BeforeState,
		AfterState:  outcome.AfterState,
		Details:     map[string]any{"dry_run": true, "would_succeed": outcome.Success},
		Outcome:     dryRunOutcome(outcome.Success),
	})
	if err != nil {
		return domain.RemediationResult{}, err
	}

	return domain.RemediationResult{
		FindingID:   f.ID,
		ControlID:   f.ControlID,
		ResourceID:  f.ResourceID,
		DryRun:      true,
		Success:     outcome.Success,
		BeforeState: outcome.BeforeState,
		AfterState:  outcome.AfterState,
		Message:     dryRunMessage(outcome),
	}, nil
}

func (e *Engine) execute(
	ctx context.Context,
	account domain.Account,
	f domain.Finding,
	meta domain.ControlMeta,
	remediator controls.Remediator,
	opts Options,
) (domain.RemediationResult, error) {
	logger := zerolog.Ctx(ctx)

	if meta.RemediationRisk == domain.RiskHigh && opts.ApprovedBy == "" {
		return domain.RemediationResult{}, domain.NewValidationError(
			"control %s is high risk, live remediation requires an approver", meta.ID)
	}

	prov, err := e.providers.Create(ctx, account)
	if err != nil {
		return domain.RemediationResult{}, err
	}

	// Evidence of the pre-fix state must exist before anything mutates.
	beforeRef, err := e.captureEvidence(ctx, prov, f)
	if err != nil {
		return domain.RemediationResult{}, err
	}

	if meta.RemediationRisk == domain.RiskHigh {
		_, err = e.ledger.Append(ctx, domain.AuditEntry{
			FindingID:  f.ID,
			EventType:  domain.EventApproval,
			Action:     "approve_remediation",
			Actor:      opts.ApprovedBy,
			Account:    f.Account,
			ControlID:  f.ControlID,
			ResourceID: f.ResourceID,
			Outcome:    domain.OutcomeSuccess,
		})
		if err != nil {
			return domain.RemediationResult{}, err
		}
	}

	outcome, remErr := remediator.Remediate(ctx, prov, f, false)
	if remErr != nil || !outcome.Success {
		return e.failExecution(ctx, f, opts, outcome, remErr)
	}

	// Post-fix evidence is best effort; the fix already happened and must
	// not be reported as failed over a snapshot.
	afterRef, err := e.captureEvidence(ctx, prov, f)
	if err != nil {
		logger.Warn().Err(err).Str("finding_id", f.ID).Msg("post-remediation evidence capture failed")
		afterRef = ""
	}

	executedAt := e.now().UTC()
	updated, err := e.findings.UpdateStatus(ctx, f.ID, domain.StatusFail, domain.StatusFixed, findings.StatusUpdate{
		EvidenceBefore: beforeRef,
		EvidenceAfter:  afterRef,
		RollbackData:   outcome.RollbackData,
		ApprovedBy:     opts.ApprovedBy,
		ExecutedAt:     &executedAt,
		ResolvedAt:     &executedAt,
	})
	if err != nil {
		// The cloud is fixed but the record is not; surface loudly.
		_, _ = e.ledger.Append(ctx, domain.AuditEntry{
			FindingID:    f.ID,
			EventType:    domain.EventRemediation,
			Action:       "apply_fix",
			Actor:        opts.Actor,
			Account:      f.Account,
			ControlID:    f.ControlID,
			ResourceID:   f.ResourceID,
			BeforeState:  outcome.BeforeState,
			AfterState:   outcome.AfterState,
			Outcome:      domain.OutcomePartial,
			ErrorMessage: fmt.Sprintf("fix applied but finding update failed: %v", err),
		})
		return domain.RemediationResult{}, err
	}

	_, err = e.ledger.Append(ctx, domain.AuditEntry{
		FindingID:   updated.ID,
		EventType:   domain.EventRemediation,
		Action:      "apply_fix",
		Actor:       opts.Actor,
		Account:     f.Account,
		ControlID:   f.ControlID,
		ResourceID:  f.ResourceID,
		BeforeState: outcome.BeforeState,
		AfterState:  outcome.AfterState,
		Details:     map[string]any{"evidence_before": beforeRef, "evidence_after": afterRef},
		Outcome:     domain.OutcomeSuccess,
	})
	if err != nil {
		return domain.RemediationResult{}, err
	}

	return domain.RemediationResult{
		FindingID:   updated.ID,
		ControlID:   f.ControlID,
		ResourceID:  f.ResourceID,
		Success:     true,
		BeforeState: outcome.BeforeState,
		AfterState:  outcome.AfterState,
		Message:     "fix applied",
	}, nil
}

// failExecution records a failed or interrupted live fix. The finding stays
// FAIL; a timeout mid-mutation is recorded as partial because the cloud
// state is unknown.
func (e *Engine) failExecution(
	ctx context.Context,
	f domain.Finding,
	opts Options,
	outcome domain.RemediationOutcome,
	remErr error,
) (domain.RemediationResult, error) {
	msg := outcome.ErrorMessage
	if remErr != nil {
		msg = remErr.Error()
	}

	auditOutcome := domain.OutcomeFailure
	if errors.Is(remErr, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		auditOutcome = domain.OutcomePartial
	}

	_, err := e.ledger.Append(ctx, domain.AuditEntry{
		FindingID:    f.ID,
		EventType:    domain.EventRemediation,
		Action:       "apply_fix",
		Actor:        opts.Actor,
		Account:      f.Account,
		ControlID:    f.ControlID,
		ResourceID:   f.ResourceID,
		BeforeState:  outcome.BeforeState,
		Outcome:      auditOutcome,
		ErrorMessage: msg,
	})
	if err != nil {
		return domain.RemediationResult{}, err
	}
	if remErr != nil {
		return domain.RemediationResult{}, remErr
	}

	return domain.RemediationResult{
		FindingID:  f.ID,
		ControlID:  f.ControlID,
		ResourceID: f.ResourceID,
		Success:    false,
		Message:    msg,
	}, nil
}

// Rollback reverses a previously applied fix using the rollback data
// captured at fix time. The finding returns to FAIL.
func (e *Engine) Rollback(ctx context.Context, account domain.Account, findingID, actor string) (domain.RemediationResult, error) {
	if !e.locks.TryAcquire(findingID) {
		return domain.RemediationResult{}, domain.NewConflictError(findingID, "remediation already in progress")
	}
	defer e.locks.Release(findingID)

	f, err := e.findings.Get(ctx, findingID)
	if err != nil {
		return domain.RemediationResult{}, err
	}
	if f.Status != domain.StatusFixed {
		return domain.RemediationResult{}, domain.NewConflictError(findingID, "finding is %s, only FIXED findings can be rolled back", f.Status)
	}
	if len(f.RollbackData) == 0 {
		return domain.RemediationResult{}, domain.NewConflictError(findingID, "finding carries no rollback data")
	}

	ctl, err := e.controls.Get(f.ControlID)
	if err != nil {
		return domain.RemediationResult{}, domain.NewValidationError("finding %s references unknown control %q", findingID, f.ControlID)
	}
	remediator, ok := ctl.(controls.Remediator)
	if !ok {
		return domain.RemediationResult{}, domain.NewValidationError("control %q supports no rollback", f.ControlID)
	}

	prov, err := e.providers.Create(ctx, account)
	if err != nil {
		return domain.RemediationResult{}, err
	}

	outcome, rbErr := remediator.Rollback(ctx, prov, f, f.RollbackData)
	if rbErr != nil || !outcome.Success {
		msg := outcome.ErrorMessage
		if rbErr != nil {
			msg = rbErr.Error()
		}
		_, err = e.ledger.Append(ctx, domain.AuditEntry{
			FindingID:    f.ID,
			EventType:    domain.EventRollback,
			Action:       "rollback_fix",
			Actor:        actor,
			Account:      f.Account,
			ControlID:    f.ControlID,
			ResourceID:   f.ResourceID,
			Outcome:      domain.OutcomeFailure,
			ErrorMessage: msg,
		})
		if err != nil {
			return domain.RemediationResult{}, err
		}
		if rbErr != nil {
			return domain.RemediationResult{}, rbErr
		}
		return domain.RemediationResult{
			FindingID:  f.ID,
			ControlID:  f.ControlID,
			ResourceID: f.ResourceID,
			Success:    false,
			Message:    msg,
		}, nil
	}

	if _, err := e.findings.UpdateStatus(ctx, f.ID, domain.StatusFixed, domain.StatusFail, findings.StatusUpdate{}); err != nil {
		return domain.RemediationResult{}, err
	}

	_, err = e.ledger.Append(ctx, domain.AuditEntry{
		FindingID:  f.ID,
		EventType:  domain.EventRollback,
		Action:     "rollback_fix",
		Actor:      actor,
		Account:    f.Account,
		ControlID:  f.ControlID,
		ResourceID: f.ResourceID,
		AfterState: outcome.AfterState,
		Outcome:    domain.OutcomeSuccess,
	})
	if err != nil {
		return domain.RemediationResult{}, err
	}

	return domain.RemediationResult{
		FindingID:  f.ID,
		ControlID:  f.ControlID,
		ResourceID: f.ResourceID,
		Success:    true,
		AfterState: outcome.AfterState,
		Message:    "fix rolled back",
	}, nil
}

// captureEvidence snapshots the resource's live state into the evidence
// store and returns the reference.
func (e *Engine) captureEvidence(ctx context.Context, prov provider.Provider, f domain.Finding) (string, error) {
	res, err := prov.DescribeResource(ctx, provider.ResourceType(f.ResourceType), f.ResourceID)
	if err != nil {
		return "", err
	}

	blob, err := json.Marshal(map[string]any{
		"finding_id":  f.ID,
		"resource_id": res.ID,
		"captured_at": e.now().UTC(),
		"state":       res.State,
	})
	if err != nil {
		return "", fmt.Errorf("marshal evidence: %w", err)
	}
	return e.evidence.Put(ctx, blob)
}

func dryRunOutcome(wouldSucceed bool) domain.AuditOutcome {
	if wouldSucceed {
		return domain.OutcomeSuccess
	}
	return domain.OutcomeFailure
}

func dryRunMessage(outcome domain.RemediationOutcome) string {
	if outcome.Success {
		return "dry run: fix would succeed"
	}
	if outcome.ErrorMessage != "" {
		return "dry run: " + outcome.ErrorMessage
	}
	return "dry run: fix would fail"
}
