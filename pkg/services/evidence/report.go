package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/store/audit"
	"github.com/de-tools/cloud-sentry/pkg/store/findings"
)

// Reporter assembles a point-in-time compliance report for one account and
// files it in the evidence store, so auditors get a signed-off snapshot
// rather than a live query.
type Reporter struct {
	findings findings.Store
	audit    audit.Store
	evidence Store
}

func NewReporter(f findings.Store, a audit.Store, e Store) *Reporter {
	return &Reporter{findings: f, audit: a, evidence: e}
}

type report struct {
	Account     string             `json:"account"`
	GeneratedAt time.Time          `json:"generated_at"`
	Score       reportScore        `json:"score"`
	Findings    []reportFinding    `json:"findings"`
	AuditTrail  []reportAuditEntry `json:"audit_trail"`
}

type reportScore struct {
	Score      float64        `json:"score"`
	Total      int            `json:"total"`
	Pass       int            `json:"pass"`
	Fail       int            `json:"fail"`
	Fixed      int            `json:"fixed"`
	Error      int            `json:"error"`
	Manual     int            `json:"manual"`
	BySeverity map[string]int `json:"by_severity"`
}

type reportFinding struct {
	ID             string         `json:"id"`
	ControlID      string         `json:"control_id"`
	ResourceID     string         `json:"resource_id"`
	Status         string         `json:"status"`
	RiskLevel      string         `json:"risk_level"`
	Details        map[string]any `json:"details,omitempty"`
	EvidenceBefore string         `json:"evidence_before,omitempty"`
	EvidenceAfter  string         `json:"evidence_after,omitempty"`
	DetectedAt     time.Time      `json:"detected_at"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
}

type reportAuditEntry struct {
	ID           string    `json:"id"`
	FindingID    string    `json:"finding_id,omitempty"`
	EventType    string    `json:"event_type"`
	Action       string    `json:"action,omitempty"`
	Actor        string    `json:"actor"`
	ControlID    string    `json:"control_id,omitempty"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Outcome      string    `json:"outcome"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Generate builds the report and returns its evidence reference.
func (r *Reporter) Generate(ctx context.Context, account string) (string, error) {
	logger := zerolog.Ctx(ctx)

	all, err := r.findings.List(ctx, findings.Filter{Account: account})
	if err != nil {
		return "", fmt.Errorf("list findings for report: %w", err)
	}

	trail, err := r.audit.List(ctx, audit.Filter{Account: account})
	if err != nil {
		return "", fmt.Errorf("list audit trail for report: %w", err)
	}

	score := domain.ComputeScore(account, all)
	doc := report{
		Account:     account,
		GeneratedAt: time.Now().UTC(),
		Score: reportScore{
			Score:      score.Score,
			Total:      score.Total,
			Pass:       score.Pass,
			Fail:       score.Fail,
			Fixed:      score.Fixed,
			Error:      score.Error,
			Manual:     score.Manual,
			BySeverity: severityCounts(score.BySeverity),
		},
		Findings:   make([]reportFinding, 0, len(all)),
		AuditTrail: make([]reportAuditEntry, 0, len(trail)),
	}

	for _, f := range all {
		doc.Findings = append(doc.Findings, reportFinding{
			ID:             f.ID,
			ControlID:      f.ControlID,
			ResourceID:     f.ResourceID,
			Status:         string(f.Status),
			RiskLevel:      string(f.RiskLevel),
			Details:        f.Details,
			EvidenceBefore: f.EvidenceBefore,
			EvidenceAfter:  f.EvidenceAfter,
			DetectedAt:     f.DetectedAt,
			ResolvedAt:     f.ResolvedAt,
		})
	}
	for _, e := range trail {
		doc.AuditTrail = append(doc.AuditTrail, reportAuditEntry{
			ID:           e.ID,
			FindingID:    e.FindingID,
			EventType:    string(e.EventType),
			Action:       e.Action,
			Actor:        e.Actor,
			ControlID:    e.ControlID,
			ResourceID:   e.ResourceID,
			Outcome:      string(e.Outcome),
			ErrorMessage: e.ErrorMessage,
			Timestamp:    e.Timestamp,
		})
	}

	blob, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	ref, err := r.evidence.Put(ctx, blob)
	if err != nil {
		return "", err
	}

	logger.Info().
		Str("account", account).
		Str("ref", ref).
		Int("findings", len(doc.Findings)).
		Msg("compliance report generated")
	return ref, nil
}

func severityCounts(m map[domain.Severity]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}
