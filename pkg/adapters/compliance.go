package adapters

import (
	"github.com/de-tools/cloud-sentry/pkg/models/api"
	"github.com/de-tools/cloud-sentry/pkg/models/domain"
)

func MapControlMetaDomainToApi(m domain.ControlMeta) api.Control {
	return api.Control{
		Id:              m.ID,
		Title:           m.Title,
		Description:     m.Description,
		Provider:        m.Provider,
		Severity:        string(m.Severity),
		Category:        m.Category,
		Frameworks:      m.Frameworks,
		AutoRemediable:  m.AutoRemediable,
		RemediationRisk: string(m.RemediationRisk),
	}
}

func MapFindingDomainToApi(f domain.Finding) api.Finding {
	return api.Finding{
		Id:             f.ID,
		Account:        f.Account,
		ControlId:      f.ControlID,
		ScanId:         f.ScanID,
		ResourceId:     f.ResourceID,
		ResourceType:   f.ResourceType,
		Status:         string(f.Status),
		RiskLevel:      string(f.RiskLevel),
		Details:        f.Details,
		EvidenceBefore: f.EvidenceBefore,
		EvidenceAfter:  f.EvidenceAfter,
		ApprovedBy:     f.ApprovedBy,
		ExecutedAt:     f.ExecutedAt,
		DetectedAt:     f.DetectedAt,
		ResolvedAt:     f.ResolvedAt,
	}
}

func MapScanSummaryDomainToApi(s domain.ScanSummary) api.ScanSummary {
	return api.ScanSummary{
		ScanId:      s.ScanID,
		Account:     s.Account,
		ControlsRun: s.ControlsRun,
		Pass:        s.Pass,
		Fail:        s.Fail,
		Error:       s.Error,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
	}
}

func MapComplianceScoreDomainToApi(s domain.ComplianceScore) api.ComplianceScore {
	bySeverity := make(map[string]int, len(s.BySeverity))
	for severity, count := range s.BySeverity {
		bySeverity[string(severity)] = count
	}
	return api.ComplianceScore{
		Account:    s.Account,
		Score:      s.Score,
		Total:      s.Total,
		Pass:       s.Pass,
		Fail:       s.Fail,
		Fixed:      s.Fixed,
		Error:      s.Error,
		Manual:     s.Manual,
		BySeverity: bySeverity,
	}
}

func MapAuditEntryDomainToApi(e domain.AuditEntry) api.AuditEntry {
	return api.AuditEntry{
		Id:           e.ID,
		FindingId:    e.FindingID,
		EventType:    string(e.EventType),
		Action:       e.Action,
		Actor:        e.Actor,
		Account:      e.Account,
		ControlId:    e.ControlID,
		ResourceId:   e.ResourceID,
		BeforeState:  e.BeforeState,
		AfterState:   e.AfterState,
		Details:      e.Details,
		Outcome:      string(e.Outcome),
		ErrorMessage: e.ErrorMessage,
		Timestamp:    e.Timestamp,
	}
}

func MapRemediationResultDomainToApi(r domain.RemediationResult) api.RemediationResult {
	return api.RemediationResult{
		FindingId:   r.FindingID,
		ControlId:   r.ControlID,
		ResourceId:  r.ResourceID,
		DryRun:      r.DryRun,
		Success:     r.Success,
		BeforeState: r.BeforeState,
		AfterState:  r.AfterState,
		Message:     r.Message,
	}
}
