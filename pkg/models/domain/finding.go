package domain

import "time"

type FindingStatus string

const (
	StatusPass   FindingStatus = "PASS"
	StatusFail   FindingStatus = "FAIL"
	StatusError  FindingStatus = "ERROR"
	StatusFixed  FindingStatus = "FIXED"
	StatusManual FindingStatus = "MANUAL"
)

// legalTransitions is the full transition graph for persisted findings.
// PASS and ERROR are terminal; everything a finding can become after
// detection goes through FAIL.
var legalTransitions = map[FindingStatus][]FindingStatus{
	StatusFail:  {StatusFixed, StatusManual},
	StatusFixed: {StatusFail},
}

// CanTransitionTo reports whether moving from s to next is a legal
// finding status transition.
func (s FindingStatus) CanTransitionTo(next FindingStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s FindingStatus) Valid() bool {
	switch s {
	case StatusPass, StatusFail, StatusError, StatusFixed, StatusManual:
		return true
	}
	return false
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Finding is the persisted outcome of one control against one resource in
// one scan. Findings are created by the detection engine and mutated only
// by the remediation engine; they are never deleted, a re-scan creates new
// rows instead of overwriting old ones.
type Finding struct {
	ID           string
	Account      string
	ControlID    string
	ScanID       string
	ResourceID   string
	ResourceType string
	Status       FindingStatus

	// RiskLevel is inherited from the control at detection time and frozen.
	RiskLevel Severity

	Details  map[string]any
	Evidence map[string]any

	// EvidenceBefore/EvidenceAfter are evidence store references captured
	// around a live remediation.
	EvidenceBefore string
	EvidenceAfter  string

	// RollbackData is control-defined state sufficient to reverse the fix.
	// Non-empty exactly while the finding is FIXED.
	RollbackData map[string]any

	ApprovedBy string
	ExecutedAt *time.Time

	DetectedAt time.Time
	ResolvedAt *time.Time
}

// FindingDraft is what a control's Detect emits; the detection engine turns
// drafts into persisted findings.
type FindingDraft struct {
	Status       FindingStatus
	ResourceID   string
	ResourceType string
	Details      map[string]any
	Evidence     map[string]any
}
