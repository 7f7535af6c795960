package api

import "time"

type Control struct {
	Id              string              `json:"id"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	Provider        string              `json:"provider"`
	Severity        string              `json:"severity"`
	Category        string              `json:"category"`
	Frameworks      map[string][]string `json:"frameworks,omitempty"`
	AutoRemediable  bool                `json:"auto_remediable"`
	RemediationRisk string              `json:"remediation_risk"`
}

type Finding struct {
	Id             string         `json:"id"`
	Account        string         `json:"account"`
	ControlId      string         `json:"control_id"`
	ScanId         string         `json:"scan_id"`
	ResourceId     string         `json:"resource_id"`
	ResourceType   string         `json:"resource_type,omitempty"`
	Status         string         `json:"status"`
	RiskLevel      string         `json:"risk_level,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	EvidenceBefore string         `json:"evidence_before,omitempty"`
	EvidenceAfter  string         `json:"evidence_after,omitempty"`
	ApprovedBy     string         `json:"approved_by,omitempty"`
	ExecutedAt     *time.Time     `json:"executed_at,omitempty"`
	DetectedAt     time.Time      `json:"detected_at"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
}

type ScanSummary struct {
	ScanId      string    `json:"scan_id"`
	Account     string    `json:"account"`
	ControlsRun int       `json:"controls_run"`
	Pass        int       `json:"pass"`
	Fail        int       `json:"fail"`
	Error       int       `json:"error"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

type ComplianceScore struct {
	Account    string         `json:"account"`
	Score      float64        `json:"score"`
	Total      int            `json:"total"`
	Pass       int            `json:"pass"`
	Fail       int            `json:"fail"`
	Fixed      int            `json:"fixed"`
	Error      int            `json:"error"`
	Manual     int            `json:"manual"`
	BySeverity map[string]int `json:"by_severity"`
}

type AuditEntry struct {
	Id           string         `json:"id"`
	FindingId    string         `json:"finding_id,omitempty"`
	EventType    string         `json:"event_type"`
	Action       string         `json:"action,omitempty"`
	Actor        string         `json:"actor"`
	Account      string         `json:"account,omitempty"`
	ControlId    string         `json:"control_id,omitempty"`
	ResourceId   string         `json:"resource_id,omitempty"`
	BeforeState  map[string]any `json:"before_state,omitempty"`
	AfterState   map[string]any `json:"after_state,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	Outcome      string         `json:"outcome"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

type RemediationResult struct {
	FindingId   string         `json:"finding_id"`
	ControlId   string         `json:"control_id"`
	ResourceId  string         `json:"resource_id"`
	DryRun      bool           `json:"dry_run"`
	Success     bool           `json:"success"`
	BeforeState map[string]any `json:"before_state,omitempty"`
	AfterState  map[string]any `json:"after_state,omitempty"`
	Message     string         `json:"message,omitempty"`
}

type ScanRequest struct {
	Controls []string `json:"controls,omitempty"`
}

type RemediateRequest struct {
	DryRun     bool   `json:"dry_run"`
	Actor      string `json:"actor"`
	ApprovedBy string `json:"approved_by,omitempty"`
}

type RollbackRequest struct {
	Actor string `json:"actor"`
}

type ReportRef struct {
	Ref string `json:"ref"`
}

type Error struct {
	Error string `json:"error"`
}
