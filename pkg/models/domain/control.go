package domain

// ControlMeta describes a compliance control: identity, classification and
// remediation posture. Controls themselves are stateless; all per-run data
// lives on the finding.
type ControlMeta struct {
	ID          string
	Title       string
	Description string
	Provider    string
	Severity    Severity
	Category    string

	// Frameworks maps a framework name (ISO27001, SOC2, ...) to clause IDs.
	Frameworks map[string][]string

	// AutoRemediable marks controls whose fix may be applied without a
	// human performing it by hand. A control that cannot simulate its fix
	// accurately must leave this false.
	AutoRemediable bool

	// RemediationRisk gates live execution: high-risk fixes require an
	// explicit approver identity.
	RemediationRisk RiskTier
}

// RemediationOutcome is what a control's Remediate/Rollback returns.
// On a dry run Success means "this fix would succeed", not "was applied".
type RemediationOutcome struct {
	Success      bool
	ResourceID   string
	BeforeState  map[string]any
	AfterState   map[string]any
	RollbackData map[string]any
	ErrorMessage string
}

// RemediationResult is the caller-facing result of a remediate or rollback
// request against a finding.
type RemediationResult struct {
	FindingID   string
	ControlID   string
	ResourceID  string
	DryRun      bool
	Success     bool
	BeforeState map[string]any
	AfterState  map[string]any
	Message     string
}
