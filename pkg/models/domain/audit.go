package domain

import "time"

type AuditEventType string

const (
	EventDetection   AuditEventType = "detection"
	EventRemediation AuditEventType = "remediation"
	EventApproval    AuditEventType = "approval"
	EventRollback    AuditEventType = "rollback"
	EventScan        AuditEventType = "scan"
)

type AuditOutcome string

const (
	OutcomeSuccess AuditOutcome = "success"
	OutcomeFailure AuditOutcome = "failure"
	OutcomePartial AuditOutcome = "partial"
)

// ActorSystem is the actor recorded for events not initiated by a human.
const ActorSystem = "system"

// AuditEntry is one immutable row of the append-only ledger. Entries are
// never updated or deleted; corrections are new compensating entries.
type AuditEntry struct {
	ID        string
	FindingID string

	EventType AuditEventType
	Action    string
	Actor     string

	Account    string
	ControlID  string
	ResourceID string

	BeforeState map[string]any
	AfterState  map[string]any
	Details     map[string]any

	Outcome      AuditOutcome
	ErrorMessage string
	Timestamp    time.Time
}
