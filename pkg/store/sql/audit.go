package sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/store/audit"
)

type auditStore struct {
	db *sql.DB
}

// NewAuditStore returns an audit.Store over any database/sql driver. The
// table carries no update path, which keeps the ledger append-only at the
// storage layer too.
func NewAuditStore(db *sql.DB) (audit.Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &auditStore{db: db}, nil
}

const auditColumns = `id, finding_id, event_type, action, actor, account, control_id,
	resource_id, before_state, after_state, details, outcome, error_message, timestamp`

func (s *auditStore) Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		return domain.AuditEntry{}, &domain.PersistenceError{
			Op:  "audit.Append",
			Err: fmt.Errorf("entry %s has no timestamp", entry.ID),
		}
	}

	before, err := marshalMap(entry.BeforeState)
	if err != nil {
		return domain.AuditEntry{}, &domain.PersistenceError{Op: "audit.Append", Err: err}
	}
	after, err := marshalMap(entry.AfterState)
	if err != nil {
		return domain.AuditEntry{}, &domain.PersistenceError{Op: "audit.Append", Err: err}
	}
	details, err := marshalMap(entry.Details)
	if err != nil {
		return domain.AuditEntry{}, &domain.PersistenceError{Op: "audit.Append", Err: err}
	}

	query := fmt.Sprintf(`INSERT INTO audit_log (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, auditColumns)
	_, err = executorFrom(ctx, s.db).ExecContext(ctx, query,
		entry.ID, entry.FindingID, string(entry.EventType), entry.Action, entry.Actor,
		entry.Account, entry.ControlID, entry.ResourceID,
		before, after, details,
		string(entry.Outcome), entry.ErrorMessage, entry.Timestamp,
	)
	if err != nil {
		return domain.AuditEntry{}, &domain.PersistenceError{Op: "audit.Append", Err: err}
	}
	return entry, nil
}

func (s *auditStore) List(ctx context.Context, filter audit.Filter) ([]domain.AuditEntry, error) {
	var conds []string
	var args []any
	if filter.Account != "" {
		conds = append(conds, "account = ?")
		args = append(args, filter.Account)
	}
	if filter.FindingID != "" {
		conds = append(conds, "finding_id = ?")
		args = append(args, filter.FindingID)
	}
	if filter.ControlID != "" {
		conds = append(conds, "control_id = ?")
		args = append(args, filter.ControlID)
	}
	if filter.EventType != "" {
		conds = append(conds, "event_type = ?")
		args = append(args, string(filter.EventType))
	}

	query := fmt.Sprintf(`SELECT %s FROM audit_log`, auditColumns)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp ASC"

	rows, err := executorFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "audit.List", Err: err}
	}
	defer rows.Close()

	out := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var (
			e                      domain.AuditEntry
			eventType, outcome     string
			before, after, details []byte
		)
		err := rows.Scan(
			&e.ID, &e.FindingID, &eventType, &e.Action, &e.Actor,
			&e.Account, &e.ControlID, &e.ResourceID,
			&before, &after, &details,
			&outcome, &e.ErrorMessage, &e.Timestamp,
		)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "audit.List", Err: err}
		}
		e.EventType = domain.AuditEventType(eventType)
		e.Outcome = domain.AuditOutcome(outcome)
		e.BeforeState = unmarshalMap(before)
		e.AfterState = unmarshalMap(after)
		e.Details = unmarshalMap(details)
		out = append(out, e)
	}
	return out, rows.Err()
}
