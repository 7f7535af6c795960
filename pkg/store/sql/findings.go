package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
	"github.com/de-tools/cloud-sentry/pkg/store/findings"
)

type findingStore struct {
	db *sql.DB
}

// NewFindingStore returns a findings.Store over any database/sql driver
// using the findings table bootstrapped by the duckdb package.
func NewFindingStore(db *sql.DB) (findings.Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &findingStore{db: db}, nil
}

const findingColumns = `id, account, control_id, scan_id, resource_id, resource_type,
	status, risk_level, details, evidence, evidence_before, evidence_after,
	rollback_data, approved_by, executed_at, detected_at, resolved_at`

func (s *findingStore) Create(ctx context.Context, f domain.Finding) (domain.Finding, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}

	details, err := marshalMap(f.Details)
	if err != nil {
		return domain.Finding{}, &domain.PersistenceError{Op: "findings.Create", Err: err}
	}
	evidence, err := marshalMap(f.Evidence)
	if err != nil {
		return domain.Finding{}, &domain.PersistenceError{Op: "findings.Create", Err: err}
	}
	rollback, err := marshalMap(f.RollbackData)
	if err != nil {
		return domain.Finding{}, &domain.PersistenceError{Op: "findings.Create", Err: err}
	}

	query := fmt.Sprintf(`INSERT INTO findings (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, findingColumns)
	_, err = executorFrom(ctx, s.db).ExecContext(ctx, query,
		f.ID, f.Account, f.ControlID, f.ScanID, f.ResourceID, f.ResourceType,
		string(f.Status), string(f.RiskLevel), details, evidence,
		f.EvidenceBefore, f.EvidenceAfter, rollback, f.ApprovedBy,
		f.ExecutedAt, f.DetectedAt, f.ResolvedAt,
	)
	if err != nil {
		return domain.Finding{}, &domain.PersistenceError{Op: "findings.Create", Err: err}
	}
	return f, nil
}

func (s *findingStore) Get(ctx context.Context, id string) (domain.Finding, error) {
	query := fmt.Sprintf(`SELECT %s FROM findings WHERE id = ?`, findingColumns)
	f, err := scanFinding(executorFrom(ctx, s.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return domain.Finding{}, fmt.Errorf("finding %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Finding{}, &domain.PersistenceError{Op: "findings.Get", Err: err}
	}
	return f, nil
}

func (s *findingStore) List(ctx context.Context, filter findings.Filter) ([]domain.Finding, error) {
	var conds []string
	var args []any
	if filter.Account != "" {
		conds = append(conds, "account = ?")
		args = append(args, filter.Account)
	}
	if filter.ControlID != "" {
		conds = append(conds, "control_id = ?")
		args = append(args, filter.ControlID)
	}
	if filter.ScanID != "" {
		conds = append(conds, "scan_id = ?")
		args = append(args, filter.ScanID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Severity != "" {
		conds = append(conds, "risk_level = ?")
		args = append(args, string(filter.Severity))
	}

	query := fmt.Sprintf(`SELECT %s FROM findings`, findingColumns)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY detected_at ASC"

	rows, err := executorFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "findings.List", Err: err}
	}
	defer rows.Close()

	out := make([]domain.Finding, 0)
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "findings.List", Err: err}
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *findingStore) Latest(ctx context.Context, account, controlID, resourceID string) (domain.Finding, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM findings
		WHERE account = ? AND control_id = ? AND resource_id = ?
		ORDER BY detected_at DESC LIMIT 1`, findingColumns)

	f, err := scanFinding(executorFrom(ctx, s.db).QueryRowContext(ctx, query, account, controlID, resourceID))
	if err == sql.ErrNoRows {
		return domain.Finding{}, fmt.Errorf("finding for %s/%s/%s: %w", account, controlID, resourceID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Finding{}, &domain.PersistenceError{Op: "findings.Latest", Err: err}
	}
	return f, nil
}

func (s *findingStore) UpdateStatus(
	ctx context.Context,
	id string,
	from, to domain.FindingStatus,
	update findings.StatusUpdate,
) (domain.Finding, error) {
	if !from.CanTransitionTo(to) {
		return domain.Finding{}, fmt.Errorf("%s -> %s: %w", from, to, domain.ErrIllegalTransition)
	}

	var rollback []byte
	var err error
	if to == domain.StatusFixed {
		rollback, err = marshalMap(update.RollbackData)
		if err != nil {
			return domain.Finding{}, &domain.PersistenceError{Op: "findings.UpdateStatus", Err: err}
		}
	}

	// The status predicate makes this a compare-and-set; a concurrent
	// transition leaves zero rows affected.
	res, err := executorFrom(ctx, s.db).ExecContext(ctx, `
		UPDATE findings SET
			status = ?,
			evidence_before = CASE WHEN ? != '' THEN ? ELSE evidence_before END,
			evidence_after = CASE WHEN ? != '' THEN ? ELSE evidence_after END,
			rollback_data = ?,
			approved_by = CASE WHEN ? != '' THEN ? ELSE approved_by END,
			executed_at = COALESCE(?, executed_at),
			resolved_at = ?
		WHERE id = ? AND status = ?`,
		string(to),
		update.EvidenceBefore, update.EvidenceBefore,
		update.EvidenceAfter, update.EvidenceAfter,
		rollback,
		update.ApprovedBy, update.ApprovedBy,
		update.ExecutedAt,
		update.ResolvedAt,
		id, string(from),
	)
	if err != nil {
		return domain.Finding{}, &domain.PersistenceError{Op: "findings.UpdateStatus", Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Finding{}, &domain.PersistenceError{Op: "findings.UpdateStatus", Err: err}
	}
	if affected == 0 {
		current, err := s.Get(ctx, id)
		if err != nil {
			return domain.Finding{}, err
		}
		return domain.Finding{}, domain.NewConflictError(id, "status is %s, expected %s", current.Status, from)
	}

	return s.Get(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFinding(row rowScanner) (domain.Finding, error) {
	var (
		f                           domain.Finding
		status, riskLevel           string
		details, evidence, rollback []byte
		executedAt, resolvedAt      sql.NullTime
	)
	err := row.Scan(
		&f.ID, &f.Account, &f.ControlID, &f.ScanID, &f.ResourceID, &f.ResourceType,
		&status, &riskLevel, &details, &evidence, &f.EvidenceBefore, &f.EvidenceAfter,
		&rollback, &f.ApprovedBy, &executedAt, &f.DetectedAt, &resolvedAt,
	)
	if err != nil {
		return domain.Finding{}, err
	}

	f.Status = domain.FindingStatus(status)
	f.RiskLevel = domain.Severity(riskLevel)
	f.Details = unmarshalMap(details)
	f.Evidence = unmarshalMap(evidence)
	f.RollbackData = unmarshalMap(rollback)
	if executedAt.Valid {
		t := executedAt.Time
		f.ExecutedAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		f.ResolvedAt = &t
	}
	return f, nil
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalMap(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
