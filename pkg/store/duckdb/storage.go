package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/marcboeker/go-duckdb/v2"
)

const FindingsTableSchema = `
	CREATE TABLE IF NOT EXISTS findings (
		id VARCHAR NOT NULL PRIMARY KEY,
		account VARCHAR NOT NULL,
		control_id VARCHAR NOT NULL,
		scan_id VARCHAR NOT NULL,
		resource_id VARCHAR NOT NULL,
		resource_type VARCHAR,
		status VARCHAR NOT NULL,
		risk_level VARCHAR,
		details JSON,
		evidence JSON,
		evidence_before VARCHAR,
		evidence_after VARCHAR,
		rollback_data JSON,
		approved_by VARCHAR,
		executed_at TIMESTAMP NULL,
		detected_at TIMESTAMP NOT NULL,
		resolved_at TIMESTAMP NULL
	);
`

const AuditLogTableSchema = `
	CREATE TABLE IF NOT EXISTS audit_log (
		id VARCHAR NOT NULL PRIMARY KEY,
		finding_id VARCHAR,
		event_type VARCHAR NOT NULL,
		action VARCHAR,
		actor VARCHAR NOT NULL,
		account VARCHAR,
		control_id VARCHAR,
		resource_id VARCHAR,
		before_state JSON,
		after_state JSON,
		details JSON,
		outcome VARCHAR NOT NULL,
		error_message VARCHAR,
		timestamp TIMESTAMP NOT NULL
	);
`

var bootQueries = []string{
	FindingsTableSchema,
	AuditLogTableSchema,
}

type Settings struct {
	DbPath string
}

func NewDB(settings Settings) (*sql.DB, error) {
	c, err := duckdb.NewConnector(fmt.Sprintf("%s?threads=4", settings.DbPath), func(exec driver.ExecerContext) error {
		bootQueries := append([]string{}, bootQueries...)

		for _, query := range bootQueries {
			_, err := exec.ExecContext(context.Background(), query, nil)
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	db := sql.OpenDB(c)
	return db, nil
}
