package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/phenoquery/phenoquery/internal/audit"
)

type Recorder struct {
	db *sql.DB
}

func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping audit db: %w", err)
	}
	return nil
}

func (r *Recorder) Record(ctx context.Context, entry audit.Entry) error {
	files, err := marshalNames(entry.Files)
	if err != nil {
		return fmt.Errorf("encode audit files: %w", err)
	}
	columns, err := marshalNames(entry.Columns)
	if err != nil {
		return fmt.Errorf("encode audit columns: %w", err)
	}

	query := `
INSERT INTO phenoquery_fetch_audit (trace_id, operation, files, columns, row_count, status, error_message, duration_ms)
VALUES ($1, $2, $3::jsonb, $4::jsonb, $5, $6, $7, $8)`
	_, err = r.db.ExecContext(ctx, query,
		entry.TraceID,
		entry.Operation,
		files,
		columns,
		entry.RowCount,
		entry.Status,
		entry.Error,
		entry.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert fetch audit: %w", err)
	}
	return nil
}

func marshalNames(names []string) (string, error) {
	if names == nil {
		names = []string{}
	}
	body, err := json.Marshal(names)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
