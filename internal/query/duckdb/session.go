package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/phenoquery/phenoquery/internal/dataset"
	"github.com/phenoquery/phenoquery/internal/query"
)

// Ordering keys carried by every per-file view so the union can be read back
// in file order, then within-file order. They never appear in results.
const (
	fileOrderColumn = "__phenoquery_file_index"
	rowOrderColumn  = "__phenoquery_row_index"
)

// Session is a private in-memory DuckDB database pinned to one connection, so
// temporary views created for a relation stay visible to the select that
// reads them.
type Session struct {
	db        *sql.DB
	conn      *sql.Conn
	relations int
}

// Relation is a logical table composed from one or more parquet files inside
// a Session. It is only valid until the Session is closed.
type Relation struct {
	Files  []string
	source string
}

func Open(ctx context.Context) (*Session, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("acquire duckdb connection: %w", err)
	}
	return &Session{db: db, conn: conn}, nil
}

func (s *Session) Close() error {
	return errors.Join(s.conn.Close(), s.db.Close())
}

// BuildRelation registers one view per file and composes them with
// UNION ALL BY NAME: columns match by name, a column missing from a file is
// null for that file's rows, and duplicate rows are kept.
func (s *Session) BuildRelation(ctx context.Context, files []dataset.File) (*Relation, error) {
	if len(files) == 0 {
		return nil, query.ErrEmptyInput
	}

	s.relations++
	selects := make([]string, 0, len(files))
	names := make([]string, 0, len(files))
	for i, file := range files {
		view := fmt.Sprintf("relation_%d_file_%d", s.relations, i)
		viewSQL := fmt.Sprintf(
			`CREATE OR REPLACE TEMP VIEW %s AS SELECT source.*, %d AS %s, row_number() OVER () AS %s FROM read_parquet(%s) AS source`,
			quoteIdent(view),
			i,
			quoteIdent(fileOrderColumn),
			quoteIdent(rowOrderColumn),
			quoteString(file.Path),
		)
		if _, err := s.conn.ExecContext(ctx, viewSQL); err != nil {
			return nil, &query.ViewConstructionError{File: file.Name, Err: err}
		}
		selects = append(selects, "SELECT * FROM "+quoteIdent(view))
		names = append(names, file.Name)
	}

	return &Relation{
		Files:  names,
		source: strings.Join(selects, " UNION ALL BY NAME "),
	}, nil
}

// Project runs one select over relation and materializes every row. Explicit
// column names are always quoted identifiers. limit <= 0 means no limit.
func (s *Session) Project(ctx context.Context, relation *Relation, projection query.Projection, limit int) (query.Result, error) {
	if relation == nil {
		return query.Result{}, query.ErrEmptyInput
	}

	rows, err := s.conn.QueryContext(ctx, projectionSQL(relation, projection, limit))
	if err != nil {
		return query.Result{}, executionError(err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, executionError(err)
	}

	result := query.Result{Columns: columns, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, executionError(err)
		}
		record := make(map[string]any, len(columns))
		for i, column := range columns {
			record[column] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, record)
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, executionError(err)
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

func projectionSQL(relation *Relation, projection query.Projection, limit int) string {
	selectList := fmt.Sprintf("* EXCLUDE (%s, %s)", quoteIdent(fileOrderColumn), quoteIdent(rowOrderColumn))
	if !projection.All() {
		quoted := make([]string, 0, len(projection.Columns()))
		for _, column := range projection.Columns() {
			quoted = append(quoted, quoteIdent(column))
		}
		selectList = strings.Join(quoted, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM (%s) AS relation ORDER BY %s, %s",
		selectList,
		relation.source,
		quoteIdent(fileOrderColumn),
		quoteIdent(rowOrderColumn),
	)
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	return b.String()
}

func executionError(err error) error {
	return &query.ExecutionError{Message: err.Error(), Err: err}
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	case duckdb.Decimal:
		return decimalToFloat(typed)
	case float64:
		// NaN and infinities have no JSON form.
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return nil
		}
		return typed
	case float32:
		if math.IsNaN(float64(typed)) || math.IsInf(float64(typed), 0) {
			return nil
		}
		return typed
	default:
		return typed
	}
}

func decimalToFloat(value duckdb.Decimal) float64 {
	if value.Value == nil {
		return 0
	}
	scaled := new(big.Float).SetInt(value.Value)
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(value.Scale)), nil))
	result, _ := new(big.Float).Quo(scaled, divisor).Float64()
	return result
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
