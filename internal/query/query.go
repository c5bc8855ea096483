package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/phenoquery/phenoquery/internal/dataset"
)

var (
	ErrEmptyInput          = errors.New("at least one dataset file is required")
	ErrEmptyProjection     = errors.New("target column names are empty or invalid")
	ErrNoColumnsDiscovered = errors.New("no column names could be read from the selected files")
)

// Projection selects either every column of a relation or an ordered list of
// named columns. The zero value selects all columns.
type Projection struct {
	columns []string
}

func AllColumns() Projection {
	return Projection{}
}

// ParseProjection trims each requested name and drops empties. A nil or empty
// list means all columns; a non-empty list that trims to nothing is
// ErrEmptyProjection.
func ParseProjection(requested []string) (Projection, error) {
	if len(requested) == 0 {
		return AllColumns(), nil
	}
	columns := make([]string, 0, len(requested))
	for _, name := range requested {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			columns = append(columns, trimmed)
		}
	}
	if len(columns) == 0 {
		return Projection{}, ErrEmptyProjection
	}
	return Projection{columns: columns}, nil
}

// ParseProjectionList accepts the comma-separated form used by the web
// client. "" and "*" select all columns.
func ParseProjectionList(raw string) (Projection, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "*" {
		return AllColumns(), nil
	}
	return ParseProjection(strings.Split(raw, ","))
}

func (p Projection) All() bool {
	return len(p.columns) == 0
}

func (p Projection) Columns() []string {
	return append([]string(nil), p.columns...)
}

// Result is a fully materialized query result. Every row holds exactly the
// keys in Columns and RowCount == len(Rows).
type Result struct {
	Columns  []string
	Rows     []map[string]any
	RowCount int
}

func EmptyResult() Result {
	return Result{Columns: []string{}, Rows: []map[string]any{}}
}

type ViewConstructionError struct {
	File string
	Err  error
}

func (e *ViewConstructionError) Error() string {
	return fmt.Sprintf("build view for %q: %v", e.File, e.Err)
}

func (e *ViewConstructionError) Unwrap() error {
	return e.Err
}

// ExecutionError carries the engine's message for a failed select.
type ExecutionError struct {
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	return "query execution failed: " + e.Message
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Request asks an Engine for one projected read over the logical union of
// Files. RowLimit caps the result when positive.
type Request struct {
	Files      []dataset.File
	Projection Projection
	RowLimit   int
}

// Engine runs each request in its own execution context, released before
// Execute returns.
type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// Sample previews the logical union of files as at most one row.
func Sample(ctx context.Context, engine Engine, files []dataset.File) (Result, error) {
	return engine.Execute(ctx, Request{Files: files, Projection: AllColumns(), RowLimit: 1})
}
