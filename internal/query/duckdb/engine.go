package duckdb

import (
	"context"
	"log/slog"

	"github.com/phenoquery/phenoquery/internal/observability"
	"github.com/phenoquery/phenoquery/internal/query"
)

// Engine opens a fresh Session per request and closes it on every return
// path, so no DuckDB state outlives a request.
type Engine struct {
	Logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{Logger: logger}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if len(request.Files) == 0 {
		return query.Result{}, query.ErrEmptyInput
	}

	session, err := Open(ctx)
	if err != nil {
		return query.Result{}, &query.ExecutionError{Message: err.Error(), Err: err}
	}
	defer func() {
		if err := session.Close(); err != nil {
			observability.LoggerWithTrace(ctx, e.Logger).WarnContext(ctx, "close duckdb session", slog.Any("error", err))
		}
	}()

	relation, err := session.BuildRelation(ctx, request.Files)
	if err != nil {
		return query.Result{}, err
	}
	return session.Project(ctx, relation, request.Projection, request.RowLimit)
}
