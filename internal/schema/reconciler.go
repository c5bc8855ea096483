// Package schema computes the union of column names across a selection of
// dataset files without reading row data.
package schema

import (
	"context"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/phenoquery/phenoquery/internal/dataset"
	"github.com/phenoquery/phenoquery/internal/observability"
	"github.com/phenoquery/phenoquery/internal/query"
)

const defaultConcurrency = 4

type Reconciler struct {
	Introspector Introspector
	Concurrency  int
	Logger       *slog.Logger
}

func NewReconciler(introspector Introspector, concurrency int, logger *slog.Logger) *Reconciler {
	if introspector == nil {
		introspector = ParquetIntrospector{}
	}
	return &Reconciler{Introspector: introspector, Concurrency: concurrency, Logger: logger}
}

// DiscoverUnion returns the sorted set of column names present in at least
// one of files. A file whose schema cannot be read is logged and skipped.
func (r *Reconciler) DiscoverUnion(ctx context.Context, files []dataset.File) ([]string, error) {
	if len(files) == 0 {
		return nil, query.ErrEmptyInput
	}
	logger := observability.LoggerWithTrace(ctx, r.Logger)

	perFile := make([][]string, len(files))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency())
	for i, file := range files {
		group.Go(func() error {
			columns, err := r.Introspector.Columns(groupCtx, file)
			if err != nil {
				if ctxErr := groupCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				observability.IncrementIntrospectionFailure()
				logger.WarnContext(ctx, "skipping file with unreadable schema",
					slog.String("file", file.Name),
					slog.Any("error", err),
				)
				return nil
			}
			perFile[i] = columns
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	union := make([]string, 0)
	for _, columns := range perFile {
		for _, column := range columns {
			if _, ok := seen[column]; ok {
				continue
			}
			seen[column] = struct{}{}
			union = append(union, column)
		}
	}
	if len(union) == 0 {
		return nil, query.ErrNoColumnsDiscovered
	}
	slices.Sort(union)
	return union, nil
}

func (r *Reconciler) concurrency() int {
	if r.Concurrency <= 0 {
		return defaultConcurrency
	}
	return r.Concurrency
}
