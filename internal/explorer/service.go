// Package explorer is the entry point used by the transport layers: it lists
// the dataset catalog, discovers the column union of a selection, and fetches
// projected rows over the union of a selection.
package explorer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/phenoquery/phenoquery/internal/audit"
	"github.com/phenoquery/phenoquery/internal/dataset"
	"github.com/phenoquery/phenoquery/internal/observability"
	"github.com/phenoquery/phenoquery/internal/query"
)

type Catalog interface {
	List(ctx context.Context) []string
	Resolve(ctx context.Context, names []string) ([]dataset.File, error)
}

type Reconciler interface {
	DiscoverUnion(ctx context.Context, files []dataset.File) ([]string, error)
}

// Discovery is the column union of a selection plus a one-row preview. Sample
// is empty when the preview could not be produced.
type Discovery struct {
	Columns []string
	Sample  query.Result
}

type Options struct {
	Catalog    Catalog
	Reconciler Reconciler
	Engine     query.Engine
	Recorder   audit.Recorder
	Logger     *slog.Logger
	// RowLimit caps FetchData results when positive.
	RowLimit int
	// Timeout bounds DiscoverColumns and FetchData when positive.
	Timeout time.Duration
}

type Service struct {
	catalog    Catalog
	reconciler Reconciler
	engine     query.Engine
	recorder   audit.Recorder
	logger     *slog.Logger
	rowLimit   int
	timeout    time.Duration
}

func NewService(opts Options) *Service {
	recorder := opts.Recorder
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Service{
		catalog:    opts.Catalog,
		reconciler: opts.Reconciler,
		engine:     opts.Engine,
		recorder:   recorder,
		logger:     opts.Logger,
		rowLimit:   opts.RowLimit,
		timeout:    opts.Timeout,
	}
}

func (s *Service) ListCatalog(ctx context.Context) []string {
	return s.catalog.List(ctx)
}

func (s *Service) DiscoverColumns(ctx context.Context, selected []string) (discovery Discovery, err error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	started := time.Now()
	defer func() {
		s.finish(ctx, audit.OperationDiscoverColumns, selected, discovery.Columns, discovery.Sample.RowCount, err, started)
	}()

	files, err := s.catalog.Resolve(ctx, selected)
	if err != nil {
		return Discovery{}, err
	}
	columns, err := s.reconciler.DiscoverUnion(ctx, files)
	if err != nil {
		return Discovery{}, err
	}

	sample, sampleErr := query.Sample(ctx, s.engine, files)
	if sampleErr != nil {
		observability.IncrementSampleFailure()
		observability.LoggerWithTrace(ctx, s.logger).WarnContext(ctx, "sample row unavailable",
			slog.Int("files", len(files)),
			slog.Any("error", sampleErr),
		)
		sample = query.EmptyResult()
	}
	return Discovery{Columns: columns, Sample: sample}, nil
}

// FetchData reads projection over the union of the selected files. Engine
// failures, including a file that cannot be registered, surface as
// *query.ExecutionError.
func (s *Service) FetchData(ctx context.Context, selected []string, projection query.Projection) (result query.Result, err error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	started := time.Now()
	defer func() {
		s.finish(ctx, audit.OperationFetchData, selected, projection.Columns(), result.RowCount, err, started)
	}()

	files, err := s.catalog.Resolve(ctx, selected)
	if err != nil {
		return query.Result{}, err
	}
	result, err = s.engine.Execute(ctx, query.Request{
		Files:      files,
		Projection: projection,
		RowLimit:   s.rowLimit,
	})
	if err != nil {
		var viewErr *query.ViewConstructionError
		if errors.As(err, &viewErr) {
			return query.Result{}, &query.ExecutionError{Message: viewErr.Error(), Err: viewErr}
		}
		return query.Result{}, err
	}
	return result, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) finish(ctx context.Context, operation string, files, columns []string, rows int, err error, started time.Time) {
	elapsed := time.Since(started)
	observability.ObserveOperation(operation, err, rows, elapsed)

	logger := observability.LoggerWithTrace(ctx, s.logger)
	entry := audit.NewEntry(observability.TraceIDFromContext(ctx), operation, files, columns, rows, err, elapsed)
	// The request context may already be past its deadline.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if recordErr := s.recorder.Record(recordCtx, entry); recordErr != nil {
		logger.WarnContext(ctx, "fetch audit record failed",
			slog.String("operation", operation),
			slog.Any("error", recordErr),
		)
	}
	if err != nil {
		logger.InfoContext(ctx, "operation failed",
			slog.String("operation", operation),
			slog.Int("files", len(files)),
			slog.Duration("duration", elapsed),
			slog.Any("error", err),
		)
	}
}
