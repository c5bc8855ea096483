package schema

import (
	"context"
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/phenoquery/phenoquery/internal/dataset"
)

// Introspector reports the top-level column names of one dataset file.
type Introspector interface {
	Columns(ctx context.Context, file dataset.File) ([]string, error)
}

// ParquetIntrospector reads only the parquet footer; no row groups are
// decoded.
type ParquetIntrospector struct{}

func (ParquetIntrospector) Columns(ctx context.Context, file dataset.File) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handle, err := os.Open(file.Path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", file.Name, err)
	}
	defer func() { _ = handle.Close() }()

	stat, err := handle.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", file.Name, err)
	}
	pqFile, err := parquet.OpenFile(handle, stat.Size(),
		parquet.SkipPageIndex(true),
		parquet.SkipBloomFilters(true),
	)
	if err != nil {
		return nil, fmt.Errorf("read parquet footer of %q: %w", file.Name, err)
	}

	fields := pqFile.Schema().Fields()
	columns := make([]string, 0, len(fields))
	for _, field := range fields {
		columns = append(columns, field.Name())
	}
	return columns, nil
}
