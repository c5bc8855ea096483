// Package audit records one entry per column discovery or data fetch.
package audit

import (
	"context"
	"time"
)

const (
	OperationDiscoverColumns = "discover_columns"
	OperationFetchData       = "fetch_data"

	StatusOK    = "ok"
	StatusError = "error"
)

type Entry struct {
	TraceID   string
	Operation string
	Files     []string
	Columns   []string
	RowCount  int
	Status    string
	Error     string
	Duration  time.Duration
}

// Recorder persists entries. Callers treat a Record failure as non-fatal.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

// NewEntry fills Status and Error from err.
func NewEntry(traceID, operation string, files, columns []string, rowCount int, err error, elapsed time.Duration) Entry {
	entry := Entry{
		TraceID:   traceID,
		Operation: operation,
		Files:     files,
		Columns:   columns,
		RowCount:  rowCount,
		Status:    StatusOK,
		Duration:  elapsed,
	}
	if err != nil {
		entry.Status = StatusError
		entry.Error = err.Error()
		entry.RowCount = 0
	}
	return entry
}
