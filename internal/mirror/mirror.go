// Package mirror copies dataset batch files from an object store into the
// local dataset directory.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phenoquery/phenoquery/internal/dataset"
	"github.com/phenoquery/phenoquery/internal/observability"
	"github.com/phenoquery/phenoquery/internal/storage"
)

const (
	ResultDownloaded = "downloaded"
	ResultUnchanged  = "unchanged"
	ResultRejected   = "rejected"
	ResultFailed     = "failed"
)

type Service struct {
	Store     storage.ObjectStore
	Dir       string
	Prefix    string
	Extension string
	Interval  time.Duration
	Logger    *slog.Logger
}

type Summary struct {
	ObjectsSeen int   `json:"objects_seen"`
	Downloaded  int   `json:"downloaded"`
	Unchanged   int   `json:"unchanged"`
	Rejected    int   `json:"rejected"`
	Failures    int   `json:"failures"`
	Bytes       int64 `json:"bytes"`
}

// Run syncs once immediately and then every Interval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if s.Interval <= 0 {
		return fmt.Errorf("mirror interval must be positive")
	}
	logger := observability.LoggerWithTrace(ctx, s.Logger)
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		summary, err := s.SyncOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logger.ErrorContext(ctx, "mirror cycle failed", slog.Any("error", err), slog.Any("summary", summary))
		} else {
			logger.InfoContext(ctx, "mirror cycle completed", slog.Any("summary", summary))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// SyncOnce downloads every catalog-eligible object whose local copy is
// missing or differs in size. Objects whose names would be rejected by the
// catalog are skipped. Per-object failures are counted and joined into the
// returned error; the remaining objects are still processed.
func (s *Service) SyncOnce(ctx context.Context) (Summary, error) {
	var summary Summary
	logger := observability.LoggerWithTrace(ctx, s.Logger)
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return summary, fmt.Errorf("create dataset dir: %w", err)
	}
	objects, err := s.Store.List(ctx)
	if err != nil {
		return summary, err
	}

	var failures []error
	for _, object := range objects {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.ObjectsSeen++

		name, ok := s.datasetName(object.Key)
		if !ok {
			summary.Rejected++
			observability.ObserveMirrorObject(ResultRejected)
			logger.DebugContext(ctx, "skipping object outside dataset pattern", slog.String("key", object.Key))
			continue
		}

		target := filepath.Join(s.Dir, name+s.Extension)
		if sameSize(target, object.Size) {
			summary.Unchanged++
			observability.ObserveMirrorObject(ResultUnchanged)
			continue
		}

		written, err := s.download(ctx, object.Key, target)
		if err != nil {
			summary.Failures++
			observability.ObserveMirrorObject(ResultFailed)
			failures = append(failures, fmt.Errorf("download %q: %w", object.Key, err))
			continue
		}
		summary.Downloaded++
		summary.Bytes += written
		observability.ObserveMirrorObject(ResultDownloaded)
		logger.InfoContext(ctx, "mirrored dataset file",
			slog.String("file", name),
			slog.Int64("bytes", written),
		)
	}
	return summary, errors.Join(failures...)
}

func (s *Service) datasetName(key string) (string, bool) {
	if strings.Contains(key, "/") || !strings.HasSuffix(key, s.Extension) {
		return "", false
	}
	name := strings.TrimSuffix(key, s.Extension)
	if err := dataset.ValidateName(s.Prefix, name); err != nil {
		return "", false
	}
	return name, true
}

// download writes to a hidden temp file in the target directory and renames
// it into place, so the catalog never lists a partial file.
func (s *Service) download(ctx context.Context, key, target string) (int64, error) {
	reader, err := s.Store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	defer func() { _ = reader.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(target), ".mirror-*.tmp")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	written, err := io.Copy(tmp, reader)
	if err != nil {
		_ = tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return 0, err
	}
	return written, nil
}

func sameSize(path string, size int64) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() == size
}
