package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/phenoquery/phenoquery/internal/observability"
)

type Catalog struct {
	Dir       string
	Prefix    string
	Extension string
	Logger    *slog.Logger
}

func NewCatalog(dir, prefix, extension string, logger *slog.Logger) *Catalog {
	return &Catalog{Dir: dir, Prefix: prefix, Extension: extension, Logger: logger}
}

// Scan lists base names matching Prefix*Extension in natural order. A missing
// directory yields ErrDirectoryMissing and an empty match yields ErrNoMatches;
// both come with an empty, non-nil slice.
func (c *Catalog) Scan(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return []string{}, err
	}
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, ErrDirectoryMissing
		}
		return []string{}, fmt.Errorf("read dataset dir %q: %w", c.Dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if base, ok := c.baseName(entry.Name()); ok {
			names = append(names, base)
		}
	}
	if len(names) == 0 {
		return names, ErrNoMatches
	}
	NaturalSort(names)
	return names, nil
}

// List is Scan with every condition degraded to a logged empty catalog.
func (c *Catalog) List(ctx context.Context) []string {
	logger := observability.LoggerWithTrace(ctx, c.Logger)
	names, err := c.Scan(ctx)
	switch {
	case err == nil:
		observability.ObserveCatalogScan(observability.CatalogScanOK)
	case errors.Is(err, ErrDirectoryMissing):
		observability.ObserveCatalogScan(observability.CatalogScanDirectoryMissing)
		logger.ErrorContext(ctx, "dataset directory not found", slog.String("dir", c.Dir))
	case errors.Is(err, ErrNoMatches):
		observability.ObserveCatalogScan(observability.CatalogScanNoMatches)
		logger.WarnContext(ctx, "no dataset files found",
			slog.String("dir", c.Dir),
			slog.String("pattern", c.Pattern()),
		)
	default:
		observability.ObserveCatalogScan(observability.CatalogScanError)
		logger.ErrorContext(ctx, "dataset scan failed", slog.String("dir", c.Dir), slog.Any("error", err))
	}
	return names
}

func (c *Catalog) Pattern() string {
	return c.Prefix + "*" + c.Extension
}

// Locate validates name and maps it to its path under Dir without touching
// the filesystem; the returned File has Exists == false.
func (c *Catalog) Locate(name string) (File, error) {
	if err := ValidateName(c.Prefix, name); err != nil {
		return File{}, err
	}
	return File{Name: name, Path: filepath.Join(c.Dir, name+c.Extension)}, nil
}

// Resolve validates every name before any filesystem access, then checks that
// each one exists as a regular file. Selection order and duplicates are kept.
func (c *Catalog) Resolve(ctx context.Context, names []string) ([]File, error) {
	files := make([]File, 0, len(names))
	for _, name := range names {
		file, err := c.Locate(name)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}

	for i := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(files[i].Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, &FileNotFoundError{Name: files[i].Name}
			}
			return nil, fmt.Errorf("stat dataset file %q: %w", files[i].Name, err)
		}
		if !info.Mode().IsRegular() {
			return nil, &FileNotFoundError{Name: files[i].Name}
		}
		files[i].Exists = true
	}
	if len(files) == 0 {
		return nil, ErrNoValidFiles
	}
	return files, nil
}

// ValidateName accepts names that start with prefix, cannot escape the
// dataset directory, and hold no glob metacharacters, since read_parquet
// expands patterns in its path argument.
func ValidateName(prefix, name string) error {
	if !strings.HasPrefix(name, prefix) || strings.Contains(name, "..") || strings.ContainsAny(name, `/\*?[]{}`) {
		return &InvalidFileNameError{Name: name}
	}
	return nil
}

func (c *Catalog) baseName(entry string) (string, bool) {
	if !strings.HasPrefix(entry, c.Prefix) || !strings.HasSuffix(entry, c.Extension) {
		return "", false
	}
	if len(entry) < len(c.Prefix)+len(c.Extension) {
		return "", false
	}
	base := strings.TrimSuffix(entry, c.Extension)
	if ValidateName(c.Prefix, base) != nil {
		return "", false
	}
	return base, true
}
