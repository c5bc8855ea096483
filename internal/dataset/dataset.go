// Package dataset finds the parquet batch files a caller may select and
// turns client-supplied base names into validated physical files.
package dataset

import (
	"errors"
	"fmt"
)

var (
	ErrDirectoryMissing = errors.New("dataset directory not found")
	ErrNoMatches        = errors.New("no dataset files match the catalog pattern")
	ErrNoValidFiles     = errors.New("no valid dataset files selected")
)

// File is one selectable dataset file. Name is the client-facing base name
// without directory or extension.
type File struct {
	Name   string
	Path   string
	Exists bool
}

type InvalidFileNameError struct {
	Name string
}

func (e *InvalidFileNameError) Error() string {
	return fmt.Sprintf("invalid file name: %q", e.Name)
}

type FileNotFoundError struct {
	Name string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("file not found: %q", e.Name)
}

func Paths(files []File) []string {
	paths := make([]string, 0, len(files))
	for _, file := range files {
		paths = append(paths, file.Path)
	}
	return paths
}

func Names(files []File) []string {
	names := make([]string, 0, len(files))
	for _, file := range files {
		names = append(names, file.Name)
	}
	return names
}
