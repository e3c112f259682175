package project

import (
	"errors"
	"fmt"
)

// Standard errors returned by the project package.
var (
	// ErrNotFound indicates a file was not found in the workspace.
	ErrNotFound = errors.New("not found")

	// ErrNotInWorkspace indicates the path is outside the workspace root.
	ErrNotInWorkspace = errors.New("path not in workspace")

	// ErrIsDirectory indicates the path is a directory, not a file.
	ErrIsDirectory = errors.New("path is a directory")

	// ErrNotDirectory indicates the workspace root is not a directory.
	ErrNotDirectory = errors.New("path is not a directory")
)

// PathError represents an error associated with a file path.
type PathError struct {
	Op   string // Operation that failed (open, resolve, index)
	Path string // Path or name as given
	Err  error  // Underlying error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *PathError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates a file was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNotInWorkspace returns true if the error indicates path is outside workspace.
func IsNotInWorkspace(err error) bool {
	return errors.Is(err, ErrNotInWorkspace)
}
