package debug

import "errors"

// Errors returned by the Controller.
var (
	// ErrControllerClosed is returned by operations after Close.
	ErrControllerClosed = errors.New("debug controller closed")

	// ErrNoTargetDir is returned when a Target has no working directory.
	ErrNoTargetDir = errors.New("target directory not set")
)
