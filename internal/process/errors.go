package process

import (
	"errors"
	"fmt"
)

// Sentinel errors for the process package.
var (
	// ErrProcessAlreadyStarted is returned when trying to start a process twice.
	ErrProcessAlreadyStarted = errors.New("process already started")

	// ErrLauncherShutdown is returned by Launch after Shutdown.
	ErrLauncherShutdown = errors.New("launcher is shutting down")

	// ErrNoExecutable is returned when Spec.Path is empty.
	ErrNoExecutable = errors.New("no executable specified")

	// ErrNotDirectory is returned when the working directory is a file.
	ErrNotDirectory = errors.New("not a directory")
)

// LaunchError reports any failure to spawn a process: a missing
// executable, an invalid working directory or an OS-level start failure.
type LaunchError struct {
	Path string
	Dir  string
	Err  error
}

func (e *LaunchError) Error() string {
	if e.Dir != "" {
		return fmt.Sprintf("launch %s in %s: %v", e.Path, e.Dir, e.Err)
	}
	return fmt.Sprintf("launch %s: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// TerminateError reports a process that could not be killed or did not
// exit in time.
type TerminateError struct {
	ID  string
	Err error
}

func (e *TerminateError) Error() string {
	return fmt.Sprintf("terminate process %s: %v", e.ID, e.Err)
}

func (e *TerminateError) Unwrap() error { return e.Err }
