package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// State represents the state of a process.
type State int

const (
	// StateCreated indicates the process has been created but not started.
	StateCreated State = iota
	// StateRunning indicates the process is currently running.
	StateRunning
	// StateExited indicates the process has exited normally or with an error.
	StateExited
	// StateKilled indicates the process was killed by a signal.
	StateKilled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Handle is the view of a launched process used by the debug controller.
type Handle interface {
	// ID is the unique identifier of the launch.
	ID() string

	// IsRunning reports whether the process is still alive.
	IsRunning() bool

	// Done is closed exactly once when the process exits.
	Done() <-chan struct{}

	// ExitCode returns the exit code, or -1 while running.
	ExitCode() int

	// Terminate kills the process and waits for it to exit. It is a
	// no-op if the process has already exited.
	Terminate(ctx context.Context) error
}

// Process represents a launched target process.
//
// Process wraps an exec.Cmd with exit tracking. It is safe for concurrent use.
type Process struct {
	id   string
	name string
	cmd  *exec.Cmd

	// Started is the time the process was started.
	Started time.Time

	// done is closed when the process exits.
	done chan struct{}

	state    atomic.Int32
	exitCode atomic.Int32

	mu      sync.RWMutex
	exitErr error
	exited  time.Time

	waitOnce sync.Once

	// terminateTimeout bounds Terminate when ctx has no deadline.
	terminateTimeout time.Duration
}

var _ Handle = (*Process)(nil)

func newProcess(id, name string, cmd *exec.Cmd, terminateTimeout time.Duration) *Process {
	p := &Process{
		id:               id,
		name:             name,
		cmd:              cmd,
		done:             make(chan struct{}),
		terminateTimeout: terminateTimeout,
	}
	p.state.Store(int32(StateCreated))
	p.exitCode.Store(-1)
	return p
}

// ID returns the unique identifier for this process.
func (p *Process) ID() string { return p.id }

// Name returns the human-readable process name.
func (p *Process) Name() string { return p.name }

// State returns the current process state.
func (p *Process) State() State {
	return State(p.state.Load())
}

// ExitCode returns the process exit code.
// Returns -1 if the process has not exited.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// ExitError returns any error from waiting on the process.
func (p *Process) ExitError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitErr
}

// Done returns a channel that is closed when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// IsRunning returns true if the process is currently running.
func (p *Process) IsRunning() bool {
	return p.State() == StateRunning
}

// HasExited returns true if the process has exited (normally or killed).
func (p *Process) HasExited() bool {
	state := p.State()
	return state == StateExited || state == StateKilled
}

// PID returns the process ID, or -1 if not started.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// Terminate kills the process and waits until it has exited.
//
// The wait is bounded by ctx and, when ctx has no deadline, by the
// launcher's terminate timeout. Calling Terminate on an exited process
// returns nil.
func (p *Process) Terminate(ctx context.Context) error {
	if p.HasExited() {
		return nil
	}
	if p.State() != StateRunning || p.cmd.Process == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok && p.terminateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.terminateTimeout)
		defer cancel()
	}

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		// The process may have exited between the state check and Kill.
		select {
		case <-p.done:
			return nil
		default:
		}
		return &TerminateError{ID: p.id, Err: err}
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return &TerminateError{ID: p.id, Err: ctx.Err()}
	}
}

// Runtime returns how long the process has been running, or how long it
// ran once it has exited.
func (p *Process) Runtime() time.Duration {
	if p.Started.IsZero() {
		return 0
	}
	p.mu.RLock()
	exited := p.exited
	p.mu.RUnlock()
	if !exited.IsZero() {
		return exited.Sub(p.Started)
	}
	return time.Since(p.Started)
}

// start starts the process and begins tracking it.
func (p *Process) start() error {
	if p.State() != StateCreated {
		return ErrProcessAlreadyStarted
	}

	if err := p.cmd.Start(); err != nil {
		return err
	}

	p.Started = time.Now()
	p.state.Store(int32(StateRunning))

	go p.waitLoop()

	return nil
}

// waitLoop waits for the process to exit and updates state.
func (p *Process) waitLoop() {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()

		p.mu.Lock()
		p.exitErr = err
		p.exited = time.Now()
		p.mu.Unlock()

		exitCode := 0
		state := StateExited

		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				exitCode = exitErr.ExitCode()
				if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
					state = StateKilled
				}
			} else {
				exitCode = -1
			}
		}

		p.exitCode.Store(int32(exitCode))
		p.state.Store(int32(state))
		close(p.done)
	})
}
