package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Default timeouts for launching and terminating processes.
const (
	DefaultLaunchTimeout    = 10 * time.Second
	DefaultTerminateTimeout = 5 * time.Second
)

// Spec describes a process to launch.
type Spec struct {
	// Name is a human-readable label used in logs.
	Name string

	// Path is the executable. A bare name is resolved through PATH.
	Path string

	// Dir is the working directory.
	Dir string

	// Args are passed to the executable verbatim; no shell is involved.
	Args []string

	// Env entries are appended to the inherited environment.
	Env []string

	// Stdout and Stderr receive the process output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// Launcher starts target processes and tracks them until they exit.
//
// Launcher is safe for concurrent use.
type Launcher struct {
	mu        sync.RWMutex
	processes map[string]*Process

	closed atomic.Bool

	launchTimeout    time.Duration
	terminateTimeout time.Duration
	logger           zerolog.Logger

	// onExit is called once per process after it exits.
	onExit func(p *Process)
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithLaunchTimeout bounds how long starting a process may take.
func WithLaunchTimeout(d time.Duration) Option {
	return func(l *Launcher) {
		l.launchTimeout = d
	}
}

// WithTerminateTimeout bounds how long Terminate waits for exit.
func WithTerminateTimeout(d time.Duration) Option {
	return func(l *Launcher) {
		l.terminateTimeout = d
	}
}

// WithLogger sets the launcher logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Launcher) {
		l.logger = logger
	}
}

// WithExitCallback sets a callback invoked when a process exits.
func WithExitCallback(fn func(p *Process)) Option {
	return func(l *Launcher) {
		l.onExit = fn
	}
}

// NewLauncher creates a new process launcher.
func NewLauncher(opts ...Option) *Launcher {
	l := &Launcher{
		processes:        make(map[string]*Process),
		launchTimeout:    DefaultLaunchTimeout,
		terminateTimeout: DefaultTerminateTimeout,
		logger:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch validates spec and starts the process.
//
// Every failure is reported as a *LaunchError.
func (l *Launcher) Launch(ctx context.Context, spec Spec) (*Process, error) {
	if l.closed.Load() {
		return nil, &LaunchError{Path: spec.Path, Err: ErrLauncherShutdown}
	}

	path, err := resolveExecutable(spec.Path)
	if err != nil {
		return nil, &LaunchError{Path: spec.Path, Err: err}
	}
	if err := checkDir(spec.Dir); err != nil {
		return nil, &LaunchError{Path: spec.Path, Dir: spec.Dir, Err: err}
	}

	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr

	name := spec.Name
	if name == "" {
		name = filepath.Base(path)
	}
	proc := newProcess(uuid.New().String(), name, cmd, l.terminateTimeout)

	if err := l.start(ctx, proc); err != nil {
		return nil, &LaunchError{Path: path, Dir: spec.Dir, Err: err}
	}

	l.mu.Lock()
	l.processes[proc.ID()] = proc
	l.mu.Unlock()

	go l.monitor(proc)

	l.logger.Info().
		Str("id", proc.ID()).
		Str("name", name).
		Int("pid", proc.PID()).
		Str("dir", spec.Dir).
		Msg("process started")

	return proc, nil
}

// start runs proc.start bounded by the launch timeout and ctx.
func (l *Launcher) start(ctx context.Context, proc *Process) error {
	if l.launchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.launchTimeout)
		defer cancel()
	}

	result := make(chan error, 1)
	go func() {
		result <- proc.start()
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		// The start may still complete; make sure it does not leak.
		go func() {
			if err := <-result; err == nil {
				_ = proc.Terminate(context.Background())
			}
		}()
		return fmt.Errorf("start timed out: %w", ctx.Err())
	}
}

// monitor waits for exit, fires the callback and stops tracking.
func (l *Launcher) monitor(proc *Process) {
	<-proc.Done()

	l.logger.Info().
		Str("id", proc.ID()).
		Str("name", proc.Name()).
		Int("exit_code", proc.ExitCode()).
		Str("state", proc.State().String()).
		Dur("runtime", proc.Runtime()).
		Err(proc.ExitError()).
		Msg("process exited")

	if l.onExit != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.logger.Error().Interface("panic", r).Msg("exit callback panicked")
				}
			}()
			l.onExit(proc)
		}()
	}

	l.mu.Lock()
	delete(l.processes, proc.ID())
	l.mu.Unlock()
}

// Count returns the number of tracked processes.
func (l *Launcher) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.processes)
}

// Shutdown kills every tracked process and waits up to timeout for them
// to exit. Later Launch calls fail.
func (l *Launcher) Shutdown(timeout time.Duration) {
	if l.closed.Swap(true) {
		return
	}

	l.mu.RLock()
	procs := make([]*Process, 0, len(l.processes))
	for _, p := range l.processes {
		procs = append(procs, p)
	}
	l.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for _, p := range procs {
		if err := p.Terminate(ctx); err != nil {
			l.logger.Warn().Err(err).Str("id", p.ID()).Msg("terminate on shutdown")
		}
	}
}

// IsShuttingDown returns true once Shutdown has been called.
func (l *Launcher) IsShuttingDown() bool {
	return l.closed.Load()
}

func resolveExecutable(path string) (string, error) {
	if path == "" {
		return "", ErrNoExecutable
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return "", err
	}
	// A relative path would otherwise be resolved against cmd.Dir.
	return filepath.Abs(resolved)
}

func checkDir(dir string) error {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("working directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("working directory %s: %w", dir, ErrNotDirectory)
	}
	return nil
}
