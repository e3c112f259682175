package target

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dshills/moaidebug/internal/debug/wire"
	"github.com/dshills/moaidebug/internal/process"
)

// Exit codes reported by in-process runs.
const (
	ExitOK         = 0
	ExitScriptErr  = 1
	ExitTerminated = 130
)

// Launcher runs targets inside the current process instead of spawning
// the engine executable. Spec.Path is ignored; the first argument is the
// entry script, relative to Spec.Dir.
type Launcher struct {
	logger zerolog.Logger
}

// NewLauncher creates an in-process launcher.
func NewLauncher(logger zerolog.Logger) *Launcher {
	return &Launcher{logger: logger}
}

// Launch starts the script on its own goroutine.
func (l *Launcher) Launch(ctx context.Context, spec process.Spec) (process.Handle, error) {
	if len(spec.Args) == 0 || spec.Args[0] == "" {
		return nil, &process.LaunchError{Path: spec.Path, Dir: spec.Dir, Err: errors.New("no entry script")}
	}

	entry := spec.Args[0]
	if !filepath.IsAbs(entry) && spec.Dir != "" {
		entry = filepath.Join(spec.Dir, entry)
	}
	if _, err := os.Stat(entry); err != nil {
		return nil, &process.LaunchError{Path: entry, Dir: spec.Dir, Err: err}
	}

	stdout := spec.Stdout
	if stdout == nil {
		stdout = io.Discard
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &handle{
		id:     uuid.New().String(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	h.exitCode.Store(-1)

	rt := New(
		WithAddr(lookupEnv(spec.Env, wire.EnvAddr)),
		WithStdout(stdout),
		WithLogger(l.logger.With().Str("target", h.id).Logger()),
	)

	go func() {
		defer close(h.done)
		err := rt.Run(runCtx, entry)
		h.exitCode.Store(int32(exitCode(runCtx, err)))
		if err != nil && spec.Stderr != nil {
			fmt.Fprintln(spec.Stderr, err)
		}
	}()

	l.logger.Info().Str("id", h.id).Str("entry", entry).Msg("in-process target started")
	return h, nil
}

func exitCode(ctx context.Context, err error) int {
	switch {
	case err == nil:
		return ExitOK
	case ctx.Err() != nil:
		return ExitTerminated
	default:
		return ExitScriptErr
	}
}

// lookupEnv returns the last value for key, matching exec semantics.
func lookupEnv(env []string, key string) string {
	value := ""
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			value = v
		}
	}
	return value
}

// handle tracks one in-process run.
type handle struct {
	id       string
	cancel   context.CancelFunc
	done     chan struct{}
	exitCode atomic.Int32
	stopOnce sync.Once
}

func (h *handle) ID() string { return h.id }

func (h *handle) IsRunning() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *handle) Done() <-chan struct{} { return h.done }

func (h *handle) ExitCode() int { return int(h.exitCode.Load()) }

// Terminate cancels the script and waits for it to unwind.
func (h *handle) Terminate(ctx context.Context) error {
	h.stopOnce.Do(h.cancel)
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("terminate %s: %w", h.id, ctx.Err())
	}
}
