package debug

import (
	"context"

	"github.com/dshills/moaidebug/internal/output"
	"github.com/dshills/moaidebug/internal/process"
	"github.com/dshills/moaidebug/internal/project"
)

// Launcher starts target processes.
type Launcher interface {
	Launch(ctx context.Context, spec process.Spec) (process.Handle, error)
}

// processLauncher adapts *process.Launcher, whose Launch returns the
// concrete *process.Process.
type processLauncher struct {
	l *process.Launcher
}

// NewProcessLauncher wraps l as a Launcher.
func NewProcessLauncher(l *process.Launcher) Launcher {
	return processLauncher{l: l}
}

func (p processLauncher) Launch(ctx context.Context, spec process.Spec) (process.Handle, error) {
	proc, err := p.l.Launch(ctx, spec)
	if err != nil {
		return nil, err
	}
	return proc, nil
}

// Resolver maps a file name reported by the target to a project file.
type Resolver interface {
	Resolve(name string) (project.File, error)
}

// Surface is an editor view of a file, such as a designer or text editor.
type Surface any

// Navigator is implemented by surfaces that can show a specific line.
type Navigator interface {
	NavigateTo(file project.File, line int) error
}

// SurfaceOpener opens (or activates) the editor surface for a file.
type SurfaceOpener interface {
	OpenSurface(file project.File) (Surface, error)
}

// LogSink receives the session output log.
type LogSink interface {
	Clear()
	Append(line string)
}

// streamSink is implemented by sinks that keep stdout and stderr apart,
// such as *output.Log.
type streamSink interface {
	AppendStream(stream output.Stream, line string)
}

// nopSink discards everything.
type nopSink struct{}

func (nopSink) Clear()        {}
func (nopSink) Append(string) {}
