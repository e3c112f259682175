package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dshills/moaidebug/internal/debug"
	"github.com/dshills/moaidebug/internal/event"
	"github.com/dshills/moaidebug/internal/output"
	"github.com/dshills/moaidebug/internal/project"
)

// sourceContext is the number of lines shown on each side of a break.
const sourceContext = 3

type command int

const (
	cmdNone command = iota
	cmdContinue
	cmdPause
	cmdStop
	cmdStatus
	cmdHelp
	cmdQuit
)

func parseCommand(line string) (command, error) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return cmdNone, nil
	case "c", "continue", "start":
		return cmdContinue, nil
	case "p", "pause":
		return cmdPause, nil
	case "s", "stop":
		return cmdStop, nil
	case "status":
		return cmdStatus, nil
	case "h", "help", "?":
		return cmdHelp, nil
	case "q", "quit", "exit":
		return cmdQuit, nil
	default:
		return cmdNone, fmt.Errorf("unknown command %q (try help)", strings.TrimSpace(line))
	}
}

// console is the terminal surface of a session. It prints target output
// and session events, and shows the source around a break.
type console struct {
	mu  sync.Mutex
	out io.Writer
	err io.Writer
}

func newConsole(out, errOut io.Writer) *console {
	return &console{out: out, err: errOut}
}

// OpenSurface implements debug.SurfaceOpener. Every file opens on the
// console itself.
func (c *console) OpenSurface(project.File) (debug.Surface, error) {
	return c, nil
}

// NavigateTo prints the lines around line in file.
func (c *console) NavigateTo(file project.File, line int) error {
	f, err := os.Open(file.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	first := max(line-sourceContext, 1)
	last := line + sourceContext

	var b strings.Builder
	fmt.Fprintf(&b, "%s:%d\n", file.Rel, line)

	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan() && n <= last; n++ {
		if n < first {
			continue
		}
		marker := "  "
		if n == line {
			marker = "=>"
		}
		fmt.Fprintf(&b, "%s %4d  %s\n", marker, n, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = io.WriteString(c.out, b.String())
	return err
}

func (c *console) printLine(l output.Line) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch l.Stream {
	case output.StreamStderr:
		fmt.Fprintln(c.err, l.Content)
	case output.StreamLog:
		fmt.Fprintf(c.out, "-- %s\n", l.Content)
	default:
		fmt.Fprintln(c.out, l.Content)
	}
}

func (c *console) printEvent(e event.Event) {
	msg := formatEvent(e)
	if msg == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "[%s]\n", msg)
}

func formatEvent(e event.Event) string {
	switch p := e.Payload.(type) {
	case debug.StartedEvent:
		if p.Debugging {
			return "started, debugger on " + p.Addr
		}
		return "started without debugging"
	case debug.PausedEvent:
		if p.Location.Resolved {
			return fmt.Sprintf("paused at %s:%d", p.Location.File.Rel, p.Location.Line)
		}
		return fmt.Sprintf("paused at %s:%d (not in project)", p.Location.File.Rel, p.Location.Line)
	case debug.ContinuedEvent:
		return "continued"
	case debug.StoppedEvent:
		if p.ExitCode >= 0 {
			return fmt.Sprintf("stopped (%s, exit code %d)", p.Reason, p.ExitCode)
		}
		return fmt.Sprintf("stopped (%s)", p.Reason)
	case debug.ResultEvent:
		return "result: " + string(p.Payload)
	case debug.UnknownMessageEvent:
		return "ignored message: " + p.Type
	case debug.ChannelErrorEvent:
		return "channel error: " + p.Err.Error()
	default:
		return ""
	}
}

func (c *console) status(ctrl *debug.Controller) {
	var b strings.Builder
	fmt.Fprintf(&b, "state: %s", ctrl.State())
	if id := ctrl.SessionID(); id != "" {
		fmt.Fprintf(&b, ", session %s", id)
	}
	if loc, ok := ctrl.Location(); ok {
		fmt.Fprintf(&b, ", at %s:%d", loc.File.Rel, loc.Line)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, b.String())
}

func (c *console) help() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, "commands: continue (c), pause (p), stop (s), status, quit (q)")
}

func (c *console) prompt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, "(moaidebug) ")
}

func (c *console) errorf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.err, "error: "+format+"\n", args...)
}
