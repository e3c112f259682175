package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/moaidebug/internal/config"
	"github.com/dshills/moaidebug/internal/debug"
	"github.com/dshills/moaidebug/internal/event"
	"github.com/dshills/moaidebug/internal/project"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want command
	}{
		{"", cmdNone},
		{"   ", cmdNone},
		{"c", cmdContinue},
		{"Continue", cmdContinue},
		{"p", cmdPause},
		{"pause", cmdPause},
		{"s", cmdStop},
		{" stop ", cmdStop},
		{"status", cmdStatus},
		{"?", cmdHelp},
		{"q", cmdQuit},
		{"exit", cmdQuit},
	}
	for _, tt := range tests {
		got, err := parseCommand(tt.line)
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}

	_, err := parseCommand("step")
	assert.ErrorContains(t, err, `unknown command "step"`)
}

func TestConsoleNavigateTo(t *testing.T) {
	root := t.TempDir()
	var src strings.Builder
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&src, "line %d\n", i)
	}
	path := filepath.Join(root, "Main.lua")
	require.NoError(t, os.WriteFile(path, []byte(src.String()), 0o644))

	var out bytes.Buffer
	con := newConsole(&out, &out)

	surface, err := con.OpenSurface(project.File{Path: path, Rel: "Main.lua"})
	require.NoError(t, err)
	nav, ok := surface.(debug.Navigator)
	require.True(t, ok)

	require.NoError(t, nav.NavigateTo(project.File{Path: path, Rel: "Main.lua"}, 5))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, "Main.lua:5", lines[0])
	assert.Equal(t, "      2  line 2", lines[1])
	assert.Equal(t, "=>    5  line 5", lines[4])
	assert.Equal(t, "      8  line 8", lines[7])
}

func TestConsoleNavigateNearTop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.lua")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\n"), 0o644))

	var out bytes.Buffer
	con := newConsole(&out, &out)
	require.NoError(t, con.NavigateTo(project.File{Path: path, Rel: "a.lua"}, 1))
	assert.Equal(t, "a.lua:1\n=>    1  one\n      2  two\n", out.String())
}

func TestConsoleNavigateMissingFile(t *testing.T) {
	con := newConsole(&bytes.Buffer{}, &bytes.Buffer{})
	err := con.NavigateTo(project.File{Path: filepath.Join(t.TempDir(), "gone.lua")}, 1)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		payload any
		want    string
	}{
		{debug.StartedEvent{Debugging: true, Addr: "127.0.0.1:7018"}, "started, debugger on 127.0.0.1:7018"},
		{debug.StartedEvent{}, "started without debugging"},
		{debug.PausedEvent{Location: debug.Location{File: project.File{Rel: "src/a.lua"}, Line: 4, Resolved: true}}, "paused at src/a.lua:4"},
		{debug.PausedEvent{Location: debug.Location{File: project.File{Rel: "x.lua"}, Line: 1}}, "paused at x.lua:1 (not in project)"},
		{debug.ContinuedEvent{}, "continued"},
		{debug.StoppedEvent{Reason: debug.StopReasonExited, ExitCode: 0}, "stopped (exited, exit code 0)"},
		{debug.StoppedEvent{Reason: debug.StopReasonRequested, ExitCode: -1}, "stopped (requested)"},
		{debug.ResultEvent{Payload: []byte("42")}, "result: 42"},
		{debug.UnknownMessageEvent{Type: "step"}, "ignored message: step"},
		{debug.ChannelErrorEvent{Err: errors.New("broken pipe")}, "channel error: broken pipe"},
		{debug.ExceptionEvent{Message: "boom"}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatEvent(event.Event{Payload: tt.payload}))
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("x")))
	assert.Equal(t, 3, ExitCode(fmt.Errorf("wrapped: %w", &ExitError{Code: 3})))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "moaidebug dev")
}

// newProject writes a project with a port-0 configuration.
func newProject(t *testing.T, script string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, config.DefaultEntry), []byte(script), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, config.FileName), []byte("[debug]\nport = 0\n"), 0o644))
	return root
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append([]string{"--log-level", "disabled"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String() + errOut.String(), err
}

func TestRunBuiltin(t *testing.T) {
	root := newProject(t, `print("hello from lua")`)

	out, err := runCLI(t, "run", "--builtin", root)
	require.NoError(t, err)
	assert.Contains(t, out, "[started without debugging]")
	assert.Contains(t, out, "hello from lua")
	assert.Contains(t, out, "[stopped (exited, exit code 0)]")
}

func TestRunBuiltinScriptError(t *testing.T) {
	root := newProject(t, `error("bad script")`)

	out, err := runCLI(t, "run", "--builtin", root)
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, out, "bad script")
}

func TestDebugBuiltin(t *testing.T) {
	root := newProject(t, `local debugger = require("debugger")
debugger.result("42")
print("done")
`)

	out, err := runCLI(t, "debug", "--builtin", root)
	require.NoError(t, err)
	assert.Contains(t, out, "started, debugger on 127.0.0.1:")
	assert.Contains(t, out, "[result: 42]")
	assert.Contains(t, out, "done")
}

func TestDebugEntryOverride(t *testing.T) {
	root := newProject(t, `print("main")`)
	require.NoError(t, os.WriteFile(filepath.Join(root, "other.lua"), []byte(`print("other")`), 0o644))

	out, err := runCLI(t, "debug", "--builtin", "--entry", "other.lua", root)
	require.NoError(t, err)
	assert.Contains(t, out, "other")
	assert.NotContains(t, out, "main\n")
}

func TestInvalidConfigRejected(t *testing.T) {
	root := newProject(t, `print("x")`)
	require.NoError(t, os.WriteFile(filepath.Join(root, config.FileName), []byte("[debug]\nport = 70000\n"), 0o644))

	_, err := runCLI(t, "run", "--builtin", root)
	assert.ErrorIs(t, err, config.ErrValidationFailed)
}
