package target

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/moaidebug/internal/config"
	"github.com/dshills/moaidebug/internal/debug"
	"github.com/dshills/moaidebug/internal/event"
	"github.com/dshills/moaidebug/internal/output"
	"github.com/dshills/moaidebug/internal/project"
)

// session drives a debug.Controller against in-process Lua targets.
type session struct {
	ctrl   *debug.Controller
	log    *output.Log
	root   string
	events chan event.Event
}

func newSession(t *testing.T, script string) *session {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "Main.lua"), []byte(script), 0o644))

	ws, err := project.Open(root)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Debug.Port = 0
	cfg.Process.TerminateTimeout = config.Duration(2 * time.Second)

	s := &session{
		log:    output.NewLog(),
		root:   root,
		events: make(chan event.Event, 64),
	}
	s.ctrl = debug.NewController(cfg,
		debug.WithLauncher(NewLauncher(zerolog.Nop())),
		debug.WithResolver(ws),
		debug.WithLogSink(s.log),
	)
	t.Cleanup(func() { _ = s.ctrl.Close() })

	s.ctrl.Bus().Subscribe("debug.*", func(e event.Event) { s.events <- e })
	return s
}

func (s *session) wait(t *testing.T, topic string) any {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case e := <-s.events:
			if e.Topic == topic {
				return e.Payload
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s", topic)
			return nil
		}
	}
}

func (s *session) start(t *testing.T) {
	t.Helper()
	ok, err := s.ctrl.Start(context.Background(), debug.Target{Dir: s.root})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSessionBreakAndResume(t *testing.T) {
	s := newSession(t, `local debugger = require("debugger")
print("before")
debugger.breakpoint()
print("resumed")
`)
	s.start(t)

	started := s.wait(t, debug.TopicSessionStarted).(debug.StartedEvent)
	assert.True(t, started.Debugging)

	paused := s.wait(t, debug.TopicSessionPaused).(debug.PausedEvent)
	assert.True(t, paused.Location.Resolved)
	assert.Equal(t, "Main.lua", paused.Location.File.Rel)
	assert.Equal(t, 3, paused.Location.Line)
	assert.True(t, s.ctrl.Paused())

	s.start(t)
	s.wait(t, debug.TopicSessionContinued)

	stopped := s.wait(t, debug.TopicSessionStopped).(debug.StoppedEvent)
	assert.Equal(t, debug.StopReasonExited, stopped.Reason)
	assert.Equal(t, ExitOK, stopped.ExitCode)
	assert.Equal(t, debug.StateIdle, s.ctrl.State())

	content := s.log.Content()
	assert.Contains(t, content, "before")
	assert.Contains(t, content, "resumed")
}

func TestSessionStopWhilePaused(t *testing.T) {
	s := newSession(t, `require("debugger").breakpoint()
while true do end
`)
	s.start(t)
	s.wait(t, debug.TopicSessionPaused)

	require.NoError(t, s.ctrl.Stop())
	stopped := s.wait(t, debug.TopicSessionStopped).(debug.StoppedEvent)
	assert.Equal(t, debug.StopReasonRequested, stopped.Reason)
	assert.Equal(t, ExitTerminated, stopped.ExitCode)
}

func TestSessionUserException(t *testing.T) {
	s := newSession(t, `error("kaboom")`)
	s.start(t)

	exc := s.wait(t, debug.TopicExceptionRaised).(debug.ExceptionEvent)
	assert.False(t, exc.Internal)
	assert.Contains(t, exc.Message, "kaboom")

	stopped := s.wait(t, debug.TopicSessionStopped).(debug.StoppedEvent)
	assert.Equal(t, ExitScriptErr, stopped.ExitCode)
	assert.Contains(t, s.log.Content(), "kaboom")
}

func TestSessionWithoutDebugging(t *testing.T) {
	s := newSession(t, `local debugger = require("debugger")
debugger.breakpoint()
print("attached", debugger.attached())
`)
	ok, err := s.ctrl.StartWithoutDebugging(context.Background(), debug.Target{Dir: s.root})
	require.NoError(t, err)
	require.True(t, ok)

	started := s.wait(t, debug.TopicSessionStarted).(debug.StartedEvent)
	assert.False(t, started.Debugging)

	stopped := s.wait(t, debug.TopicSessionStopped).(debug.StoppedEvent)
	assert.Equal(t, debug.StopReasonExited, stopped.Reason)
	assert.Contains(t, s.log.Content(), "attached\tfalse")
}

func TestSessionFinalResultDelivered(t *testing.T) {
	s := newSession(t, `require("debugger").result("last words")`)
	s.start(t)

	// wait discards earlier topics, so a result that lost the race with
	// exit would leave only the stop to find.
	res := s.wait(t, debug.TopicResultReceived).(debug.ResultEvent)
	assert.Equal(t, []byte("last words"), res.Payload)

	stopped := s.wait(t, debug.TopicSessionStopped).(debug.StoppedEvent)
	assert.Equal(t, debug.StopReasonExited, stopped.Reason)
}
