package debug

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dshills/moaidebug/internal/config"
	"github.com/dshills/moaidebug/internal/debug/channel"
	"github.com/dshills/moaidebug/internal/debug/wire"
	"github.com/dshills/moaidebug/internal/event"
	"github.com/dshills/moaidebug/internal/output"
	"github.com/dshills/moaidebug/internal/process"
	"github.com/dshills/moaidebug/internal/project"
)

// inboxSize is the number of pending operations and events.
const inboxSize = 64

// exitGrace bounds how long process exit and end of stream wait for each
// other. A clean disconnect without an exit in that time is reported as
// disconnected rather than exited.
const exitGrace = 250 * time.Millisecond

// Target describes what to run.
type Target struct {
	// Dir is the project root and the working directory of the process.
	Dir string

	// Entry overrides the configured entry script.
	Entry string
}

// Option configures a Controller.
type Option func(*Controller)

// WithLauncher sets the process launcher.
func WithLauncher(l Launcher) Option {
	return func(c *Controller) {
		c.launcher = l
	}
}

// WithResolver sets the file resolver used for break locations.
func WithResolver(r Resolver) Option {
	return func(c *Controller) {
		c.resolver = r
	}
}

// WithSurfaceOpener sets the service that opens editor surfaces.
func WithSurfaceOpener(o SurfaceOpener) Option {
	return func(c *Controller) {
		c.opener = o
	}
}

// WithLogSink sets the output log.
func WithLogSink(s LogSink) Option {
	return func(c *Controller) {
		c.sink = s
	}
}

// WithBus sets the bus notifications are published on. The caller keeps
// ownership of the bus.
func WithBus(b *event.Bus) Option {
	return func(c *Controller) {
		c.bus = b
	}
}

// WithLogger sets the controller logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// Controller drives one debug session at a time.
//
// All methods are safe for concurrent use. The resolver, surface opener
// and navigator are called on the controller goroutine and must not call
// back into blocking Controller methods. The log sink is also fed target
// output from the process output goroutines, so it must be safe for
// concurrent use.
type Controller struct {
	launcher Launcher
	resolver Resolver
	opener   SurfaceOpener
	sink     LogSink
	bus      *event.Bus
	logger   zerolog.Logger

	ownBus      bool
	ownLauncher *process.Launcher

	notify *notifier

	inbox     chan func()
	quit      chan struct{}
	actorDone chan struct{}
	closeOnce sync.Once

	// Owned by the controller goroutine.
	cfg     *config.Config
	epoch   uint64
	session *session

	snapMu sync.RWMutex
	snap   snapshot
}

// session is the single active run.
type session struct {
	id     string
	epoch  uint64
	handle process.Handle

	// ch is nil for a run without debugging.
	ch *channel.Channel

	paused   bool
	location *Location

	stdout *output.LineWriter
	stderr *output.LineWriter

	logger zerolog.Logger
}

// snapshot is the query view, refreshed after every controller step.
type snapshot struct {
	state     State
	sessionID string
	debugging bool
	location  *Location
}

// NewController creates a controller. A nil cfg uses config.Default.
func NewController(cfg *config.Config, opts ...Option) *Controller {
	if cfg == nil {
		cfg = config.Default()
	}

	c := &Controller{
		cfg:       cfg.Clone(),
		sink:      nopSink{},
		logger:    zerolog.Nop(),
		inbox:     make(chan func(), inboxSize),
		quit:      make(chan struct{}),
		actorDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.bus == nil {
		c.bus = event.NewBus(event.WithLogger(c.logger))
		c.ownBus = true
	}
	if c.launcher == nil {
		c.ownLauncher = process.NewLauncher(
			process.WithLaunchTimeout(c.cfg.Process.LaunchTimeout.Std()),
			process.WithTerminateTimeout(c.cfg.Process.TerminateTimeout.Std()),
			process.WithLogger(c.logger),
		)
		c.launcher = NewProcessLauncher(c.ownLauncher)
	}

	c.notify = newNotifier(c.bus)
	go c.run()
	return c
}

// Bus returns the bus notifications are published on.
func (c *Controller) Bus() *event.Bus {
	return c.bus
}

// Start launches the target under the debugger, or resumes a paused
// session.
//
// It returns false with a nil error when a session is already active and
// not paused. Bind and launch failures are returned with false and leave
// the controller idle.
func (c *Controller) Start(ctx context.Context, t Target) (bool, error) {
	var ok bool
	var err error
	if derr := c.do(func() { ok, err = c.start(ctx, t) }); derr != nil {
		return false, derr
	}
	return ok, err
}

// StartWithoutDebugging launches the target with no control channel. It
// returns false with a nil error when a session is already active.
func (c *Controller) StartWithoutDebugging(ctx context.Context, t Target) (bool, error) {
	var ok bool
	var err error
	if derr := c.do(func() {
		if s := c.session; s != nil {
			s.logger.Debug().Msg("start refused: session active")
			return
		}
		ok, err = c.launch(ctx, t, false)
	}); derr != nil {
		return false, derr
	}
	return ok, err
}

// Pause asks the target to stop at its next opportunity. It does not
// change the state; the target acknowledges with a Break. Without an
// open channel it does nothing.
func (c *Controller) Pause() error {
	var err error
	if derr := c.do(func() {
		s := c.session
		if s == nil || s.ch == nil {
			return
		}
		err = c.send(s, wire.Pause{})
	}); derr != nil {
		return derr
	}
	return err
}

// Stop terminates the target and closes the channel. It is safe to call
// when nothing is running. The returned error reports a failed
// termination; the session is cleared regardless.
func (c *Controller) Stop() error {
	var err error
	if derr := c.do(func() {
		if s := c.session; s != nil {
			err = c.stopSession(s, StopReasonRequested, nil)
		}
	}); derr != nil {
		return derr
	}
	return err
}

// SetConfig replaces the configuration used by the next fresh launch.
func (c *Controller) SetConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	clone := cfg.Clone()
	return c.do(func() { c.cfg = clone })
}

// Config returns a copy of the current configuration.
func (c *Controller) Config() *config.Config {
	var cfg *config.Config
	if err := c.do(func() { cfg = c.cfg.Clone() }); err != nil {
		return nil
	}
	return cfg
}

// State returns the current session state.
func (c *Controller) State() State {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap.state
}

// Paused reports whether the target is blocked at a break.
func (c *Controller) Paused() bool {
	return c.State() == StatePaused
}

// Debugging reports whether a session with a control channel is active.
func (c *Controller) Debugging() bool {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap.debugging
}

// SessionID returns the active session identity, or "" when idle.
func (c *Controller) SessionID() string {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap.sessionID
}

// Location returns the last break location of the active session.
func (c *Controller) Location() (Location, bool) {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	if c.snap.location == nil {
		return Location{}, false
	}
	return *c.snap.location, true
}

// Close stops any session and releases the controller. Operations after
// Close return ErrControllerClosed. Close must not be called from a
// notification listener.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.do(func() {
			if s := c.session; s != nil {
				err = c.stopSession(s, StopReasonClosed, nil)
			}
		})
		close(c.quit)
		<-c.actorDone

		c.notify.close()
		if c.ownLauncher != nil {
			c.ownLauncher.Shutdown(c.cfg.Process.TerminateTimeout.Std())
		}
		if c.ownBus {
			c.bus.Close()
		}
	})
	return err
}

// run is the controller goroutine.
func (c *Controller) run() {
	defer close(c.actorDone)
	for {
		select {
		case fn := <-c.inbox:
			fn()
			c.refresh()
		case <-c.quit:
			return
		}
	}
}

// do runs fn on the controller goroutine and waits for it.
func (c *Controller) do(fn func()) error {
	done := make(chan struct{})
	select {
	case c.inbox <- func() {
		fn()
		c.refresh()
		close(done)
	}:
	case <-c.quit:
		return ErrControllerClosed
	}
	select {
	case <-done:
		return nil
	case <-c.actorDone:
		return ErrControllerClosed
	}
}

// enqueue schedules fn without waiting. It is dropped after Close.
func (c *Controller) enqueue(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.quit:
	}
}

func (c *Controller) refresh() {
	snap := snapshot{state: StateIdle}
	if s := c.session; s != nil {
		snap.sessionID = s.id
		snap.debugging = s.ch != nil
		snap.state = StateRunning
		if s.paused {
			snap.state = StatePaused
		}
		if s.location != nil {
			loc := *s.location
			snap.location = &loc
		}
	}

	c.snapMu.Lock()
	c.snap = snap
	c.snapMu.Unlock()
}

// current returns the active session if it belongs to epoch.
func (c *Controller) current(epoch uint64) *session {
	if s := c.session; s != nil && s.epoch == epoch {
		return s
	}
	return nil
}

func (c *Controller) publish(topic string, payload any) {
	c.notify.push(topic, payload)
}

func (c *Controller) start(ctx context.Context, t Target) (bool, error) {
	if s := c.session; s != nil {
		if s.paused && s.ch != nil {
			return c.resume(s)
		}
		s.logger.Debug().Msg("start refused: session active")
		return false, nil
	}
	return c.launch(ctx, t, true)
}

func (c *Controller) resume(s *session) (bool, error) {
	if err := c.send(s, wire.Continue{}); err != nil {
		return false, err
	}
	s.paused = false
	s.logger.Info().Msg("session continued")
	c.publish(TopicSessionContinued, ContinuedEvent{SessionID: s.id})
	return true, nil
}

// launch starts a fresh session.
func (c *Controller) launch(ctx context.Context, t Target, debugging bool) (bool, error) {
	if t.Dir == "" {
		return false, ErrNoTargetDir
	}
	cfg := c.cfg

	c.sink.Clear()

	c.epoch++
	s := &session{
		id:    uuid.New().String(),
		epoch: c.epoch,
	}
	s.logger = c.logger.With().Str("session", s.id).Uint64("epoch", s.epoch).Logger()

	// An explicit empty value keeps an inherited address from leaking
	// into a run without debugging.
	env := []string{wire.EnvAddr + "="}
	addr := ""
	if debugging {
		ch, err := channel.Open(cfg.Debug.Addr(),
			channel.WithSendTimeout(cfg.Debug.SendTimeout.Std()),
			channel.WithLogger(s.logger),
		)
		if err != nil {
			s.logger.Error().Err(err).Str("addr", cfg.Debug.Addr()).Msg("open channel")
			return false, err
		}
		if err := ch.Serve(c.channelHandlers(s.epoch)); err != nil {
			_ = ch.Close()
			return false, err
		}
		s.ch = ch
		addr = ch.Addr().String()
		env = []string{wire.EnvAddr + "=" + addr}
	}

	s.stdout = c.writer(output.StreamStdout)
	s.stderr = c.writer(output.StreamStderr)

	entry := t.Entry
	if entry == "" {
		entry = cfg.Engine.Entry
	}

	h, err := c.launcher.Launch(ctx, process.Spec{
		Name:   "target",
		Path:   cfg.Engine.Path,
		Dir:    t.Dir,
		Args:   []string{entry},
		Env:    env,
		Stdout: s.stdout,
		Stderr: s.stderr,
	})
	if err != nil {
		if s.ch != nil {
			_ = s.ch.Close()
		}
		s.logger.Error().Err(err).Str("engine", cfg.Engine.Path).Msg("launch target")
		return false, err
	}

	s.handle = h
	c.session = s
	go c.watchExit(s.epoch, h, s.ch)

	s.logger.Info().
		Bool("debugging", debugging).
		Str("addr", addr).
		Str("dir", t.Dir).
		Str("entry", entry).
		Msg("session started")
	c.publish(TopicSessionStarted, StartedEvent{SessionID: s.id, Debugging: debugging, Addr: addr})
	return true, nil
}

func (c *Controller) writer(stream output.Stream) *output.LineWriter {
	if ss, ok := c.sink.(streamSink); ok {
		return output.NewLineWriter(func(line string) { ss.AppendStream(stream, line) })
	}
	return output.NewLineWriter(c.sink.Append)
}

// watchExit stops the session once the process exits. Frames the target
// wrote just before exiting are still in flight, so a connected channel
// gets up to exitGrace to reach end of stream first.
func (c *Controller) watchExit(epoch uint64, h process.Handle, ch *channel.Channel) {
	<-h.Done()
	if ch != nil && ch.Connected() {
		timer := time.NewTimer(exitGrace)
		select {
		case <-ch.Done():
		case <-timer.C:
		}
		timer.Stop()
	}
	c.enqueue(func() {
		if s := c.current(epoch); s != nil {
			_ = c.stopSession(s, StopReasonExited, nil)
		}
	})
}

func (c *Controller) channelHandlers(epoch uint64) channel.Handlers {
	return channel.Handlers{
		OnConnected: func(remote net.Addr) {
			c.enqueue(func() {
				if s := c.current(epoch); s != nil {
					s.logger.Info().Str("remote", remote.String()).Msg("target connected")
				}
			})
		},
		OnMessage: func(msg wire.Message) {
			c.enqueue(func() {
				if s := c.current(epoch); s != nil {
					c.dispatch(s, msg)
				}
			})
		},
		OnError: func(err error) {
			c.enqueue(func() {
				if s := c.current(epoch); s != nil {
					c.channelError(s, err)
				}
			})
		},
		OnClosed: func(err error) {
			c.enqueue(func() {
				if s := c.current(epoch); s != nil {
					c.channelClosed(s, err)
				}
			})
		},
	}
}

// dispatch applies one inbound message.
func (c *Controller) dispatch(s *session, msg wire.Message) {
	s.logger.Debug().Str("kind", msg.Kind().String()).Msg("received")

	switch m := msg.(type) {
	case wire.Wait:
		if err := c.send(s, wire.Continue{}); err == nil {
			s.paused = false
		}
	case wire.Break:
		c.breakAt(s, m)
	case wire.ExceptionInternal:
		c.exception(s, true, m.Message, m.Detail)
	case wire.ExceptionUser:
		c.exception(s, false, m.Message, m.Detail)
	case wire.Result:
		// Nothing pairs results with directives yet.
		c.publish(TopicResultReceived, ResultEvent{SessionID: s.id, Seq: m.Seq(), Payload: m.Payload})
	case wire.Continue, wire.Pause:
		s.logger.Warn().Str("kind", msg.Kind().String()).Msg("directive received from target")
		c.publish(TopicMessageUnknown, UnknownMessageEvent{SessionID: s.id, Type: msg.Kind().String()})
	}
}

func (c *Controller) breakAt(s *session, m wire.Break) {
	loc := Location{
		File: project.File{Path: m.FileName, Rel: m.FileName},
		Line: m.LineNumber,
	}
	if c.resolver != nil {
		f, err := c.resolver.Resolve(m.FileName)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", m.FileName).Msg("resolve break location")
		} else {
			loc.File = f
			loc.Resolved = true
		}
	}

	if loc.Resolved && c.opener != nil {
		c.navigate(s, loc)
	}

	s.paused = true
	s.location = &loc
	s.logger.Info().Str("file", loc.File.Rel).Int("line", loc.Line).Msg("session paused")
	c.publish(TopicSessionPaused, PausedEvent{SessionID: s.id, Location: loc})
}

func (c *Controller) navigate(s *session, loc Location) {
	surface, err := c.opener.OpenSurface(loc.File)
	if err != nil {
		s.logger.Warn().Err(err).Str("file", loc.File.Rel).Msg("open surface")
		return
	}
	nav, ok := surface.(Navigator)
	if !ok {
		return
	}
	if err := nav.NavigateTo(loc.File, loc.Line); err != nil {
		s.logger.Warn().Err(err).Str("file", loc.File.Rel).Int("line", loc.Line).Msg("navigate")
	}
}

// exception reports a target exception. The paused flag is left alone.
func (c *Controller) exception(s *session, internal bool, message, detail string) {
	kind := "user"
	if internal {
		kind = "internal"
	}
	s.logger.Warn().Str("kind", kind).Str("message", message).Msg("target exception")

	c.sink.Append(fmt.Sprintf("[%s exception] %s", kind, message))
	if detail != "" {
		c.sink.Append(detail)
	}
	c.publish(TopicExceptionRaised, ExceptionEvent{
		SessionID: s.id,
		Internal:  internal,
		Message:   message,
		Detail:    detail,
	})
}

func (c *Controller) channelError(s *session, err error) {
	var unknown *wire.UnknownMessageError
	if errors.As(err, &unknown) {
		s.logger.Warn().Str("type", unknown.Type).Msg("unknown message")
		c.publish(TopicMessageUnknown, UnknownMessageEvent{SessionID: s.id, Type: unknown.Type, Err: err})
		return
	}
	s.logger.Warn().Err(err).Msg("channel error")
	c.publish(TopicChannelError, ChannelErrorEvent{SessionID: s.id, Err: err})
}

func (c *Controller) channelClosed(s *session, err error) {
	reason := StopReasonDisconnected
	switch {
	case errors.Is(err, wire.ErrProtocolViolation):
		reason = StopReasonProtocol
	case err != nil:
		reason = StopReasonChannelLost
	default:
		// A target that is exiting closes its socket first.
		timer := time.NewTimer(exitGrace)
		select {
		case <-s.handle.Done():
			reason = StopReasonExited
		case <-timer.C:
		}
		timer.Stop()
	}
	_ = c.stopSession(s, reason, err)
}

// send writes a directive. A dead connection stops the session; other
// failures are reported and the session kept.
func (c *Controller) send(s *session, msg wire.Message) error {
	err := s.ch.Send(msg)
	if err == nil {
		s.logger.Debug().Str("kind", msg.Kind().String()).Msg("sent")
		return nil
	}
	if channel.IsDead(err) {
		s.logger.Warn().Err(err).Msg("channel lost")
		_ = c.stopSession(s, StopReasonChannelLost, err)
		return err
	}
	c.publish(TopicChannelError, ChannelErrorEvent{SessionID: s.id, Err: err})
	return err
}

// stopSession is the single cleanup path for every way a session ends.
func (c *Controller) stopSession(s *session, reason StopReason, cause error) error {
	if c.session != s {
		return nil
	}
	c.session = nil

	if s.ch != nil {
		_ = s.ch.Close()
	}

	var err error
	exitCode := -1
	if s.handle != nil {
		ctx := context.Background()
		if d := c.cfg.Process.TerminateTimeout.Std(); d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		if err = s.handle.Terminate(ctx); err != nil {
			s.logger.Error().Err(err).Msg("terminate target")
		}
		if !s.handle.IsRunning() {
			exitCode = s.handle.ExitCode()
		}
	}
	s.stdout.Flush()
	s.stderr.Flush()

	logEvent := s.logger.Info().Str("reason", string(reason)).Int("exit_code", exitCode)
	if cause != nil {
		logEvent = logEvent.AnErr("cause", cause)
	}
	logEvent.Msg("session stopped")

	c.publish(TopicSessionStopped, StoppedEvent{
		SessionID: s.id,
		Reason:    reason,
		ExitCode:  exitCode,
		Err:       cause,
	})
	return err
}
