// Package target is a reference debug target: it runs a Lua entry script
// and speaks the control protocol back to the debug controller.
//
// Scripts reach the debugger through the preloaded "debugger" module:
//
//	local debugger = require("debugger")
//	debugger.breakpoint()   -- report this line and wait for Continue
//	debugger.poll()         -- stop here if a Pause was requested
//	debugger.result(value)  -- report a value to the controller
//
// Without a controller every debugger function is a no-op.
package target

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/moaidebug/internal/debug/wire"
)

// DefaultDialTimeout bounds the connection attempt to the controller.
const DefaultDialTimeout = 3 * time.Second

// ModuleName is the name scripts require.
const ModuleName = "debugger"

// ErrInterrupted is raised inside the script when the run is cancelled
// while it waits for the controller.
var ErrInterrupted = errors.New("interrupted while waiting for the debugger")

// ScriptError is returned when the entry script fails.
type ScriptError struct {
	// Internal is true for syntax, file and runtime-internal failures and
	// false for errors raised by the script.
	Internal bool
	Message  string
	Trace    string
	Err      error
}

func (e *ScriptError) Error() string {
	return e.Message
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithAddr sets the controller address. Empty runs without debugging.
func WithAddr(addr string) Option {
	return func(r *Runtime) {
		r.addr = addr
	}
}

// WithStdout sets where print writes.
func WithStdout(w io.Writer) Option {
	return func(r *Runtime) {
		r.stdout = w
	}
}

// WithDialTimeout bounds the connection attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.dialTimeout = d
	}
}

// WithLogger sets the runtime logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// Runtime runs one script. It is not reusable.
type Runtime struct {
	addr        string
	stdout      io.Writer
	dialTimeout time.Duration
	logger      zerolog.Logger

	conn   net.Conn
	sendMu sync.Mutex

	continues chan struct{}
	lost      chan struct{}
	lostOnce  sync.Once
	attached  atomic.Bool
	pause     atomic.Bool
}

// New creates a runtime.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		stdout:      os.Stdout,
		dialTimeout: DefaultDialTimeout,
		logger:      zerolog.Nop(),
		continues:   make(chan struct{}, 8),
		lost:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attached reports whether the runtime is connected to a controller.
func (r *Runtime) Attached() bool {
	return r.attached.Load()
}

// Run executes the entry script. When a controller address is set it
// connects, announces readiness with Wait and blocks until told to
// Continue. Script failures are reported to the controller and returned
// as *ScriptError.
func (r *Runtime) Run(ctx context.Context, entry string) error {
	if r.addr != "" {
		if err := r.attach(ctx); err != nil {
			r.logger.Warn().Err(err).Str("addr", r.addr).Msg("debugger unreachable, running without debugging")
		}
	}
	defer r.detach()

	if r.Attached() {
		if err := r.send(wire.Wait{}); err != nil {
			r.logger.Warn().Err(err).Msg("send wait")
		} else if err := r.waitContinue(ctx); err != nil {
			return err
		}
	}

	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	L.SetGlobal("print", L.NewFunction(r.luaPrint))
	L.PreloadModule(ModuleName, r.loader)

	err := r.doFile(L, entry)
	if err == nil {
		return nil
	}

	serr := classify(err)
	if r.Attached() {
		var msg wire.Message = wire.ExceptionUser{Message: serr.Message, Detail: serr.Trace}
		if serr.Internal {
			msg = wire.ExceptionInternal{Message: serr.Message, Detail: serr.Trace}
		}
		if err := r.send(msg); err != nil {
			r.logger.Warn().Err(err).Msg("report exception")
		}
	}
	return serr
}

func (r *Runtime) doFile(L *lua.LState, entry string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &lua.ApiError{Type: lua.ApiErrorPanic, Object: lua.LString(fmt.Sprint(p))}
		}
	}()
	return L.DoFile(entry)
}

// classify maps a gopher-lua failure onto the two exception kinds.
func classify(err error) *ScriptError {
	serr := &ScriptError{Internal: true, Message: err.Error(), Err: err}

	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) {
		serr.Internal = apiErr.Type != lua.ApiErrorRun
		if apiErr.Object != nil {
			serr.Message = apiErr.Object.String()
		}
		serr.Trace = apiErr.StackTrace
	}
	return serr
}

func (r *Runtime) attach(ctx context.Context) error {
	d := net.Dialer{Timeout: r.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", r.addr)
	if err != nil {
		return err
	}
	r.conn = conn
	r.attached.Store(true)
	go r.readLoop(bufio.NewReader(conn))
	r.logger.Debug().Str("addr", r.addr).Msg("attached to debugger")
	return nil
}

func (r *Runtime) detach() {
	r.markLost()
	if r.conn != nil {
		_ = r.conn.Close()
	}
}

func (r *Runtime) markLost() {
	r.lostOnce.Do(func() {
		r.attached.Store(false)
		close(r.lost)
	})
}

// readLoop receives directives until the connection ends.
func (r *Runtime) readLoop(br *bufio.Reader) {
	defer r.markLost()
	for {
		msg, err := wire.ReadMessage(br)
		if err != nil {
			if errors.Is(err, wire.ErrUnknownMessage) {
				r.logger.Warn().Err(err).Msg("ignoring directive")
				continue
			}
			if !errors.Is(err, io.EOF) && r.Attached() {
				r.logger.Debug().Err(err).Msg("debugger connection lost")
			}
			return
		}

		switch msg.(type) {
		case wire.Continue:
			select {
			case r.continues <- struct{}{}:
			default:
			}
		case wire.Pause:
			r.pause.Store(true)
		default:
			r.logger.Warn().Str("kind", msg.Kind().String()).Msg("unexpected message from debugger")
		}
	}
}

func (r *Runtime) send(msg wire.Message) error {
	if !r.Attached() {
		return nil
	}
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	return wire.WriteMessage(r.conn, msg)
}

// waitContinue blocks until Continue arrives. Losing the controller
// releases the wait so the script carries on detached.
func (r *Runtime) waitContinue(ctx context.Context) error {
	select {
	case <-r.continues:
		return nil
	case <-r.lost:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	}
}

// stopAt reports a break at the caller's location and waits.
func (r *Runtime) stopAt(L *lua.LState) {
	if !r.Attached() {
		return
	}

	file, line := callerLocation(L)

	// Drop Continues that arrived while running so the wait below
	// answers to this break only.
	for drained := false; !drained; {
		select {
		case <-r.continues:
		default:
			drained = true
		}
	}
	r.pause.Store(false)

	if err := r.send(wire.Break{FileName: file, LineNumber: line}); err != nil {
		r.logger.Warn().Err(err).Msg("send break")
		return
	}

	ctx := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := r.waitContinue(ctx); err != nil {
		L.RaiseError("%s", err.Error())
	}
}

func callerLocation(L *lua.LState) (string, int) {
	dbg, ok := L.GetStack(1)
	if !ok {
		return "?", 0
	}
	if _, err := L.GetInfo("Sl", dbg, lua.LNil); err != nil {
		return "?", 0
	}
	return strings.TrimPrefix(dbg.Source, "@"), dbg.CurrentLine
}

func (r *Runtime) loader(L *lua.LState) int {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"breakpoint": r.luaBreakpoint,
		"poll":       r.luaPoll,
		"result":     r.luaResult,
		"attached":   r.luaAttached,
	})
	L.Push(mod)
	return 1
}

func (r *Runtime) luaBreakpoint(L *lua.LState) int {
	r.stopAt(L)
	return 0
}

func (r *Runtime) luaPoll(L *lua.LState) int {
	if r.pause.Load() {
		r.stopAt(L)
	}
	return 0
}

func (r *Runtime) luaResult(L *lua.LState) int {
	v := L.CheckAny(1)
	payload := L.ToStringMeta(v).String()
	if err := r.send(wire.Result{Payload: []byte(payload)}); err != nil {
		r.logger.Warn().Err(err).Msg("send result")
	}
	return 0
}

func (r *Runtime) luaAttached(L *lua.LState) int {
	L.Push(lua.LBool(r.Attached()))
	return 1
}

func (r *Runtime) luaPrint(L *lua.LState) int {
	top := L.GetTop()
	parts := make([]string, 0, top)
	for i := 1; i <= top; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	fmt.Fprintln(r.stdout, strings.Join(parts, "\t"))
	return 0
}
