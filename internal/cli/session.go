package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dshills/moaidebug/internal/config"
	"github.com/dshills/moaidebug/internal/debug"
	"github.com/dshills/moaidebug/internal/event"
	"github.com/dshills/moaidebug/internal/logging"
	"github.com/dshills/moaidebug/internal/output"
	"github.com/dshills/moaidebug/internal/project"
	"github.com/dshills/moaidebug/internal/target"
)

// sessionOptions are the flags of debug and run.
type sessionOptions struct {
	debugging bool
	entry     string
	engine    string
	host      string
	port      int
	builtin   bool
	watch     bool
}

func newDebugCmd(g *globalOptions) *cobra.Command {
	opts := &sessionOptions{debugging: true}

	cmd := &cobra.Command{
		Use:   "debug [dir]",
		Short: "Launch a project with the debugger attached",
		Long: `Launch the project in dir (default: current directory) and attach the
debugger. At the prompt:

  c, continue   resume a paused target
  p, pause      ask the target to pause
  s, stop       stop the target
  status        show the session state
  q, quit       stop the target and exit`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, g, opts, args)
		},
	}
	addSessionFlags(cmd, opts)

	flags := cmd.Flags()
	flags.StringVar(&opts.host, "host", "", "control channel host")
	flags.IntVarP(&opts.port, "port", "p", 0, "control channel port (0 keeps the configured port)")
	flags.BoolVarP(&opts.watch, "watch", "w", false, "reload the configuration when it changes")
	return cmd
}

func newRunCmd(g *globalOptions) *cobra.Command {
	opts := &sessionOptions{}

	cmd := &cobra.Command{
		Use:   "run [dir]",
		Short: "Launch a project without debugging",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, g, opts, args)
		},
	}
	addSessionFlags(cmd, opts)
	return cmd
}

func addSessionFlags(cmd *cobra.Command, opts *sessionOptions) {
	flags := cmd.Flags()
	flags.StringVarP(&opts.entry, "entry", "e", "", "entry script relative to dir")
	flags.StringVar(&opts.engine, "engine", "", "engine executable")
	flags.BoolVar(&opts.builtin, "builtin", false, "run the script in-process with the reference Lua runtime")
}

// apply layers the command line over a loaded configuration.
func (o *sessionOptions) apply(g *globalOptions, cfg *config.Config) error {
	if o.engine != "" {
		cfg.Engine.Path = o.engine
	}
	if o.host != "" {
		cfg.Debug.Host = o.host
	}
	if o.port != 0 {
		cfg.Debug.Port = o.port
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	return cfg.Validate()
}

func runSession(cmd *cobra.Command, g *globalOptions, opts *sessionOptions, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("project directory: %w", err)
	}

	cfgPath := g.configPath
	if cfgPath == "" {
		cfgPath = filepath.Join(dir, config.FileName)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := opts.apply(g, cfg); err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: g.pretty && cfg.Logging.Pretty,
		Output: cmd.ErrOrStderr(),
	})

	ws, err := project.Open(dir)
	if err != nil {
		return err
	}

	con := newConsole(cmd.OutOrStdout(), cmd.ErrOrStderr())
	log := output.NewLog()
	log.OnAppend(con.printLine)

	ctrlOpts := []debug.Option{
		debug.WithResolver(ws),
		debug.WithSurfaceOpener(con),
		debug.WithLogSink(log),
		debug.WithLogger(logging.Component(logger, "debug")),
	}
	if opts.builtin {
		ctrlOpts = append(ctrlOpts, debug.WithLauncher(target.NewLauncher(logging.Component(logger, "target"))))
	}

	ctrl := debug.NewController(cfg, ctrlOpts...)
	defer func() { _ = ctrl.Close() }()

	stopped := make(chan debug.StoppedEvent, 1)
	ctrl.Bus().Subscribe("debug.*", func(e event.Event) {
		con.printEvent(e)
		if ev, ok := e.Payload.(debug.StoppedEvent); ok {
			select {
			case stopped <- ev:
			default:
			}
		}
	})

	if opts.watch {
		w, err := watchConfig(cfgPath, g, opts, ctrl, logger)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfgPath).Msg("config watch disabled")
		} else {
			defer func() { _ = w.Close() }()
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	tgt := debug.Target{Dir: dir, Entry: opts.entry}
	start := ctrl.StartWithoutDebugging
	if opts.debugging {
		start = ctrl.Start
	}
	if _, err := start(ctx, tgt); err != nil {
		return err
	}

	interactive := opts.debugging && isTerminal(cmd.InOrStdin())
	commands := readCommands(cmd.InOrStdin())
	if interactive {
		con.prompt()
	}

	for {
		select {
		case <-ctx.Done():
			_ = ctrl.Stop()
			return ctx.Err()

		case ev := <-stopped:
			if ev.ExitCode > 0 {
				return &ExitError{Code: ev.ExitCode}
			}
			return nil

		case line, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			if done := execute(ctx, ctrl, con, tgt, line); done {
				return nil
			}
			if interactive {
				con.prompt()
			}
		}
	}
}

// execute runs one prompt command. It reports whether the user quit.
func execute(ctx context.Context, ctrl *debug.Controller, con *console, t debug.Target, line string) bool {
	c, err := parseCommand(line)
	if err != nil {
		con.errorf("%v", err)
		return false
	}

	switch c {
	case cmdNone:
	case cmdContinue:
		ok, err := ctrl.Start(ctx, t)
		switch {
		case err != nil:
			con.errorf("continue: %v", err)
		case !ok:
			con.errorf("target is running")
		}
	case cmdPause:
		if err := ctrl.Pause(); err != nil {
			con.errorf("pause: %v", err)
		}
	case cmdStop:
		if err := ctrl.Stop(); err != nil {
			con.errorf("stop: %v", err)
		}
	case cmdStatus:
		con.status(ctrl)
	case cmdHelp:
		con.help()
	case cmdQuit:
		_ = ctrl.Stop()
		return true
	}
	return false
}

// readCommands delivers stdin lines until EOF.
func readCommands(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func watchConfig(path string, g *globalOptions, opts *sessionOptions, ctrl *debug.Controller, logger zerolog.Logger) (*config.Watcher, error) {
	logger = logging.Component(logger, "config")
	return config.Watch(path, func(cfg *config.Config, err error) {
		if err == nil {
			err = opts.apply(g, cfg)
		}
		if err == nil {
			err = ctrl.SetConfig(cfg)
		}
		if err != nil {
			logger.Warn().Err(err).Msg("config reload rejected")
			return
		}
		logger.Info().Msg("config reloaded, applies to the next launch")
	}, config.WithWatchLogger(logger))
}
