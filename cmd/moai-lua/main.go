// Package main is the reference debug target: a Lua script runner that
// attaches to the debugger named in MOAI_DEBUG_ADDR.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/dshills/moaidebug/internal/debug/wire"
	"github.com/dshills/moaidebug/internal/logging"
	"github.com/dshills/moaidebug/internal/target"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("moai-lua", flag.ContinueOnError)

	var (
		addr        string
		logLevel    string
		showVersion bool
	)
	fs.StringVarP(&addr, "addr", "a", os.Getenv(wire.EnvAddr), "debugger address (default $"+wire.EnvAddr+")")
	fs.StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: moai-lua [options] <script.lua>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if showVersion {
		fmt.Printf("moai-lua %s\n", version)
		return 0
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	cfg := logging.DefaultConfig()
	cfg.Level = logLevel
	logger := logging.NewWithComponent(cfg, "moai-lua")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt := target.New(
		target.WithAddr(addr),
		target.WithStdout(os.Stdout),
		target.WithLogger(logger),
	)
	if err := rt.Run(ctx, fs.Arg(0)); err != nil {
		var serr *target.ScriptError
		if errors.As(err, &serr) && serr.Trace != "" {
			fmt.Fprintf(os.Stderr, "%s\n%s\n", serr.Message, serr.Trace)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return target.ExitScriptErr
	}
	return target.ExitOK
}
