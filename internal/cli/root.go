// Package cli implements the moaidebug command line.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// ExitError carries a non-zero target exit code out of a command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("target exited with code %d", e.Code)
}

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	pretty     bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "moaidebug",
		Short: "Launch and debug Moai Lua projects",
		Long: `moaidebug launches a Lua project under the Moai engine and drives it
through the debug control channel.

The target connects back to the address in MOAI_DEBUG_ADDR, reports
breakpoints and exceptions, and waits for continue directives.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&g.configPath, "config", "c", "", "configuration file (default <dir>/moaidebug.toml)")
	flags.StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&g.pretty, "pretty", true, "human-readable log output")

	cmd.AddCommand(newDebugCmd(g))
	cmd.AddCommand(newRunCmd(g))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("moaidebug %s\n", version)
			cmd.Printf("Commit: %s\n", commit)
			cmd.Printf("Built: %s\n", date)
		},
	}
}

// Execute runs the root command with args.
func Execute(ctx context.Context, args []string) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}
