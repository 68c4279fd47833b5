// Package cli implements the applypatch command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/asynkron/applypatch/internal/config"
	"github.com/asynkron/applypatch/internal/journal"
	"github.com/asynkron/applypatch/internal/logging"
	"github.com/asynkron/applypatch/internal/render"
)

// Version is reported by --version and the MCP handshake. It is set at build
// time with -ldflags "-X github.com/asynkron/applypatch/internal/cli.Version=...".
var Version = "dev"

// failure marks errors raised while running a command, as opposed to usage
// errors reported by cobra.
type failure struct {
	err error
}

func (f *failure) Error() string { return f.err.Error() }
func (f *failure) Unwrap() error { return f.err }

func fail(err error) error {
	if err == nil {
		return nil
	}
	return &failure{err: err}
}

// app carries the per-invocation state shared by subcommands.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configFile string

	cfg    *config.Config
	logger logging.Logger
	render *render.Renderer
}

// Run executes the applypatch CLI using the provided arguments. It returns a
// POSIX-style exit code: 0 on success, 1 when a command fails and 2 for usage
// errors.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	a := &app{stdin: stdin, stdout: stdout, stderr: stderr, logger: &logging.NoOpLogger{}}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var f *failure
	if errors.As(err, &f) {
		if a.render != nil {
			fmt.Fprint(stderr, a.render.Error(f.err))
		} else {
			fmt.Fprintf(stderr, "error: %v\n", f.err)
		}
		return 1
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	fmt.Fprintln(stderr, "Run 'applypatch --help' for usage.")
	return 2
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "applypatch",
		Short: "Apply *** Begin Patch style patches to a project",
		Long: `applypatch applies patches written in the apply_patch format
(*** Begin Patch ... *** End Patch) to files below a project root.

Patches can be read from a file, piped on stdin or taken from the clipboard,
and the same engine is available over HTTP and as an MCP tool.`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.configure(cmd)
		},
	}
	root.SetVersionTemplate("applypatch {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: .applypatch.{yaml,toml,json} in the working directory)")
	flags.String("root", "", "project root patches are applied to (default: working directory)")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("journal", "", "sqlite journal path; empty disables the journal")
	flags.String("color", "", "color output: auto, always or never")

	root.AddCommand(
		a.applyCommand(),
		a.parseCommand(),
		a.historyCommand(),
		a.serveCommand(),
		a.mcpCommand(),
	)
	return root
}

// configure loads configuration once the command line has been parsed.
func (a *app) configure(cmd *cobra.Command) error {
	cfg, err := config.Load(config.Options{ConfigFile: a.configFile, Command: cmd})
	if err != nil {
		return fail(err)
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.Level(), a.stderr)
	a.render = render.New(a.stdout, cfg.Color)
	a.logger.Debug(cmd.Context(), "configuration loaded",
		logging.Field("command", cmd.Name()),
		logging.Field("root", cfg.Root),
		logging.Field("journal", cfg.Journal))
	return nil
}

// openJournal returns nil when the journal is disabled.
func (a *app) openJournal() (*journal.Journal, error) {
	if a.cfg == nil || a.cfg.Journal == "" {
		return nil, nil
	}
	return journal.Open(a.cfg.Journal, a.logger)
}
