package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/perfgo/mysqlwarm/cli/digest"
	"github.com/perfgo/mysqlwarm/cli/mysqladmin"
	"github.com/perfgo/mysqlwarm/cli/playback"
	"github.com/perfgo/mysqlwarm/cli/relay"
	"github.com/perfgo/mysqlwarm/cli/ssh"
	"github.com/perfgo/mysqlwarm/cli/tcpdump"
	"github.com/perfgo/mysqlwarm/workload"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

const AppName = "mysqlwarm"

// Process exit codes.
const (
	ExitOK           = 0
	ExitError        = 1
	ExitInvalidArgs  = 22
	ExitMySQLConnect = 2003
)

// Toolbox bundles the external collaborators one command works with.
type Toolbox struct {
	Capturer workload.PacketCapturer
	Relay    workload.RelayTransport
	Digester workload.QueryLogDigester
	Replayer workload.WorkloadReplayer
	Checker  workload.ConnectivityChecker

	close func()
}

// Close releases SSH connections held by the toolbox.
func (t *Toolbox) Close() {
	if t.close != nil {
		t.close()
	}
}

// ToolboxFunc builds the collaborators for a command invocation.
type ToolboxFunc func(logger zerolog.Logger, ctx *cli.Context) *Toolbox

func defaultToolbox(logger zerolog.Logger, ctx *cli.Context) *Toolbox {
	var sshOpts []ssh.SSHOption
	if identity := ctx.String("ssh-identity"); identity != "" {
		sshOpts = append(sshOpts, ssh.WithIdentityFile(identity))
	}
	capturer := tcpdump.New(logger, sshOpts...)

	return &Toolbox{
		Capturer: capturer,
		Relay:    relay.New(logger, relay.DefaultBinary),
		Digester: digest.New(logger, digest.DefaultBinary),
		Replayer: playback.New(logger, playback.DefaultBinary),
		Checker:  mysqladmin.New(logger, mysqladmin.DefaultTimeout),
		close:    capturer.Close,
	}
}

type App struct {
	logger  zerolog.Logger
	cli     *cli.App
	toolbox ToolboxFunc
	// args of the current invocation, secrets redacted
	args []string
}

type Option func(*App)

// WithToolbox replaces the external collaborators.
func WithToolbox(f ToolboxFunc) Option {
	return func(a *App) {
		a.toolbox = f
	}
}

// WithWriters redirects regular output and diagnostics (logs, usage).
func WithWriters(out, errOut io.Writer) Option {
	return func(a *App) {
		a.cli.Writer = out
		a.cli.ErrWriter = errOut
		a.logger = a.logger.Output(zerolog.ConsoleWriter{
			Out:        errOut,
			TimeFormat: time.RFC3339Nano,
			NoColor:    true,
		})
	}
}

func New(opts ...Option) *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger:  logger,
		toolbox: defaultToolbox,
		cli: &cli.App{
			Name:      AppName,
			Usage:     "Capture a MySQL workload and replay it to benchmark or warm up a target",
			Writer:    os.Stdout,
			ErrWriter: os.Stderr,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
				&cli.StringFlag{
					Name:  "config",
					Usage: "YAML file providing flag values",
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
			// exit codes are handled by main
			ExitErrHandler: func(*cli.Context, error) {},
			OnUsageError:   onUsageError,
		},
	}
	for _, opt := range opts {
		opt(app)
	}

	app.cli.Commands = []*cli.Command{
		app.captureCommand(),
		app.replayCommand(),
		app.warmCommand(),
		app.listCommand(),
		app.summaryCommand(),
	}
	for _, cmd := range app.cli.Commands {
		cmd.OnUsageError = onUsageError
		cmd.Before = altsrc.InitInputSourceWithContext(cmd.Flags, altsrc.NewYamlSourceFromFlagFunc("config"))
	}
	return app
}

func (a *App) Run(args []string) error {
	a.args = redactArgs(args)
	return a.cli.Run(args)
}

// RunContext runs the application; cancelling ctx stops long-running
// commands after their cleanup.
func (a *App) RunContext(ctx context.Context, args []string) error {
	a.args = redactArgs(args)
	return a.cli.RunContext(ctx, args)
}

const redacted = "REDACTED"

// secretFlags name the flags whose values never end up in a run record.
var secretFlags = map[string]bool{
	"mysql-password": true,
}

// redactArgs returns a copy of args with the values of secret flags
// replaced, in both the "--flag value" and "--flag=value" forms.
func redactArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out); i++ {
		name := strings.TrimLeft(out[i], "-")
		if name == out[i] {
			continue
		}
		if flag, _, ok := strings.Cut(name, "="); ok {
			if secretFlags[flag] {
				out[i] = out[i][:len(out[i])-len(name)] + flag + "=" + redacted
			}
			continue
		}
		if secretFlags[name] && i+1 < len(out) {
			out[i+1] = redacted
			i++
		}
	}
	return out
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && len(commit) >= 8 {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}

func onUsageError(ctx *cli.Context, err error, isSubcommand bool) error {
	printUsage(ctx, err.Error())
	return cli.Exit("", ExitInvalidArgs)
}

// usageError prints the command usage to stderr and yields the invalid
// arguments exit code.
func usageError(ctx *cli.Context, format string, args ...any) error {
	printUsage(ctx, fmt.Sprintf(format, args...))
	return cli.Exit("", ExitInvalidArgs)
}

func printUsage(ctx *cli.Context, msg string) {
	w := ctx.App.ErrWriter
	fmt.Fprintf(w, "Error: %s\n\n", msg)

	name := AppName
	flags := ctx.App.Flags
	if ctx.Command != nil && ctx.Command.Name != "" && ctx.Command.Name != AppName {
		name += " " + ctx.Command.Name
		flags = ctx.Command.Flags
	}
	fmt.Fprintf(w, "Usage: %s [options]\n\nOptions:\n", name)
	for _, f := range flags {
		fmt.Fprintf(w, "   %s\n", f.String())
	}
}

// exitCode maps an error returned by a workload component to the process
// exit code.
func exitCode(err error) int {
	switch {
	case errors.Is(err, workload.ErrConnect):
		return ExitMySQLConnect
	case errors.Is(err, workload.ErrEmptyLog):
		return ExitInvalidArgs
	default:
		return ExitError
	}
}

func (a *App) fail(err error, msg string) error {
	a.logger.Error().Err(err).Msg(msg)
	return cli.Exit("", exitCode(err))
}
