package playback

// playback.go contains utilities for building percona-playback commands
// that replay a slow-query log against a target host.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/perfgo/mysqlwarm/workload"
	"github.com/rs/zerolog"
)

// DefaultBinary is the replay engine looked up on PATH.
const DefaultBinary = "percona-playback"

// PreserveQueryTimeFlag makes the replayer keep the logged query timing.
const PreserveQueryTimeFlag = "--query-log-preserve-query-time"

// BuildArgs builds percona-playback arguments for a single pass.
func BuildArgs(pass workload.Pass) []string {
	args := []string{
		"--mysql-host", pass.Host,
	}
	if pass.Port > 0 {
		args = append(args, "--mysql-port", strconv.Itoa(pass.Port))
	}
	args = append(args,
		"--mysql-username", pass.User,
		"--mysql-password", pass.Password,
		"--input-plugin", "query-log",
		"--query-log-file", pass.SlowLog,
		"--dispatcher-plugin", "thread-pool",
		"--thread-pool-threads-count", strconv.Itoa(pass.Threads),
	)
	if pass.Loops > 1 {
		args = append(args, "--loop", strconv.Itoa(pass.Loops))
	}
	if pass.PreserveQueryTime {
		args = append(args, PreserveQueryTimeFlag)
	}
	return args
}

// Replayer runs percona-playback locally.
type Replayer struct {
	logger zerolog.Logger
	binary string
}

func New(logger zerolog.Logger, binary string) *Replayer {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Replayer{logger: logger, binary: binary}
}

// Check verifies the replayer is available locally.
func (r *Replayer) Check() error {
	if _, err := exec.LookPath(r.binary); err != nil {
		return fmt.Errorf("%w: %s: %v", workload.ErrMissingTool, r.binary, err)
	}
	return nil
}

// Replay runs one pass and returns the replayer's exit code. A non-zero
// exit code is not an error; -1 means the replayer could not be run.
func (r *Replayer) Replay(ctx context.Context, pass workload.Pass) (int, error) {
	cmd := exec.CommandContext(ctx, r.binary, BuildArgs(pass)...)
	cmd.Stdout = orDiscard(pass.Stdout)
	cmd.Stderr = orDiscard(pass.Stderr)

	r.logger.Debug().
		Str("host", pass.Host).
		Int("threads", pass.Threads).
		Int("loops", pass.Loops).
		Bool("preserve_query_time", pass.PreserveQueryTime).
		Msg("Executing replay pass")

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if ctx.Err() != nil {
		return -1, fmt.Errorf("replay pass interrupted: %w", ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		r.logger.Warn().
			Int("exit_code", exitErr.ExitCode()).
			Msg("Replay pass exited with failure")
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("failed to execute %s: %w", r.binary, err)
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
