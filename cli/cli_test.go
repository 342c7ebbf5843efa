package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/perfgo/mysqlwarm/model"
	"github.com/perfgo/mysqlwarm/workload"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

type stubReplayer struct {
	passes []workload.Pass
}

func (s *stubReplayer) Check() error { return nil }

func (s *stubReplayer) Replay(ctx context.Context, pass workload.Pass) (int, error) {
	s.passes = append(s.passes, pass)
	if pass.Stdout != nil {
		_, _ = io.WriteString(pass.Stdout, "Report\n")
	}
	return 0, nil
}

type stubChecker struct{ err error }

func (s stubChecker) Ping(ctx context.Context, host string, port int, user, password string) error {
	return s.err
}

type stubCapturer struct{ calls int }

func (s *stubCapturer) Check(ctx context.Context, host string) error { return nil }

func (s *stubCapturer) Capture(ctx context.Context, cfg model.CaptureConfig) error {
	s.calls++
	return nil
}

type stubTransport struct{}

func (stubTransport) Check() error { return nil }

func (stubTransport) InUse(ctx context.Context, port int) (int, bool, error) { return 0, false, nil }

func (stubTransport) Listen(ctx context.Context, port int, path string) (workload.Relay, error) {
	return nil, errors.New("not expected")
}

type stubDigester struct{}

func (stubDigester) Check() error { return nil }

func (stubDigester) Digest(ctx context.Context, in, out, schema string) error {
	return errors.New("not expected")
}

type harness struct {
	app      *App
	stdout   bytes.Buffer
	stderr   bytes.Buffer
	built    int
	capturer *stubCapturer
	replayer *stubReplayer
	checkErr error
}

func newHarness() *harness {
	h := &harness{
		capturer: &stubCapturer{},
		replayer: &stubReplayer{},
	}
	h.app = New(
		WithWriters(&h.stdout, &h.stderr),
		WithToolbox(func(logger zerolog.Logger, ctx *cli.Context) *Toolbox {
			h.built++
			return &Toolbox{
				Capturer: h.capturer,
				Relay:    stubTransport{},
				Digester: stubDigester{},
				Replayer: h.replayer,
				Checker:  stubChecker{err: h.checkErr},
			}
		}),
	)
	return h
}

func (h *harness) run(args ...string) int {
	err := h.app.RunContext(context.Background(), append([]string{AppName}, args...))
	if err == nil {
		return ExitOK
	}
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return ExitError
}

func writeSlowLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), model.SlowLogFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestMissingRequiredFlags(t *testing.T) {
	tests := []struct {
		name    string
		command string
		args    func(out string) []string
	}{
		{
			name:    "capture without master host",
			command: "capture",
			args: func(out string) []string {
				return []string{"capture", "--tcpdump-seconds", "10", "--output-dir", out}
			},
		},
		{
			name:    "capture without duration",
			command: "capture",
			args: func(out string) []string {
				return []string{"capture", "--master-host", "db1", "--output-dir", out}
			},
		},
		{
			name:    "replay without password",
			command: "replay",
			args: func(out string) []string {
				return []string{"replay", "--target-host", "db2", "--slow-log", "x.log", "--output-dir", out, "--mysql-user", "bench"}
			},
		},
		{
			name:    "warm without target",
			command: "warm",
			args: func(out string) []string {
				return []string{"warm", "--master-host", "db1", "--working-dir", out, "--mysql-user", "bench", "--mysql-password", "pw"}
			},
		},
		{
			name:    "summary without host",
			command: "summary",
			args: func(out string) []string {
				return []string{"summary", "--output-dir", out}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(passwordEnvVar, "")
			os.Unsetenv(passwordEnvVar)

			h := newHarness()
			out := filepath.Join(t.TempDir(), "out")

			code := h.run(tt.args(out)...)
			require.Equal(t, ExitInvalidArgs, code)
			require.Contains(t, h.stderr.String(), "Usage: mysqlwarm "+tt.command)
			require.Zero(t, h.built)
			require.NoDirExists(t, out)
		})
	}
}

func TestInvalidArguments(t *testing.T) {
	slowLog := writeSlowLog(t, "SELECT 1;\n")
	emptyLog := writeSlowLog(t, "")

	tests := []struct {
		name string
		args []string
	}{
		{
			name: "schema with regex characters",
			args: []string{"capture", "--master-host", "db1", "--tcpdump-seconds", "10", "--output-dir", "out", "--schema", "shop.*"},
		},
		{
			name: "negative duration",
			args: []string{"capture", "--master-host", "db1", "--tcpdump-seconds", "-1", "--output-dir", "out"},
		},
		{
			name: "relay port out of range",
			args: []string{"capture", "--master-host", "db1", "--tcpdump-seconds", "10", "--output-dir", "out", "--port", "70000"},
		},
		{
			name: "zero concurrency",
			args: []string{"replay", "--target-host", "db2", "--slow-log", slowLog, "--output-dir", "out", "--mysql-user", "u", "--mysql-password", "p", "--concurrency", "0"},
		},
		{
			name: "empty slow log",
			args: []string{"replay", "--target-host", "db2", "--slow-log", emptyLog, "--output-dir", "out", "--mysql-user", "u", "--mysql-password", "p"},
		},
		{
			name: "missing slow log",
			args: []string{"replay", "--target-host", "db2", "--slow-log", slowLog + ".missing", "--output-dir", "out", "--mysql-user", "u", "--mysql-password", "p"},
		},
		{
			name: "unknown flag",
			args: []string{"replay", "--no-such-flag"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			require.Equal(t, ExitInvalidArgs, h.run(tt.args...))
			require.Contains(t, h.stderr.String(), "Usage:")
			require.Zero(t, h.built)
		})
	}
}

func TestReplayCommand(t *testing.T) {
	slowLog := writeSlowLog(t, "SELECT 1;\n")
	out := t.TempDir()
	h := newHarness()

	code := h.run("replay",
		"--target-host", "db2",
		"--slow-log", slowLog,
		"--output-dir", out,
		"--mysql-user", "bench",
		"--mysql-password", "secret",
		"--concurrency", "4",
	)
	require.Equal(t, ExitOK, code, h.stderr.String())

	require.Len(t, h.replayer.passes, 2)
	require.Equal(t, 4, h.replayer.passes[1].Threads)
	require.Equal(t, "secret", h.replayer.passes[1].Password)
	require.FileExists(t, filepath.Join(out, model.WorkSubdir, model.PlaybackLog))
	records, err := filepath.Glob(filepath.Join(out, model.WorkSubdir, model.ReplayRunPrefix+"*"+model.ReplayRunExt))
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestReplayCommandRedactsPassword(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "separate value", args: []string{"--mysql-password", "hunter2"}},
		{name: "inline value", args: []string{"--mysql-password=hunter2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slowLog := writeSlowLog(t, "SELECT 1;\n")
			out := t.TempDir()

			h := newHarness()
			args := append([]string{"replay",
				"--target-host", "db2",
				"--slow-log", slowLog,
				"--output-dir", out,
				"--mysql-user", "bench",
				"--cold-run",
			}, tt.args...)
			require.Equal(t, ExitOK, h.run(args...), h.stderr.String())
			require.Equal(t, "hunter2", h.replayer.passes[0].Password)

			records, err := filepath.Glob(filepath.Join(out, model.WorkSubdir, model.ReplayRunPrefix+"*"+model.ReplayRunExt))
			require.NoError(t, err)
			require.Len(t, records, 1)
			data, err := os.ReadFile(records[0])
			require.NoError(t, err)
			require.NotContains(t, string(data), "hunter2")
			require.Contains(t, string(data), "REDACTED")

			h = newHarness()
			require.Equal(t, ExitOK, h.run("list", "--dir", out))
			require.Contains(t, h.stdout.String(), "--cold-run")
			require.NotContains(t, h.stdout.String(), "hunter2")
		})
	}
}

func TestRedactArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "separate value",
			args: []string{"mysqlwarm", "replay", "--mysql-password", "pw", "--concurrency", "4"},
			want: []string{"mysqlwarm", "replay", "--mysql-password", "REDACTED", "--concurrency", "4"},
		},
		{
			name: "inline value",
			args: []string{"mysqlwarm", "replay", "--mysql-password=pw"},
			want: []string{"mysqlwarm", "replay", "--mysql-password=REDACTED"},
		},
		{
			name: "single dash",
			args: []string{"mysqlwarm", "warm", "-mysql-password", "pw"},
			want: []string{"mysqlwarm", "warm", "-mysql-password", "REDACTED"},
		},
		{
			name: "trailing flag without value",
			args: []string{"mysqlwarm", "replay", "--mysql-password"},
			want: []string{"mysqlwarm", "replay", "--mysql-password"},
		},
		{
			name: "other flags untouched",
			args: []string{"mysqlwarm", "replay", "--mysql-user", "pw", "--schema=shop"},
			want: []string{"mysqlwarm", "replay", "--mysql-user", "pw", "--schema=shop"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := append([]string{}, tt.args...)
			require.Equal(t, tt.want, redactArgs(tt.args))
			require.Equal(t, orig, tt.args)
		})
	}
}

func TestReplayCommandPasswordFromEnv(t *testing.T) {
	t.Setenv(passwordEnvVar, "from-env")
	slowLog := writeSlowLog(t, "SELECT 1;\n")
	h := newHarness()

	code := h.run("replay",
		"--target-host", "db2",
		"--slow-log", slowLog,
		"--output-dir", t.TempDir(),
		"--mysql-user", "bench",
		"--cold-run",
	)
	require.Equal(t, ExitOK, code, h.stderr.String())
	require.Len(t, h.replayer.passes, 1)
	require.Equal(t, "from-env", h.replayer.passes[0].Password)
}

func TestReplayCommandFromConfigFile(t *testing.T) {
	slowLog := writeSlowLog(t, "SELECT 1;\n")
	out := t.TempDir()
	config := filepath.Join(t.TempDir(), "mysqlwarm.yaml")
	yaml := fmt.Sprintf("target-host: db2\nslow-log: %s\noutput-dir: %s\nmysql-user: bench\nmysql-password: secret\nconcurrency: 3\n", slowLog, out)
	require.NoError(t, os.WriteFile(config, []byte(yaml), 0644))

	h := newHarness()
	code := h.run("--config", config, "replay", "--cold-run")
	require.Equal(t, ExitOK, code, h.stderr.String())
	require.Len(t, h.replayer.passes, 1)
	require.Equal(t, 3, h.replayer.passes[0].Threads)
	require.Equal(t, "db2", h.replayer.passes[0].Host)
}

func TestReplayCommandConnectFailure(t *testing.T) {
	slowLog := writeSlowLog(t, "SELECT 1;\n")
	out := filepath.Join(t.TempDir(), "out")
	h := newHarness()
	h.checkErr = fmt.Errorf("%w: access denied", workload.ErrConnect)

	code := h.run("replay",
		"--target-host", "db2",
		"--slow-log", slowLog,
		"--output-dir", out,
		"--mysql-user", "bench",
		"--mysql-password", "wrong",
	)
	require.Equal(t, ExitMySQLConnect, code)
	require.Empty(t, h.replayer.passes)
	require.NoDirExists(t, out)
}

func TestWarmCommandConnectFailure(t *testing.T) {
	h := newHarness()
	h.checkErr = workload.ErrConnect

	code := h.run("warm",
		"--master-host", "db1",
		"--target-host", "db2",
		"--working-dir", t.TempDir(),
		"--mysql-user", "bench",
		"--mysql-password", "pw",
		"--relay-host", "capture-host",
	)
	require.Equal(t, ExitMySQLConnect, code)
	require.Zero(t, h.capturer.calls)
}

func TestSummaryCommand(t *testing.T) {
	out := t.TempDir()
	report := "# Overall\n\n# Profile\n# Rank Query ID\n#    1 0x1\n\n# Query 1\n"
	require.NoError(t, os.WriteFile(filepath.Join(out, "ptqd.db2.txt"), []byte(report), 0644))

	h := newHarness()
	require.Equal(t, ExitOK, h.run("summary", "--output-dir", out, "--target-host", "db2"))
	require.Equal(t, "# Profile\n# Rank Query ID\n#    1 0x1\n", h.stdout.String())

	h = newHarness()
	require.Equal(t, ExitError, h.run("summary", "--output-dir", out, "--target-host", "db3"))
}

func TestListCommand(t *testing.T) {
	slowLog := writeSlowLog(t, "SELECT 1;\n")
	out := t.TempDir()

	h := newHarness()
	require.Equal(t, ExitOK, h.run("replay",
		"--target-host", "db2",
		"--slow-log", slowLog,
		"--output-dir", out,
		"--mysql-user", "bench",
		"--mysql-password", "pw",
	))

	h = newHarness()
	require.Equal(t, ExitOK, h.run("list", "--dir", out))
	require.Contains(t, h.stdout.String(), "Replay runs (1 total)")
	require.Contains(t, h.stdout.String(), "Target: db2:3306 (user bench)")
	require.Contains(t, h.stdout.String(), "warm (3 warmup loops)")
	require.Contains(t, h.stdout.String(), "stdout: playback.log (7 B)")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "connect", err: fmt.Errorf("ping: %w", workload.ErrConnect), want: ExitMySQLConnect},
		{name: "empty log", err: workload.ErrEmptyLog, want: ExitInvalidArgs},
		{name: "port in use", err: workload.ErrPortInUse, want: ExitError},
		{name: "missing tool", err: workload.ErrMissingTool, want: ExitError},
		{name: "other", err: errors.New("boom"), want: ExitError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
