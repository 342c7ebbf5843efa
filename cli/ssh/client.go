package ssh

// Package ssh provides SSH multiplexing and remote command execution
// functionality for mysqlwarm. It manages persistent SSH connections
// to master hosts and runs capture commands on them.

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"
)

// Client manages an SSH connection to a specific remote host.
type Client struct {
	logger         zerolog.Logger
	host           string
	controlPath    string
	identityFile   string
	knownHostsFile string
	proxyCommand   string
	extraOptions   []string
}

// SSHOption is a function that configures an SSH client.
type SSHOption func(*Client)

// WithIdentityFile sets the identity file (private key) to use for authentication.
func WithIdentityFile(path string) SSHOption {
	return func(c *Client) {
		c.identityFile = path
	}
}

// WithKnownHostsFile sets the known hosts file to use for host verification.
func WithKnownHostsFile(path string) SSHOption {
	return func(c *Client) {
		c.knownHostsFile = path
	}
}

// WithProxyCommand sets a proxy command for the SSH connection.
func WithProxyCommand(command string) SSHOption {
	return func(c *Client) {
		c.proxyCommand = command
	}
}

// WithExtraOptions adds extra SSH options to the connection.
func WithExtraOptions(options ...string) SSHOption {
	return func(c *Client) {
		c.extraOptions = append(c.extraOptions, options...)
	}
}

// New creates a new SSH client and establishes a multiplexed connection to the host.
// A failure here means the host is not reachable over SSH.
func New(ctx context.Context, logger zerolog.Logger, host string, opts ...SSHOption) (*Client, error) {
	c := &Client{
		logger: logger,
		host:   host,
	}

	for _, opt := range opts {
		opt(c)
	}

	controlPath, err := c.setupMultiplexing(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to setup SSH multiplexing: %w", err)
	}
	c.controlPath = controlPath

	return c, nil
}

// Close closes the SSH connection and cleans up the control socket.
func (c *Client) Close() {
	c.logger.Debug().Str("controlPath", c.controlPath).Msg("Cleaning up SSH multiplexing")

	args := []string{
		"-o", fmt.Sprintf("ControlPath=%s", c.controlPath),
		"-O", "exit",
		c.host,
	}
	cmd := exec.Command("ssh", args...)
	_ = cmd.Run() // Ignore errors on cleanup

	_ = os.Remove(c.controlPath)
}

// RunOption configures where the output of Run goes.
type RunOption func(*runOptions)

type runOptions struct {
	stdout io.Writer
	stderr io.Writer
}

// WithStdOut streams the remote standard output to w.
func WithStdOut(w io.Writer) RunOption {
	return func(o *runOptions) {
		o.stdout = w
	}
}

// WithStdErr streams the remote standard error to w.
func WithStdErr(w io.Writer) RunOption {
	return func(o *runOptions) {
		o.stderr = w
	}
}

// Run executes a command on the remote host, streaming its output to the
// configured writers. Standard error is always included in the returned error.
func (c *Client) Run(ctx context.Context, command string, opts ...RunOption) error {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	args := c.buildSSHArgs()
	args = append(args, c.host, command)

	cmd := exec.CommandContext(ctx, "ssh", args...)

	var stderr bytes.Buffer
	cmd.Stdout = o.stdout
	if o.stderr != nil {
		cmd.Stderr = io.MultiWriter(o.stderr, &stderr)
	} else {
		cmd.Stderr = &stderr
	}

	c.logger.Debug().
		Str("host", c.host).
		Str("command", command).
		Msg("Running remote command")

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("command failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// RunCommand executes a command on the remote host and returns the output.
func (c *Client) RunCommand(ctx context.Context, command string) (string, error) {
	var stdout bytes.Buffer
	if err := c.Run(ctx, command, WithStdOut(&stdout)); err != nil {
		return "", err
	}
	return stdout.String(), nil
}

// MissingBinaries returns the names from binaries that are not on the
// remote host's PATH.
func (c *Client) MissingBinaries(ctx context.Context, binaries ...string) ([]string, error) {
	if len(binaries) == 0 {
		return nil, nil
	}
	output, err := c.RunCommand(ctx, missingBinariesCommand(binaries))
	if err != nil {
		return nil, fmt.Errorf("failed to look up remote binaries: %w", err)
	}
	return parseMissing(output), nil
}

func missingBinariesCommand(binaries []string) string {
	quoted := make([]string, 0, len(binaries))
	for _, b := range binaries {
		quoted = append(quoted, shellescape.Quote(b))
	}
	return fmt.Sprintf(`for b in %s; do command -v "$b" >/dev/null 2>&1 || echo "$b"; done`, strings.Join(quoted, " "))
}

func parseMissing(output string) []string {
	var missing []string
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			missing = append(missing, line)
		}
	}
	return missing
}

// buildSSHArgs constructs the SSH arguments with all configured options.
func (c *Client) buildSSHArgs() []string {
	args := []string{}

	// Add control path options if using multiplexing
	if c.controlPath != "" {
		args = append(args,
			"-o", fmt.Sprintf("ControlPath=%s", c.controlPath),
			"-o", "ControlMaster=no",
		)
	}

	return append(args, c.authArgs()...)
}

func (c *Client) authArgs() []string {
	var args []string
	if c.identityFile != "" {
		args = append(args, "-i", c.identityFile)
	}
	if c.knownHostsFile != "" {
		args = append(args, "-o", fmt.Sprintf("UserKnownHostsFile=%s", c.knownHostsFile))
	}
	if c.proxyCommand != "" {
		args = append(args, "-o", fmt.Sprintf("ProxyCommand=%s", c.proxyCommand))
	}
	for _, opt := range c.extraOptions {
		args = append(args, "-o", opt)
	}
	return args
}

// Host returns the remote host this client is connected to.
func (c *Client) Host() string {
	return c.host
}

// ControlPath returns the SSH control socket path.
func (c *Client) ControlPath() string {
	return c.controlPath
}

// setupMultiplexing establishes an SSH master connection for multiplexing.
func (c *Client) setupMultiplexing(ctx context.Context) (string, error) {
	controlDir := getControlSocketDir()

	if err := os.MkdirAll(controlDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create control directory: %w", err)
	}

	// Unix domain sockets have a path length limit (typically 104-108 chars)
	hash := sha256.Sum256([]byte(c.host))
	hostHash := hex.EncodeToString(hash[:])[:12]
	controlPath := filepath.Join(controlDir, fmt.Sprintf("ssh-%s", hostHash))

	c.logger.Debug().
		Str("host", c.host).
		Str("controlPath", controlPath).
		Int("pathLength", len(controlPath)).
		Msg("Setting up SSH multiplexing")

	args := []string{
		"-o", "ControlMaster=auto",
		"-o", fmt.Sprintf("ControlPath=%s", controlPath),
		"-o", "ControlPersist=30s",
		"-o", "ConnectTimeout=10",
		"-o", "ServerAliveInterval=15",
		"-o", "ServerAliveCountMax=3",
		"-o", "BatchMode=yes",
	}
	args = append(args, c.authArgs()...)
	args = append(args,
		"-f", // Run in background
		"-N", // Don't execute a remote command
		c.host,
	)

	cmd := exec.CommandContext(ctx, "ssh", args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to establish SSH master connection: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	c.logger.Debug().Str("host", c.host).Msg("SSH master connection established")
	return controlPath, nil
}

// getControlSocketDir returns the directory to use for SSH control sockets.
func getControlSocketDir() string {
	// Keep path short to avoid Unix socket path length limits
	if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
		return filepath.Join(xdgRuntime, "mysqlwarm")
	}

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		if home := os.Getenv("HOME"); home != "" {
			configHome = filepath.Join(home, ".config")
		}
	}

	if configHome != "" {
		return filepath.Join(configHome, "mysqlwarm")
	}

	return filepath.Join(os.TempDir(), "mysqlwarm")
}
