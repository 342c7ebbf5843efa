package tcpdump

// tcpdump.go contains utilities for building the remote capture pipeline
// (timeout + tcpdump piped into netcat) and running it over SSH.

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/perfgo/mysqlwarm/cli/ssh"
	"github.com/perfgo/mysqlwarm/model"
	"github.com/perfgo/mysqlwarm/workload"
	"github.com/rs/zerolog"
)

// RemoteBinaries must be present on the master host.
var RemoteBinaries = []string{"timeout", "tcpdump", "nc"}

// Grace is added to the capture duration to bound the whole SSH command,
// since only tcpdump itself runs under timeout.
const Grace = 30 * time.Second

// Options contains options for the remote capture pipeline.
type Options struct {
	Seconds   int    // Capture duration
	Interface string // Interface to listen on
	MySQLPort int    // MySQL server port
	RelayHost string // Host running the local relay
	RelayPort int    // Port of the local relay
}

// BuildFilter returns the packet filter for MySQL traffic on port. Both
// directions are captured: the digester rebuilds queries from the client
// packets and takes timings from the responses.
func BuildFilter(mysqlPort int) string {
	return fmt.Sprintf("tcp port %d", mysqlPort)
}

// BuildArgs builds the timeout-wrapped tcpdump arguments.
func BuildArgs(opts Options) []string {
	iface := opts.Interface
	if iface == "" {
		iface = model.DefaultInterface
	}
	return []string{
		"timeout", strconv.Itoa(opts.Seconds),
		"tcpdump",
		"-i", iface,
		"-s", "65535",
		"-x", "-nn", "-q", "-tttt",
		BuildFilter(opts.MySQLPort),
	}
}

// BuildCommand builds the remote shell command streaming the capture to
// the relay.
func BuildCommand(opts Options) string {
	capture := quoteAll(BuildArgs(opts))
	send := quoteAll([]string{"nc", opts.RelayHost, strconv.Itoa(opts.RelayPort)})
	return capture + " 2>/dev/null | " + send
}

func quoteAll(args []string) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, shellescape.Quote(arg))
	}
	return strings.Join(parts, " ")
}

// Capturer runs tcpdump on a master host over SSH.
type Capturer struct {
	logger  zerolog.Logger
	sshOpts []ssh.SSHOption
	clients map[string]*ssh.Client
}

func New(logger zerolog.Logger, opts ...ssh.SSHOption) *Capturer {
	return &Capturer{
		logger:  logger,
		sshOpts: opts,
		clients: make(map[string]*ssh.Client),
	}
}

func (c *Capturer) client(ctx context.Context, host string) (*ssh.Client, error) {
	if cl, ok := c.clients[host]; ok {
		return cl, nil
	}
	cl, err := ssh.New(ctx, c.logger, host, c.sshOpts...)
	if err != nil {
		return nil, err
	}
	c.clients[host] = cl
	return cl, nil
}

// Check verifies the master is reachable over SSH and has the capture
// binaries installed.
func (c *Capturer) Check(ctx context.Context, host string) error {
	cl, err := c.client(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", workload.ErrUnreachable, host, err)
	}
	missing, err := cl.MissingBinaries(ctx, RemoteBinaries...)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", workload.ErrUnreachable, host, err)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w on %s: %s", workload.ErrMissingTool, host, strings.Join(missing, ", "))
	}
	return nil
}

// Capture runs the capture pipeline on the master. The pipeline's exit
// status is logged, not returned: a capture that produced no data shows up
// as an empty slow log downstream.
func (c *Capturer) Capture(ctx context.Context, cfg model.CaptureConfig) error {
	cl, err := c.client(ctx, cfg.MasterHost)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", workload.ErrUnreachable, cfg.MasterHost, err)
	}

	command := BuildCommand(Options{
		Seconds:   cfg.Seconds,
		Interface: cfg.Interface,
		MySQLPort: cfg.MySQLPort,
		RelayHost: cfg.RelayHost,
		RelayPort: cfg.Port,
	})

	c.logger.Info().
		Str("host", cfg.MasterHost).
		Int("seconds", cfg.Seconds).
		Str("relay", fmt.Sprintf("%s:%d", cfg.RelayHost, cfg.Port)).
		Msg("Capturing MySQL traffic on master")

	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Seconds)*time.Second+Grace)
	defer cancel()

	if err := cl.Run(ctx, command); err != nil {
		if ctx.Err() != nil && ctx.Err() != context.DeadlineExceeded {
			return ctx.Err()
		}
		c.logger.Warn().Err(err).Str("host", cfg.MasterHost).Msg("Remote capture exited with failure")
	}
	return nil
}

// Close closes all SSH connections.
func (c *Capturer) Close() {
	for host, cl := range c.clients {
		cl.Close()
		delete(c.clients, host)
	}
}
