package relay

// Package relay runs the local end of the capture relay: a netcat process
// listening on a TCP port and writing every received byte to a file.

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/perfgo/mysqlwarm/cli/wait"
	"github.com/perfgo/mysqlwarm/workload"
	"github.com/rs/zerolog"
	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

const (
	// DefaultBinary is the relay executable looked up on PATH.
	DefaultBinary = "nc"

	ReadyInterval = 200 * time.Millisecond
	ReadyTimeout  = 10 * time.Second
)

// ErrExited is returned by Ready when the relay died before listening.
var ErrExited = errors.New("relay exited before listening")

// Netcat starts netcat listeners.
type Netcat struct {
	logger zerolog.Logger
	binary string
}

// New returns a Netcat using the given binary, DefaultBinary when empty.
func New(logger zerolog.Logger, binary string) *Netcat {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Netcat{logger: logger, binary: binary}
}

// Check verifies the relay binary is available locally.
func (n *Netcat) Check() error {
	if _, err := exec.LookPath(n.binary); err != nil {
		return fmt.Errorf("%w: %s: %v", workload.ErrMissingTool, n.binary, err)
	}
	return nil
}

// InUse reports whether some process already listens on port, and its PID
// when it can be determined.
func (n *Netcat) InUse(ctx context.Context, port int) (int, bool, error) {
	return ListeningPID(ctx, port)
}

// BuildListenArgs builds the netcat arguments for listening on port.
func BuildListenArgs(port int) []string {
	return []string{"-l", strconv.Itoa(port)}
}

// Listen starts netcat on port, writing received bytes to path.
func (n *Netcat) Listen(ctx context.Context, port int, path string) (workload.Relay, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}

	cmd := exec.Command(n.binary, BuildListenArgs(port)...)
	cmd.Stdout = f

	p, err := start(n.logger, cmd, f, port)
	if err != nil {
		f.Close()
		return nil, err
	}

	n.logger.Info().
		Int("port", port).
		Int("pid", p.PID()).
		Str("output", path).
		Msg("Relay started")
	return p, nil
}

// ListeningPID looks for a TCP socket in LISTEN state on port.
func ListeningPID(ctx context.Context, port int) (int, bool, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return 0, false, fmt.Errorf("failed to list TCP sockets: %w", err)
	}
	for _, c := range conns {
		if c.Status == "LISTEN" && c.Laddr.Port == uint32(port) {
			return int(c.Pid), true, nil
		}
	}
	return 0, false, nil
}

// Kill terminates the process with the given PID.
func Kill(ctx context.Context, pid int) error {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := p.KillWithContext(ctx); err != nil {
		return fmt.Errorf("failed to kill process %d: %w", pid, err)
	}
	return nil
}

// Process is a running relay.
type Process struct {
	logger zerolog.Logger
	cmd    *exec.Cmd
	file   *os.File
	port   int

	done    chan struct{}
	waitErr error

	closeOnce sync.Once
}

func start(logger zerolog.Logger, cmd *exec.Cmd, file *os.File, port int) (*Process, error) {
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start relay: %w", err)
	}
	p := &Process{
		logger: logger,
		cmd:    cmd,
		file:   file,
		port:   port,
		done:   make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// PID returns the relay's process ID.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

func (p *Process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Ready polls until the relay port is listening.
func (p *Process) Ready(ctx context.Context) error {
	return wait.Poll(ctx, ReadyInterval, ReadyTimeout, func(ctx context.Context) (bool, error) {
		if p.exited() {
			return false, fmt.Errorf("%w: %v", ErrExited, p.waitErr)
		}
		_, listening, err := ListeningPID(ctx, p.port)
		if err != nil {
			return false, err
		}
		return listening, nil
	})
}

// Wait blocks until the relay exits on its own or ctx is done. In the
// latter case the relay is killed.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.waitErr
	case <-ctx.Done():
		p.logger.Warn().Int("pid", p.PID()).Msg("Relay did not finish in time, killing it")
		if err := p.Close(); err != nil {
			p.logger.Debug().Err(err).Int("pid", p.PID()).Msg("Failed to close relay")
		}
		return ctx.Err()
	}
}

// Close kills the relay if it is still running and closes the capture file.
// It is safe to call more than once.
func (p *Process) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if !p.exited() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if kerr := Kill(ctx, p.PID()); kerr != nil {
				p.logger.Debug().Err(kerr).Int("pid", p.PID()).Msg("Failed to kill relay by PID")
				_ = p.cmd.Process.Kill()
			}
			<-p.done
			p.logger.Debug().Int("pid", p.PID()).Msg("Relay killed")
		}
		err = p.file.Close()
	})
	return err
}
