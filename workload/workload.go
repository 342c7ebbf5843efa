// Package workload orchestrates capturing a MySQL workload from a master
// host and replaying it against a target. Every external tool is reached
// through a narrow collaborator interface.
package workload

import (
	"context"
	"errors"
	"io"

	"github.com/perfgo/mysqlwarm/model"
)

var (
	// ErrPortInUse is returned when the relay port already has a listener.
	ErrPortInUse = errors.New("relay port already in use")
	// ErrMissingTool is returned when a required binary is not installed.
	ErrMissingTool = errors.New("required binary not found")
	// ErrUnreachable is returned when a host cannot be reached over SSH.
	ErrUnreachable = errors.New("host unreachable")
	// ErrConnect is returned when the target MySQL server rejects the
	// connection or the credentials.
	ErrConnect = errors.New("cannot connect to MySQL")
	// ErrEmptyLog is returned when a slow log is absent or empty.
	ErrEmptyLog = errors.New("slow log absent or empty")
)

// PacketCapturer runs the packet capture on a remote master and streams it
// to the local relay.
type PacketCapturer interface {
	// Check verifies the master is reachable and has the capture tools.
	Check(ctx context.Context, host string) error
	// Capture blocks for the capture duration.
	Capture(ctx context.Context, cfg model.CaptureConfig) error
}

// Relay is a running local relay listener.
type Relay interface {
	PID() int
	// Ready blocks until the relay accepts connections.
	Ready(ctx context.Context) error
	// Wait blocks until the relay has received the whole stream.
	Wait(ctx context.Context) error
	// Close releases the relay, killing it if needed.
	Close() error
}

// RelayTransport starts local relays.
type RelayTransport interface {
	Check() error
	// InUse reports whether port already has a listener and who owns it.
	InUse(ctx context.Context, port int) (pid int, inUse bool, err error)
	Listen(ctx context.Context, port int, path string) (Relay, error)
}

// QueryLogDigester turns a raw capture into a slow-query log.
type QueryLogDigester interface {
	Check() error
	// Digest reads in and writes out, keeping SELECT statements of schema
	// (model.AllSchemas for every schema).
	Digest(ctx context.Context, in, out, schema string) error
}

// Pass is one invocation of the replay engine.
type Pass struct {
	Host     string
	Port     int
	User     string
	Password string
	SlowLog  string
	Threads  int
	// Loops > 1 replays the log several times
	Loops int
	// PreserveQueryTime keeps the logged timing between queries
	PreserveQueryTime bool
	Stdout            io.Writer
	Stderr            io.Writer
}

// WorkloadReplayer replays a slow-query log against a target.
type WorkloadReplayer interface {
	Check() error
	// Replay returns the replay engine's exit code.
	Replay(ctx context.Context, pass Pass) (int, error)
}

// ConnectivityChecker verifies a MySQL target accepts the given credentials.
type ConnectivityChecker interface {
	Ping(ctx context.Context, host string, port int, user, password string) error
}
