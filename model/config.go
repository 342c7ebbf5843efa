package model

import (
	"path/filepath"
	"strings"
	"time"
)

// AllSchemas is the schema value meaning "do not filter by schema".
const AllSchemas = "__all__"

const (
	DefaultRelayPort   = 7778
	DefaultMySQLPort   = 3306
	DefaultConcurrency = 6
	DefaultWarmupLoops = 3
	DefaultInterface   = "any"
)

// File names produced inside an output directory.
const (
	TCPFile       = "mysql.tcp"
	SlowLogFile   = "mysql.slow.log"
	WorkSubdir    = "tmp"
	PlaybackLog   = "playback.log"
	PlaybackErr   = "playback.err"
	ReplayRunPrefix = "replay-"
	ReplayRunExt    = ".json"
)

// ReplayRunFileName names the record of the replay run with the given ID.
func ReplayRunFileName(id string) string {
	return ReplayRunPrefix + id + ReplayRunExt
}

// IsReplayRunFile reports whether name looks like a replay run record.
func IsReplayRunFile(name string) bool {
	return strings.HasPrefix(name, ReplayRunPrefix) && strings.HasSuffix(name, ReplayRunExt)
}

// CaptureConfig describes one workload capture from a master host.
// It is built once from parsed flags and passed by value.
type CaptureConfig struct {
	// Master host, as understood by ssh (e.g. "db1" or "user@db1")
	MasterHost string
	// Capture duration on the master
	Seconds int
	// Local directory receiving mysql.tcp and mysql.slow.log
	OutputDir string
	// Local relay port the master streams to
	Port int
	// Schema filter, AllSchemas disables it
	Schema string
	// Address the master uses to reach the local relay
	RelayHost string
	// Network interface tcpdump listens on
	Interface string
	// MySQL server port on the master
	MySQLPort int
}

// TCPPath is the transient raw capture file.
func (c CaptureConfig) TCPPath() string {
	return filepath.Join(c.OutputDir, TCPFile)
}

// SlowLogPath is the digested query log.
func (c CaptureConfig) SlowLogPath() string {
	return filepath.Join(c.OutputDir, SlowLogFile)
}

// Filtered reports whether the capture is scoped to a single schema.
func (c CaptureConfig) Filtered() bool {
	return c.Schema != "" && c.Schema != AllSchemas
}

// ReplayConfig describes one benchmark or warmup run against a target.
type ReplayConfig struct {
	TargetHost  string
	MySQLPort   int
	SlowLog     string
	OutputDir   string
	User        string
	Password    string
	Concurrency int
	// ColdRun skips the cache warmup pass
	ColdRun bool
	// Number of loops of the warmup pass
	WarmupLoops int
	// Summary prints the digest section of the report after the run
	Summary bool
}

func (c ReplayConfig) WorkDir() string {
	return filepath.Join(c.OutputDir, WorkSubdir)
}

func (c ReplayConfig) LogPath() string {
	return filepath.Join(c.WorkDir(), PlaybackLog)
}

func (c ReplayConfig) ErrPath() string {
	return filepath.Join(c.WorkDir(), PlaybackErr)
}

// RunPath is where the record of the run with the given ID is written.
func (c ReplayConfig) RunPath(id string) string {
	return filepath.Join(c.WorkDir(), ReplayRunFileName(id))
}

// ReportPath is the query digest report consumed by the summary step.
func (c ReplayConfig) ReportPath() string {
	return filepath.Join(c.OutputDir, "ptqd."+c.TargetHost+".txt")
}

// WarmerConfig describes the continuous capture and replay loop.
// Capture.OutputDir and Replay.OutputDir both point at the working directory.
type WarmerConfig struct {
	Capture CaptureConfig
	Replay  ReplayConfig
	// Delay between successful cycles
	Interval time.Duration
	// Upper bound for the delay after consecutive failed cycles
	MaxBackoff time.Duration
}
