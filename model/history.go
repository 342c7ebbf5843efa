package model

import "time"

// ReplayRun represents a single replay execution against a target host.
// It is written once to <output_dir>/tmp/replay-<id>.json after the measured pass.
type ReplayRun struct {
	// Unique ID for this run (UUID)
	ID string `json:"id"`
	// Timestamp when the run started
	Timestamp time.Time `json:"timestamp"`
	// Duration of the whole run, warmup pass included
	Duration time.Duration `json:"duration"`
	// Command-line arguments (including command name)
	Args []string `json:"args,omitempty"`
	// Target host the workload was replayed against
	Target *Target `json:"target"`
	// Slow-query log that was replayed
	SlowLog string `json:"slow_log"`
	// Number of replay worker threads
	Concurrency int `json:"concurrency"`
	// Whether the warmup pass was skipped
	ColdRun bool `json:"cold_run"`
	// Number of loops of the warmup pass (0 when cold)
	WarmupLoops int `json:"warmup_loops,omitempty"`
	// Exit code of the measured replay pass, -1 when it did not start
	ExitCode int `json:"exit_code"`
	// Artifacts generated during this run
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Target contains information about the replay target
type Target struct {
	Host string `json:"host"`
	Port int    `json:"port,omitempty"`
	User string `json:"user,omitempty"`
}

// CaptureResult describes a materialised workload capture.
type CaptureResult struct {
	MasterHost string    `json:"master_host"`
	Schema     string    `json:"schema"`
	SlowLog    string    `json:"slow_log"`
	Bytes      int64     `json:"bytes"`
	Started    time.Time `json:"started"`
	Seconds    int       `json:"seconds"`
}

// ArtifactType identifies the type of artifact
type ArtifactType uint8

const (
	ArtifactTypePlaybackLog ArtifactType = iota
	ArtifactTypePlaybackErr
)

func (t ArtifactType) String() string {
	switch t {
	case ArtifactTypePlaybackLog:
		return "stdout"
	case ArtifactTypePlaybackErr:
		return "stderr"
	}
	return "unknown"
}

// Artifact represents a file generated during execution
type Artifact struct {
	Type ArtifactType `json:"type"`
	Size uint64       `json:"size"`
	File string       `json:"file"` // relative to run dir
}
