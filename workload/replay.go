package workload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/perfgo/mysqlwarm/model"
	"github.com/rs/zerolog"
)

// Replay executes a slow-query log against a target host.
type Replay struct {
	Logger   zerolog.Logger
	Checker  ConnectivityChecker
	Replayer WorkloadReplayer
	// Out receives the summary section when the run asks for it
	Out io.Writer
	// Args are recorded in the run record
	Args []string
}

// ValidateSlowLog checks that path names a non-empty regular file.
func ValidateSlowLog(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEmptyLog, path, err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyLog, path)
	}
	return nil
}

// Run replays cfg.SlowLog against cfg.TargetHost. Unless cfg.ColdRun is set a
// warmup pass runs first with its output discarded; the measured pass then
// preserves the logged query timing and writes playback.log/.err. The run
// record is written to cfg.RunPath(run.ID).
func (r *Replay) Run(ctx context.Context, cfg model.ReplayConfig) (*model.ReplayRun, error) {
	startTime := time.Now()

	if err := ValidateSlowLog(cfg.SlowLog); err != nil {
		return nil, err
	}
	if err := r.Replayer.Check(); err != nil {
		return nil, err
	}
	if err := r.Checker.Ping(ctx, cfg.TargetHost, cfg.MySQLPort, cfg.User, cfg.Password); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.WorkDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}

	run := &model.ReplayRun{
		ID:        uuid.NewString(),
		Timestamp: startTime,
		Args:      r.Args,
		Target: &model.Target{
			Host: cfg.TargetHost,
			Port: cfg.MySQLPort,
			User: cfg.User,
		},
		SlowLog:     cfg.SlowLog,
		Concurrency: cfg.Concurrency,
		ColdRun:     cfg.ColdRun,
		ExitCode:    -1,
	}

	pass := Pass{
		Host:     cfg.TargetHost,
		Port:     cfg.MySQLPort,
		User:     cfg.User,
		Password: cfg.Password,
		SlowLog:  cfg.SlowLog,
		Threads:  cfg.Concurrency,
	}

	if !cfg.ColdRun {
		warmup := pass
		warmup.Loops = cfg.WarmupLoops
		if warmup.Loops < 1 {
			warmup.Loops = model.DefaultWarmupLoops
		}
		run.WarmupLoops = warmup.Loops

		r.Logger.Info().
			Str("host", cfg.TargetHost).
			Int("loops", warmup.Loops).
			Msg("Warming up target cache")

		code, err := r.Replayer.Replay(ctx, warmup)
		if err != nil {
			return nil, fmt.Errorf("failed to run warmup pass: %w", err)
		}
		if code != 0 {
			r.Logger.Warn().Int("exit_code", code).Msg("Warmup pass exited with failure")
		}
	} else {
		r.Logger.Info().Msg("Cold run requested, skipping warmup")
	}

	stdout, err := os.Create(cfg.LogPath())
	if err != nil {
		return nil, fmt.Errorf("failed to create playback log: %w", err)
	}
	defer stdout.Close()
	stderr, err := os.Create(cfg.ErrPath())
	if err != nil {
		return nil, fmt.Errorf("failed to create playback error log: %w", err)
	}
	defer stderr.Close()

	measured := pass
	measured.PreserveQueryTime = true
	measured.Stdout = stdout
	measured.Stderr = stderr

	r.Logger.Info().
		Str("host", cfg.TargetHost).
		Int("concurrency", cfg.Concurrency).
		Str("slow_log", cfg.SlowLog).
		Msg("Replaying workload")

	code, err := r.Replayer.Replay(ctx, measured)
	if err != nil {
		return nil, fmt.Errorf("failed to run replay pass: %w", err)
	}
	run.ExitCode = code
	run.Duration = time.Since(startTime)

	for _, a := range []struct {
		t    model.ArtifactType
		file *os.File
	}{
		{model.ArtifactTypePlaybackLog, stdout},
		{model.ArtifactTypePlaybackErr, stderr},
	} {
		if info, err := a.file.Stat(); err == nil {
			run.Artifacts = append(run.Artifacts, model.Artifact{
				Type: a.t,
				Size: uint64(info.Size()),
				File: filepath.Base(a.file.Name()),
			})
		}
	}

	if err := writeRun(cfg.RunPath(run.ID), run); err != nil {
		r.Logger.Warn().Err(err).Msg("Failed to record replay run")
	}

	r.Logger.Info().
		Str("id", run.ID).
		Int("exit_code", run.ExitCode).
		Dur("duration", run.Duration).
		Str("output", cfg.LogPath()).
		Msg("Replay finished")

	if cfg.Summary {
		if err := r.printSummary(cfg.ReportPath()); err != nil {
			r.Logger.Warn().Err(err).Str("report", cfg.ReportPath()).Msg("Failed to print summary")
		}
	}

	return run, nil
}

func (r *Replay) printSummary(path string) error {
	out := r.Out
	if out == nil {
		out = os.Stdout
	}
	return PrintSummary(path, out)
}

func writeRun(path string, run *model.ReplayRun) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal replay run: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write replay run: %w", err)
	}
	return nil
}
