package workload

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/perfgo/mysqlwarm/model"
	"github.com/rs/zerolog"
)

const (
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 5 * time.Minute
)

// Warmer keeps a target's cache warm by repeatedly capturing a fresh slice
// of the master's workload and replaying it cold against the target.
type Warmer struct {
	Logger  zerolog.Logger
	Capture *Capture
	Replay  *Replay
	Checker ConnectivityChecker

	// BackOff paces cycles after failures; nil uses an exponential backoff
	// bounded by WarmerConfig.MaxBackoff.
	BackOff backoff.BackOff
	// AfterCycle, when set, is called once a cycle has been cleaned up.
	AfterCycle func(cycle int, err error)

	sleep func(ctx context.Context, d time.Duration) error
}

func newExponentialBackOff(maxInterval time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = DefaultInitialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	if maxInterval <= 0 {
		maxInterval = DefaultMaxBackoff
	}
	b.MaxInterval = maxInterval
	b.Reset()
	return b
}

// Run loops until ctx is cancelled. Only the initial connectivity check
// can make it return an error; failed cycles are retried with backoff.
func (w *Warmer) Run(ctx context.Context, cfg model.WarmerConfig) error {
	rc := cfg.Replay
	if err := w.Checker.Ping(ctx, rc.TargetHost, rc.MySQLPort, rc.User, rc.Password); err != nil {
		return err
	}

	b := w.BackOff
	if b == nil {
		b = newExponentialBackOff(cfg.MaxBackoff)
	}
	sleep := w.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	failures := 0
	for cycle := 1; ; cycle++ {
		if ctx.Err() != nil {
			break
		}

		w.Logger.Info().Int("cycle", cycle).Str("master", cfg.Capture.MasterHost).Str("target", rc.TargetHost).Msg("Starting warmup cycle")

		err := w.cycle(ctx, cfg)
		if w.AfterCycle != nil {
			w.AfterCycle(cycle, err)
		}
		if ctx.Err() != nil {
			break
		}

		delay := cfg.Interval
		if err != nil {
			failures++
			delay = b.NextBackOff()
			w.Logger.Warn().
				Err(err).
				Int("cycle", cycle).
				Int("consecutive_failures", failures).
				Dur("retry_in", delay).
				Msg("Warmup cycle failed")
		} else {
			failures = 0
			b.Reset()
		}

		if delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				break
			}
		}
	}

	w.Logger.Info().Msg("Warmer stopped")
	return nil
}

// cycle captures and replays once. The slow log never outlives the cycle.
func (w *Warmer) cycle(ctx context.Context, cfg model.WarmerConfig) error {
	slowLog := cfg.Capture.SlowLogPath()
	defer func() {
		if err := os.Remove(slowLog); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.Logger.Warn().Err(err).Str("file", slowLog).Msg("Failed to remove slow log")
		}
	}()

	result, err := w.Capture.Run(ctx, cfg.Capture)
	if err != nil {
		return err
	}

	rc := cfg.Replay
	rc.SlowLog = result.SlowLog
	rc.ColdRun = true
	_, err = w.Replay.Run(ctx, rc)
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
