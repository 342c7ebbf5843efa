package workload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/perfgo/mysqlwarm/model"
	"github.com/rs/zerolog"
)

// DefaultRelayGrace bounds how long the relay may keep running once the
// remote capture returned.
const DefaultRelayGrace = 30 * time.Second

// Capture produces a slow-query log from a master host's live traffic.
type Capture struct {
	Logger     zerolog.Logger
	Capturer   PacketCapturer
	Relay      RelayTransport
	Digester   QueryLogDigester
	RelayGrace time.Duration
}

// Run captures cfg.Seconds of traffic from cfg.MasterHost into
// cfg.SlowLogPath(). The raw capture is removed on every path once the relay
// was started, and the relay is always released.
func (c *Capture) Run(ctx context.Context, cfg model.CaptureConfig) (*model.CaptureResult, error) {
	started := time.Now()

	if err := c.Digester.Check(); err != nil {
		return nil, err
	}
	if err := c.Relay.Check(); err != nil {
		return nil, err
	}
	if err := c.Capturer.Check(ctx, cfg.MasterHost); err != nil {
		return nil, err
	}

	pid, inUse, err := c.Relay.InUse(ctx, cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("failed to check relay port %d: %w", cfg.Port, err)
	}
	if inUse {
		return nil, fmt.Errorf("%w: port %d is held by pid %d", ErrPortInUse, cfg.Port, pid)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	tcpPath := cfg.TCPPath()
	relay, err := c.Relay.Listen(ctx, cfg.Port, tcpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to start relay on port %d: %w", cfg.Port, err)
	}
	defer func() {
		if err := relay.Close(); err != nil {
			c.Logger.Debug().Err(err).Msg("Failed to close relay")
		}
		if err := os.Remove(tcpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.Logger.Warn().Err(err).Str("file", tcpPath).Msg("Failed to remove raw capture")
		}
	}()

	if err := relay.Ready(ctx); err != nil {
		return nil, fmt.Errorf("relay on port %d did not become ready: %w", cfg.Port, err)
	}

	c.Logger.Debug().Int("port", cfg.Port).Int("pid", relay.PID()).Msg("Relay is listening")

	if err := c.Capturer.Capture(ctx, cfg); err != nil {
		return nil, err
	}

	grace := c.RelayGrace
	if grace <= 0 {
		grace = DefaultRelayGrace
	}
	waitCtx, cancel := context.WithTimeout(ctx, grace)
	err = relay.Wait(waitCtx)
	cancel()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		c.Logger.Warn().Err(err).Msg("Relay finished with failure")
	}
	if err := relay.Close(); err != nil {
		return nil, fmt.Errorf("failed to close raw capture: %w", err)
	}

	if info, err := os.Stat(tcpPath); err == nil {
		c.Logger.Info().
			Str("file", tcpPath).
			Int64("size_bytes", info.Size()).
			Msg("Raw capture received")
	}

	slowLog := cfg.SlowLogPath()
	if err := c.Digester.Digest(ctx, tcpPath, slowLog, cfg.Schema); err != nil {
		return nil, fmt.Errorf("failed to digest capture: %w", err)
	}

	result := &model.CaptureResult{
		MasterHost: cfg.MasterHost,
		Schema:     cfg.Schema,
		SlowLog:    slowLog,
		Started:    started,
		Seconds:    cfg.Seconds,
	}
	if info, err := os.Stat(slowLog); err == nil {
		result.Bytes = info.Size()
	}

	c.Logger.Info().
		Str("slow_log", slowLog).
		Int64("size_bytes", result.Bytes).
		Str("schema", cfg.Schema).
		Dur("took", time.Since(started)).
		Msg("Slow log created")

	return result, nil
}
