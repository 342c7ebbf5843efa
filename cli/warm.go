package cli

import (
	"github.com/perfgo/mysqlwarm/model"
	"github.com/perfgo/mysqlwarm/workload"
	"github.com/urfave/cli/v2"
)

func (a *App) warmCommand() *cli.Command {
	return &cli.Command{
		Name:   "warm",
		Usage:  "Continuously capture the master workload and replay it to keep a target warm",
		Action: a.warm,
		Description: `Loops until interrupted: capture the master's traffic into the working
directory, replay it cold against the target, delete the slow log and start
over. Failed cycles are retried with an exponential backoff bounded by
--max-backoff.`,
		Flags: []cli.Flag{
			masterHostFlag(),
			targetHostFlag(),
			outputDirFlag("working-dir"),
			mysqlUserFlag(),
			mysqlPasswordFlag(),
			schemaFlag(),
			tcpdumpSecondsFlag(defaultWarmSeconds),
			concurrencyFlag(),
			relayPortFlag(),
			relayHostFlag(),
			interfaceFlag(),
			mysqlPortFlag(),
			intervalFlag(),
			maxBackoffFlag(),
			sshIdentityFlag(),
		},
	}
}

func (a *App) warm(ctx *cli.Context) error {
	cfg, err := warmerConfig(ctx)
	if err != nil {
		return err
	}

	tb := a.toolbox(a.logger, ctx)
	defer tb.Close()

	w := &workload.Warmer{
		Logger: a.logger,
		Capture: &workload.Capture{
			Logger:   a.logger,
			Capturer: tb.Capturer,
			Relay:    tb.Relay,
			Digester: tb.Digester,
		},
		Replay: &workload.Replay{
			Logger:   a.logger,
			Checker:  tb.Checker,
			Replayer: tb.Replayer,
			Args:     a.args,
		},
		Checker: tb.Checker,
	}

	a.logger.Info().
		Str("master", cfg.Capture.MasterHost).
		Str("target", cfg.Replay.TargetHost).
		Str("working_dir", cfg.Capture.OutputDir).
		Msg("Starting warmer")

	if err := w.Run(ctx.Context, cfg); err != nil {
		return a.fail(err, "Warmer failed")
	}
	return nil
}

func warmerConfig(ctx *cli.Context) (model.WarmerConfig, error) {
	var cfg model.WarmerConfig

	if err := requireFlags(ctx, "master-host", "target-host", "working-dir", "mysql-user"); err != nil {
		return cfg, err
	}
	if err := requirePassword(ctx); err != nil {
		return cfg, err
	}

	capture, err := captureConfig(ctx, "working-dir")
	if err != nil {
		return cfg, err
	}

	replay := model.ReplayConfig{
		TargetHost:  ctx.String("target-host"),
		MySQLPort:   ctx.Int("mysql-port"),
		SlowLog:     capture.SlowLogPath(),
		OutputDir:   capture.OutputDir,
		User:        ctx.String("mysql-user"),
		Password:    ctx.String("mysql-password"),
		Concurrency: ctx.Int("concurrency"),
		ColdRun:     true,
	}
	if err := validateReplayFlags(ctx, replay); err != nil {
		return cfg, err
	}

	if ctx.Duration("interval") < 0 {
		return cfg, usageError(ctx, "--interval must not be negative")
	}
	if ctx.Duration("max-backoff") <= 0 {
		return cfg, usageError(ctx, "--max-backoff must be positive")
	}

	cfg = model.WarmerConfig{
		Capture:    capture,
		Replay:     replay,
		Interval:   ctx.Duration("interval"),
		MaxBackoff: ctx.Duration("max-backoff"),
	}
	return cfg, nil
}
