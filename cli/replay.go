package cli

import (
	"github.com/perfgo/mysqlwarm/model"
	"github.com/perfgo/mysqlwarm/workload"
	"github.com/urfave/cli/v2"
)

func (a *App) replayCommand() *cli.Command {
	return &cli.Command{
		Name:   "replay",
		Usage:  "Replay a slow-query log against a MySQL target",
		Action: a.replay,
		Flags: []cli.Flag{
			targetHostFlag(),
			slowLogFlag(),
			outputDirFlag("output-dir"),
			mysqlUserFlag(),
			mysqlPasswordFlag(),
			concurrencyFlag(),
			coldRunFlag(),
			mysqlPortFlag(),
			warmupLoopsFlag(),
			summaryFlag(),
		},
	}
}

func (a *App) replay(ctx *cli.Context) error {
	cfg, err := replayConfig(ctx)
	if err != nil {
		return err
	}

	tb := a.toolbox(a.logger, ctx)
	defer tb.Close()

	r := &workload.Replay{
		Logger:   a.logger,
		Checker:  tb.Checker,
		Replayer: tb.Replayer,
		Out:      ctx.App.Writer,
		Args:     a.args,
	}
	if _, err := r.Run(ctx.Context, cfg); err != nil {
		return a.fail(err, "Replay failed")
	}
	return nil
}

func replayConfig(ctx *cli.Context) (model.ReplayConfig, error) {
	cfg := model.ReplayConfig{
		TargetHost:  ctx.String("target-host"),
		MySQLPort:   ctx.Int("mysql-port"),
		SlowLog:     ctx.String("slow-log"),
		OutputDir:   ctx.String("output-dir"),
		User:        ctx.String("mysql-user"),
		Password:    ctx.String("mysql-password"),
		Concurrency: ctx.Int("concurrency"),
		ColdRun:     ctx.Bool("cold-run"),
		WarmupLoops: ctx.Int("warmup-loops"),
		Summary:     ctx.Bool("summary"),
	}

	if err := requireFlags(ctx, "target-host", "slow-log", "output-dir", "mysql-user"); err != nil {
		return cfg, err
	}
	if err := requirePassword(ctx); err != nil {
		return cfg, err
	}
	if err := validateReplayFlags(ctx, cfg); err != nil {
		return cfg, err
	}
	if cfg.WarmupLoops < 1 {
		return cfg, usageError(ctx, "--warmup-loops must be at least 1")
	}
	if err := workload.ValidateSlowLog(cfg.SlowLog); err != nil {
		return cfg, usageError(ctx, "--slow-log: %v", err)
	}
	return cfg, nil
}

// validateReplayFlags checks the target settings shared with the warm
// command.
func validateReplayFlags(ctx *cli.Context, cfg model.ReplayConfig) error {
	if cfg.Concurrency < 1 {
		return usageError(ctx, "--concurrency must be at least 1")
	}
	if err := validPort(cfg.MySQLPort); err != nil {
		return usageError(ctx, "--mysql-port: %v", err)
	}
	return nil
}

// requirePassword accepts an explicitly empty password but not a missing one.
func requirePassword(ctx *cli.Context) error {
	if !ctx.IsSet("mysql-password") {
		return usageError(ctx, "missing required flags: [--mysql-password] (or %s)", passwordEnvVar)
	}
	return nil
}
