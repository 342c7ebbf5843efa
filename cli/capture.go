package cli

// This file contains the capture command and the flag validation shared
// with the warm command.

import (
	"fmt"
	"os"

	"github.com/perfgo/mysqlwarm/cli/digest"
	"github.com/perfgo/mysqlwarm/model"
	"github.com/perfgo/mysqlwarm/workload"
	"github.com/urfave/cli/v2"
)

func (a *App) captureCommand() *cli.Command {
	return &cli.Command{
		Name:   "capture",
		Usage:  "Capture the query workload of a MySQL master into a slow-query log",
		Action: a.capture,
		Flags: []cli.Flag{
			masterHostFlag(),
			tcpdumpSecondsFlag(0),
			outputDirFlag("output-dir"),
			relayPortFlag(),
			schemaFlag(),
			relayHostFlag(),
			interfaceFlag(),
			mysqlPortFlag(),
			sshIdentityFlag(),
		},
	}
}

func (a *App) capture(ctx *cli.Context) error {
	cfg, err := captureConfig(ctx, "output-dir")
	if err != nil {
		return err
	}

	tb := a.toolbox(a.logger, ctx)
	defer tb.Close()

	c := &workload.Capture{
		Logger:   a.logger,
		Capturer: tb.Capturer,
		Relay:    tb.Relay,
		Digester: tb.Digester,
	}
	if _, err := c.Run(ctx.Context, cfg); err != nil {
		return a.fail(err, "Capture failed")
	}
	return nil
}

// captureConfig validates the capture flags and folds them into a
// CaptureConfig. The output directory is read from dirFlag.
func captureConfig(ctx *cli.Context, dirFlag string) (model.CaptureConfig, error) {
	cfg := model.CaptureConfig{
		MasterHost: ctx.String("master-host"),
		Seconds:    ctx.Int("tcpdump-seconds"),
		OutputDir:  ctx.String(dirFlag),
		Port:       ctx.Int("port"),
		Schema:     ctx.String("schema"),
		RelayHost:  ctx.String("relay-host"),
		Interface:  ctx.String("interface"),
		MySQLPort:  ctx.Int("mysql-port"),
	}

	if err := requireFlags(ctx, "master-host", dirFlag); err != nil {
		return cfg, err
	}
	if cfg.Seconds <= 0 {
		return cfg, usageError(ctx, "--tcpdump-seconds must be a positive number of seconds")
	}
	if err := validPort(cfg.Port); err != nil {
		return cfg, usageError(ctx, "--port: %v", err)
	}
	if err := validPort(cfg.MySQLPort); err != nil {
		return cfg, usageError(ctx, "--mysql-port: %v", err)
	}
	if cfg.Schema == "" {
		cfg.Schema = model.AllSchemas
	}
	if err := digest.ValidateSchema(cfg.Schema); err != nil {
		return cfg, usageError(ctx, "--schema: %v", err)
	}
	if cfg.Interface == "" {
		cfg.Interface = model.DefaultInterface
	}
	if cfg.RelayHost == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return cfg, usageError(ctx, "--relay-host not given and local hostname unknown: %v", err)
		}
		cfg.RelayHost = hostname
	}
	return cfg, nil
}

// requireFlags fails with the usage when one of the named flags is empty.
func requireFlags(ctx *cli.Context, names ...string) error {
	var missing []string
	for _, name := range names {
		if ctx.String(name) == "" {
			missing = append(missing, "--"+name)
		}
	}
	if len(missing) > 0 {
		return usageError(ctx, "missing required flags: %v", missing)
	}
	return nil
}

func validPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of range", port)
	}
	return nil
}
