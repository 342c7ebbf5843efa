package cli

import (
	"github.com/perfgo/mysqlwarm/model"
	"github.com/perfgo/mysqlwarm/workload"
	"github.com/urfave/cli/v2"
)

func (a *App) summaryCommand() *cli.Command {
	return &cli.Command{
		Name:   "summary",
		Usage:  "Print the profile section of the query digest report of a target",
		Action: a.summary,
		Flags: []cli.Flag{
			outputDirFlag("output-dir"),
			targetHostFlag(),
		},
	}
}

func (a *App) summary(ctx *cli.Context) error {
	if err := requireFlags(ctx, "output-dir", "target-host"); err != nil {
		return err
	}

	cfg := model.ReplayConfig{
		OutputDir:  ctx.String("output-dir"),
		TargetHost: ctx.String("target-host"),
	}
	if err := workload.PrintSummary(cfg.ReportPath(), ctx.App.Writer); err != nil {
		return a.fail(err, "Failed to print summary")
	}
	return nil
}
