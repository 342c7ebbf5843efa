package cli

// This file contains the list command for displaying previous replay runs.

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/perfgo/mysqlwarm/history"
	"github.com/urfave/cli/v2"
)

func (a *App) listCommand() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List previous replay runs",
		Action: a.list,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Directory to search for replay runs",
				Value: ".",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results",
				Value:   20,
			},
		},
	}
}

func (a *App) list(ctx *cli.Context) error {
	dir := ctx.String("dir")
	limit := ctx.Int("limit")
	out := ctx.App.Writer

	entries, err := history.LoadEntries(a.logger, dir)
	if err != nil {
		return a.fail(err, "Failed to load replay runs")
	}

	if len(entries) == 0 {
		fmt.Fprintf(out, "No replay runs found in %s\n", dir)
		return nil
	}

	// Sort by timestamp (newest first)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Run.Timestamp.After(entries[j].Run.Timestamp)
	})

	display := entries
	if limit > 0 && limit < len(display) {
		display = display[:limit]
	}

	fmt.Fprintf(out, "\n=== Replay runs (%d total) ===\n\n", len(entries))

	for _, entry := range display {
		run := entry.Run
		timestamp := run.Timestamp.Format("2006-01-02 15:04:05")
		duration := run.Duration.Round(time.Millisecond)

		status := "✓"
		if run.ExitCode != 0 {
			status = "✗"
		}

		shortID := run.ID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}

		fmt.Fprintf(out, "%s  %s  [%s]  exit=%d  id=%s\n", status, timestamp, duration, run.ExitCode, shortID)
		if run.Target != nil {
			fmt.Fprintf(out, "   Target: %s:%d (user %s)\n", run.Target.Host, run.Target.Port, run.Target.User)
		}
		mode := "cold"
		if !run.ColdRun {
			mode = fmt.Sprintf("warm (%d warmup loops)", run.WarmupLoops)
		}
		fmt.Fprintf(out, "   Concurrency: %d, %s\n", run.Concurrency, mode)
		fmt.Fprintf(out, "   Slow log: %s\n", run.SlowLog)
		if len(run.Args) > 1 {
			fmt.Fprintf(out, "   Args: %s\n", strings.Join(redactArgs(run.Args[1:]), " "))
		}
		for _, artifact := range run.Artifacts {
			fmt.Fprintf(out, "   %s: %s (%s)\n", artifact.Type, artifact.File, humanize.Bytes(artifact.Size))
		}
		fmt.Fprintf(out, "   %s\n", entry.FullPath)
		fmt.Fprintln(out)
	}

	return nil
}
