package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/perfgo/mysqlwarm/cli"
	urfave "github.com/urfave/cli/v2"
)

// Version information, set by goreleaser via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGHUP, syscall.SIGPIPE, syscall.SIGINT, syscall.SIGTERM)

	c := cli.New()
	c.SetVersion(version, commit, date)
	err := c.RunContext(ctx, os.Args)
	stop()

	if err != nil {
		var exitErr urfave.ExitCoder
		if errors.As(err, &exitErr) {
			if msg := exitErr.Error(); msg != "" {
				fmt.Fprintln(os.Stderr, msg)
			}
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitError)
	}
}
