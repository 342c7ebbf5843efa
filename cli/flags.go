package cli

// This file contains the flag constructors shared by the capture, replay and
// warm commands. Every flag can also be set from the --config YAML file.

import (
	"github.com/perfgo/mysqlwarm/model"
	"github.com/perfgo/mysqlwarm/workload"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

const passwordEnvVar = "MYSQLWARM_MYSQL_PASSWORD"

func masterHostFlag() cli.Flag {
	return altsrc.NewStringFlag(&cli.StringFlag{
		Name:  "master-host",
		Usage: "SSH host of the MySQL master to capture traffic from (required)",
	})
}

func targetHostFlag() cli.Flag {
	return altsrc.NewStringFlag(&cli.StringFlag{
		Name:  "target-host",
		Usage: "MySQL host to replay the workload against (required)",
	})
}

func slowLogFlag() cli.Flag {
	return altsrc.NewStringFlag(&cli.StringFlag{
		Name:  "slow-log",
		Usage: "Slow-query log to replay (required)",
	})
}

func tcpdumpSecondsFlag(value int) cli.Flag {
	usage := "Capture duration in seconds"
	if value == 0 {
		usage += " (required)"
	}
	return altsrc.NewIntFlag(&cli.IntFlag{
		Name:  "tcpdump-seconds",
		Usage: usage,
		Value: value,
	})
}

func outputDirFlag(name string) cli.Flag {
	return altsrc.NewStringFlag(&cli.StringFlag{
		Name:  name,
		Usage: "Local directory for captured and generated files (required)",
	})
}

func relayPortFlag() cli.Flag {
	return altsrc.NewIntFlag(&cli.IntFlag{
		Name:  "port",
		Usage: "Local relay port the master streams the capture to",
		Value: model.DefaultRelayPort,
	})
}

func schemaFlag() cli.Flag {
	return altsrc.NewStringFlag(&cli.StringFlag{
		Name:  "schema",
		Usage: "Only keep queries against this schema (" + model.AllSchemas + " keeps every schema)",
		Value: model.AllSchemas,
	})
}

func relayHostFlag() cli.Flag {
	return altsrc.NewStringFlag(&cli.StringFlag{
		Name:  "relay-host",
		Usage: "Address the master uses to reach the local relay (default: local hostname)",
	})
}

func interfaceFlag() cli.Flag {
	return altsrc.NewStringFlag(&cli.StringFlag{
		Name:  "interface",
		Usage: "Network interface tcpdump listens on",
		Value: model.DefaultInterface,
	})
}

func mysqlPortFlag() cli.Flag {
	return altsrc.NewIntFlag(&cli.IntFlag{
		Name:  "mysql-port",
		Usage: "MySQL server port",
		Value: model.DefaultMySQLPort,
	})
}

func sshIdentityFlag() cli.Flag {
	return altsrc.NewStringFlag(&cli.StringFlag{
		Name:  "ssh-identity",
		Usage: "SSH identity file used to reach the master",
	})
}

func mysqlUserFlag() cli.Flag {
	return altsrc.NewStringFlag(&cli.StringFlag{
		Name:  "mysql-user",
		Usage: "MySQL user on the target (required)",
	})
}

func mysqlPasswordFlag() cli.Flag {
	return altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "mysql-password",
		Usage:   "MySQL password on the target (required)",
		EnvVars: []string{passwordEnvVar},
	})
}

func concurrencyFlag() cli.Flag {
	return altsrc.NewIntFlag(&cli.IntFlag{
		Name:  "concurrency",
		Usage: "Number of replay threads",
		Value: model.DefaultConcurrency,
	})
}

func coldRunFlag() cli.Flag {
	return altsrc.NewBoolFlag(&cli.BoolFlag{
		Name:  "cold-run",
		Usage: "Skip the cache warmup pass before the measured replay",
	})
}

func warmupLoopsFlag() cli.Flag {
	return altsrc.NewIntFlag(&cli.IntFlag{
		Name:  "warmup-loops",
		Usage: "Number of times the warmup pass replays the log",
		Value: model.DefaultWarmupLoops,
	})
}

func summaryFlag() cli.Flag {
	return altsrc.NewBoolFlag(&cli.BoolFlag{
		Name:  "summary",
		Usage: "Print the profile section of ptqd.<target-host>.txt after the replay",
	})
}

func intervalFlag() cli.Flag {
	return altsrc.NewDurationFlag(&cli.DurationFlag{
		Name:  "interval",
		Usage: "Delay between successful warmup cycles",
	})
}

func maxBackoffFlag() cli.Flag {
	return altsrc.NewDurationFlag(&cli.DurationFlag{
		Name:  "max-backoff",
		Usage: "Upper bound of the delay after failed warmup cycles",
		Value: workload.DefaultMaxBackoff,
	})
}

// defaultWarmSeconds is the capture duration of one warmer cycle.
const defaultWarmSeconds = 60
