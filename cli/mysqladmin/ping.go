package mysqladmin

// ping.go checks that a target MySQL server accepts the replay credentials.

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/perfgo/mysqlwarm/workload"
	"github.com/rs/zerolog"
)

const DefaultTimeout = 5 * time.Second

// Config returns the driver configuration for a target.
func Config(host string, port int, user, password string, timeout time.Duration) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.Timeout = timeout
	cfg.ReadTimeout = timeout
	return cfg
}

// Pinger pings MySQL servers.
type Pinger struct {
	logger  zerolog.Logger
	timeout time.Duration
}

func New(logger zerolog.Logger, timeout time.Duration) *Pinger {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Pinger{logger: logger, timeout: timeout}
}

// Ping opens a connection to host with the given credentials and pings it.
// Any failure is reported as workload.ErrConnect.
func (p *Pinger) Ping(ctx context.Context, host string, port int, user, password string) error {
	connector, err := mysql.NewConnector(Config(host, port, user, password, p.timeout))
	if err != nil {
		return fmt.Errorf("%w: %s:%d: %v", workload.ErrConnect, host, port, err)
	}
	db := sql.OpenDB(connector)
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.logger.Debug().Str("host", host).Int("port", port).Str("user", user).Msg("Pinging MySQL server")

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %s:%d: %v", workload.ErrConnect, host, port, err)
	}
	return nil
}
