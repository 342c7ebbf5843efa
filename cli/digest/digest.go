package digest

// digest.go contains utilities for building pt-query-digest commands that
// turn a raw tcpdump capture into a slow-query log.

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/perfgo/mysqlwarm/model"
	"github.com/perfgo/mysqlwarm/workload"
	"github.com/rs/zerolog"
)

// DefaultBinary is the digester executable looked up on PATH.
const DefaultBinary = "pt-query-digest"

const selectOnly = `$event->{fingerprint} =~ m/^select/i && $event->{arg} !~ m/FOR UPDATE/i && $event->{arg} !~ m/LOCK IN SHARE MODE/i`

var schemaPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidateSchema checks that schema can be embedded in a filter expression.
func ValidateSchema(schema string) error {
	if schema == "" || schema == model.AllSchemas {
		return nil
	}
	if !schemaPattern.MatchString(schema) {
		return fmt.Errorf("invalid schema name %q: only letters, digits and '_' are allowed", schema)
	}
	return nil
}

// FilterExpression returns the digest filter selecting SELECT-only,
// non-locking statements, scoped to schema unless it is model.AllSchemas.
func FilterExpression(schema string) string {
	if schema == "" || schema == model.AllSchemas {
		return selectOnly
	}
	return fmt.Sprintf(`%s && ($event->{db} || "") =~ m/^%s$/`, selectOnly, schema)
}

// Options contains options for a pt-query-digest run.
type Options struct {
	Input  string // Raw tcpdump capture
	Filter string // Perl filter expression
}

// BuildArgs builds pt-query-digest arguments emitting a slow log on stdout.
func BuildArgs(opts Options) []string {
	args := []string{
		"--type", "tcpdump",
		"--no-report",
		"--output", "slowlog",
	}
	if opts.Filter != "" {
		args = append(args, "--filter", opts.Filter)
	}
	return append(args, opts.Input)
}

// Digester runs pt-query-digest locally.
type Digester struct {
	logger zerolog.Logger
	binary string
}

func New(logger zerolog.Logger, binary string) *Digester {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Digester{logger: logger, binary: binary}
}

// Check verifies the digester is available locally.
func (d *Digester) Check() error {
	if _, err := exec.LookPath(d.binary); err != nil {
		return fmt.Errorf("%w: %s: %v", workload.ErrMissingTool, d.binary, err)
	}
	return nil
}

// Digest converts the capture at in into a slow log at out, keeping only
// the statements selected by FilterExpression(schema). The digester's
// output goes through Fixup on its way to disk. A non-zero exit of the
// digester is logged but not returned.
func (d *Digester) Digest(ctx context.Context, in, out, schema string) error {
	partial := out + ".partial"
	f, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("failed to create slow log: %w", err)
	}
	defer os.Remove(partial)

	cmd := exec.CommandContext(ctx, d.binary, BuildArgs(Options{Input: in, Filter: FilterExpression(schema)})...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to create pipe: %w", err)
	}

	d.logger.Debug().
		Str("command", cmd.String()).
		Msg("Executing query digester")

	if err := cmd.Start(); err != nil {
		f.Close()
		return fmt.Errorf("failed to start %s: %w", d.binary, err)
	}

	w := bufio.NewWriter(f)
	fixErr := Fixup(stdout, w)
	if fixErr != nil {
		// drain so the digester is not blocked on a full pipe
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()

	if fixErr == nil {
		fixErr = w.Flush()
	}
	if cerr := f.Close(); fixErr == nil {
		fixErr = cerr
	}
	if ctx.Err() != nil {
		return fmt.Errorf("query digester interrupted: %w", ctx.Err())
	}
	if fixErr != nil {
		return fmt.Errorf("failed to write slow log: %w", fixErr)
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		d.logger.Warn().
			Int("exit_code", exitErr.ExitCode()).
			Str("stderr", strings.TrimSpace(stderr.String())).
			Msg("Query digester exited with failure")
	} else if waitErr != nil {
		return fmt.Errorf("failed to run %s: %w", d.binary, waitErr)
	}

	if err := os.Rename(partial, out); err != nil {
		return fmt.Errorf("failed to move slow log into place: %w", err)
	}
	return nil
}

const (
	authPluginArtifact = "mysql_native_password"
	timeHeader         = "# Time: "
	slowLogTimeLayout  = "060102 15:04:05"
)

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Fixup copies a slow log from r to w, stripping the authentication plugin
// name that leaks into captured statements and rewriting ISO "# Time:"
// headers into the classic slow log form.
func Fixup(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			if _, werr := io.WriteString(w, fixLine(line)); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func fixLine(line string) string {
	line = strings.ReplaceAll(line, authPluginArtifact, "")
	if !strings.HasPrefix(line, timeHeader) {
		return line
	}

	body := strings.TrimRight(line[len(timeHeader):], "\r\n")
	eol := line[len(timeHeader)+len(body):]
	value := strings.TrimSpace(body)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return timeHeader + t.Format(slowLogTimeLayout) + eol
		}
	}
	return line
}
