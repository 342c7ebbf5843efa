package workload

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

const profileHeader = "# Profile"

// ExtractProfile returns the profile section of a query digest report: the
// "# Profile" header line and everything after it up to the first blank
// line. It returns an empty string when the report has no such section.
func ExtractProfile(r io.Reader) (string, error) {
	var b strings.Builder
	in := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !in {
			if strings.HasPrefix(line, profileHeader) {
				in = true
			} else {
				continue
			}
		} else if strings.TrimSpace(line) == "" {
			break
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return b.String(), nil
}

// PrintSummary writes the profile section of the report at path to w.
func PrintSummary(path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	section, err := ExtractProfile(f)
	if err != nil {
		return fmt.Errorf("failed to read report: %w", err)
	}
	if section == "" {
		return fmt.Errorf("no profile section in %s", path)
	}
	_, err = io.WriteString(w, section)
	return err
}
