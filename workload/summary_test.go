package workload

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractProfile(t *testing.T) {
	tests := []struct {
		name   string
		report string
		want   string
	}{
		{
			name:   "profile between sections",
			report: "# Overall: 10 total\n\n# Profile\n# Rank Query ID\n#    1 0x1\n\n# Query 1: 0.5 QPS\n",
			want:   "# Profile\n# Rank Query ID\n#    1 0x1\n",
		},
		{
			name:   "profile at end without blank line",
			report: "# Profile\n#    1 0x1",
			want:   "# Profile\n#    1 0x1\n",
		},
		{
			name:   "no profile",
			report: "# Overall: 10 total\n",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractProfile(strings.NewReader(tt.report))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestPrintSummary(t *testing.T) {
	dir := t.TempDir()

	var out bytes.Buffer
	err := PrintSummary(filepath.Join(dir, "missing.txt"), &out)
	require.Error(t, err)

	noProfile := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(noProfile, []byte("# Overall\n"), 0644))
	require.Error(t, PrintSummary(noProfile, &out))
	require.Empty(t, out.String())
}
