package tcpdump

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildFilter(t *testing.T) {
	// no src/dst qualifier: queries and responses are both needed
	require.Equal(t, "tcp port 3306", BuildFilter(3306))
}

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "defaults",
			opts: Options{Seconds: 60, MySQLPort: 3306},
			want: []string{"timeout", "60", "tcpdump", "-i", "any", "-s", "65535", "-x", "-nn", "-q", "-tttt", "tcp port 3306"},
		},
		{
			name: "interface and port",
			opts: Options{Seconds: 5, Interface: "eth1", MySQLPort: 3307},
			want: []string{"timeout", "5", "tcpdump", "-i", "eth1", "-s", "65535", "-x", "-nn", "-q", "-tttt", "tcp port 3307"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildArgs(tt.opts)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BuildArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildCommand(t *testing.T) {
	got := BuildCommand(Options{
		Seconds:   60,
		MySQLPort: 3306,
		RelayHost: "capture.example.com",
		RelayPort: 7778,
	})
	require.Equal(t,
		"timeout 60 tcpdump -i any -s 65535 -x -nn -q -tttt 'tcp port 3306' 2>/dev/null | nc capture.example.com 7778",
		got)
}
