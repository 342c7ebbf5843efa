package relay

import (
	"bytes"
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBuildListenArgs(t *testing.T) {
	require.Equal(t, []string{"-l", "7778"}, BuildListenArgs(7778))
}

func TestListeningPID(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port

	pid, listening, err := ListeningPID(context.Background(), port)
	require.NoError(t, err)
	require.True(t, listening)
	require.Equal(t, os.Getpid(), pid)

	require.NoError(t, l.Close())
	_, listening, err = ListeningPID(context.Background(), port)
	require.NoError(t, err)
	require.False(t, listening)
}

func TestProcessCloseKills(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	f, err := os.Create(filepath.Join(t.TempDir(), "mysql.tcp"))
	require.NoError(t, err)

	p, err := start(zerolog.Nop(), exec.Command("sleep", "30"), f, 0)
	require.NoError(t, err)
	require.False(t, p.exited())

	require.NoError(t, p.Close())
	require.True(t, p.exited())
	// second close is a no-op
	require.NoError(t, p.Close())
}

func TestProcessWaitTimeoutKills(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	f, err := os.Create(filepath.Join(t.TempDir(), "mysql.tcp"))
	require.NoError(t, err)

	p, err := start(zerolog.Nop(), exec.Command("sleep", "30"), f, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.Wait(ctx), context.DeadlineExceeded)
	require.True(t, p.exited())
}

func TestProcessWaitTimeoutLogsCloseError(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	f, err := os.Create(filepath.Join(t.TempDir(), "mysql.tcp"))
	require.NoError(t, err)

	var logs bytes.Buffer
	p, err := start(zerolog.New(&logs).Level(zerolog.DebugLevel), exec.Command("sleep", "30"), f, 0)
	require.NoError(t, err)
	// closing the capture file early makes Close fail
	require.NoError(t, f.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.Wait(ctx), context.DeadlineExceeded)
	require.True(t, p.exited())
	require.Contains(t, logs.String(), "Failed to close relay")
}

func TestProcessReadyExited(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not available")
	}
	f, err := os.Create(filepath.Join(t.TempDir(), "mysql.tcp"))
	require.NoError(t, err)

	p, err := start(zerolog.Nop(), exec.Command("true"), f, 1)
	require.NoError(t, err)
	defer p.Close()
	<-p.done

	require.ErrorIs(t, p.Ready(context.Background()), ErrExited)
}
