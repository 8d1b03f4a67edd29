package transport

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestAcquireRecoversStaleSocket(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "boltd.sock")
	require.NoError(t, os.WriteFile(socketPath, []byte("stale"), 0o600))

	listener, err := Acquire(context.Background(), socketPath, 50*time.Millisecond, 2)
	require.NoError(t, err)
	defer listener.Close()

	info, err := os.Stat(socketPath)
	require.NoError(t, err)
	require.Equal(t, os.ModeSocket, info.Mode()&os.ModeSocket)
}

func TestAcquireReturnsAlreadyRunningWhenSocketResponsive(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "boltd.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	defer listener.Close()

	_, err = Acquire(context.Background(), socketPath, 80*time.Millisecond, 1)
	require.True(t, errors.Is(err, ErrAlreadyRunning), "got %v", err)
}

func TestProbe(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	alive, err := Probe(context.Background(), "unix", filepath.Join(dir, "missing.sock"), 50*time.Millisecond)
	require.NoError(t, err)
	require.False(t, alive)

	socketPath := filepath.Join(dir, "boltd.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	defer listener.Close()

	alive, err = Probe(context.Background(), "unix", socketPath, 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, alive)
}

func TestRuntimeSocketPathRequiresXDG(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	_, err := RuntimeSocketPath()
	require.Error(t, err)
}

func TestResolveAddress(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")

	got, err := ResolveAddress("unix", "")
	require.NoError(t, err)
	require.Equal(t, "/run/user/1000/boltd.sock", got)

	got, err = ResolveAddress("tcp", "127.0.0.1:7687")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7687", got)
}
