package transport

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrAlreadyRunning is returned when another server owns the socket.
var ErrAlreadyRunning = errors.New("boltd already running")

const (
	probeTimeout   = 300 * time.Millisecond
	acquireRetries = 3
)

// RuntimeSocketPath resolves the default unix socket path.
func RuntimeSocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, "boltd.sock"), nil
}

// ResolveAddress fills in the runtime socket path for an empty unix address.
func ResolveAddress(network, address string) (string, error) {
	if network != "unix" || strings.TrimSpace(address) != "" {
		return address, nil
	}
	return RuntimeSocketPath()
}

// Listen opens the session listener. Unix sockets go through Acquire so a
// stale socket file left by a crashed server is replaced.
func Listen(ctx context.Context, network, address string) (net.Listener, error) {
	address, err := ResolveAddress(network, address)
	if err != nil {
		return nil, err
	}
	if network == "unix" {
		return Acquire(ctx, address, probeTimeout, acquireRetries)
	}
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, network, address)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s %s", network, address)
	}
	return listener, nil
}

// Acquire listens on path, removing a stale socket when no server answers.
func Acquire(ctx context.Context, path string, timeout time.Duration, retries int) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "ensure runtime socket dir")
	}

	for attempt := 0; attempt <= retries; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return listener, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, errors.Wrapf(err, "listen unix %s", path)
		}

		alive, probeErr := Probe(ctx, "unix", path, timeout)
		if alive {
			return nil, ErrAlreadyRunning
		}
		if probeErr != nil {
			return nil, errors.Wrapf(probeErr, "probe existing socket %s", path)
		}
		if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			return nil, errors.Wrapf(removeErr, "remove stale socket %s", path)
		}

		if attempt < retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(25*(attempt+1)) * time.Millisecond):
			}
		}
	}

	return nil, errors.Newf("failed to acquire socket %s after %d retries", path, retries)
}

// Probe reports whether a server accepts connections at address.
func Probe(ctx context.Context, network, address string, timeout time.Duration) (bool, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, network, address)
	if err == nil {
		_ = conn.Close()
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
		return false, nil
	}
	return false, errors.Wrap(err, "probe socket")
}
