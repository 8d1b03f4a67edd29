package app

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rbright/boltd/internal/transport"
)

func TestExecuteHelp(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "Usage:")
	require.Empty(t, stderr.String())
}

func TestExecuteVersion(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, 0, exitCode)
	require.Contains(t, stdout.String(), "boltd")
	require.Empty(t, stderr.String())
}

func TestExecuteUnknownCommand(t *testing.T) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	exitCode := Execute(context.Background(), []string{"definitely-not-a-command"}, &stdout, &stderr)
	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "unknown command")
	require.Contains(t, stderr.String(), "Usage:")
}

func TestHashPassword(t *testing.T) {
	var stdout bytes.Buffer
	runner := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}, Stdin: strings.NewReader("s3cret\n")}

	exitCode := runner.Execute(context.Background(), []string{"hash-password"})

	require.Equal(t, 0, exitCode)
	hash := strings.TrimSpace(stdout.String())
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}

func TestStatusReportsStoppedServer(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	var stdout bytes.Buffer
	runner := newRunner(&stdout, &bytes.Buffer{})

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
	require.Equal(t, 0, exitCode)
	require.Equal(t, "stopped\n", stdout.String())
}

func TestTerminateRequiresAdminAPI(t *testing.T) {
	paths := setupRunnerEnv(t, "")

	var stderr bytes.Buffer
	runner := newRunner(&bytes.Buffer{}, &stderr)

	exitCode := runner.Execute(context.Background(), []string{"--config", paths.configPath, "terminate", "bolt-1"})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "admin API is disabled")
}

func TestServeAnswersQueriesAndAdminCommands(t *testing.T) {
	paths := setupRunnerEnv(t, freeAddress(t))

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan int, 1)
	go func() {
		runner := newRunner(&bytes.Buffer{}, &bytes.Buffer{})
		serveDone <- runner.Execute(ctx, []string{"--config", paths.configPath, "serve"})
	}()
	defer func() {
		cancel()
		require.Equal(t, 0, <-serveDone)
	}()

	require.Eventually(t, func() bool {
		alive, _ := transport.Probe(context.Background(), "unix", paths.socketPath, 100*time.Millisecond)
		return alive
	}, 5*time.Second, 20*time.Millisecond)

	run := func(args ...string) (int, string, string) {
		var stdout, stderr bytes.Buffer
		code := newRunner(&stdout, &stderr).Execute(context.Background(), append([]string{"--config", paths.configPath}, args...))
		return code, stdout.String(), stderr.String()
	}

	code, out, errOut := run("query", "UNWIND range(1, 3) AS x RETURN x, 'n' AS tag")
	require.Equal(t, 0, code, errOut)
	require.Equal(t, "x\ttag\n1\tn\n2\tn\n3\tn\n", out)

	code, _, errOut = run("query", "RETURN $missing")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "Neo.ClientError.Statement.ParameterMissing")

	require.Eventually(t, func() bool {
		code, out, _ := run("status")
		return code == 0 && strings.HasPrefix(out, "running") && strings.Contains(out, "sessions=0")
	}, 5*time.Second, 20*time.Millisecond)

	code, out, _ = run("sessions")
	require.Equal(t, 0, code)
	require.Equal(t, "no sessions\n", out)

	code, _, errOut = run("terminate", "bolt-missing")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "no session")
}

type runnerPaths struct {
	configPath string
	socketPath string
}

func newRunner(stdout, stderr *bytes.Buffer) Runner {
	nop := zerolog.Nop()
	return Runner{Stdout: stdout, Stderr: stderr, Logger: &nop}
}

func setupRunnerEnv(t *testing.T, adminAddress string) runnerPaths {
	t.Helper()

	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	socketPath := filepath.Join(t.TempDir(), "boltd.sock")
	content := fmt.Sprintf(`listen:
  network: unix
  address: %q
auth:
  enabled: false
admin:
  address: %q
  rate_per_minute: 100000
health:
  address: ""
`, socketPath, adminAddress)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))
	return runnerPaths{configPath: configPath, socketPath: socketPath}
}

func freeAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return addr
}
