package doctor

import (
	"context"
	"net"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rbright/boltd/internal/admin"
	"github.com/rbright/boltd/internal/config"
	"github.com/rbright/boltd/internal/session"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestCheckEnv(t *testing.T) {
	t.Setenv("TEST_DOCTOR_ENV", "/run/user/1000")

	check := checkEnv(
		"TEST_DOCTOR_ENV",
		func(v string) bool { return strings.HasPrefix(v, "/run") },
		"looks good",
		"unexpected",
	)

	require.True(t, check.Pass)
	require.Equal(t, "looks good", check.Message)
}

func TestCheckAuth(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AuthConfig
		pass bool
	}{
		{name: "disabled", cfg: config.AuthConfig{Enabled: false}, pass: true},
		{name: "enabled without users", cfg: config.AuthConfig{Enabled: true}, pass: false},
		{name: "enabled with users", cfg: config.AuthConfig{Enabled: true, Users: []config.UserConfig{{Name: "neo"}}}, pass: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.pass, checkAuth(tt.cfg).Pass)
		})
	}
}

func TestCheckListener(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boltd.sock")

	check := checkListener(context.Background(), config.ListenConfig{Network: "unix", Address: path})
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "no server")

	listener, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer listener.Close()

	check = checkListener(context.Background(), config.ListenConfig{Network: "unix", Address: path})
	require.True(t, check.Pass)
}

func TestCheckAdmin(t *testing.T) {
	handler := admin.NewHandler(admin.Options{
		Registry: session.NewRegistry(nil),
		Logger:   zerolog.Nop(),
		Version:  "1.0.0",
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	check := checkAdmin(context.Background(), strings.TrimPrefix(server.URL, "http://"))
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "ok 1.0.0")
}

func TestRunReportsMissingServer(t *testing.T) {
	cfg := config.Default()
	cfg.Listen.Address = filepath.Join(t.TempDir(), "boltd.sock")
	cfg.Admin.Address = ""
	cfg.Health.Address = ""

	report := Run(context.Background(), config.Loaded{Path: "/tmp/none.yaml", Config: cfg})

	require.False(t, report.OK())
	require.Contains(t, report.String(), "[FAIL] listen")
	require.Contains(t, report.String(), "[FAIL] auth")
	require.Contains(t, report.String(), "not found, using defaults")
}
