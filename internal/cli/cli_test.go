package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Equal(t, CommandHelp, parsed.Command)
}

func TestParseCommandWithConfig(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/boltd.yaml", "doctor"})
	require.NoError(t, err)
	require.Equal(t, CommandDoctor, parsed.Command)
	require.Equal(t, "/tmp/boltd.yaml", parsed.ConfigPath)
	require.False(t, parsed.ShowHelp)
}

func TestParseArgMatrix(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantErr  string
		wantCmd  Command
		wantHelp bool
		wantPath string
		wantUser string
		wantArgs []string
	}{
		{
			name:     "help short flag",
			args:     []string{"-h"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:    "version flag",
			args:    []string{"--version"},
			wantCmd: CommandVersion,
		},
		{
			name:    "missing config path",
			args:    []string{"--config"},
			wantErr: "requires a value",
		},
		{
			name:    "unknown flag",
			args:    []string{"--bogus"},
			wantErr: "unknown flag",
		},
		{
			name:    "unknown command",
			args:    []string{"bogus"},
			wantErr: "unknown command",
		},
		{
			name:    "extra args after command",
			args:    []string{"doctor", "extra"},
			wantErr: "unexpected arguments",
		},
		{
			name:    "terminate needs an id",
			args:    []string{"terminate"},
			wantErr: "requires 1 argument",
		},
		{
			name:     "terminate with id",
			args:     []string{"terminate", "bolt-1"},
			wantCmd:  CommandTerminate,
			wantArgs: []string{"bolt-1"},
		},
		{
			name:     "query with user and config after command",
			args:     []string{"query", "RETURN 1 AS one", "--user", "neo", "--config", "/tmp/cfg"},
			wantCmd:  CommandQuery,
			wantPath: "/tmp/cfg",
			wantUser: "neo",
			wantArgs: []string{"RETURN 1 AS one"},
		},
		{
			name:    "serve",
			args:    []string{"serve"},
			wantCmd: CommandServe,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, parsed.Command)
			require.Equal(t, tc.wantHelp, parsed.ShowHelp)
			require.Equal(t, tc.wantPath, parsed.ConfigPath)
			require.Equal(t, tc.wantUser, parsed.User)
			require.Equal(t, tc.wantArgs, parsed.Args)
		})
	}
}

func TestHelpTextIncludesCoreCommands(t *testing.T) {
	text := HelpText("boltd")
	for _, want := range []string{"serve", "query QUERY", "sessions", "terminate ID", "doctor", "--config PATH"} {
		require.Contains(t, text, want)
	}
}
