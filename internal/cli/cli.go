// Package cli parses boltd command-line arguments.
package cli

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

type Command string

const (
	CommandServe     Command = "serve"
	CommandQuery     Command = "query"
	CommandStatus    Command = "status"
	CommandSessions  Command = "sessions"
	CommandTerminate Command = "terminate"
	CommandHashPass  Command = "hash-password"
	CommandDoctor    Command = "doctor"
	CommandVersion   Command = "version"
	CommandHelp      Command = "help"
)

// commandArgs is the number of positional arguments each command takes.
var commandArgs = map[Command]int{
	CommandServe:     0,
	CommandQuery:     1,
	CommandStatus:    0,
	CommandSessions:  0,
	CommandTerminate: 1,
	CommandHashPass:  0,
	CommandDoctor:    0,
	CommandVersion:   0,
	CommandHelp:      0,
}

type Parsed struct {
	Command    Command
	ConfigPath string
	User       string
	Args       []string
	ShowHelp   bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}
	commandSeen := false

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config", "--user":
			i++
			if i >= len(args) {
				return Parsed{}, errors.Newf("%s requires a value", arg)
			}
			if arg == "--config" {
				parsed.ConfigPath = args[i]
			} else {
				parsed.User = args[i]
			}
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, errors.Newf("unknown flag: %s", arg)
			}
			if commandSeen {
				parsed.Args = append(parsed.Args, arg)
				continue
			}

			cmd := Command(arg)
			if _, ok := commandArgs[cmd]; !ok {
				return Parsed{}, errors.Newf("unknown command: %s", arg)
			}
			commandSeen = true
			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
		}
	}

	if want := commandArgs[parsed.Command]; commandSeen && len(parsed.Args) != want {
		if len(parsed.Args) > want {
			return Parsed{}, errors.Newf("unexpected arguments after command %q", parsed.Command)
		}
		return Parsed{}, errors.Newf("command %q requires %d argument(s)", parsed.Command, want)
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--user NAME] <command> [ARG]

Commands:
  serve           Run the session server
  query QUERY     Run one query against the local server and print the records
  status          Print server health and session count
  sessions        List live sessions
  terminate ID    Terminate a session by connection id
  hash-password   Read a password from stdin and print its bcrypt hash
  doctor          Run configuration and environment checks
  version         Print version information
  help            Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/boltd/config.yaml)
  --user NAME     User for query (password from $BOLTD_PASSWORD)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
