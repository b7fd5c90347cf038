package main

import (
	"strings"

	"github.com/spf13/pflag"

	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/core"
)

// launchArgs holds the parsed command line.
type launchArgs struct {
	flags     *pflag.FlagSet
	configDir string
}

// parseArgs reads the launch parameters GameLift passes from the fleet runtime
// configuration, e.g. "-logFile /local/game/logs/myserver1935.log -port 1935".
// Parameters this server does not know about are ignored.
func parseArgs(args []string) (*launchArgs, error) {
	fs := pflag.NewFlagSet("gameserver", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true

	fs.Int("port", core.DefaultPort, "Port players connect to")
	fs.String("logFile", "", "Path of the server log file (default logs/myserver<port>.log)")
	configDir := fs.String("config", "./", "Path to the directory containing the server config file")

	if err := fs.Parse(normalizeArgs(args)); err != nil {
		return nil, err
	}
	return &launchArgs{flags: fs, configDir: *configDir}, nil
}

// configFlags maps config keys to the flags that override them.
func (a *launchArgs) configFlags() map[string]*pflag.Flag {
	return map[string]*pflag.Flag{
		"port":          a.flags.Lookup("port"),
		"log_file_path": a.flags.Lookup("logFile"),
	}
}

// normalizeArgs rewrites single-dash long flags ("-port") to the double-dash
// form pflag expects. Shorthand flags and values are left alone.
func normalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if len(arg) > 2 && arg[0] == '-' && arg[1] != '-' && !isNumber(arg[1:]) {
			arg = "-" + arg
		}
		out = append(out, arg)
	}
	return out
}

func isNumber(s string) bool {
	return strings.Trim(s, "0123456789.") == ""
}
