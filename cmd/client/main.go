// The client command is a test client for the game server's admission listener:
// it connects, presents a player session id and prints the server's verdict.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := app().Run(os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "client error: %v\n", err)
		os.Exit(1)
	}
}

func app() *cli.App {
	app := cli.NewApp()
	app.Name = "client"
	app.Usage = "game server test client"
	app.Commands = []*cli.Command{
		connectCommand(),
	}
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app
}
