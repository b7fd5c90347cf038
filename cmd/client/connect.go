package main

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal"
)

func connectCommand() *cli.Command {
	return &cli.Command{
		Name:        "connect",
		Usage:       "present a player session id to a game server",
		Description: "Connects to the admission listener, sends the token and prints the reply.",
		Action:      connectAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "address",
				Aliases:  []string{"a"},
				Usage:    "host:port of the game server",
				EnvVars:  []string{"GAMESERVER_ADDRESS"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "token",
				Aliases:  []string{"t"},
				Usage:    "player session id returned by CreatePlayerSession or matchmaking",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "how long to wait for the connection and the reply",
				Value: 5 * time.Second,
			},
		},
	}
}

func connectAction(c *cli.Context) error {
	reply, err := connect(c.String("address"), c.String("token"), c.Duration("timeout"))
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, reply)
	if reply != internal.AcceptedReply {
		return cli.Exit("", 1)
	}
	return nil
}

// connect sends token to the admission listener at address and returns its reply.
func connect(address, token string, timeout time.Duration) (string, error) {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return "", fmt.Errorf("error connecting to %s: %w", address, err)
	}
	defer conn.Close()

	tcpConn, ok := conn.(*net.TCPConn)
	if ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			return "", fmt.Errorf("error setting TCP_NODELAY: %w", err)
		}
	}
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}

	if _, err := conn.Write([]byte(token)); err != nil {
		return "", fmt.Errorf("error sending token: %w", err)
	}
	if ok {
		if err := tcpConn.CloseWrite(); err != nil {
			return "", fmt.Errorf("error closing write side: %w", err)
		}
	}

	reply, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("error reading reply: %w", err)
	}
	return string(reply), nil
}
