// The server command is the game server process GameLift launches on each fleet
// instance. It registers with GameLift, admits players holding a valid player
// session and ends itself once its game session has run its course.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal"
	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/gamelift"
)

func main() {
	args, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Println("error parsing launch parameters:", err)
		os.Exit(2)
	}

	config, err := core.LoadConfig(args.configDir, args.configFlags())
	if err != nil {
		fmt.Println("error loading configuration:", err)
		os.Exit(1)
	}

	// Send anything the SDK or the runtime prints to the same file GameLift
	// uploads at the end of the session.
	if err := core.RedirectStandardStreams(config.LogFile()); err != nil {
		fmt.Println("error redirecting output:", err)
	}

	logger, err := core.NewLogger(config)
	if err != nil {
		fmt.Println("error initializing logger:", err)
		os.Exit(1)
	}

	// Bind the Controller to one top-level server context so that we can shut down cleanly.
	ctx, cancel := context.WithCancel(context.Background())

	// Register a SIGTERM handler so that Ctrl-C will shut the server down gracefully.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go exitHandler(cancel, c)

	controller := &internal.Controller{
		Config: config,
		Logger: logger,
		SDK: gamelift.NewServerSDK(gamelift.ServerParameters{
			WebSocketURL: config.GameLift.WebSocketURL,
			ProcessID:    config.GameLift.ProcessID,
			HostID:       config.GameLift.HostID,
			FleetID:      config.GameLift.FleetID,
			AuthToken:    config.GameLift.AuthToken,
		}),
	}
	if err := controller.Start(ctx); err != nil {
		logger.Errorf("[SUPERVISOR] %v", err)
		os.Exit(1)
	}
	logger.Info("shut down")
}

func exitHandler(cancelFn func(), c chan os.Signal) {
	<-c
	fmt.Println("waiting to shut down gracefully...")
	cancelFn()

	<-c
	fmt.Println("hard exiting (killed)")
	os.Exit(1)
}
