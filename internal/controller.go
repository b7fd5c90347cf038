package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"gorm.io/gorm"

	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/admission"
	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/core/data"
	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/core/debug"
	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/gamelift"
	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/session"
)

// Phase is the supervisor's position in the process lifecycle.
type Phase int32

const (
	Starting Phase = iota
	WaitingForSession
	SessionActive
	Draining
	Exited
)

func (p Phase) String() string {
	switch p {
	case Starting:
		return "Starting"
	case WaitingForSession:
		return "WaitingForSession"
	case SessionActive:
		return "SessionActive"
	case Draining:
		return "Draining"
	case Exited:
		return "Exited"
	}
	return fmt.Sprintf("Phase(%d)", int32(p))
}

// Controller is the main entrypoint for the game server. It's responsible for
// initializing any shared resources (session ledger, metrics, GameLift), starting
// the admission listener and ending the process once its game session has run
// for the configured dwell time.
type Controller struct {
	Config *core.Config
	Logger *logrus.Logger
	SDK    gamelift.SDK
	// Exit ends the process after a planned shutdown. Defaults to os.Exit.
	Exit func(code int)

	phase atomic.Int32
	wg    sync.WaitGroup

	host      *session.Host
	metrics   *debug.Metrics
	db        *gorm.DB
	admission *frontend
	debugSrv  *http.Server
}

// Start runs the process lifecycle. Errors are returned only for failures that
// must keep the process from accepting players. Cancelling ctx runs the same
// shutdown sequence and returns without calling Exit.
func (c *Controller) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if c.Exit == nil {
		c.Exit = os.Exit
	}
	c.setPhase(Starting)

	if err := c.startServices(ctx); err != nil {
		c.cleanup()
		return err
	}

	c.setPhase(WaitingForSession)
	if !c.waitForSession(ctx) {
		c.stop(cancel)
		return nil
	}

	c.setPhase(SessionActive)
	dwell := time.NewTimer(c.Config.Session.DwellTime)
	defer dwell.Stop()
	select {
	case <-dwell.C:
	case <-ctx.Done():
		c.stop(cancel)
		return nil
	}

	c.drain(cancel)
	c.cleanup()
	c.setPhase(Exited)
	c.Logger.Info("[SUPERVISOR] game session ended, exiting")
	c.Exit(0)
	return nil
}

// Phase reports the current lifecycle phase.
func (c *Controller) Phase() Phase {
	return Phase(c.phase.Load())
}

// Host returns the session host once Start has initialized it.
func (c *Controller) Host() *session.Host {
	return c.host
}

// AdmissionAddr returns the address the admission listener is bound to.
func (c *Controller) AdmissionAddr() net.Addr {
	return c.admission.Addr()
}

func (c *Controller) setPhase(p Phase) {
	prev := Phase(c.phase.Swap(int32(p)))
	if prev != p {
		c.Logger.Infof("[SUPERVISOR] %s -> %s", prev, p)
	}
}

// startServices brings up everything the Starting phase needs. Failure to
// initialize GameLift or to open the listening socket is terminal.
func (c *Controller) startServices(ctx context.Context) error {
	c.Logger.Infof("[SUPERVISOR] server port: %d", c.Config.Port)

	c.metrics = debug.NewMetrics()
	if c.Config.Debugging.Enabled {
		c.debugSrv = debug.StartUtilities(c.Logger, c.Config.Debugging.PprofPort, c.metrics)
	}

	recorders := session.Recorders{c.metrics}
	logPaths := []string{absPath(c.Config.LogFile())}

	var ledger admission.Ledger
	db, err := data.Initialize(c.Config)
	switch {
	case errors.Is(err, data.ErrDisabled):
		c.Logger.Info("[SUPERVISOR] session ledger disabled")
	case err != nil:
		// The ledger is a record of what happened; admission works without it.
		c.Logger.Warnf("[SUPERVISOR] running without a session ledger: %v", err)
	default:
		c.db = db
		l := data.NewLedger(db)
		ledger = l
		recorders = append(recorders, l)
		if c.Config.Database.Engine != "postgres" {
			logPaths = append(logPaths, absPath(c.Config.Database.Filename))
		}
	}

	c.host = session.NewHost(c.SDK, c.Logger)
	c.host.Recorder = recorders
	c.host.LogFlushDelay = c.Config.Session.LogFlushDelay
	c.host.Exit = c.Exit

	if err := c.host.Initialize(c.Config.Port, logPaths); err != nil {
		return fmt.Errorf("error initializing game session host: %w", err)
	}

	c.admission = &frontend{
		Address: c.Config.ListenAddress(),
		Backend: &admission.Server{
			Name:    "ADMISSION",
			Config:  c.Config,
			Logger:  c.Logger,
			Gate:    c.host,
			Ledger:  ledger,
			Metrics: c.metrics,
		},
		Config:  c.Config,
		Logger:  c.Logger,
		Metrics: c.metrics,
	}
	if err := c.admission.Start(ctx, &c.wg); err != nil {
		return fmt.Errorf("error starting %s server: %w", c.admission.Backend.Identifier(), err)
	}
	return nil
}

// waitForSession polls the session host until GameLift has started a session.
// It returns false if ctx is cancelled first.
func (c *Controller) waitForSession(ctx context.Context) bool {
	ticker := time.NewTicker(c.Config.Session.PollInterval)
	defer ticker.Stop()

	for !c.host.HasSessionStarted() {
		c.Logger.Debug("[SUPERVISOR] waiting for game session")
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	c.Logger.Infof("[SUPERVISOR] game session started, ending it in %s", c.Config.Session.DwellTime)
	return true
}

// stop handles cancellation of the Start context: it drains and then waits for
// the connection handlers to finish.
func (c *Controller) stop(cancel context.CancelFunc) {
	c.Logger.Info("[SUPERVISOR] shutting down")
	c.drain(cancel)
	c.wg.Wait()
	c.cleanup()
	c.setPhase(Exited)
}

// drain runs the shutdown sequence and stops the admission listener. In-flight
// connections are not waited for.
func (c *Controller) drain(stopListener context.CancelFunc) {
	c.setPhase(Draining)

	result := c.host.Terminate()
	if result.Skipped {
		c.Logger.Info("[SUPERVISOR] no active game session to terminate")
	} else if err := result.Err(); err != nil {
		c.Logger.Warnf("[SUPERVISOR] shutdown completed with errors: %v", err)
	}

	stopListener()
}

// cleanup releases the SDK, the ledger and the debug server.
func (c *Controller) cleanup() {
	if c.host != nil {
		c.host.Close()
	}
	if c.db != nil {
		if err := data.Shutdown(c.db); err != nil {
			c.Logger.Warnf("[SUPERVISOR] %v", err)
		}
		c.db = nil
	}
	if c.debugSrv != nil {
		_ = c.debugSrv.Close()
	}
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
