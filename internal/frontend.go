package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/core/client"
	metrics "github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/core/debug"
)

// Replies sent to players. Clients match on the exact text.
const (
	AcceptedReply = "Your connection was accepted and token valid"
	RejectedReply = "Your token is invalid"
)

// Reasons passed to Backend.Refuse.
const (
	refusedEmptyToken = "empty_token"
	refusedTimeout    = "timeout"
	refusedClosed     = "closed"
	refusedReadError  = "read_error"
)

// acceptRetryDelay paces the accept loop after a failed accept.
const acceptRetryDelay = 50 * time.Millisecond

type connState int32

const (
	awaitingToken connState = iota
	validating
	respondedAccepted
	respondedRejected
	closed
)

func (s connState) String() string {
	switch s {
	case awaitingToken:
		return "AwaitingToken"
	case validating:
		return "Validating"
	case respondedAccepted:
		return "RespondedAccepted"
	case respondedRejected:
		return "RespondedRejected"
	case closed:
		return "Closed"
	}
	return fmt.Sprintf("connState(%d)", int32(s))
}

// frontend implements the concurrent client connection logic.
//
// Each connection carries exactly one token: the frontend reads it, hands it to
// the Backend and writes back the verdict before closing the connection.
type frontend struct {
	Address string
	Backend Backend
	Config  *core.Config
	Logger  *logrus.Logger
	Metrics *metrics.Metrics

	socket net.Listener
	active *atomic.Int32
}

// Start initializes the server backend and opens a TCP socket for the specified server.
// A blocking loop for accepting client connections is spun off in its own goroutine and
// added to the WaitGroup. Context cancellations will stop the server.
func (f *frontend) Start(ctx context.Context, wg *sync.WaitGroup) error {
	if err := f.Backend.Init(ctx); err != nil {
		return fmt.Errorf("error initializing %s server: %v", f.Backend.Identifier(), err)
	}

	socket, err := listen(f.Address, f.Config.Admission.Backlog)
	if err != nil {
		return fmt.Errorf("error creating socket on %s: %w", f.Address, err)
	}
	f.socket = socket
	f.active = atomic.NewInt32(0)

	wg.Add(1)
	go f.startBlockingLoop(ctx, socket, wg)

	return nil
}

// Addr returns the bound address once Start has succeeded.
func (f *frontend) Addr() net.Addr {
	return f.socket.Addr()
}

// ActiveConnections is the number of connections currently being handled.
func (f *frontend) ActiveConnections() int {
	return int(f.active.Load())
}

// startBlockingLoop implements a connection handling loop that's purely responsible for
// accepting new connections and spinning off goroutines to handle them. At most
// MaxConnections are handled at once; further players wait in the listen backlog.
func (f *frontend) startBlockingLoop(ctx context.Context, socket net.Listener, wg *sync.WaitGroup) {
	defer wg.Done()

	f.Logger.Infof("[%s] waiting for connections on %v", f.Backend.Identifier(), socket.Addr())

	go func() {
		<-ctx.Done()
		_ = socket.Close()
	}()

	slots := make(chan struct{}, f.Config.MaxConnections)
	clientWg := &sync.WaitGroup{}
acceptLoop:
	for {
		select {
		case <-ctx.Done():
			break acceptLoop
		case slots <- struct{}{}:
		}

		connection, err := socket.Accept()
		if err != nil {
			<-slots
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				break acceptLoop
			}
			f.Logger.Warnf("[%s] failed to accept connection: %s", f.Backend.Identifier(), err)
			time.Sleep(acceptRetryDelay)
			continue
		}

		clientWg.Add(1)
		go func() {
			defer func() { <-slots }()
			f.acceptClient(connection, clientWg)
		}()
	}

	f.Logger.Infof("[%v] shutting down (waiting for connections to close)", f.Backend.Identifier())
	clientWg.Wait()
	f.Logger.Infof("[%v] exited", f.Backend.Identifier())
}

// acceptClient runs the single request/response exchange for one connection.
func (f *frontend) acceptClient(connection net.Conn, wg *sync.WaitGroup) {
	defer wg.Done()

	c := client.NewClient(connection)
	f.active.Inc()
	f.Metrics.ConnectionOpened()

	log := f.Logger.WithFields(logrus.Fields{
		"connection_id": c.ID,
		"remote_addr":   c.RemoteAddr(),
	})
	log.Infof("[%s] accepted connection from %s", f.Backend.Identifier(), c.IPAddr())

	state := awaitingToken
	defer f.closeConnectionAndRecover(log, c, &state)

	f.exchange(log, c, &state)
}

// exchange reads the token, asks the Backend for a verdict and replies. Nothing
// that fails to produce a token is ever passed to Admit.
func (f *frontend) exchange(log *logrus.Entry, c *client.Client, state *connState) {
	buffer := make([]byte, f.Config.Admission.MaxTokenSize)
	n, err := c.ReadWithTimeout(buffer, f.Config.Admission.ReadTimeout)

	var token string
	if n > 0 {
		token = parseToken(buffer[:n])
	}

	if token == "" {
		reason := refusedEmptyToken
		if n == 0 {
			reason = readFailureReason(err)
		}
		log.Warnf("[%s] no token received: %s (err=%v)", f.Backend.Identifier(), reason, err)
		f.Backend.Refuse(c, reason)
		f.transition(log, state, respondedRejected)
		f.reply(log, c, RejectedReply)
		return
	}

	f.transition(log, state, validating)
	if f.Backend.Admit(c, token) {
		f.transition(log, state, respondedAccepted)
		f.reply(log, c, AcceptedReply)
	} else {
		f.transition(log, state, respondedRejected)
		f.reply(log, c, RejectedReply)
	}
}

// reply writes msg to the player. Failures are logged since the connection is
// closed right after.
func (f *frontend) reply(log *logrus.Entry, c *client.Client, msg string) {
	if err := c.Send(msg, f.Config.Admission.ReadTimeout); err != nil {
		log.Warnf("[%s] %s", f.Backend.Identifier(), err)
	}
}

func (f *frontend) transition(log *logrus.Entry, state *connState, next connState) {
	log.Debugf("[%s] connection %s -> %s", f.Backend.Identifier(), *state, next)
	*state = next
}

// closeConnectionAndRecover is the failsafe that catches any panics and disconnects
// the client regardless of the state of the connection.
func (f *frontend) closeConnectionAndRecover(log *logrus.Entry, c *client.Client, state *connState) {
	if err := recover(); err != nil {
		log.Errorf("error in client communication with %s: error=%s, trace: %s",
			c.IPAddr(), err, debug.Stack())
	}

	if err := c.Close(); err != nil {
		log.Warnf("failed to close client connection: %s", err)
	}
	f.transition(log, state, closed)

	f.active.Dec()
	f.Metrics.ConnectionClosed()

	log.Infof("[%s] disconnected client %s", f.Backend.Identifier(), c.IPAddr())
}

// parseToken returns the first line of data with trailing carriage returns and
// NUL padding removed.
func parseToken(data []byte) string {
	line, _, _ := bytes.Cut(data, []byte("\n"))
	return strings.TrimRight(string(line), "\r\x00")
}

func readFailureReason(err error) string {
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return refusedTimeout
	case err == nil, errors.Is(err, io.EOF):
		return refusedClosed
	}
	return refusedReadError
}
