// Package session owns the GameLift side of the server process: readiness, the
// game session lifecycle callbacks, player session validation and shutdown.
package session

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/gamelift"
)

// DefaultLogFlushDelay gives the CloudWatch agent time to ship the last log lines
// before GameLift recycles the process.
const DefaultLogFlushDelay = 3 * time.Second

// ErrAlreadyInitialized is returned by Initialize on a host that is past NotReady.
var ErrAlreadyInitialized = errors.New("session host already initialized")

// Snapshot is a point-in-time copy of the session attributes.
type Snapshot struct {
	GameSessionID               string
	MatchmakingConfigurationArn string
	BackfillTicketID            string
	StartedAt                   time.Time
}

// Recorder is notified about session lifecycle events. Errors are logged and
// otherwise ignored.
type Recorder interface {
	SessionStarted(s Snapshot) error
	SessionEnded(s Snapshot, result ShutdownResult) error
}

// Recorders fans every event out to each of its members.
type Recorders []Recorder

// SessionStarted records the start with every member and joins their errors.
func (rs Recorders) SessionStarted(s Snapshot) error {
	var errs []error
	for _, r := range rs {
		errs = append(errs, r.SessionStarted(s))
	}
	return errors.Join(errs...)
}

// SessionEnded records the end with every member and joins their errors.
func (rs Recorders) SessionEnded(s Snapshot, result ShutdownResult) error {
	var errs []error
	for _, r := range rs {
		errs = append(errs, r.SessionEnded(s, result))
	}
	return errors.Join(errs...)
}

// ShutdownResult reports what the shutdown sequence did. None of its failures stop
// the sequence from running to completion.
type ShutdownResult struct {
	// Skipped is set when no session was active, in which case nothing was sent
	// to GameLift.
	Skipped          bool
	BackfillTicketID string
	BackfillStopped  bool
	SessionIDErr     error
	BackfillErr      error
	ProcessEndingErr error
}

// Err joins every failure that happened during shutdown.
func (r ShutdownResult) Err() error {
	return errors.Join(r.SessionIDErr, r.BackfillErr, r.ProcessEndingErr)
}

// Host registers the process with GameLift and tracks whether a game session is
// currently active. GameLift invokes the On* methods from its own goroutines.
type Host struct {
	SDK      gamelift.SDK
	Logger   *logrus.Logger
	Recorder Recorder

	// LogFlushDelay is slept between stopping backfill and ProcessEnding.
	LogFlushDelay time.Duration
	// Exit ends the process after a GameLift-initiated termination.
	Exit func(code int)

	active *atomic.Bool
	state  *atomic.Int32

	// mu guards the session attributes below.
	mu                          sync.Mutex
	gameSessionID               string
	backfillTicketID            *string
	matchmakingConfigurationArn *string
	startedAt                   time.Time

	// shutdownMu serializes session start with the planned and GameLift-initiated
	// shutdown paths.
	shutdownMu sync.Mutex
	closeOnce  sync.Once
}

func NewHost(sdk gamelift.SDK, logger *logrus.Logger) *Host {
	return &Host{
		SDK:           sdk,
		Logger:        logger,
		LogFlushDelay: DefaultLogFlushDelay,
		Exit:          os.Exit,
		active:        atomic.NewBool(false),
		state:         atomic.NewInt32(int32(NotReady)),
	}
}

// Initialize starts the SDK and tells GameLift the process is ready to host a
// game session on listenPort. Failure means the process must not accept players.
func (h *Host) Initialize(listenPort int, logPaths []string) error {
	if h.State() != NotReady {
		return ErrAlreadyInitialized
	}

	h.Logger.Info("[GAMELIFT] initializing sdk")
	if err := h.SDK.InitSDK(); err != nil {
		return fmt.Errorf("initializing gamelift sdk: %w", err)
	}

	h.Logger.WithFields(logrus.Fields{
		"port":      listenPort,
		"log_paths": logPaths,
	}).Info("[GAMELIFT] declaring process ready")

	err := h.SDK.ProcessReady(gamelift.ProcessParameters{
		OnStartGameSession:  h.OnSessionStart,
		OnUpdateGameSession: h.OnSessionUpdate,
		OnProcessTerminate:  h.OnProcessTerminate,
		OnHealthCheck:       h.OnHealthCheck,
		Port:                listenPort,
		LogPaths:            logPaths,
	})
	if err != nil {
		return fmt.Errorf("declaring process ready: %w", err)
	}

	h.state.Store(int32(Ready))
	h.Logger.Info("[GAMELIFT] process ready")
	return nil
}

// AcceptPlayerSession asks GameLift whether token is a player session reserved in
// the active game session. Any failure is treated as an invalid token.
func (h *Host) AcceptPlayerSession(token string) bool {
	if token == "" {
		h.Logger.Warn("[GAMELIFT] refusing to validate an empty player session id")
		return false
	}

	if err := h.SDK.AcceptPlayerSession(token); err != nil {
		h.Logger.WithField("player_session_id", token).
			Warnf("[GAMELIFT] AcceptPlayerSession failed: %v", err)
		return false
	}
	return true
}

// OnSessionStart is called by GameLift when a game session is placed on this
// process. A repeated call merges the new matchmaker data into what is stored.
// Shutdown waits until the session has been activated and recorded.
func (h *Host) OnSessionStart(gs gamelift.GameSession) {
	h.shutdownMu.Lock()
	defer h.shutdownMu.Unlock()

	h.mu.Lock()
	if st := h.State(); st == Terminating || st == Terminated {
		h.mu.Unlock()
		h.Logger.Warnf("[GAMELIFT] ignoring game session %s while %s", gs.GameSessionID, st)
		return
	}

	data, err := ParseMatchmakerData(gs.MatchmakerData)
	if err != nil {
		h.Logger.Warnf("[GAMELIFT] keeping previous backfill values: %v", err)
	} else {
		if data.AutoBackfillTicketID != nil {
			h.backfillTicketID = data.AutoBackfillTicketID
		}
		if data.MatchmakingConfigurationArn != nil {
			h.matchmakingConfigurationArn = data.MatchmakingConfigurationArn
		}
	}
	if gs.GameSessionID != "" {
		h.gameSessionID = gs.GameSessionID
	}
	if !h.active.Load() {
		h.startedAt = time.Now()
	}
	h.active.Store(true)
	h.state.Store(int32(Active))
	snapshot := h.snapshotLocked()
	h.mu.Unlock()

	h.Logger.WithFields(logrus.Fields{
		"game_session_id":               snapshot.GameSessionID,
		"backfill_ticket_id":            snapshot.BackfillTicketID,
		"matchmaking_configuration_arn": snapshot.MatchmakingConfigurationArn,
		"matched_players":               data.PlayerCount(),
	}).Info("[GAMELIFT] OnStartGameSession")

	if err := h.SDK.ActivateGameSession(); err != nil {
		h.Logger.Errorf("[GAMELIFT] ActivateGameSession failed: %v", err)
	} else {
		h.Logger.Info("[GAMELIFT] game session activated")
	}

	if h.Recorder != nil {
		if err := h.Recorder.SessionStarted(snapshot); err != nil {
			h.Logger.Warnf("[GAMELIFT] failed to record session start: %v", err)
		}
	}
}

// OnSessionUpdate is called by GameLift when backfill changes the session. Only the
// backfill ticket is consumed.
func (h *Host) OnSessionUpdate(u gamelift.UpdateGameSession) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if st := h.State(); st != Active {
		h.Logger.Debugf("[GAMELIFT] ignoring session update while %s", st)
		return
	}
	if u.BackfillTicketID == "" {
		return
	}

	ticket := u.BackfillTicketID
	h.backfillTicketID = &ticket
	h.Logger.WithField("backfill_ticket_id", ticket).Info("[GAMELIFT] updated backfill ticket")
}

// OnProcessTerminate is called by GameLift before it replaces the process. With a
// session active it shuts down and exits the process without returning.
func (h *Host) OnProcessTerminate() {
	h.Logger.Info("[GAMELIFT] OnProcessTerminate")

	if !h.HasSessionStarted() {
		h.Logger.Info("[GAMELIFT] no active game session, nothing to terminate")
		return
	}

	result := h.Terminate()
	if err := result.Err(); err != nil {
		h.Logger.Warnf("[GAMELIFT] shutdown completed with errors: %v", err)
	}
	h.Close()

	h.Logger.Info("[GAMELIFT] terminated by GameLift, exiting")
	h.Exit(0)
}

// OnHealthCheck reports the process as healthy whenever it is scheduled.
func (h *Host) OnHealthCheck() bool {
	h.Logger.Debug("[GAMELIFT] health check")
	return true
}

// Terminate ends the active session: it stops any running backfill ticket, waits
// for logs to flush and notifies GameLift that the process is ending. Calling it
// without an active session is a no-op.
func (h *Host) Terminate() ShutdownResult {
	h.shutdownMu.Lock()
	defer h.shutdownMu.Unlock()

	h.mu.Lock()
	if !h.active.Load() {
		h.mu.Unlock()
		return ShutdownResult{Skipped: true}
	}
	h.state.Store(int32(Terminating))
	snapshot := h.snapshotLocked()
	// Cleared here so a late update cannot hand out a ticket we already stopped.
	h.backfillTicketID = nil
	h.mu.Unlock()

	result := ShutdownResult{BackfillTicketID: snapshot.BackfillTicketID}

	if snapshot.BackfillTicketID != "" {
		h.Logger.Info("[GAMELIFT] stopping backfill before ending the process")

		sessionArn, err := h.SDK.GetGameSessionID()
		if err != nil || sessionArn == "" {
			if err != nil {
				result.SessionIDErr = fmt.Errorf("getting game session id: %w", err)
			}
			sessionArn = snapshot.GameSessionID
		}

		err = h.SDK.StopMatchBackfill(gamelift.StopBackfillRequest{
			TicketID:                    snapshot.BackfillTicketID,
			GameSessionArn:              sessionArn,
			MatchmakingConfigurationArn: snapshot.MatchmakingConfigurationArn,
		})
		if err != nil {
			result.BackfillErr = fmt.Errorf("stopping backfill ticket %s: %w", snapshot.BackfillTicketID, err)
		} else {
			result.BackfillStopped = true
		}
	}

	h.Logger.Info("[GAMELIFT] terminating game session")
	if h.LogFlushDelay > 0 {
		time.Sleep(h.LogFlushDelay)
	}

	if err := h.SDK.ProcessEnding(); err != nil {
		result.ProcessEndingErr = fmt.Errorf("notifying process ending: %w", err)
	}

	h.mu.Lock()
	h.active.Store(false)
	h.state.Store(int32(Terminated))
	h.mu.Unlock()

	if h.Recorder != nil {
		if err := h.Recorder.SessionEnded(snapshot, result); err != nil {
			h.Logger.Warnf("[GAMELIFT] failed to record session end: %v", err)
		}
	}
	return result
}

// Close releases the SDK. Only the first call has an effect.
func (h *Host) Close() {
	h.closeOnce.Do(func() {
		if err := h.SDK.Destroy(); err != nil {
			h.Logger.Warnf("[GAMELIFT] Destroy failed: %v", err)
		}
	})
}

// HasSessionStarted reports whether a game session is active. It never blocks.
func (h *Host) HasSessionStarted() bool {
	return h.active.Load()
}

// State reports where the host is in its lifecycle.
func (h *Host) State() State {
	return State(h.state.Load())
}

// Snapshot returns a copy of the current session attributes.
func (h *Host) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

// BackfillTicketID returns the stored backfill ticket and whether one is present.
func (h *Host) BackfillTicketID() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return stringValue(h.backfillTicketID), h.backfillTicketID != nil
}

// MatchmakingConfigurationArn returns the stored ARN and whether one is present.
func (h *Host) MatchmakingConfigurationArn() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return stringValue(h.matchmakingConfigurationArn), h.matchmakingConfigurationArn != nil
}

func (h *Host) snapshotLocked() Snapshot {
	return Snapshot{
		GameSessionID:               h.gameSessionID,
		MatchmakingConfigurationArn: stringValue(h.matchmakingConfigurationArn),
		BackfillTicketID:            stringValue(h.backfillTicketID),
		StartedAt:                   h.startedAt,
	}
}
