// Package gamelifttest provides an in-memory gamelift.SDK that records every call
// made against it so tests can assert on ordering and arguments.
package gamelifttest

import (
	"errors"
	"sync"

	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/gamelift"
)

// Names of the recorded calls.
const (
	CallInitSDK             = "InitSDK"
	CallProcessReady        = "ProcessReady"
	CallActivateGameSession = "ActivateGameSession"
	CallAcceptPlayerSession = "AcceptPlayerSession"
	CallGetGameSessionID    = "GetGameSessionID"
	CallStopMatchBackfill   = "StopMatchBackfill"
	CallProcessEnding       = "ProcessEnding"
	CallDestroy             = "Destroy"
)

// ErrInvalidPlayerSession is returned by AcceptPlayerSession for tokens that
// were not registered with AddPlayerSession.
var ErrInvalidPlayerSession = errors.New("player session is not reserved for this game session")

// SDK is a scriptable fake. The zero value is not usable; call New.
type SDK struct {
	mu sync.Mutex

	calls         []string
	params        *gamelift.ProcessParameters
	gameSessionID string
	playerIDs     map[string]bool
	stopRequests  []gamelift.StopBackfillRequest
	acceptedIDs   []string

	// Errors returned by the matching call when non-nil.
	InitErr          error
	ProcessReadyErr  error
	ActivateErr      error
	AcceptErr        error
	StopBackfillErr  error
	ProcessEndingErr error
	SessionIDErr     error

	// ActivateHook, when set, runs inside ActivateGameSession before it returns.
	ActivateHook func()
}

func New() *SDK {
	return &SDK{playerIDs: make(map[string]bool)}
}

// AddPlayerSession makes id a valid token for AcceptPlayerSession.
func (s *SDK) AddPlayerSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerIDs[id] = true
}

// StartGameSession invokes the registered OnStartGameSession callback the way
// the GameLift service would after a placement.
func (s *SDK) StartGameSession(gs gamelift.GameSession) {
	s.mu.Lock()
	s.gameSessionID = gs.GameSessionID
	params := s.params
	s.mu.Unlock()

	if params != nil && params.OnStartGameSession != nil {
		params.OnStartGameSession(gs)
	}
}

// UpdateGameSession invokes the registered OnUpdateGameSession callback.
func (s *SDK) UpdateGameSession(u gamelift.UpdateGameSession) {
	if params := s.Params(); params != nil && params.OnUpdateGameSession != nil {
		params.OnUpdateGameSession(u)
	}
}

// TerminateProcess invokes the registered OnProcessTerminate callback.
func (s *SDK) TerminateProcess() {
	if params := s.Params(); params != nil && params.OnProcessTerminate != nil {
		params.OnProcessTerminate()
	}
}

// HealthCheck invokes the registered OnHealthCheck callback.
func (s *SDK) HealthCheck() bool {
	if params := s.Params(); params != nil && params.OnHealthCheck != nil {
		return params.OnHealthCheck()
	}
	return false
}

// Params returns the parameters passed to ProcessReady, or nil.
func (s *SDK) Params() *gamelift.ProcessParameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// Calls returns the names of all calls made so far, in order.
func (s *SDK) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// CallCount returns how many times the named call was made.
func (s *SDK) CallCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == name {
			n++
		}
	}
	return n
}

// StopRequests returns every StopMatchBackfill request received.
func (s *SDK) StopRequests() []gamelift.StopBackfillRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gamelift.StopBackfillRequest(nil), s.stopRequests...)
}

// AcceptedPlayerSessions returns the ids passed to AcceptPlayerSession.
func (s *SDK) AcceptedPlayerSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.acceptedIDs...)
}

func (s *SDK) record(name string) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()
}

func (s *SDK) InitSDK() error {
	s.record(CallInitSDK)
	return s.InitErr
}

func (s *SDK) ProcessReady(params gamelift.ProcessParameters) error {
	s.record(CallProcessReady)
	if s.ProcessReadyErr != nil {
		return s.ProcessReadyErr
	}
	s.mu.Lock()
	s.params = &params
	s.mu.Unlock()
	return nil
}

func (s *SDK) ActivateGameSession() error {
	s.record(CallActivateGameSession)
	if s.ActivateHook != nil {
		s.ActivateHook()
	}
	return s.ActivateErr
}

func (s *SDK) AcceptPlayerSession(playerSessionID string) error {
	s.record(CallAcceptPlayerSession)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.acceptedIDs = append(s.acceptedIDs, playerSessionID)
	if s.AcceptErr != nil {
		return s.AcceptErr
	}
	if !s.playerIDs[playerSessionID] {
		return ErrInvalidPlayerSession
	}
	return nil
}

func (s *SDK) GetGameSessionID() (string, error) {
	s.record(CallGetGameSessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SessionIDErr != nil {
		return "", s.SessionIDErr
	}
	return s.gameSessionID, nil
}

func (s *SDK) StopMatchBackfill(req gamelift.StopBackfillRequest) error {
	s.record(CallStopMatchBackfill)

	s.mu.Lock()
	s.stopRequests = append(s.stopRequests, req)
	s.mu.Unlock()
	return s.StopBackfillErr
}

func (s *SDK) ProcessEnding() error {
	s.record(CallProcessEnding)
	return s.ProcessEndingErr
}

func (s *SDK) Destroy() error {
	s.record(CallDestroy)
	return nil
}
