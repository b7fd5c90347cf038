// Package gamelift defines the subset of the Amazon GameLift Servers SDK that the
// game server relies on, along with the session types passed to its callbacks.
package gamelift

import "errors"

// ErrNotInitialized is returned by SDK implementations when a call is made
// before InitSDK has succeeded.
var ErrNotInitialized = errors.New("gamelift sdk not initialized")

// GameSession describes the session GameLift asks this process to host.
type GameSession struct {
	GameSessionID             string
	Name                      string
	FleetID                   string
	IPAddress                 string
	DNSName                   string
	Port                      int
	MaximumPlayerSessionCount int
	// MatchmakerData is the JSON document FlexMatch attaches to sessions it
	// created. Empty for sessions created without matchmaking.
	MatchmakerData  string
	GameSessionData string
}

// UpdateGameSession is delivered when FlexMatch backfill changes the session.
type UpdateGameSession struct {
	GameSession      GameSession
	BackfillTicketID string
}

// ProcessParameters are handed to ProcessReady. The callbacks are invoked by the
// SDK on its own goroutines at arbitrary times once ProcessReady returns.
type ProcessParameters struct {
	OnStartGameSession  func(GameSession)
	OnUpdateGameSession func(UpdateGameSession)
	OnProcessTerminate  func()
	OnHealthCheck       func() bool

	Port     int
	LogPaths []string
}

// StopBackfillRequest identifies a running backfill ticket to cancel.
type StopBackfillRequest struct {
	TicketID                    string
	GameSessionArn              string
	MatchmakingConfigurationArn string
}

// SDK is the server-side GameLift API consumed by the session host.
type SDK interface {
	InitSDK() error
	ProcessReady(params ProcessParameters) error
	ActivateGameSession() error
	AcceptPlayerSession(playerSessionID string) error
	GetGameSessionID() (string, error)
	StopMatchBackfill(req StopBackfillRequest) error
	ProcessEnding() error
	Destroy() error
}
