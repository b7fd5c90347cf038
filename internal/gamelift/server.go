package gamelift

import (
	"github.com/amazon-gamelift/amazon-gamelift-servers-go-server-sdk/v5/model"
	"github.com/amazon-gamelift/amazon-gamelift-servers-go-server-sdk/v5/model/request"
	"github.com/amazon-gamelift/amazon-gamelift-servers-go-server-sdk/v5/server"
)

// ServerParameters are only required on Anywhere fleets. Leave every field
// blank for processes running on managed EC2 instances.
type ServerParameters struct {
	WebSocketURL string
	ProcessID    string
	HostID       string
	FleetID      string
	AuthToken    string
}

// ServerSDK implements SDK on top of the GameLift Servers Go SDK. The vendor SDK
// keeps package-level state, so only one ServerSDK should exist per process.
type ServerSDK struct {
	Params ServerParameters
}

func NewServerSDK(params ServerParameters) *ServerSDK {
	return &ServerSDK{Params: params}
}

func (s *ServerSDK) InitSDK() error {
	return server.InitSDK(server.ServerParameters{
		WebSocketURL: s.Params.WebSocketURL,
		ProcessID:    s.Params.ProcessID,
		HostID:       s.Params.HostID,
		FleetID:      s.Params.FleetID,
		AuthToken:    s.Params.AuthToken,
	})
}

func (s *ServerSDK) ProcessReady(params ProcessParameters) error {
	return server.ProcessReady(server.ProcessParameters{
		OnStartGameSession: func(gs model.GameSession) {
			if params.OnStartGameSession != nil {
				params.OnStartGameSession(fromModelGameSession(gs))
			}
		},
		OnUpdateGameSession: func(u model.UpdateGameSession) {
			if params.OnUpdateGameSession != nil {
				params.OnUpdateGameSession(UpdateGameSession{
					GameSession:      fromModelGameSession(u.GameSession),
					BackfillTicketID: u.BackfillTicketID,
				})
			}
		},
		OnProcessTerminate: func() {
			if params.OnProcessTerminate != nil {
				params.OnProcessTerminate()
			}
		},
		OnHealthCheck: func() bool {
			if params.OnHealthCheck == nil {
				return true
			}
			return params.OnHealthCheck()
		},
		Port: params.Port,
		LogParameters: server.LogParameters{
			LogPaths: params.LogPaths,
		},
	})
}

func (s *ServerSDK) ActivateGameSession() error {
	return server.ActivateGameSession()
}

func (s *ServerSDK) AcceptPlayerSession(playerSessionID string) error {
	return server.AcceptPlayerSession(playerSessionID)
}

func (s *ServerSDK) GetGameSessionID() (string, error) {
	return server.GetGameSessionID()
}

func (s *ServerSDK) StopMatchBackfill(req StopBackfillRequest) error {
	stopRequest := request.NewStopMatchBackfill()
	stopRequest.TicketID = req.TicketID
	stopRequest.GameSessionArn = req.GameSessionArn
	stopRequest.MatchmakingConfigurationArn = req.MatchmakingConfigurationArn
	return server.StopMatchBackfill(stopRequest)
}

func (s *ServerSDK) ProcessEnding() error {
	return server.ProcessEnding()
}

func (s *ServerSDK) Destroy() error {
	return server.Destroy()
}

func fromModelGameSession(gs model.GameSession) GameSession {
	return GameSession{
		GameSessionID:             gs.GameSessionID,
		Name:                      gs.Name,
		FleetID:                   gs.FleetID,
		IPAddress:                 gs.IPAddress,
		DNSName:                   gs.DNSName,
		Port:                      gs.Port,
		MaximumPlayerSessionCount: gs.MaximumPlayerSessionCount,
		MatchmakerData:            gs.MatchmakerData,
		GameSessionData:           gs.GameSessionData,
	}
}
