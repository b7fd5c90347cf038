// Package admission decides whether a player connecting to the game server holds
// a player session reserved in the active game session.
package admission

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/core"
	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/core/client"
	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/core/data"
	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/core/debug"
	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/session"
)

// Decision results, used as metric labels and ledger reasons.
const (
	ResultAccepted  = "accepted"
	ResultInvalid   = "invalid"
	ResultDuplicate = "duplicate"
)

// Gate validates player session ids. *session.Host is the production Gate.
type Gate interface {
	AcceptPlayerSession(playerSessionID string) bool
	Snapshot() session.Snapshot
}

// Ledger persists each decision.
type Ledger interface {
	RecordAdmission(admission *data.PlayerAdmission) error
}

// Server is the admission backend: it receives the token read from each
// connection and answers whether the player may join.
type Server struct {
	Name    string
	Config  *core.Config
	Logger  *logrus.Logger
	Gate    Gate
	Ledger  Ledger
	Metrics *debug.Metrics

	tokens *tokenCache
}

func (s *Server) Identifier() string {
	return s.Name
}

func (s *Server) Init(ctx context.Context) error {
	if s.Gate == nil {
		return errors.New("no session gate configured")
	}
	if ttl := s.Config.Admission.DuplicateTokenTTL; ttl > 0 {
		s.tokens = newTokenCache(ttl)
		s.Logger.Infof("[%s] refusing reused tokens for %s", s.Name, ttl)
	}
	return nil
}

// Admit reports whether token is a valid player session id that has not been
// used by an earlier connection.
func (s *Server) Admit(c *client.Client, token string) bool {
	if token == "" {
		s.Refuse(c, "empty_token")
		return false
	}

	if s.tokens != nil && !s.tokens.Reserve(token) {
		s.record(c, token, false, ResultDuplicate)
		return false
	}

	if !s.Gate.AcceptPlayerSession(token) {
		if s.tokens != nil {
			s.tokens.Release(token)
		}
		s.record(c, token, false, ResultInvalid)
		return false
	}

	s.record(c, token, true, ResultAccepted)
	return true
}

// Refuse records a connection that was turned away before a token could be
// validated.
func (s *Server) Refuse(c *client.Client, reason string) {
	s.record(c, "", false, reason)
}

func (s *Server) record(c *client.Client, token string, accepted bool, reason string) {
	gameSessionID := s.Gate.Snapshot().GameSessionID

	s.Logger.WithFields(logrus.Fields{
		"connection_id":     c.ID,
		"remote_addr":       c.RemoteAddr(),
		"player_session_id": token,
		"game_session_id":   gameSessionID,
		"accepted":          accepted,
	}).Infof("[%s] admission %s", s.Name, reason)

	s.Metrics.Admission(reason)

	if s.Ledger == nil {
		return
	}
	err := s.Ledger.RecordAdmission(&data.PlayerAdmission{
		GameSessionID:   gameSessionID,
		ConnectionID:    c.ID,
		RemoteAddr:      c.RemoteAddr(),
		PlayerSessionID: token,
		Accepted:        accepted,
		Reason:          reason,
	})
	if err != nil {
		s.Logger.Warnf("[%s] %v", s.Name, err)
	}
}
