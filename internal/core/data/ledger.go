package data

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aws-solutions-library-samples/guidance-for-custom-game-backend-hosting-on-aws/internal/session"
)

// Ledger persists session lifecycle events and admission decisions.
type Ledger struct {
	DB *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{DB: db}
}

func (l *Ledger) SessionStarted(s session.Snapshot) error {
	err := UpsertGameSession(l.DB, &GameSession{
		GameSessionID:               s.GameSessionID,
		MatchmakingConfigurationArn: s.MatchmakingConfigurationArn,
		BackfillTicketID:            s.BackfillTicketID,
		StartedAt:                   s.StartedAt,
	})
	if err != nil {
		return fmt.Errorf("recording start of game session %s: %w", s.GameSessionID, err)
	}
	return nil
}

func (l *Ledger) SessionEnded(s session.Snapshot, result session.ShutdownResult) error {
	gs, err := FindGameSession(l.DB, s.GameSessionID)
	if err != nil {
		return fmt.Errorf("finding game session %s: %w", s.GameSessionID, err)
	}
	if gs == nil {
		gs = &GameSession{
			GameSessionID:               s.GameSessionID,
			MatchmakingConfigurationArn: s.MatchmakingConfigurationArn,
			StartedAt:                   s.StartedAt,
		}
	}

	endedAt := time.Now()
	gs.EndedAt = &endedAt
	gs.BackfillTicketID = result.BackfillTicketID
	gs.BackfillStopped = result.BackfillStopped
	gs.ShutdownError = ""
	if err := result.Err(); err != nil {
		gs.ShutdownError = err.Error()
	}

	if err := UpsertGameSession(l.DB, gs); err != nil {
		return fmt.Errorf("recording end of game session %s: %w", s.GameSessionID, err)
	}
	return nil
}

func (l *Ledger) RecordAdmission(admission *PlayerAdmission) error {
	if err := CreatePlayerAdmission(l.DB, admission); err != nil {
		return fmt.Errorf("recording admission for connection %s: %w", admission.ConnectionID, err)
	}
	return nil
}
