package data

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// GameSession is one game session hosted by this process, from activation to
// the end of the shutdown sequence.
type GameSession struct {
	ID                          uint64 `gorm:"primaryKey"`
	GameSessionID               string `gorm:"uniqueIndex; not null"`
	MatchmakingConfigurationArn string
	BackfillTicketID            string
	StartedAt                   time.Time
	EndedAt                     *time.Time
	BackfillStopped             bool `gorm:"default:false"`
	ShutdownError               string
}

// FindGameSession returns the session with the GameLift id gameSessionID, or nil
// if there is no match.
func FindGameSession(db *gorm.DB, gameSessionID string) (*GameSession, error) {
	var gs GameSession
	err := db.Where("game_session_id = ?", gameSessionID).First(&gs).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &gs, nil
}

// UpsertGameSession creates gs or, when a row for its GameSessionID exists,
// overwrites it.
func UpsertGameSession(db *gorm.DB, gs *GameSession) error {
	return db.Transaction(func(tx *gorm.DB) error {
		existing, err := FindGameSession(tx, gs.GameSessionID)
		if err != nil {
			return err
		}
		if existing == nil {
			return tx.Create(gs).Error
		}
		gs.ID = existing.ID
		return tx.Save(gs).Error
	})
}
