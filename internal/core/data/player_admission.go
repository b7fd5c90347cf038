package data

import (
	"time"

	"gorm.io/gorm"
)

// PlayerAdmission records the decision made for one connection to the admission
// listener.
type PlayerAdmission struct {
	ID              uint64 `gorm:"primaryKey"`
	GameSessionID   string `gorm:"index"`
	ConnectionID    string `gorm:"not null"`
	RemoteAddr      string
	PlayerSessionID string
	Accepted        bool
	Reason          string
	CreatedAt       time.Time
}

func CreatePlayerAdmission(db *gorm.DB, admission *PlayerAdmission) error {
	return db.Create(admission).Error
}

// FindPlayerAdmissions returns every admission recorded for gameSessionID in the
// order they were made.
func FindPlayerAdmissions(db *gorm.DB, gameSessionID string) ([]PlayerAdmission, error) {
	var admissions []PlayerAdmission
	err := db.Where("game_session_id = ?", gameSessionID).Order("id").Find(&admissions).Error
	return admissions, err
}
