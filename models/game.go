package models

import (
	"time"

	"gorm.io/gorm"
)

// GameResult archives a finished game.
type GameResult struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	RoomID        string         `json:"room_id" gorm:"size:16;not null;index"`
	RoomName      string         `json:"room_name" gorm:"not null"`
	CategoryName  string         `json:"category_name" gorm:"not null"`
	Difficulty    string         `json:"difficulty" gorm:"not null"`
	QuestionCount int            `json:"question_count" gorm:"not null"`
	FinishedAt    time.Time      `json:"finished_at" gorm:"not null;index"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Players []PlayerResult `json:"players,omitempty" gorm:"foreignKey:GameResultID;constraint:OnDelete:CASCADE"`
}
