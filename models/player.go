package models

import (
	"time"

	"gorm.io/gorm"
)

type PlayerResult struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	GameResultID   uint           `json:"game_result_id" gorm:"not null;index"`
	Rank           int            `json:"rank" gorm:"not null"`
	Nickname       string         `json:"nickname" gorm:"not null"`
	Points         int            `json:"points" gorm:"not null;default:0"`
	QuestionsRight int            `json:"questions_right" gorm:"not null;default:0"`
	QuestionsWrong int            `json:"questions_wrong" gorm:"not null;default:0"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
}
