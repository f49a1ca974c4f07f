package services

import (
	"context"
	"time"

	"opentrivia/models"

	"gorm.io/gorm"
)

const (
	defaultResultsLimit = 20
	maxResultsLimit     = 100
)

// ResultsService archives finished games in Postgres.
type ResultsService struct {
	db *gorm.DB
}

func NewResultsService(db *gorm.DB) *ResultsService {
	return &ResultsService{db: db}
}

// Migrate creates or updates the archive tables.
func (s *ResultsService) Migrate() error {
	return s.db.AutoMigrate(&models.GameResult{}, &models.PlayerResult{})
}

// RecordGame stores result together with its player rows.
func (s *ResultsService) RecordGame(ctx context.Context, result *models.GameResult) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(result).Error
	})
}

// RecentGames returns the latest finished games, newest first, with
// players in rank order.
func (s *ResultsService) RecentGames(ctx context.Context, limit int) ([]models.GameResult, error) {
	if limit <= 0 {
		limit = defaultResultsLimit
	}
	if limit > maxResultsLimit {
		limit = maxResultsLimit
	}

	var results []models.GameResult
	err := s.db.WithContext(ctx).
		Preload("Players", func(db *gorm.DB) *gorm.DB {
			return db.Order("player_results.rank")
		}).
		Order("finished_at DESC").
		Limit(limit).
		Find(&results).Error
	return results, err
}

// PruneBefore permanently deletes games finished before cutoff and
// returns how many were removed.
func (s *ResultsService) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Unscoped().Model(&models.GameResult{}).
			Where("finished_at < ?", cutoff).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Unscoped().Where("game_result_id IN ?", ids).Delete(&models.PlayerResult{}).Error; err != nil {
			return err
		}
		result := tx.Unscoped().Where("id IN ?", ids).Delete(&models.GameResult{})
		removed = result.RowsAffected
		return result.Error
	})
	return removed, err
}
