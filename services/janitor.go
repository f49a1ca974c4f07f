package services

import (
	"context"
	"time"

	"opentrivia/clock"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ResultsPruner deletes archived games finished before cutoff.
type ResultsPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor runs the periodic cleanup jobs: deleting rooms nobody ever came
// back to, and trimming the results archive.
type Janitor struct {
	cron         *cron.Cron
	exec         Executor
	registry     *Registry
	clock        clock.Clock
	abandonedTTL time.Duration
	results      ResultsPruner
	retention    time.Duration
	logger       *zap.Logger
}

// NewJanitor builds the jobs. results may be nil when no archive is
// configured.
func NewJanitor(exec Executor, registry *Registry, clk clock.Clock, abandonedTTL time.Duration, results ResultsPruner, retention time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		cron:         cron.New(),
		exec:         exec,
		registry:     registry,
		clock:        clk,
		abandonedTTL: abandonedTTL,
		results:      results,
		retention:    retention,
		logger:       logger,
	}
}

func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc("@every 1m", func() {
		j.exec.Post(func() { j.SweepAbandonedRooms() })
	}); err != nil {
		return err
	}
	if j.results != nil {
		if _, err := j.cron.AddFunc("@hourly", j.PruneResults); err != nil {
			return err
		}
	}
	j.cron.Start()
	return nil
}

// Stop stops scheduling; the returned context is done once running jobs
// have finished.
func (j *Janitor) Stop() context.Context {
	return j.cron.Stop()
}

// SweepAbandonedRooms deletes deleteOnEmpty rooms that have been empty for
// longer than the abandoned-room TTL. It must run on the Loop.
func (j *Janitor) SweepAbandonedRooms() int {
	now := j.clock.Now()
	removed := 0
	for _, room := range j.registry.Rooms() {
		if !room.DeleteOnEmpty() || room.Len() > 0 || room.EmptySince().IsZero() {
			continue
		}
		if now.Sub(room.EmptySince()) < j.abandonedTTL {
			continue
		}
		j.registry.DeleteRoom(room)
		removed++
	}
	if removed > 0 {
		j.logger.Info("Swept abandoned rooms", zap.Int("rooms_deleted", removed))
	}
	return removed
}

func (j *Janitor) PruneResults() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := j.results.PruneBefore(ctx, j.clock.Now().Add(-j.retention))
	if err != nil {
		j.logger.Error("Failed to prune game results", zap.Error(err))
		return
	}
	j.logger.Info("Pruned game results", zap.Int64("results_deleted", removed))
}
