package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"opentrivia/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	lobbyRoomsKey    = "trivia:rooms"
	lobbyChannel     = "trivia:lobby"
	lobbyQueueLength = 256
)

// LobbyMirror copies room summaries into Redis for lobby views running in
// other processes: the hash trivia:rooms holds one JSON summary per room,
// and every change is also published on trivia:lobby.
type LobbyMirror struct {
	redis  *redis.Client
	events chan LifecycleEvent
	logger *zap.Logger
}

type lobbyNotification struct {
	Kind string             `json:"kind"`
	Room models.RoomSummary `json:"room"`
}

func NewLobbyMirror(client *redis.Client, logger *zap.Logger) *LobbyMirror {
	return &LobbyMirror{
		redis:  client,
		events: make(chan LifecycleEvent, lobbyQueueLength),
		logger: logger,
	}
}

// Watch queues bus events for Run. It never blocks the Loop; events that
// do not fit in the queue are dropped and logged.
func (m *LobbyMirror) Watch(bus *LifecycleBus) (unsubscribe func()) {
	return bus.Subscribe(func(event LifecycleEvent) {
		select {
		case m.events <- event:
		default:
			m.logger.Warn("Lobby mirror queue full, dropping event", zap.String("room_id", event.Room.ID), zap.Stringer("kind", event.Kind))
		}
	})
}

// Run clears summaries left behind by an earlier process, then applies
// queued events until ctx is done.
func (m *LobbyMirror) Run(ctx context.Context) {
	if err := m.redis.Del(ctx, lobbyRoomsKey).Err(); err != nil {
		m.logger.Warn("Failed to clear lobby mirror", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-m.events:
			if err := m.apply(ctx, event); err != nil {
				m.logger.Warn("Failed to mirror room event", zap.String("room_id", event.Room.ID), zap.Error(err))
			}
		}
	}
}

func (m *LobbyMirror) apply(ctx context.Context, event LifecycleEvent) error {
	summary, err := json.Marshal(event.Room)
	if err != nil {
		return err
	}
	notification, err := json.Marshal(lobbyNotification{Kind: event.Kind.String(), Room: event.Room})
	if err != nil {
		return err
	}

	pipe := m.redis.TxPipeline()
	if event.Kind == RoomDeleted {
		pipe.HDel(ctx, lobbyRoomsKey, event.Room.ID)
	} else {
		pipe.HSet(ctx, lobbyRoomsKey, event.Room.ID, summary)
	}
	pipe.Publish(ctx, lobbyChannel, notification)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store room summary: %w", err)
	}
	return nil
}

// Rooms reads the mirrored summaries back, ordered by id.
func (m *LobbyMirror) Rooms(ctx context.Context) ([]models.RoomSummary, error) {
	values, err := m.redis.HGetAll(ctx, lobbyRoomsKey).Result()
	if err != nil {
		return nil, err
	}

	summaries := make([]models.RoomSummary, 0, len(values))
	for id, value := range values {
		var summary models.RoomSummary
		if err := json.Unmarshal([]byte(value), &summary); err != nil {
			m.logger.Warn("Skipping unreadable room summary", zap.String("room_id", id), zap.Error(err))
			continue
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}
