package services

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"opentrivia/models"

	"go.uber.org/zap"
)

var (
	ErrInvalidRoomConfig = errors.New("invalid room configuration")
	ErrRoomIDExhausted   = errors.New("could not generate an unused room id")
)

const (
	roomIDLength   = 5
	roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	roomIDAttempts = 10
)

// Registry maps room ids to live rooms and publishes their lifecycle on the
// bus. Like the rooms it owns, it is only touched from the Loop.
type Registry struct {
	rooms  map[string]*GameRoom
	bus    *LifecycleBus
	deps   RoomDeps
	newID  func() (string, error)
	logger *zap.Logger
}

func NewRegistry(bus *LifecycleBus, deps RoomDeps) *Registry {
	return &Registry{
		rooms:  make(map[string]*GameRoom),
		bus:    bus,
		deps:   deps,
		newID:  generateRoomID,
		logger: deps.Logger,
	}
}

// CreateRoom registers a new room, announces it and starts its first
// question cycle.
func (reg *Registry) CreateRoom(name string, deleteOnEmpty bool, cfg models.RoomConfiguration) (*GameRoom, error) {
	if err := validateRoomConfig(cfg); err != nil {
		return nil, err
	}

	id, err := reg.unusedID()
	if err != nil {
		return nil, err
	}

	room := newGameRoom(id, name, deleteOnEmpty, cfg, reg, reg.deps)
	reg.rooms[id] = room
	reg.logger.Info("Room created", zap.String("room_id", id), zap.String("name", name), zap.Bool("delete_on_empty", deleteOnEmpty))
	reg.publish(RoomCreated, room)

	room.Start()
	return room, nil
}

// unusedID draws ids until one is not taken by a live room.
func (reg *Registry) unusedID() (string, error) {
	for i := 0; i < roomIDAttempts; i++ {
		id, err := reg.newID()
		if err != nil {
			return "", err
		}
		if _, taken := reg.rooms[id]; !taken {
			return id, nil
		}
	}
	return "", ErrRoomIDExhausted
}

// DeleteRoom stops room and removes it. Deleting a room twice is a no-op.
func (reg *Registry) DeleteRoom(room *GameRoom) {
	if current, ok := reg.rooms[room.ID()]; !ok || current != room {
		return
	}
	room.close()
	delete(reg.rooms, room.ID())
	reg.logger.Info("Room deleted", zap.String("room_id", room.ID()))
	reg.publish(RoomDeleted, room)
}

func (reg *Registry) Room(id string) (*GameRoom, bool) {
	room, ok := reg.rooms[id]
	return room, ok
}

// RoomIDs returns the ids of all live rooms, sorted.
func (reg *Registry) RoomIDs() []string {
	ids := make([]string, 0, len(reg.rooms))
	for id := range reg.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Rooms returns the live rooms ordered by id.
func (reg *Registry) Rooms() []*GameRoom {
	rooms := make([]*GameRoom, 0, len(reg.rooms))
	for _, id := range reg.RoomIDs() {
		rooms = append(rooms, reg.rooms[id])
	}
	return rooms
}

func (reg *Registry) Summaries() []models.RoomSummary {
	summaries := make([]models.RoomSummary, 0, len(reg.rooms))
	for _, room := range reg.Rooms() {
		summaries = append(summaries, room.Summary())
	}
	return summaries
}

func (reg *Registry) publish(kind LifecycleKind, room *GameRoom) {
	reg.bus.Publish(LifecycleEvent{Kind: kind, Room: room.Summary()})
}

func validateRoomConfig(cfg models.RoomConfiguration) error {
	switch {
	case cfg.MaxSeconds <= 0:
		return fmt.Errorf("%w: maxSeconds must be positive", ErrInvalidRoomConfig)
	case cfg.QuestionCount < 0:
		return fmt.Errorf("%w: questionCount must not be negative", ErrInvalidRoomConfig)
	case !cfg.Difficulty.Valid():
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidRoomConfig, cfg.Difficulty)
	}
	return nil
}

func generateRoomID() (string, error) {
	base := big.NewInt(int64(len(roomIDAlphabet)))
	id := make([]byte, roomIDLength)
	for i := range id {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("failed to generate room id: %w", err)
		}
		id[i] = roomIDAlphabet[n.Int64()]
	}
	return string(id), nil
}
