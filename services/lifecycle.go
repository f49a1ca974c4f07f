package services

import (
	"opentrivia/models"
)

type LifecycleKind int

const (
	RoomCreated LifecycleKind = iota
	RoomUpdated
	RoomDeleted
)

func (k LifecycleKind) String() string {
	switch k {
	case RoomCreated:
		return "created"
	case RoomUpdated:
		return "updated"
	case RoomDeleted:
		return "deleted"
	}
	return "unknown"
}

// LifecycleEvent carries a snapshot of the affected room, never the room
// itself, so subscribers cannot reach into room state.
type LifecycleEvent struct {
	Kind LifecycleKind
	Room models.RoomSummary
}

// LifecycleBus fans room lifecycle events out to subscribers. Publish and
// the subscriber callbacks run on the Loop; subscribers that do I/O must
// hand it off.
type LifecycleBus struct {
	nextID      int
	subscribers map[int]func(LifecycleEvent)
	order       []int
}

func NewLifecycleBus() *LifecycleBus {
	return &LifecycleBus{subscribers: make(map[int]func(LifecycleEvent))}
}

// Subscribe registers fn and returns a function that removes it.
func (b *LifecycleBus) Subscribe(fn func(LifecycleEvent)) (unsubscribe func()) {
	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn
	b.order = append(b.order, id)

	return func() {
		delete(b.subscribers, id)
		for i, subscriber := range b.order {
			if subscriber == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers event to every subscriber in subscription order.
func (b *LifecycleBus) Publish(event LifecycleEvent) {
	for _, id := range append([]int(nil), b.order...) {
		if fn, ok := b.subscribers[id]; ok {
			fn(event)
		}
	}
}
