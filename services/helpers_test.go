package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"opentrivia/clock"
	"opentrivia/models"

	"go.uber.org/zap"
)

var testEpoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// syncExecutor runs posted tasks on the calling goroutine, one at a time.
// Work handed to Go is held until flush so tests decide when a fetch
// completes.
type syncExecutor struct {
	queue      []func()
	running    bool
	background []func()
}

func (e *syncExecutor) Post(task func()) {
	e.queue = append(e.queue, task)
	if e.running {
		return
	}
	e.running = true
	for len(e.queue) > 0 {
		next := e.queue[0]
		e.queue = e.queue[1:]
		next()
	}
	e.running = false
}

func (e *syncExecutor) Go(task func()) {
	e.background = append(e.background, task)
}

// flush runs held background work, including work queued while flushing.
func (e *syncExecutor) flush() {
	for len(e.background) > 0 {
		next := e.background[0]
		e.background = e.background[1:]
		next()
	}
}

type fakeSource struct {
	mu        sync.Mutex
	questions []*models.TriviaQuestion
	errs      []error
	calls     int
}

func (s *fakeSource) FetchQuestion(_ context.Context, _ string, _ models.RoomConfiguration) (*models.TriviaQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(s.questions) > 0 {
		q := s.questions[0]
		s.questions = s.questions[1:]
		return q, nil
	}
	return testQuestion(models.DifficultyEasy, 1), nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var errFetch = errors.New("fetch failed")

func testQuestion(difficulty models.Difficulty, correct int) *models.TriviaQuestion {
	return &models.TriviaQuestion{
		Text:               "Which planet is known as the Red Planet?",
		Answers:            []string{"Venus", "Mars", "Jupiter", "Saturn"},
		CorrectAnswerIndex: correct,
		CategoryName:       "Science & Nature",
		Difficulty:         difficulty,
	}
}

type sentEvent struct {
	event   string
	payload any
}

// recordingSender captures everything sent to one user.
type recordingSender struct {
	events []sentEvent
}

func (s *recordingSender) Send(event string, payload any) {
	s.events = append(s.events, sentEvent{event: event, payload: payload})
}

func (s *recordingSender) count(event string) int {
	n := 0
	for _, e := range s.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func (s *recordingSender) last(event string) (any, bool) {
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].event == event {
			return s.events[i].payload, true
		}
	}
	return nil, false
}

func (s *recordingSender) reset() {
	s.events = nil
}

func newTestUser(nickname string) (*User, *recordingSender) {
	sender := &recordingSender{}
	return NewUser(nickname+"-id", nickname, sender), sender
}

type fakeRecorder struct {
	results []*models.GameResult
}

func (r *fakeRecorder) RecordGame(_ context.Context, result *models.GameResult) error {
	r.results = append(r.results, result)
	return nil
}

type testEnv struct {
	exec     *syncExecutor
	clock    *clock.FakeClock
	source   *fakeSource
	results  *fakeRecorder
	bus      *LifecycleBus
	registry *Registry
	events   []LifecycleEvent
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		exec:    &syncExecutor{},
		clock:   clock.Fake(testEpoch),
		source:  &fakeSource{},
		results: &fakeRecorder{},
		bus:     NewLifecycleBus(),
	}
	env.bus.Subscribe(func(event LifecycleEvent) {
		env.events = append(env.events, event)
	})
	env.registry = NewRegistry(env.bus, RoomDeps{
		Exec:    env.exec,
		Clock:   env.clock,
		Source:  env.source,
		Results: env.results,
		Logger:  zap.NewNop(),
	})
	return env
}

// createRoom creates a room. Its first fetch stays pending until flush.
func (env *testEnv) createRoom(t *testing.T, deleteOnEmpty bool, cfg models.RoomConfiguration) *GameRoom {
	t.Helper()
	room, err := env.registry.CreateRoom("Test Room", deleteOnEmpty, cfg)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	return room
}

func (env *testEnv) lifecycleKinds() []LifecycleKind {
	kinds := make([]LifecycleKind, 0, len(env.events))
	for _, event := range env.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}
