package services

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Executor schedules room work. Post runs a step on the room goroutine;
// Go runs blocking work (network calls) somewhere that will not stall it.
// The continuation of Go work must re-enter through Post.
type Executor interface {
	Post(task func())
	Go(task func())
}

// Loop is the single goroutine every room state transition runs on. No two
// posted tasks ever run at the same time, so room state needs no locks.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	logger *zap.Logger
}

func NewLoop(logger *zap.Logger) *Loop {
	return &Loop{
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
}

// Post enqueues task. It never blocks and is safe to call from any
// goroutine, including from inside a running task.
func (l *Loop) Post(task func()) {
	l.mu.Lock()
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) Go(task func()) {
	go task()
}

// Do posts task and waits until it has run or ctx is done.
func (l *Loop) Do(ctx context.Context, task func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		task()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes posted tasks in order until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
			for {
				task, ok := l.next()
				if !ok {
					break
				}
				l.run(task)
			}
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

// run keeps one panicking task from taking down every room.
func (l *Loop) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Recovered from panic in room task", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	task()
}
