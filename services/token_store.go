package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore holds the trivia API session token of each room.
type TokenStore interface {
	// Get returns ok=false when no token is cached for roomID.
	Get(ctx context.Context, roomID string) (token string, ok bool, err error)
	Set(ctx context.Context, roomID, token string) error
	Delete(ctx context.Context, roomID string) error
}

type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]string)}
}

func (s *MemoryTokenStore) Get(_ context.Context, roomID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[roomID]
	return token, ok, nil
}

func (s *MemoryTokenStore) Set(_ context.Context, roomID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[roomID] = token
	return nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, roomID)
	return nil
}

func (s *MemoryTokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// The trivia API forgets a session token after six hours without use.
const tokenTTL = 6 * time.Hour

// RedisTokenStore keeps tokens under trivia:token:<roomID>. Every Set
// refreshes the expiry.
type RedisTokenStore struct {
	redis *redis.Client
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{redis: client}
}

func tokenKey(roomID string) string {
	return "trivia:token:" + roomID
}

func (s *RedisTokenStore) Get(ctx context.Context, roomID string) (string, bool, error) {
	token, err := s.redis.Get(ctx, tokenKey(roomID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read token for room %s: %w", roomID, err)
	}
	return token, true, nil
}

func (s *RedisTokenStore) Set(ctx context.Context, roomID, token string) error {
	if err := s.redis.Set(ctx, tokenKey(roomID), token, tokenTTL).Err(); err != nil {
		return fmt.Errorf("failed to store token for room %s: %w", roomID, err)
	}
	return nil
}

func (s *RedisTokenStore) Delete(ctx context.Context, roomID string) error {
	if err := s.redis.Del(ctx, tokenKey(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to delete token for room %s: %w", roomID, err)
	}
	return nil
}
