// Package tokens records which one-time tokens have already been spent.
package tokens

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/memtensor/usergrid/pkg/config"
	apperrors "github.com/memtensor/usergrid/pkg/errors"
	"github.com/memtensor/usergrid/pkg/interfaces"
)

const keyPrefix = "usergrid:used_token:"

// Store marks token ids as used
type Store interface {
	// MarkUsed records id for ttl. It reports false when id was already used.
	MarkUsed(ctx context.Context, id string, ttl time.Duration) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// RedisStore keeps used ids in Redis so every API instance sees them
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing client
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// MarkUsed sets the id key only if it does not exist yet
func (s *RedisStore) MarkUsed(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, keyPrefix+id, time.Now().UTC().Unix(), ttl).Result()
	if err != nil {
		return false, apperrors.NewConnectionFailedError("redis", err)
	}
	return ok, nil
}

// Ping checks the connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MemoryStore is a process local Store for single instance deployments
type MemoryStore struct {
	mu   sync.Mutex
	used map[string]time.Time
	now  func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		used: make(map[string]time.Time),
		now:  time.Now,
	}
}

// MarkUsed records id until ttl passes. Expired entries are swept on write.
func (s *MemoryStore) MarkUsed(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.used {
		if !exp.After(now) {
			delete(s.used, k)
		}
	}

	if _, exists := s.used[id]; exists {
		return false, nil
	}
	s.used[id] = now.Add(ttl)
	return true, nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}

// New returns a Redis store when enabled, otherwise a memory store
func New(ctx context.Context, cfg config.RedisConfig, logger interfaces.Logger) (Store, error) {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("Using in-memory token store")
		}
		return NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.NewConnectionFailedError(cfg.Addr, err)
	}

	if logger != nil {
		logger.Info("Connected to Redis token store", map[string]interface{}{"address": cfg.Addr, "db": cfg.DB})
	}
	return NewRedisStore(client), nil
}
