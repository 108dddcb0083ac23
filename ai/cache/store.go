// Package cache provides fingerprint-based caching of LLM responses with
// TTL expiry and optional stale-on-error fallback, backed by a
// Redis-compatible store or an in-memory store.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/flipsync/flipsync/core"
)

// Key prefixes for cached artifacts
const (
	LLMKeyPrefix = "flipsync:llm:"
	AIKeyPrefix  = "flipsync:ai:"
)

// Store is the key-value backing for cached responses
type Store interface {
	// Get returns the value for key, or found=false when absent
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// SetEx stores value under key with the given physical retention
	SetEx(ctx context.Context, key string, retention time.Duration, value []byte) error

	// Keys returns keys matching a glob pattern
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Info returns backend diagnostics
	Info(ctx context.Context) (map[string]string, error)
}

// RedisStore implements Store on a Redis-compatible server
type RedisStore struct {
	client *redis.Client
	logger core.Logger
}

// NewRedisStore creates a Redis-backed store from a CACHE_URL style URL
func NewRedisStore(cacheURL string, logger core.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	opts, err := redis.ParseURL(cacheURL)
	if err != nil {
		return nil, core.NewFlipError("cache.new_redis_store", core.ErrInvalidConfiguration, "", "invalid cache URL: "+err.Error())
	}
	return &RedisStore{
		client: redis.NewClient(opts),
		logger: logger,
	}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *RedisStore) SetEx(ctx context.Context, key string, retention time.Duration, value []byte) error {
	return s.client.Set(ctx, key, value, retention).Err()
}

func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	return s.client.Keys(ctx, pattern).Result()
}

func (s *RedisStore) Info(ctx context.Context) (map[string]string, error) {
	raw, err := s.client.Info(ctx).Result()
	if err != nil {
		return nil, err
	}
	info := make(map[string]string)
	for _, line := range strings.Split(raw, "\r\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if idx := strings.Index(line, ":"); idx > 0 {
			info[line[:idx]] = line[idx+1:]
		}
	}
	return info, nil
}

// Close releases the underlying connection pool
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MemoryStore implements Store in memory, for development and tests
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[key]
	if !ok || s.now().After(item.expiresAt) {
		return nil, false, nil
	}
	return item.value, true, nil
}

func (s *MemoryStore) SetEx(ctx context.Context, key string, retention time.Duration, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = memoryItem{
		value:     value,
		expiresAt: s.now().Add(retention),
	}
	return nil
}

func (s *MemoryStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k, item := range s.items {
		if s.now().After(item.expiresAt) {
			continue
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *MemoryStore) Info(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]string{
		"backend": "memory",
	}, nil
}
