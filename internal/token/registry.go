package token

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Registry holds the IDs of access tokens revoked before their natural
// expiry. Entries carry a TTL no longer than the token's own remaining
// lifetime, so the registry needs no external cleanup. Lookups must be
// cheap: every validated request performs one.
type Registry interface {
	Add(ctx context.Context, tokenID string, ttl time.Duration) error
	Contains(ctx context.Context, tokenID string) (bool, error)
}

const revokedKeyPrefix = "auth:revoked:"

// RedisRegistry is the shared-cache implementation, used when the service
// runs as multiple instances behind one Redis.
type RedisRegistry struct {
	rdb *redis.Client
}

// NewRedisRegistry returns a Registry backed by the given Redis client.
func NewRedisRegistry(rdb *redis.Client) *RedisRegistry {
	return &RedisRegistry{rdb: rdb}
}

func (r *RedisRegistry) Add(ctx context.Context, tokenID string, ttl time.Duration) error {
	return r.rdb.Set(ctx, revokedKeyPrefix+tokenID, "1", ttl).Err()
}

func (r *RedisRegistry) Contains(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRegistry is the single-instance fallback used when no Redis is
// configured or the connection could not be established at startup.
// Entries expire lazily on lookup and in bulk once the map grows past a
// small threshold, keeping memory bounded without a background job.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRegistry returns an empty in-process registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string]time.Time),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the registry clock and returns the registry.
func (m *MemoryRegistry) WithClock(now func() time.Time) *MemoryRegistry {
	m.now = now
	return m
}

func (m *MemoryRegistry) Add(_ context.Context, tokenID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if len(m.entries) > 1024 {
		for id, exp := range m.entries {
			if !now.Before(exp) {
				delete(m.entries, id)
			}
		}
	}
	m.entries[tokenID] = now.Add(ttl)
	return nil
}

func (m *MemoryRegistry) Contains(_ context.Context, tokenID string) (bool, error) {
	m.mu.RLock()
	exp, ok := m.entries[tokenID]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !m.now().Before(exp) {
		m.mu.Lock()
		delete(m.entries, tokenID)
		m.mu.Unlock()
		return false, nil
	}
	return true, nil
}
