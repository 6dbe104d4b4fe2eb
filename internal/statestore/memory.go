package statestore

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/arena/internal/log"
)

// DefaultCleanupInterval is how often expired keys are purged from memory.
const DefaultCleanupInterval = 30 * time.Second

// Memory is an in-process Store backed by go-cache. It only shares state
// within one process, which makes it the store of choice for dry runs and tests.
type Memory struct {
	cache *gocache.Cache
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return NewMemoryWithCleanup(DefaultCleanupInterval)
}

// NewMemoryWithCleanup creates an in-memory store with a custom purge interval.
func NewMemoryWithCleanup(cleanupInterval time.Duration) *Memory {
	return &Memory{cache: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

// Set stores value under key, expiring after ttl when ttl > 0.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.cache.Set(key, value, ttl)
	log.Debug(log.CatStore, "set", "backend", "memory", "key", key, "ttl", ttl)
	return nil
}

// Get returns the value stored under key and whether it is present.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	value, found := m.cache.Get(key)
	if !found {
		return "", false, nil
	}

	v, ok := value.(string)
	if !ok {
		log.Error(log.CatStore, "wrong type assertion when getting value", "key", key)
		return "", false, nil
	}
	return v, true, nil
}

// Delete removes keys; missing keys are ignored.
func (m *Memory) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		m.cache.Delete(key)
	}
	if len(keys) > 0 {
		log.Debug(log.CatStore, "delete", "backend", "memory", "keys", keys)
	}
	return nil
}

// Close flushes the store.
func (m *Memory) Close() error {
	m.cache.Flush()
	return nil
}
