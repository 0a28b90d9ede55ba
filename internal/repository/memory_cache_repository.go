package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	appErrors "github.com/noah-isme/atis-gateway/pkg/errors"
)

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCacheRepository is an in-process TTL cache used when Redis is disabled.
type MemoryCacheRepository struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCacheRepository() *MemoryCacheRepository {
	return &MemoryCacheRepository{entries: make(map[string]memoryEntry), now: time.Now}
}

func (r *MemoryCacheRepository) Get(_ context.Context, key string, dest interface{}) error {
	r.mu.RLock()
	entry, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if entry.expired(r.now()) {
		var fresh bool
		entry, fresh = r.evict(key)
		if !fresh {
			return appErrors.ErrCacheMiss
		}
	}
	if err := json.Unmarshal(entry.payload, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return nil
}

// evict drops key if it is still expired under the write lock. An entry
// replaced by a concurrent Set is kept and returned with fresh set.
func (r *MemoryCacheRepository) evict(key string) (memoryEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if entry.expired(r.now()) {
		delete(r.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}

func (r *MemoryCacheRepository) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	entry := memoryEntry{payload: payload}
	if ttl > 0 {
		entry.expiresAt = r.now().Add(ttl)
	}
	r.mu.Lock()
	r.entries[key] = entry
	r.mu.Unlock()
	return nil
}

func (r *MemoryCacheRepository) DeleteByPrefix(_ context.Context, prefix string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for key := range r.entries {
		if strings.HasPrefix(key, prefix) {
			delete(r.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of stored entries, expired or not.
func (r *MemoryCacheRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
