package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process cache with a background janitor.
type MemoryCache struct {
	entries map[string]*Entry
	mu      sync.RWMutex
	config  Config
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
}

// NewMemoryCache creates a new in-memory cache with automatic cleanup.
func NewMemoryCache(config Config) *MemoryCache {
	config = applyDefaults(config)

	mc := &MemoryCache{
		entries: make(map[string]*Entry),
		config:  config,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	go mc.cleanup()

	return mc
}

// Get returns a copy of the entry, or nil if it is missing or expired.
func (mc *MemoryCache) Get(ctx context.Context, key string) (*Entry, error) {
	mc.mu.RLock()
	entry, exists := mc.entries[key]
	mc.mu.RUnlock()

	if !exists {
		return nil, nil
	}

	if entry.IsExpired() {
		mc.mu.Lock()
		delete(mc.entries, key)
		mc.mu.Unlock()
		return nil, nil
	}

	return entry.clone(), nil
}

// Set stores a copy of entry.
func (mc *MemoryCache) Set(ctx context.Context, entry *Entry) error {
	if mc.config.MaxEntrySize > 0 && entry.Size() > mc.config.MaxEntrySize {
		return ErrEntryTooLarge
	}
	if entry.TTL == 0 {
		entry.TTL = mc.config.TTL
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now()
	}

	stored := entry.clone()

	mc.mu.Lock()
	mc.entries[entry.Key] = stored
	mc.mu.Unlock()
	return nil
}

// Delete removes an entry from the cache.
func (mc *MemoryCache) Delete(ctx context.Context, key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	delete(mc.entries, key)
	return nil
}

// Clear removes all entries from the cache.
func (mc *MemoryCache) Clear(ctx context.Context) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.entries = make(map[string]*Entry)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (mc *MemoryCache) Len() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.entries)
}

// Close stops the janitor. It is safe to call more than once.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() {
		close(mc.stopCh)
		<-mc.doneCh
	})
	return nil
}

func (mc *MemoryCache) cleanup() {
	ticker := time.NewTicker(mc.config.CleanupInterval)
	defer ticker.Stop()
	defer close(mc.doneCh)

	for {
		select {
		case <-ticker.C:
			mc.removeExpired()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MemoryCache) removeExpired() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for key, entry := range mc.entries {
		if entry.IsExpired() {
			delete(mc.entries, key)
		}
	}
}
