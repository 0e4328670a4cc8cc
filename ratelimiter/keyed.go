package ratelimiter

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

type bucketEntry struct {
	limiter    *rate.Limiter
	mu         sync.Mutex
	lastAccess atomic.Int64
}

// KeyedBuckets keeps an independent character budget per key (user, origin, etc).
// Idle keys are evicted so a returning caller starts with a full bucket.
type KeyedBuckets struct {
	mu      sync.RWMutex
	entries map[string]*bucketEntry
	config  BucketConfig

	stopOnce sync.Once
	stopCh   chan struct{}
}

var _ Budget = (*KeyedBuckets)(nil)

// NewKeyedBuckets creates the keyed budget and starts idle cleanup.
func NewKeyedBuckets(cfg *BucketConfig) *KeyedBuckets {
	kb := &KeyedBuckets{
		entries: make(map[string]*bucketEntry),
		config:  normalizeConfig(cfg),
		stopCh:  make(chan struct{}),
	}

	go kb.cleanupLoop()
	return kb
}

// TryConsume debits chars from the bucket owned by key.
func (k *KeyedBuckets) TryConsume(key string, chars int) bool {
	if chars <= 0 {
		return true
	}
	if chars > k.config.Capacity {
		return false
	}

	now := k.config.Clock()
	entry := k.getOrCreateEntry(normalizeKey(key), now)
	entry.lastAccess.Store(now.UnixNano())

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.limiter.AllowN(now, chars)
}

// Len returns the number of tracked keys.
func (k *KeyedBuckets) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.entries)
}

// Close stops the cleanup goroutine.
func (k *KeyedBuckets) Close() error {
	k.stopOnce.Do(func() {
		close(k.stopCh)
	})
	return nil
}

func normalizeKey(key string) string {
	if key == "" {
		return "unknown"
	}
	return key
}

func (k *KeyedBuckets) getOrCreateEntry(key string, now time.Time) *bucketEntry {
	k.mu.RLock()
	entry, found := k.entries[key]
	k.mu.RUnlock()
	if found {
		return entry
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	entry, found = k.entries[key]
	if found {
		return entry
	}

	entry = &bucketEntry{limiter: newLimiter(k.config)}
	entry.lastAccess.Store(now.UnixNano())
	k.entries[key] = entry

	k.evictIfNeededLocked(now)
	return entry
}

func (k *KeyedBuckets) cleanupLoop() {
	ticker := time.NewTicker(k.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			k.cleanupExpired(k.config.Clock())
		case <-k.stopCh:
			return
		}
	}
}

func (k *KeyedBuckets) cleanupExpired(now time.Time) {
	cutoff := now.Add(-k.config.EntryTTL).UnixNano()

	k.mu.Lock()
	defer k.mu.Unlock()

	for key, entry := range k.entries {
		if entry.lastAccess.Load() < cutoff {
			delete(k.entries, key)
		}
	}
}

func (k *KeyedBuckets) evictIfNeededLocked(now time.Time) {
	for len(k.entries) > k.config.MaxEntries {
		oldestKey := ""
		oldest := now.UnixNano()
		for key, entry := range k.entries {
			if last := entry.lastAccess.Load(); last <= oldest {
				oldest = last
				oldestKey = key
			}
		}

		if oldestKey == "" {
			return
		}
		delete(k.entries, oldestKey)
	}
}
