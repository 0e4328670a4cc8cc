package cache

import (
	"container/list"
	"context"
	"encoding/binary"
	"sync"
	"time"
)

const (
	defaultCleanupInterval = 5 * time.Minute
	int64Size              = 8
)

type inMemoryCacheItem struct {
	key        string
	value      []byte
	expiration time.Time
}

func (i *inMemoryCacheItem) isExpired(now time.Time) bool {
	if i.expiration.IsZero() {
		return false
	}
	return now.After(i.expiration)
}

// InMemoryCache is a thread-safe in-memory cache. When bounded, the least
// recently used entry is evicted to make room.
type InMemoryCache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List
	maxEntries int
	now        func() time.Time

	cleanupInt time.Duration
	stopClean  chan struct{}
	closeOnce  sync.Once
}

// InMemoryOption configures an InMemoryCache.
type InMemoryOption func(*InMemoryCache)

// WithMaxEntries bounds the number of live entries. Zero means unbounded.
func WithMaxEntries(n int) InMemoryOption {
	return func(c *InMemoryCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithCleanupInterval sets how often expired entries are swept.
func WithCleanupInterval(d time.Duration) InMemoryOption {
	return func(c *InMemoryCache) {
		if d > 0 {
			c.cleanupInt = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) InMemoryOption {
	return func(c *InMemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewInMemoryCache creates a new in-memory cache.
func NewInMemoryCache(opts ...InMemoryOption) *InMemoryCache {
	c := &InMemoryCache{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
		cleanupInt: defaultCleanupInterval,
		stopClean:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.startCleanup()

	return c
}

func (c *InMemoryCache) startCleanup() {
	ticker := time.NewTicker(c.cleanupInt)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopClean:
			return
		}
	}
}

func (c *InMemoryCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, el := range c.items {
		if el.Value.(*inMemoryCacheItem).isExpired(now) {
			c.removeLocked(el)
		}
	}
}

func (c *InMemoryCache) removeLocked(el *list.Element) {
	item := el.Value.(*inMemoryCacheItem)
	delete(c.items, item.key)
	c.order.Remove(el)
}

// lookupLocked returns the live entry for key, dropping it if expired.
func (c *InMemoryCache) lookupLocked(key string) *list.Element {
	el, ok := c.items[key]
	if !ok {
		return nil
	}
	if el.Value.(*inMemoryCacheItem).isExpired(c.now()) {
		c.removeLocked(el)
		return nil
	}
	return el
}

func (c *InMemoryCache) storeLocked(key string, value []byte, expiration time.Time) {
	if el, ok := c.items[key]; ok {
		item := el.Value.(*inMemoryCacheItem)
		item.value = value
		item.expiration = expiration
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&inMemoryCacheItem{key: key, value: value, expiration: expiration})
	c.items[key] = el

	for c.maxEntries > 0 && len(c.items) > c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		c.removeLocked(oldest)
	}
}

func (c *InMemoryCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

// Get retrieves an item from the cache.
func (c *InMemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el := c.lookupLocked(key)
	if el == nil {
		return nil, false, nil
	}
	c.order.MoveToFront(el)
	return el.Value.(*inMemoryCacheItem).value, true, nil
}

// Set sets an item in the cache with the specified TTL.
func (c *InMemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.storeLocked(key, value, c.expiry(ttl))
	return nil
}

// Expire updates the TTL of an existing key.
func (c *InMemoryCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el := c.lookupLocked(key); el != nil {
		el.Value.(*inMemoryCacheItem).expiration = c.expiry(ttl)
	}
	return nil
}

// Delete removes an item from the cache.
func (c *InMemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
	return nil
}

// Exists checks if a key exists in the cache.
func (c *InMemoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lookupLocked(key) != nil, nil
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Flush clears all items from the cache.
func (c *InMemoryCache) Flush(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

// Close stops the cleanup goroutine.
func (c *InMemoryCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopClean)
	})
	return nil
}

// Increment atomically increments a counter, keeping any TTL already set.
func (c *InMemoryCache) Increment(_ context.Context, key string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var current int64
	var expiration time.Time
	if el := c.lookupLocked(key); el != nil {
		item := el.Value.(*inMemoryCacheItem)
		if len(item.value) >= int64Size {
			current = int64(binary.BigEndian.Uint64(item.value)) //nolint:gosec // counter round-trip
		}
		expiration = item.expiration
	}

	next := current + delta
	buf := make([]byte, int64Size)
	binary.BigEndian.PutUint64(buf, uint64(next)) //nolint:gosec // counter round-trip
	c.storeLocked(key, buf, expiration)
	return next, nil
}

// Decrement atomically decrements a counter.
func (c *InMemoryCache) Decrement(ctx context.Context, key string, delta int64) (int64, error) {
	return c.Increment(ctx, key, -delta)
}
