package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is a generic cache interface with automatic serialization.
type Cache[K comparable, V any] interface {
	// Get retrieves an item from the cache
	Get(ctx context.Context, key K) (V, bool, error)

	// Set sets an item in the cache with the specified TTL
	Set(ctx context.Context, key K, value V, ttl time.Duration) error

	// Delete removes an item from the cache
	Delete(ctx context.Context, key K) error

	// Exists checks if a key exists in the cache
	Exists(ctx context.Context, key K) (bool, error)

	// Close releases any resources used by the cache
	Close() error
}

// RawCache is the low-level cache interface that works with bytes.
type RawCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Flush(ctx context.Context) error
	Close() error
	Increment(ctx context.Context, key string, delta int64) (int64, error)
	Decrement(ctx context.Context, key string, delta int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// GenericCache wraps a RawCache and provides automatic serialization. Keys
// are namespaced by prefix so several typed caches can share one backend.
type GenericCache[K comparable, V any] struct {
	raw     RawCache
	prefix  string
	keyFunc func(K) string
}

// NewGenericCache creates a new generic cache with automatic serialization.
func NewGenericCache[K comparable, V any](raw RawCache, prefix string, keyFunc func(K) string) *GenericCache[K, V] {
	if keyFunc == nil {
		keyFunc = func(k K) string {
			return fmt.Sprintf("%v", k)
		}
	}
	return &GenericCache[K, V]{
		raw:     raw,
		prefix:  prefix,
		keyFunc: keyFunc,
	}
}

func (g *GenericCache[K, V]) key(k K) string {
	if g.prefix == "" {
		return g.keyFunc(k)
	}
	return g.prefix + ":" + g.keyFunc(k)
}

func (g *GenericCache[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var zero V
	data, found, err := g.raw.Get(ctx, g.key(key))
	if err != nil || !found {
		return zero, found, err
	}

	value, err := unmarshal[V](data)
	if err != nil {
		return zero, false, err
	}
	return value, true, nil
}

func (g *GenericCache[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) error {
	data, err := marshal(value)
	if err != nil {
		return err
	}
	return g.raw.Set(ctx, g.key(key), data, ttl)
}

func (g *GenericCache[K, V]) Delete(ctx context.Context, key K) error {
	return g.raw.Delete(ctx, g.key(key))
}

func (g *GenericCache[K, V]) Exists(ctx context.Context, key K) (bool, error) {
	return g.raw.Exists(ctx, g.key(key))
}

// Close is a no-op: the backend is shared and closed by its owner.
func (g *GenericCache[K, V]) Close() error {
	return nil
}
