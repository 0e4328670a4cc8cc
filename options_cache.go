package linguist

import (
	"context"
	"fmt"

	"github.com/pitabwire/linguist/cache"
	"github.com/pitabwire/linguist/cache/redis"
	"github.com/pitabwire/linguist/cache/valkey"
	"github.com/pitabwire/linguist/config"
	"github.com/pitabwire/linguist/data"
)

// NewRawCache opens the cache named by CACHE_URL: mem://, redis://, rediss://
// or valkey://.
func NewRawCache(cfg config.ConfigurationCache) (cache.RawCache, error) {
	dsn := data.DSN(cfg.GetCacheURL())
	opts := []cache.Option{cache.WithDSN(dsn), cache.WithMaxAge(cfg.GetCacheTTL())}

	switch {
	case dsn == "" || dsn.IsMem():
		return cache.NewInMemoryCache(), nil
	case dsn.IsValkey():
		c, err := valkey.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("connect valkey cache %s: %w", dsn.Redacted(), err)
		}
		return c, nil
	case dsn.IsRedis():
		c, err := redis.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("connect redis cache %s: %w", dsn.Redacted(), err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported cache url %s", dsn.Redacted())
	}
}

// WithCache shares rawCache between translations, preferences and the HTTP
// rate limiter. The caller keeps ownership and closes it.
func WithCache(rawCache cache.RawCache) Option {
	return func(_ context.Context, s *Service) {
		s.rawCache = rawCache
	}
}

// WithInMemoryCache is WithCache over a fresh in-memory cache the service owns.
func WithInMemoryCache(opts ...cache.InMemoryOption) Option {
	return func(ctx context.Context, s *Service) {
		c := cache.NewInMemoryCache(opts...)
		WithCache(c)(ctx, s)
		s.AddCleanupMethod(func(_ context.Context) { _ = c.Close() })
	}
}

func (s *Service) Cache() cache.RawCache {
	return s.rawCache
}
