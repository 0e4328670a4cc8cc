package ratelimiter

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/pitabwire/linguist/cache"
)

const (
	defaultWindowPrefix   = "ratelimit"
	defaultMaxPerWindow   = 600
	windowTTLOffset       = time.Second
	defaultWindowDuration = time.Minute
)

var ErrCacheRequired = errors.New("cache backend is required")

// WindowConfig defines fixed-window counter settings backed by a cache.
type WindowConfig struct {
	WindowDuration time.Duration
	MaxPerWindow   int
	KeyPrefix      string
	FailOpen       bool
}

func DefaultWindowConfig() *WindowConfig {
	return &WindowConfig{
		WindowDuration: defaultWindowDuration,
		MaxPerWindow:   defaultMaxPerWindow,
		KeyPrefix:      defaultWindowPrefix,
	}
}

// WindowLimiter counts hits per key inside fixed windows. Counters live in the
// shared cache so several replicas enforce one limit.
type WindowLimiter struct {
	cache  cache.RawCache
	config WindowConfig
	now    func() time.Time
}

func NewWindowLimiter(raw cache.RawCache, cfg *WindowConfig) (*WindowLimiter, error) {
	if raw == nil {
		return nil, ErrCacheRequired
	}

	return &WindowLimiter{cache: raw, config: normalizeWindowConfig(cfg), now: time.Now}, nil
}

// Allow records a hit for key and reports whether it is within the window limit.
func (wl *WindowLimiter) Allow(ctx context.Context, key string) bool {
	if wl == nil || wl.cache == nil {
		return true
	}

	bucketKey := wl.bucketKey(normalizeKey(key), wl.now().UTC())
	count, err := wl.cache.Increment(ctx, bucketKey, 1)
	if err != nil {
		return wl.config.FailOpen
	}

	if count == 1 {
		_ = wl.cache.Expire(ctx, bucketKey, wl.config.WindowDuration+windowTTLOffset)
	}

	return count <= int64(wl.config.MaxPerWindow)
}

// Config returns the effective settings.
func (wl *WindowLimiter) Config() WindowConfig {
	return wl.config
}

func (wl *WindowLimiter) bucketKey(key string, now time.Time) string {
	windowSeconds := max(int64(wl.config.WindowDuration.Seconds()), 1)
	bucket := now.Unix() / windowSeconds

	buf := make([]byte, 0, len(wl.config.KeyPrefix)+len(key)+24)
	buf = append(buf, wl.config.KeyPrefix...)
	buf = append(buf, ':')
	buf = append(buf, key...)
	buf = append(buf, ':')
	buf = strconv.AppendInt(buf, bucket, 10)
	return string(buf)
}

func normalizeWindowConfig(cfg *WindowConfig) WindowConfig {
	if cfg == nil {
		return *DefaultWindowConfig()
	}

	result := *cfg
	if result.WindowDuration <= 0 {
		result.WindowDuration = defaultWindowDuration
	}
	if result.MaxPerWindow <= 0 {
		result.MaxPerWindow = defaultMaxPerWindow
	}
	if result.KeyPrefix == "" {
		result.KeyPrefix = defaultWindowPrefix
	}

	return result
}
