package ratelimiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultCapacity        = 256
	defaultRefillPerSecond = 25
	defaultCleanupInterval = 5 * time.Minute
	defaultEntryTTL        = 10 * time.Minute
	defaultMaxEntries      = 100000
)

// Budget gates work measured in characters. Implementations debit only on success.
type Budget interface {
	TryConsume(key string, chars int) bool
}

// BudgetFunc adapts a function to the Budget interface.
type BudgetFunc func(key string, chars int) bool

func (f BudgetFunc) TryConsume(key string, chars int) bool {
	return f(key, chars)
}

// Unlimited never refuses.
var Unlimited Budget = BudgetFunc(func(string, int) bool { return true })

// BucketConfig defines a token bucket measured in characters.
type BucketConfig struct {
	Capacity        int
	RefillPerSecond float64

	// CleanupInterval, EntryTTL and MaxEntries only apply to KeyedBuckets.
	CleanupInterval time.Duration
	EntryTTL        time.Duration
	MaxEntries      int

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// DefaultBucketConfig returns 256 characters refilled at 25 per second.
func DefaultBucketConfig() *BucketConfig {
	return &BucketConfig{
		Capacity:        defaultCapacity,
		RefillPerSecond: defaultRefillPerSecond,
		CleanupInterval: defaultCleanupInterval,
		EntryTTL:        defaultEntryTTL,
		MaxEntries:      defaultMaxEntries,
		Clock:           time.Now,
	}
}

func normalizeConfig(cfg *BucketConfig) BucketConfig {
	if cfg == nil {
		return *DefaultBucketConfig()
	}

	result := *cfg
	if result.Capacity <= 0 {
		result.Capacity = defaultCapacity
	}
	if result.RefillPerSecond <= 0 {
		result.RefillPerSecond = defaultRefillPerSecond
	}
	if result.CleanupInterval <= 0 {
		result.CleanupInterval = defaultCleanupInterval
	}
	if result.EntryTTL <= 0 {
		result.EntryTTL = defaultEntryTTL
	}
	if result.MaxEntries <= 0 {
		result.MaxEntries = defaultMaxEntries
	}
	if result.Clock == nil {
		result.Clock = time.Now
	}

	return result
}

// TokenBucket is a single character budget refilled continuously up to its capacity.
type TokenBucket struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	config  BucketConfig
}

// NewTokenBucket returns a full bucket.
func NewTokenBucket(cfg *BucketConfig) *TokenBucket {
	config := normalizeConfig(cfg)
	return &TokenBucket{
		limiter: newLimiter(config),
		config:  config,
	}
}

func newLimiter(config BucketConfig) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(config.RefillPerSecond), config.Capacity)
}

// TryConsume debits chars if enough budget is available. A request larger than
// the capacity can never succeed and leaves the bucket untouched.
func (b *TokenBucket) TryConsume(chars int) bool {
	if chars <= 0 {
		return true
	}
	if chars > b.config.Capacity {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limiter.AllowN(b.config.Clock(), chars)
}

// Available reports the characters that could be consumed right now.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limiter.TokensAt(b.config.Clock())
}

// Capacity returns the configured bucket size.
func (b *TokenBucket) Capacity() int {
	return b.config.Capacity
}

// Shared exposes the bucket as a Budget that ignores the caller key.
func (b *TokenBucket) Shared() Budget {
	return BudgetFunc(func(_ string, chars int) bool {
		return b.TryConsume(chars)
	})
}
