package ratelimiter

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/pitabwire/util"

	"github.com/pitabwire/linguist/cache"
)

const defaultIPPrefix = "ratelimit:ip"

// IPRateLimiter applies cache-backed per-IP window limits.
type IPRateLimiter struct {
	limiter  *WindowLimiter
	backend  cache.RawCache
	ownsBack bool
}

// NewIPRateLimiter creates a per-IP limiter. A nil raw cache gets a private
// in-memory one that Close releases.
func NewIPRateLimiter(raw cache.RawCache, config *WindowConfig) *IPRateLimiter {
	backend := raw
	owns := false
	if backend == nil {
		backend = cache.NewInMemoryCache()
		owns = true
	}

	cfg := normalizeWindowConfig(config)
	if cfg.KeyPrefix == defaultWindowPrefix {
		cfg.KeyPrefix = defaultIPPrefix
	}

	// backend is never nil here
	limiter, _ := NewWindowLimiter(backend, &cfg)

	return &IPRateLimiter{
		limiter:  limiter,
		backend:  backend,
		ownsBack: owns,
	}
}

func (rl *IPRateLimiter) Allow(ctx context.Context, ip string) bool {
	if rl == nil || rl.limiter == nil {
		return true
	}
	return rl.limiter.Allow(ctx, ip)
}

// Close releases owned resources.
func (rl *IPRateLimiter) Close() error {
	if rl == nil || !rl.ownsBack || rl.backend == nil {
		return nil
	}
	return rl.backend.Close()
}

// GetIP extracts the caller IP from forwarding headers or the remote address.
func GetIP(r *http.Request) string {
	if r == nil {
		return "unknown"
	}

	ip := util.GetIP(r)
	if ip == "" {
		return "unknown"
	}
	return ip
}

// RateLimitMiddleware rejects callers over their per-IP window with 429.
func RateLimitMiddleware(limiter *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || limiter.limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			cfg := limiter.limiter.Config()
			if !limiter.Allow(r.Context(), GetIP(r)) {
				util.Log(r.Context()).WithField("ip", GetIP(r)).Debug("http rate limit exceeded")
				rateLimitedResponse(w, cfg)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxPerWindow))
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitedResponse(w http.ResponseWriter, cfg WindowConfig) {
	retryAfter := int(math.Ceil(cfg.WindowDuration.Seconds()))
	if retryAfter <= 0 {
		retryAfter = int(time.Minute.Seconds())
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxPerWindow))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error": "rate limit exceeded", "code": "rate_limit_exceeded"}`))
}
