package cache

import (
	"time"

	"github.com/pitabwire/linguist/data"
)

// Option configures a remote cache backend.
type Option func(*Options)

// Options holds remote cache connection configuration.
type Options struct {
	DSN    data.DSN
	MaxAge time.Duration
}

func WithDSN(dsn data.DSN) Option {
	return func(o *Options) {
		o.DSN = dsn
	}
}

// WithMaxAge returns an Option to configure the TTL applied when Set is
// called without one.
func WithMaxAge(maxAge time.Duration) Option {
	return func(o *Options) {
		o.MaxAge = maxAge
	}
}
