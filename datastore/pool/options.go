package pool

import (
	"time"

	"github.com/pitabwire/linguist/config"
)

// Option configures database connection settings.
type Option func(*Options)

// Options holds datastore connection configuration.
type Options struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration

	PreferSimpleProtocol   bool
	SkipDefaultTransaction bool

	TraceConfig config.ConfigurationDatabaseTracing
}

func defaultOptions() *Options {
	return &Options{
		PreferSimpleProtocol:   true,
		SkipDefaultTransaction: true,
	}
}

func WithMaxOpen(maxOpen int) Option {
	return func(o *Options) {
		o.MaxOpen = maxOpen
	}
}

func WithMaxIdle(maxIdle int) Option {
	return func(o *Options) {
		o.MaxIdle = maxIdle
	}
}

func WithMaxLifetime(maxLifetime time.Duration) Option {
	return func(o *Options) {
		o.MaxLifetime = maxLifetime
	}
}

// WithPreferSimpleProtocol disables implicit prepared statements on postgres.
func WithPreferSimpleProtocol(preferSimpleProtocol bool) Option {
	return func(o *Options) {
		o.PreferSimpleProtocol = preferSimpleProtocol
	}
}

func WithSkipDefaultTransaction(skipDefaultTransaction bool) Option {
	return func(o *Options) {
		o.SkipDefaultTransaction = skipDefaultTransaction
	}
}

// WithTraceConfig controls query logging and the slow query threshold.
func WithTraceConfig(traceConfig config.ConfigurationDatabaseTracing) Option {
	return func(o *Options) {
		o.TraceConfig = traceConfig
	}
}

// FromConfig maps the database section of the configuration onto options.
func FromConfig(cfg config.ConfigurationDatabase) []Option {
	opts := []Option{
		WithMaxOpen(cfg.GetMaxOpenConnections()),
		WithMaxIdle(cfg.GetMaxIdleConnections()),
		WithMaxLifetime(cfg.GetMaxConnectionLifeTime()),
		WithPreferSimpleProtocol(cfg.PreferSimpleProtocol()),
		WithSkipDefaultTransaction(cfg.SkipDefaultTransaction()),
	}
	if tc, ok := cfg.(config.ConfigurationDatabaseTracing); ok {
		opts = append(opts, WithTraceConfig(tc))
	}
	return opts
}
