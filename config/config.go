package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type contextKey string

func (c contextKey) String() string {
	return "linguist/config/" + string(c)
}

const (
	ctxKeyConfiguration = contextKey("configurationKey")

	DefaultSlowQueryThreshold = 200 * time.Millisecond

	// PlaceholderAPIKey is the value shipped in sample configs; treated as unset.
	PlaceholderAPIKey = "changeme"
)

// ToContext adds service configuration to the current supplied context.
func ToContext(ctx context.Context, config any) context.Context {
	return context.WithValue(ctx, ctxKeyConfiguration, config)
}

// FromContext extracts service configuration from the supplied context if any exist.
func FromContext[T any](ctx context.Context) T {
	if cfg, ok := ctx.Value(ctxKeyConfiguration).(T); ok {
		return cfg
	}
	var zero T
	return zero
}

// FromEnv convenience method to process configs.
func FromEnv[T any]() (T, error) {
	return env.ParseAs[T]()
}

// FillEnv convenience method to fill a config object with environment data.
func FillEnv(v any) error {
	return env.Parse(v)
}

type Configuration struct {
	LogLevel          string `envDefault:"info"                      env:"LOG_LEVEL"            yaml:"log_level"`
	LogTimeFormat     string `envDefault:"2006-01-02T15:04:05Z07:00" env:"LOG_TIME_FORMAT"      yaml:"log_time_format"`
	LogColored        bool   `envDefault:"true"                      env:"LOG_COLORED"          yaml:"log_colored"`
	LogShowStackTrace bool   `envDefault:"false"                     env:"LOG_SHOW_STACK_TRACE" yaml:"log_show_stack_trace"`

	TraceRequests        bool `envDefault:"false" env:"TRACE_REQUESTS"          yaml:"trace_requests"`
	TraceRequestsLogBody bool `envDefault:"false" env:"TRACE_REQUESTS_LOG_BODY" yaml:"trace_requests_log_body"`

	ServiceName    string `envDefault:"linguist" env:"SERVICE_NAME"    yaml:"service_name"`
	ServiceVersion string `envDefault:""         env:"SERVICE_VERSION" yaml:"service_version"`
	HTTPServerPort string `envDefault:":8080"    env:"HTTP_PORT"       yaml:"http_server_port"`

	// Worker pool settings
	WorkerPoolCPUFactorForWorkerCount int    `envDefault:"10"  env:"WORKER_POOL_CPU_FACTOR_FOR_WORKER_COUNT" yaml:"worker_pool_cpu_factor_for_worker_count"`
	WorkerPoolCapacity                int    `envDefault:"100" env:"WORKER_POOL_CAPACITY"                    yaml:"worker_pool_capacity"`
	WorkerPoolCount                   int    `envDefault:"1"   env:"WORKER_POOL_COUNT"                       yaml:"worker_pool_count"`
	WorkerPoolExpiryDuration          string `envDefault:"1s"  env:"WORKER_POOL_EXPIRY_DURATION"             yaml:"worker_pool_expiry_duration"`

	DatabaseURL                    string `envDefault:"sqlite://linguist.db" env:"DATABASE_URL"             yaml:"database_url"`
	DatabaseMigrate                bool   `envDefault:"true"                 env:"DO_MIGRATION"             yaml:"do_migration"`
	DatabaseSkipDefaultTransaction bool   `envDefault:"true"                 env:"SKIP_DEFAULT_TRANSACTION" yaml:"skip_default_transaction"`
	DatabasePreferSimpleProtocol   bool   `envDefault:"true"                 env:"PREFER_SIMPLE_PROTOCOL"   yaml:"prefer_simple_protocol"`

	DatabaseMaxIdleConnections           int `envDefault:"2"   env:"DATABASE_MAX_IDLE_CONNECTIONS"                yaml:"database_max_idle_connections"`
	DatabaseMaxOpenConnections           int `envDefault:"5"   env:"DATABASE_MAX_OPEN_CONNECTIONS"                yaml:"database_max_open_connections"`
	DatabaseMaxConnectionLifeTimeSeconds int `envDefault:"300" env:"DATABASE_MAX_CONNECTION_LIFE_TIME_IN_SECONDS" yaml:"database_max_connection_life_time_seconds"`

	DatabaseTraceQueries          bool   `envDefault:"false" env:"DATABASE_LOG_QUERIES"          yaml:"database_log_queries"`
	DatabaseSlowQueryLogThreshold string `envDefault:"200ms" env:"DATABASE_SLOW_QUERY_THRESHOLD" yaml:"database_slow_query_threshold"`

	CacheURL string `envDefault:"mem://" env:"CACHE_URL" yaml:"cache_url"`
	CacheTTL string `envDefault:"1h"     env:"CACHE_TTL" yaml:"cache_ttl"`

	DefaultLanguage string `envDefault:"EN-US" env:"DEFAULT_LANGUAGE" yaml:"default_language"`

	RateLimitCapacity        int     `envDefault:"256"    env:"RATE_LIMIT_CAPACITY"          yaml:"rate_limit_capacity"`
	RateLimitRefillPerSecond float64 `envDefault:"25"     env:"RATE_LIMIT_REFILL_PER_SECOND" yaml:"rate_limit_refill_per_second"`
	RateLimitScope           string  `envDefault:"global" env:"RATE_LIMIT_SCOPE"             yaml:"rate_limit_scope"`

	HTTPRateLimitPerMinute int `envDefault:"600" env:"HTTP_RATE_LIMIT_PER_MINUTE" yaml:"http_rate_limit_per_minute"`

	MatchRulesPath string `envDefault:"" env:"MATCH_RULES_PATH" yaml:"match_rules_path"`

	TranslatorUseMobile     bool   `envDefault:"true"                                 env:"TRANSLATOR_USE_MOBILE"     yaml:"translator_use_mobile"`
	TranslatorMobileURL     string `envDefault:"https://www2.deepl.com/jsonrpc"       env:"TRANSLATOR_MOBILE_URL"     yaml:"translator_mobile_url"`
	TranslatorMobileTimeout string `envDefault:"5s"                                   env:"TRANSLATOR_MOBILE_TIMEOUT" yaml:"translator_mobile_timeout"`
	TranslatorAPIURL        string `envDefault:"https://api-free.deepl.com/v2/translate" env:"TRANSLATOR_API_URL"  yaml:"translator_api_url"`
	TranslatorAPIKey        string `envDefault:"changeme"                             env:"TRANSLATOR_API_KEY"        yaml:"translator_api_key"`
	TranslatorAPITimeout    string `envDefault:"10s"                                  env:"TRANSLATOR_API_TIMEOUT"    yaml:"translator_api_timeout"`

	GeoIPEnabled bool   `envDefault:"true"                   env:"GEOIP_ENABLED" yaml:"geoip_enabled"`
	GeoIPURL     string `envDefault:"http://ip-api.com/json/" env:"GEOIP_URL"     yaml:"geoip_url"`

	TranslateCommand      string `envDefault:"/linguist translate " env:"TRANSLATE_COMMAND"        yaml:"translate_command"`
	MessageDedupeWindow   string `envDefault:"1m"                   env:"MESSAGE_DEDUPE_WINDOW"    yaml:"message_dedupe_window"`
	MessageDedupeCapacity int    `envDefault:"512"                  env:"MESSAGE_DEDUPE_CAPACITY"  yaml:"message_dedupe_capacity"`
	MessageResolveWait    string `envDefault:"2s"                   env:"MESSAGE_RESOLVE_WAIT"     yaml:"message_resolve_wait"`
	PersistRetries        int    `envDefault:"3"                    env:"PERSIST_RETRIES"          yaml:"persist_retries"`

	ProfilerEnable   bool   `envDefault:"false" env:"PROFILER_ENABLED" yaml:"profiler_enabled"`
	ProfilerPortAddr string `envDefault:":6060" env:"PROFILER_PORT"    yaml:"profiler_port"`
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

type ConfigurationService interface {
	Name() string
	Version() string
}

var _ ConfigurationService = new(Configuration)

func (c *Configuration) Name() string {
	return c.ServiceName
}

func (c *Configuration) Version() string {
	return c.ServiceVersion
}

type ConfigurationLogLevel interface {
	LoggingLevel() string
	LoggingTimeFormat() string
	LoggingShowStackTrace() bool
	LoggingColored() bool
	LoggingLevelIsDebug() bool
}

var _ ConfigurationLogLevel = new(Configuration)

func (c *Configuration) LoggingLevel() string {
	return c.LogLevel
}

func (c *Configuration) LoggingTimeFormat() string {
	return c.LogTimeFormat
}

func (c *Configuration) LoggingColored() bool {
	return c.LogColored
}

func (c *Configuration) LoggingShowStackTrace() bool {
	return c.LogShowStackTrace
}

func (c *Configuration) LoggingLevelIsDebug() bool {
	return c.LoggingLevel() == "debug" || c.LoggingLevel() == "trace"
}

type ConfigurationTraceRequests interface {
	TraceReq() bool
	TraceReqLogBody() bool
}

var _ ConfigurationTraceRequests = new(Configuration)

func (c *Configuration) TraceReq() bool {
	return c.TraceRequests
}

func (c *Configuration) TraceReqLogBody() bool {
	return c.TraceRequestsLogBody
}

type ConfigurationPorts interface {
	HTTPPort() string
}

var _ ConfigurationPorts = new(Configuration)

func (c *Configuration) HTTPPort() string {
	if i, err := strconv.Atoi(c.HTTPServerPort); err == nil && i > 0 {
		return fmt.Sprintf(":%s", strings.TrimSpace(c.HTTPServerPort))
	}

	if strings.Contains(c.HTTPServerPort, ":") {
		return c.HTTPServerPort
	}

	return ":8080"
}

type ConfigurationWorkerPool interface {
	GetCPUFactor() int
	GetCapacity() int
	GetCount() int
	GetExpiryDuration() time.Duration
}

var _ ConfigurationWorkerPool = new(Configuration)

func (c *Configuration) GetCPUFactor() int {
	return c.WorkerPoolCPUFactorForWorkerCount
}

func (c *Configuration) GetCapacity() int {
	return c.WorkerPoolCapacity
}

func (c *Configuration) GetCount() int {
	return c.WorkerPoolCount
}

func (c *Configuration) GetExpiryDuration() time.Duration {
	return parseDuration(c.WorkerPoolExpiryDuration, time.Second)
}

type ConfigurationDatabase interface {
	GetDatabaseURL() string
	DoDatabaseMigrate() bool
	SkipDefaultTransaction() bool
	PreferSimpleProtocol() bool
	GetMaxIdleConnections() int
	GetMaxOpenConnections() int
	GetMaxConnectionLifeTime() time.Duration
}

type ConfigurationDatabaseTracing interface {
	CanDatabaseTraceQueries() bool
	GetDatabaseSlowQueryLogThreshold() time.Duration
}

var _ ConfigurationDatabase = new(Configuration)
var _ ConfigurationDatabaseTracing = new(Configuration)

func (c *Configuration) GetDatabaseURL() string {
	return c.DatabaseURL
}

func (c *Configuration) DoDatabaseMigrate() bool {
	return c.DatabaseMigrate
}

func (c *Configuration) SkipDefaultTransaction() bool {
	return c.DatabaseSkipDefaultTransaction
}

func (c *Configuration) PreferSimpleProtocol() bool {
	return c.DatabasePreferSimpleProtocol
}

func (c *Configuration) GetMaxIdleConnections() int {
	return c.DatabaseMaxIdleConnections
}

func (c *Configuration) GetMaxOpenConnections() int {
	return c.DatabaseMaxOpenConnections
}

func (c *Configuration) GetMaxConnectionLifeTime() time.Duration {
	return time.Duration(c.DatabaseMaxConnectionLifeTimeSeconds) * time.Second
}

func (c *Configuration) CanDatabaseTraceQueries() bool {
	return c.DatabaseTraceQueries
}

func (c *Configuration) GetDatabaseSlowQueryLogThreshold() time.Duration {
	return parseDuration(c.DatabaseSlowQueryLogThreshold, DefaultSlowQueryThreshold)
}

type ConfigurationCache interface {
	GetCacheURL() string
	GetCacheTTL() time.Duration
}

var _ ConfigurationCache = new(Configuration)

func (c *Configuration) GetCacheURL() string {
	return c.CacheURL
}

func (c *Configuration) GetCacheTTL() time.Duration {
	return parseDuration(c.CacheTTL, time.Hour)
}

type ConfigurationRateLimit interface {
	GetRateLimitCapacity() int
	GetRateLimitRefillPerSecond() float64
	RateLimitPerUser() bool
	GetHTTPRateLimitPerMinute() int
}

var _ ConfigurationRateLimit = new(Configuration)

func (c *Configuration) GetRateLimitCapacity() int {
	if c.RateLimitCapacity <= 0 {
		return 256
	}
	return c.RateLimitCapacity
}

func (c *Configuration) GetRateLimitRefillPerSecond() float64 {
	if c.RateLimitRefillPerSecond <= 0 {
		return 25
	}
	return c.RateLimitRefillPerSecond
}

func (c *Configuration) RateLimitPerUser() bool {
	return strings.EqualFold(strings.TrimSpace(c.RateLimitScope), "user")
}

func (c *Configuration) GetHTTPRateLimitPerMinute() int {
	return c.HTTPRateLimitPerMinute
}

type ConfigurationTranslator interface {
	UseMobileTranslator() bool
	GetMobileTranslatorURL() string
	GetMobileTranslatorTimeout() time.Duration
	GetAPITranslatorURL() string
	GetAPITranslatorKey() string
	GetAPITranslatorTimeout() time.Duration
	APITranslatorConfigured() bool
}

var _ ConfigurationTranslator = new(Configuration)

func (c *Configuration) UseMobileTranslator() bool {
	return c.TranslatorUseMobile
}

func (c *Configuration) GetMobileTranslatorURL() string {
	return c.TranslatorMobileURL
}

func (c *Configuration) GetMobileTranslatorTimeout() time.Duration {
	return parseDuration(c.TranslatorMobileTimeout, 5*time.Second)
}

func (c *Configuration) GetAPITranslatorURL() string {
	return c.TranslatorAPIURL
}

func (c *Configuration) GetAPITranslatorKey() string {
	return c.TranslatorAPIKey
}

func (c *Configuration) GetAPITranslatorTimeout() time.Duration {
	return parseDuration(c.TranslatorAPITimeout, 10*time.Second)
}

// APITranslatorConfigured reports false for an empty or placeholder key.
func (c *Configuration) APITranslatorConfigured() bool {
	return IsAPIKeySet(c.TranslatorAPIKey)
}

// IsAPIKeySet reports whether key is neither empty nor the shipped placeholder.
func IsAPIKeySet(key string) bool {
	key = strings.TrimSpace(key)
	return key != "" && key != PlaceholderAPIKey
}

type ConfigurationGeoIP interface {
	GeoIPLookupEnabled() bool
	GetGeoIPURL() string
}

var _ ConfigurationGeoIP = new(Configuration)

func (c *Configuration) GeoIPLookupEnabled() bool {
	return c.GeoIPEnabled && c.GeoIPURL != ""
}

func (c *Configuration) GetGeoIPURL() string {
	return c.GeoIPURL
}

type ConfigurationMessages interface {
	GetDefaultLanguage() string
	GetTranslateCommand() string
	GetMessageDedupeWindow() time.Duration
	GetMessageDedupeCapacity() int
	GetMessageResolveWait() time.Duration
	GetPersistRetries() int
	GetMatchRulesPath() string
}

var _ ConfigurationMessages = new(Configuration)

func (c *Configuration) GetDefaultLanguage() string {
	lang := strings.ToUpper(strings.TrimSpace(c.DefaultLanguage))
	if lang == "" {
		return "EN-US"
	}
	return lang
}

func (c *Configuration) GetTranslateCommand() string {
	return c.TranslateCommand
}

func (c *Configuration) GetMessageDedupeWindow() time.Duration {
	return parseDuration(c.MessageDedupeWindow, time.Minute)
}

func (c *Configuration) GetMessageDedupeCapacity() int {
	if c.MessageDedupeCapacity <= 0 {
		return 512
	}
	return c.MessageDedupeCapacity
}

func (c *Configuration) GetMessageResolveWait() time.Duration {
	return parseDuration(c.MessageResolveWait, 2*time.Second)
}

func (c *Configuration) GetPersistRetries() int {
	if c.PersistRetries < 0 {
		return 0
	}
	return c.PersistRetries
}

func (c *Configuration) GetMatchRulesPath() string {
	return c.MatchRulesPath
}

type ConfigurationProfiler interface {
	ProfilerEnabled() bool
	ProfilerPort() string
}

var _ ConfigurationProfiler = new(Configuration)

func (c *Configuration) ProfilerEnabled() bool {
	return c.ProfilerEnable
}

func (c *Configuration) ProfilerPort() string {
	if c.ProfilerPortAddr == "" {
		return ":6060"
	}
	return c.ProfilerPortAddr
}
