// Package linguist wires chat interception, write-behind message storage,
// on-demand translation and user language preferences into one service.
package linguist

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pitabwire/util"

	"github.com/pitabwire/linguist/cache"
	"github.com/pitabwire/linguist/client"
	"github.com/pitabwire/linguist/config"
	"github.com/pitabwire/linguist/datastore"
	"github.com/pitabwire/linguist/geoip"
	"github.com/pitabwire/linguist/internal/httpapi"
	"github.com/pitabwire/linguist/localization"
	"github.com/pitabwire/linguist/messages"
	"github.com/pitabwire/linguist/pipeline"
	"github.com/pitabwire/linguist/preferences"
	"github.com/pitabwire/linguist/profiler"
	"github.com/pitabwire/linguist/ratelimiter"
	"github.com/pitabwire/linguist/translator"
	"github.com/pitabwire/linguist/workerpool"
)

type contextKey string

func (c contextKey) String() string {
	return "linguist/" + string(c)
}

const ctxKeyService = contextKey("serviceKey")

// Service holds together every component for the lifetime of the process.
type Service struct {
	cfg    *config.Configuration
	logger *util.LogEntry

	datastore *datastore.Store
	rawCache  cache.RawCache
	pool      workerpool.WorkerPool
	provider  translator.Provider
	budget    ratelimiter.Budget
	locator   geoip.CountryLocator
	locale    localization.Manager
	rules     *config.Rules

	httpClientOpts []client.HTTPOption

	messages  *messages.Store
	prefs     *preferences.Store
	pipeline  *pipeline.Pipeline
	api       *httpapi.Server
	ipLimiter *ratelimiter.IPRateLimiter
	handler   http.Handler

	server        *http.Server
	profiler      *profiler.Server
	startupErrors []error
	cleanup       func(ctx context.Context)
	stopOnce      sync.Once
}

type Option func(ctx context.Context, s *Service)

// NewService builds every component not supplied through opts. Storage
// failures abort construction; translator and geo lookup problems only
// degrade the features that need them.
func NewService(ctx context.Context, cfg *config.Configuration, opts ...Option) (*Service, error) {
	if cfg == nil {
		loaded, err := config.FromEnv[config.Configuration]()
		if err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
		cfg = &loaded
	}

	s := &Service{cfg: cfg, logger: util.Log(ctx), profiler: profiler.NewServer()}
	opts = append([]Option{WithLogger()}, opts...)
	for _, opt := range opts {
		opt(ctx, s)
	}
	ctx = util.ContextWithLogger(ctx, s.logger)

	if err := errors.Join(s.startupErrors...); err != nil {
		s.Stop(ctx)
		return nil, err
	}

	if err := s.setup(ctx); err != nil {
		s.Stop(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Service) setup(ctx context.Context) error {
	var err error
	if s.datastore == nil {
		if s.datastore, err = datastore.Open(ctx, s.cfg); err != nil {
			return err
		}
		s.AddCleanupMethod(s.datastore.Close)
	}

	if s.pool == nil {
		if s.pool, err = workerpool.New(ctx, s.cfg); err != nil {
			return fmt.Errorf("worker pool: %w", err)
		}
		s.AddCleanupMethod(func(_ context.Context) { s.pool.Shutdown() })
	}

	if s.rawCache == nil {
		if s.rawCache, err = NewRawCache(s.cfg); err != nil {
			return err
		}
		s.AddCleanupMethod(func(ctx context.Context) {
			util.CloseAndLogOnError(ctx, s.rawCache, "could not close cache")
		})
	}

	if s.budget == nil {
		s.budget = s.newBudget()
	}
	if s.provider == nil {
		s.provider = translator.NewFromConfig(s.cfg, s.budget, s.clientOptions()...)
	}
	if s.locator == nil {
		s.locator = s.newLocator()
	}
	if s.locale == nil {
		if s.locale, err = localization.NewManager(); err != nil {
			return fmt.Errorf("localization: %w", err)
		}
	}
	if s.rules == nil {
		if s.rules, err = config.LoadRules(s.cfg.GetMatchRulesPath()); err != nil {
			return err
		}
	}

	ttl := s.cfg.GetCacheTTL()
	s.messages = messages.NewStore(s.datastore.Messages, s.datastore.Translations, s.pool,
		messages.WithDedupeWindow(s.cfg.GetMessageDedupeWindow(), s.cfg.GetMessageDedupeCapacity()),
		messages.WithPersistRetries(s.cfg.GetPersistRetries()),
		messages.WithTranslationCache(s.rawCache, ttl),
	)
	s.AddCleanupMethod(func(ctx context.Context) {
		util.CloseAndLogOnError(ctx, s.messages, "could not close message store")
	})

	s.prefs = preferences.NewStore(s.datastore.Users, s.datastore.Languages,
		preferences.WithDefaultLanguage(s.cfg.GetDefaultLanguage()),
		preferences.WithCache(s.rawCache, ttl),
	)
	s.AddCleanupMethod(func(ctx context.Context) {
		util.CloseAndLogOnError(ctx, s.prefs, "could not close preference store")
	})

	if err = s.seedCatalog(ctx); err != nil {
		return err
	}

	s.pipeline, err = pipeline.New(s.messages, s.prefs, s.provider, s.locale,
		pipeline.WithRules(s.rules),
		pipeline.WithCommand(s.cfg.GetTranslateCommand()),
		pipeline.WithResolveWait(s.cfg.GetMessageResolveWait()),
		pipeline.WithLocator(s.locator),
		pipeline.WithWorkerPool(s.pool),
	)
	if err != nil {
		return fmt.Errorf("compile match rules: %w", err)
	}

	apiOpts := []httpapi.Option{
		httpapi.WithOperation(s.Name()),
		httpapi.WithHealthCheck(httpapi.CheckerFunc(s.datastore.Ping)),
	}
	if perMinute := s.cfg.GetHTTPRateLimitPerMinute(); perMinute > 0 {
		s.ipLimiter = ratelimiter.NewIPRateLimiter(s.rawCache, &ratelimiter.WindowConfig{
			WindowDuration: time.Minute,
			MaxPerWindow:   perMinute,
			FailOpen:       true,
		})
		apiOpts = append(apiOpts, httpapi.WithRateLimiter(s.ipLimiter))
	}
	s.api = httpapi.New(s.pipeline, apiOpts...)
	s.handler = s.api.Handler()

	s.logger.WithField("backends", s.translatorBackends()).
		WithField("cache", s.cfg.GetCacheURL()).
		Info("linguist service ready")
	return nil
}

// seedCatalog inserts the embedded language catalog. Existing rows are kept.
func (s *Service) seedCatalog(ctx context.Context) error {
	catalog, err := localization.Catalog()
	if err != nil {
		return fmt.Errorf("language catalog: %w", err)
	}
	if err = s.prefs.Seed(ctx, catalog); err != nil {
		return fmt.Errorf("seed language catalog: %w", err)
	}
	return nil
}

func (s *Service) newBudget() ratelimiter.Budget {
	bucket := ratelimiter.DefaultBucketConfig()
	bucket.Capacity = s.cfg.GetRateLimitCapacity()
	bucket.RefillPerSecond = s.cfg.GetRateLimitRefillPerSecond()

	if !s.cfg.RateLimitPerUser() {
		return ratelimiter.NewTokenBucket(bucket).Shared()
	}

	keyed := ratelimiter.NewKeyedBuckets(bucket)
	s.AddCleanupMethod(func(ctx context.Context) {
		util.CloseAndLogOnError(ctx, keyed, "could not stop rate limiter")
	})
	return keyed
}

func (s *Service) newLocator() geoip.CountryLocator {
	if !s.cfg.GeoIPLookupEnabled() {
		return geoip.Disabled{}
	}
	return geoip.New(s.cfg.GetGeoIPURL(), geoip.WithHTTPClient(client.NewHTTPClient(s.clientOptions()...)))
}

func (s *Service) clientOptions() []client.HTTPOption {
	opts := []client.HTTPOption{client.WithHTTPTraceRequests(s.cfg.TraceReq(), s.cfg.TraceReqLogBody())}
	return append(opts, s.httpClientOpts...)
}

func (s *Service) translatorBackends() []string {
	if chain, ok := s.provider.(*translator.Chain); ok {
		return chain.Backends()
	}
	return []string{"custom"}
}

// ToContext pushes a service instance into the supplied context.
func ToContext(ctx context.Context, s *Service) context.Context {
	return context.WithValue(ctx, ctxKeyService, s)
}

// FromContext obtains a service instance being propagated through the context.
func FromContext(ctx context.Context) *Service {
	s, ok := ctx.Value(ctxKeyService).(*Service)
	if !ok {
		return nil
	}
	return s
}

func (s *Service) Name() string {
	return s.cfg.Name()
}

func (s *Service) Config() *config.Configuration {
	return s.cfg
}

func (s *Service) Pipeline() *pipeline.Pipeline {
	return s.pipeline
}

func (s *Service) Messages() *messages.Store {
	return s.messages
}

func (s *Service) Preferences() *preferences.Store {
	return s.prefs
}

// Handler is the HTTP API, ready to mount.
func (s *Service) Handler() http.Handler {
	return s.handler
}

// AddCleanupMethod registers f to run on Stop. Methods run in reverse order
// of registration.
func (s *Service) AddCleanupMethod(f func(ctx context.Context)) {
	if s.cleanup == nil {
		s.cleanup = f
		return
	}

	old := s.cleanup
	s.cleanup = func(ctx context.Context) { f(ctx); old(ctx) }
}

// AddStartupError records an option failure reported by NewService.
func (s *Service) AddStartupError(err error) {
	if err != nil {
		s.startupErrors = append(s.startupErrors, err)
	}
}
