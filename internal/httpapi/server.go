// Package httpapi exposes the translation pipeline over HTTP with JSON bodies.
package httpapi

import (
	"context"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pitabwire/linguist/data"
	"github.com/pitabwire/linguist/localization"
	"github.com/pitabwire/linguist/pipeline"
	"github.com/pitabwire/linguist/ratelimiter"
)

const (
	defaultMaxBodyBytes = 1 << 20
	defaultOperation    = "linguist"
	HealthCheckPath     = "/healthz"
)

// Pipeline is the part of pipeline.Pipeline served over HTTP.
type Pipeline interface {
	Intercept(ctx context.Context, in pipeline.Inbound) pipeline.Outbound
	Translate(ctx context.Context, userID, lookupKey string) (*pipeline.Rendering, error)
	FailureMessage(ctx context.Context, userID string, err error) string
	LookupKeyFromCommand(command string) (string, bool)
	SetLanguage(ctx context.Context, userID, query string) pipeline.Reply
	SetAutoMode(ctx context.Context, userID string, mode data.AutoMode, canForce bool) pipeline.Reply
	Join(ctx context.Context, userID, name, ip string) pipeline.Joined
	Languages(ctx context.Context) ([]data.Language, error)
}

var _ Pipeline = (*pipeline.Pipeline)(nil)

type Server struct {
	pipeline     Pipeline
	limiter      *ratelimiter.IPRateLimiter
	checkers     []Checker
	maxBodyBytes int64
	operation    string
}

type Option func(*Server)

// WithRateLimiter limits API calls per client IP. Health checks are exempt.
func WithRateLimiter(limiter *ratelimiter.IPRateLimiter) Option {
	return func(s *Server) {
		s.limiter = limiter
	}
}

// WithHealthCheck adds a checker consulted by the health endpoint.
func WithHealthCheck(checker Checker) Option {
	return func(s *Server) {
		if checker != nil {
			s.checkers = append(s.checkers, checker)
		}
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithOperation names the server span emitted for each request.
func WithOperation(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.operation = name
		}
	}
}

func New(p Pipeline, opts ...Option) *Server {
	s := &Server{
		pipeline:     p,
		maxBodyBytes: defaultMaxBodyBytes,
		operation:    defaultOperation,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/messages/intercept", s.handleIntercept)
	api.HandleFunc("POST /v1/translations", s.handleTranslate)
	api.HandleFunc("PUT /v1/users/{id}/language", s.handleSetLanguage)
	api.HandleFunc("PUT /v1/users/{id}/auto", s.handleSetAutoMode)
	api.HandleFunc("POST /v1/users/{id}/join", s.handleJoin)
	api.HandleFunc("GET /v1/languages", s.handleLanguages)

	limited := ratelimiter.RateLimitMiddleware(s.limiter)(localization.LanguageHTTPMiddleware(api))

	root := http.NewServeMux()
	root.HandleFunc("GET "+HealthCheckPath, s.HandleHealth)
	root.Handle("/", limited)

	return otelhttp.NewHandler(root, s.operation)
}
