package translator

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pitabwire/util"

	"github.com/pitabwire/linguist/client"
	"github.com/pitabwire/linguist/config"
	"github.com/pitabwire/linguist/ratelimiter"
)

const defaultBackendTimeout = 10 * time.Second

type chainLink struct {
	backend Backend
	timeout time.Duration
}

// Chain tries its backends in order and returns the first translation.
// Every call is charged against the budget before any backend is contacted.
type Chain struct {
	links  []chainLink
	budget ratelimiter.Budget
}

var _ Provider = (*Chain)(nil)

type ChainOption func(*Chain)

// WithBudget charges each call its rune count, keyed by the context origin.
func WithBudget(b ratelimiter.Budget) ChainOption {
	return func(c *Chain) {
		if b != nil {
			c.budget = b
		}
	}
}

// WithBackend appends b, bounding each of its calls by timeout.
func WithBackend(b Backend, timeout time.Duration) ChainOption {
	return func(c *Chain) {
		if timeout <= 0 {
			timeout = defaultBackendTimeout
		}
		c.links = append(c.links, chainLink{backend: b, timeout: timeout})
	}
}

func NewChain(opts ...ChainOption) *Chain {
	c := &Chain{budget: ratelimiter.Unlimited}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds the mobile then api chain described by cfg.
func NewFromConfig(cfg config.ConfigurationTranslator, budget ratelimiter.Budget, opts ...client.HTTPOption) *Chain {
	var chainOpts []ChainOption
	chainOpts = append(chainOpts, WithBudget(budget))

	if cfg.UseMobileTranslator() {
		mobile := NewMobileBackend(
			WithMobileURL(cfg.GetMobileTranslatorURL()),
			WithMobileHTTPClient(client.NewHTTPClient(opts...)),
		)
		chainOpts = append(chainOpts, WithBackend(WithCircuitBreaker(mobile), cfg.GetMobileTranslatorTimeout()))
	}

	api := NewAPIBackend(cfg.GetAPITranslatorKey(),
		WithAPIURL(cfg.GetAPITranslatorURL()),
		WithAPIHTTPClient(client.NewHTTPClient(opts...)),
	)
	chainOpts = append(chainOpts, WithBackend(api, cfg.GetAPITranslatorTimeout()))

	return NewChain(chainOpts...)
}

// Backends lists backend names in the order they are tried.
func (c *Chain) Backends() []string {
	names := make([]string, 0, len(c.links))
	for _, l := range c.links {
		names = append(names, l.backend.Name())
	}
	return names
}

func (c *Chain) Translate(ctx context.Context, text, target string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoTranslation
	}

	origin := OriginFromContext(ctx)
	if !c.budget.TryConsume(origin, utf8.RuneCountInString(text)) {
		return nil, ErrRateLimited
	}

	log := util.Log(ctx).WithField("target", target)
	failures := []error{ErrNoTranslation}
	for _, link := range c.links {
		res, err := c.attempt(ctx, link, text, target)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		log.WithError(err).WithField("backend", link.backend.Name()).Warn("translation backend failed, trying next")
		failures = append(failures, err)
	}

	return nil, errors.Join(failures...)
}

func (c *Chain) attempt(ctx context.Context, link chainLink, text, target string) (*Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, link.timeout)
	defer cancel()

	res, err := link.backend.Translate(callCtx, text, target)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &TransportError{Backend: link.backend.Name(), Err: err}
		}
		return nil, err
	}
	if res == nil || res.Text == "" {
		return nil, ErrNoTranslation
	}

	res.Backend = link.backend.Name()
	return res, nil
}
