package linguist

import (
	"context"

	"github.com/pitabwire/linguist/client"
	"github.com/pitabwire/linguist/geoip"
	"github.com/pitabwire/linguist/ratelimiter"
	"github.com/pitabwire/linguist/translator"
)

// WithHTTPClient customises the outbound clients built for the translator
// backends and the geo lookup.
func WithHTTPClient(opts ...client.HTTPOption) Option {
	return func(_ context.Context, s *Service) {
		s.httpClientOpts = append(s.httpClientOpts, opts...)
	}
}

// WithTranslator replaces the configured backend chain. The translation
// budget is not applied to a custom provider unless it applies one itself.
func WithTranslator(provider translator.Provider) Option {
	return func(_ context.Context, s *Service) {
		s.provider = provider
	}
}

// WithTranslationBudget replaces the RATE_LIMIT_* budget of the default chain.
func WithTranslationBudget(budget ratelimiter.Budget) Option {
	return func(_ context.Context, s *Service) {
		s.budget = budget
	}
}

// WithLocator replaces the ip-api country lookup used on join.
func WithLocator(locator geoip.CountryLocator) Option {
	return func(_ context.Context, s *Service) {
		s.locator = locator
	}
}
