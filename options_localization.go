package linguist

import (
	"context"

	"github.com/pitabwire/linguist/config"
	"github.com/pitabwire/linguist/localization"
)

// WithLocalization replaces the embedded message catalogs.
func WithLocalization(manager localization.Manager) Option {
	return func(_ context.Context, s *Service) {
		s.locale = manager
	}
}

// WithRules replaces the match and blacklist rules otherwise read from
// MATCH_RULES_PATH.
func WithRules(rules *config.Rules) Option {
	return func(_ context.Context, s *Service) {
		s.rules = rules
	}
}

func (s *Service) Localization() localization.Manager {
	return s.locale
}
