package preferences

import (
	"context"
	"strings"

	"github.com/pitabwire/util"

	"github.com/pitabwire/linguist/data"
)

// countryLanguage resolves countries whose code is not a language token, or
// whose language has regional variants.
var countryLanguage = map[string]string{
	"CN": "ZH",
	"TW": "ZH",
	"HK": "ZH",
	"JP": "JA",
	"GB": "EN-GB",
	"AU": "EN-GB",
	"US": "EN-US",
	"CA": "EN-US",

	"ES": "ES",
	"MX": "ES",
	"AR": "ES",
	"CL": "ES",
	"CO": "ES",
	"PE": "ES",
	"VE": "ES",
	"EC": "ES",
	"GT": "ES",
	"CU": "ES",
	"BO": "ES",
	"DO": "ES",
	"HN": "ES",

	"BR": "PT-BR",
	"PT": "PT-PT",
}

// Seed inserts the catalog, keeping existing rows, and reloads it.
func (s *Store) Seed(ctx context.Context, languages []data.Language) error {
	if err := s.languages.UpsertAll(ctx, languages); err != nil {
		return err
	}

	s.catalogMu.Lock()
	s.catalog = nil
	s.catalogMu.Unlock()
	return nil
}

// Languages returns the catalog, loading it on first use. A failed load is
// retried on the next call.
func (s *Store) Languages(ctx context.Context) ([]data.Language, error) {
	s.catalogMu.RLock()
	catalog := s.catalog
	s.catalogMu.RUnlock()
	if catalog != nil {
		return catalog, nil
	}

	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	if s.catalog != nil {
		return s.catalog, nil
	}

	loaded, err := s.languages.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(loaded) > 0 {
		s.catalog = loaded
	}
	return loaded, nil
}

// FindLanguage matches query against codes first, then against codes, native
// and English names by substring, ignoring case.
func (s *Store) FindLanguage(ctx context.Context, query string) (data.Language, bool) {
	q := normalizeQuery(query)
	if q == "" {
		return data.Language{}, false
	}

	catalog, err := s.Languages(ctx)
	if err != nil {
		util.Log(ctx).WithError(err).Warn("could not load language catalog")
		return data.Language{}, false
	}

	for _, l := range catalog {
		if strings.EqualFold(l.Code, q) {
			return l, true
		}
	}
	for _, l := range catalog {
		if strings.Contains(strings.ToUpper(l.Code), q) ||
			strings.Contains(strings.ToUpper(l.NativeName), q) ||
			strings.Contains(strings.ToUpper(l.EnglishName), q) {
			return l, true
		}
	}
	return data.Language{}, false
}

// InferLanguage maps a country code to a catalog language: the override table
// first, then the first catalog code containing the resulting token.
func (s *Store) InferLanguage(ctx context.Context, country string) (string, bool) {
	token := normalizeQuery(country)
	if token == "" {
		return "", false
	}
	if mapped, ok := countryLanguage[token]; ok {
		token = mapped
	}

	catalog, err := s.Languages(ctx)
	if err != nil {
		util.Log(ctx).WithError(err).Warn("could not load language catalog")
		return "", false
	}

	for _, l := range catalog {
		if strings.Contains(strings.ToUpper(l.Code), token) {
			return l.Code, true
		}
	}
	return "", false
}
