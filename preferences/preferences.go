// Package preferences keeps each user's target language and auto-translate
// mode, fronted by a read cache, together with the language catalog.
package preferences

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pitabwire/util"

	"github.com/pitabwire/linguist/cache"
	"github.com/pitabwire/linguist/data"
)

const (
	defaultLanguage   = "EN-US"
	defaultCacheTTL   = 30 * time.Minute
	defaultCacheSize  = 10000
	preferencesPrefix = "prefs"
)

var ErrUnknownLanguage = errors.New("unknown language")

type UserRepository interface {
	Get(ctx context.Context, id string) (*data.User, error)
	CreateIfAbsent(ctx context.Context, user *data.User) (bool, error)
	SetDefaultLanguage(ctx context.Context, id, lang string) error
	SetAutoMode(ctx context.Context, id string, mode data.AutoMode) error
	SetLastKnownName(ctx context.Context, id, name string) error
}

type LanguageRepository interface {
	UpsertAll(ctx context.Context, languages []data.Language) error
	List(ctx context.Context) ([]data.Language, error)
}

// Prefs is the cached view of a user row.
type Prefs struct {
	Language string        `json:"language"`
	Auto     data.AutoMode `json:"auto"`
}

type Store struct {
	users     UserRepository
	languages LanguageRepository

	fallback   string
	cache      cache.Cache[string, Prefs]
	ownedCache *cache.InMemoryCache
	cacheTTL   time.Duration

	// serialises read-modify-write of cached entries
	writeMu sync.Mutex

	catalogMu sync.RWMutex
	catalog   []data.Language
}

type Option func(*Store)

// WithDefaultLanguage sets the language used for unknown users and failed reads.
func WithDefaultLanguage(code string) Option {
	return func(s *Store) {
		if code = data.NormalizeLanguage(code); code != "" {
			s.fallback = code
		}
	}
}

// WithCache stores preferences in raw instead of a private in-memory cache.
func WithCache(raw cache.RawCache, ttl time.Duration) Option {
	return func(s *Store) {
		if raw != nil {
			s.cache = cache.NewGenericCache[string, Prefs](raw, preferencesPrefix, nil)
		}
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func NewStore(users UserRepository, languages LanguageRepository, opts ...Option) *Store {
	s := &Store{
		users:     users,
		languages: languages,
		fallback:  defaultLanguage,
		cacheTTL:  defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cache == nil {
		s.ownedCache = cache.NewInMemoryCache(cache.WithMaxEntries(defaultCacheSize))
		s.cache = cache.NewGenericCache[string, Prefs](s.ownedCache, preferencesPrefix, nil)
	}
	return s
}

func (s *Store) Close() error {
	if s.ownedCache != nil {
		return s.ownedCache.Close()
	}
	return nil
}

// DefaultLanguage is the process wide fallback.
func (s *Store) DefaultLanguage() string {
	return s.fallback
}

// load returns the user's preferences. Failed reads yield the defaults and are
// never cached.
func (s *Store) load(ctx context.Context, userID string) Prefs {
	log := util.Log(ctx).WithField("user", userID)

	prefs, found, err := s.cache.Get(ctx, userID)
	if err != nil {
		log.WithError(err).Warn("preference cache read failed")
	}
	if found {
		return prefs
	}

	prefs = Prefs{Language: s.fallback, Auto: data.AutoOff}
	user, err := s.users.Get(ctx, userID)
	switch {
	case err == nil:
		if lang := data.NormalizeLanguage(user.DefaultLanguage); lang != "" {
			prefs.Language = lang
		}
		prefs.Auto = user.AutoMode
	case data.ErrorIsNoRows(err):
	default:
		log.WithError(err).Warn("could not read user preferences, using defaults")
		return prefs
	}

	s.remember(ctx, userID, prefs)
	return prefs
}

func (s *Store) remember(ctx context.Context, userID string, prefs Prefs) {
	if err := s.cache.Set(ctx, userID, prefs, s.cacheTTL); err != nil {
		util.Log(ctx).WithError(err).WithField("user", userID).Warn("preference cache write failed")
	}
}

// Peek returns the cached preferences for userID without reading storage.
func (s *Store) Peek(ctx context.Context, userID string) (Prefs, bool) {
	prefs, found, err := s.cache.Get(ctx, userID)
	if err != nil {
		util.Log(ctx).WithError(err).WithField("user", userID).Warn("preference cache read failed")
		return Prefs{}, false
	}
	return prefs, found
}

// Warm loads userID's preferences into the cache. It holds the write lock so a
// concurrent update is never overwritten with the row it replaces.
func (s *Store) Warm(ctx context.Context, userID string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.load(ctx, userID)
}

// GetDefaultLanguage never fails: unknown users and read failures get the
// process wide default.
func (s *Store) GetDefaultLanguage(ctx context.Context, userID string) string {
	return s.load(ctx, userID).Language
}

func (s *Store) GetAutoMode(ctx context.Context, userID string) data.AutoMode {
	return s.load(ctx, userID).Auto
}

// SetDefaultLanguage updates the cache even when the durable write fails; the
// write error is returned for the caller to report.
func (s *Store) SetDefaultLanguage(ctx context.Context, userID, code string) error {
	code = data.NormalizeLanguage(code)
	if code == "" {
		return ErrUnknownLanguage
	}

	s.writeMu.Lock()
	prefs := s.load(ctx, userID)
	prefs.Language = code
	s.remember(ctx, userID, prefs)
	s.writeMu.Unlock()

	if err := s.users.SetDefaultLanguage(ctx, userID, code); err != nil {
		util.Log(ctx).WithError(err).WithField("user", userID).Error("could not store default language")
		return fmt.Errorf("store default language: %w", err)
	}
	return nil
}

func (s *Store) SetAutoMode(ctx context.Context, userID string, mode data.AutoMode) error {
	s.writeMu.Lock()
	prefs := s.load(ctx, userID)
	prefs.Auto = mode
	s.remember(ctx, userID, prefs)
	s.writeMu.Unlock()

	if err := s.users.SetAutoMode(ctx, userID, mode); err != nil {
		util.Log(ctx).WithError(err).WithField("user", userID).Error("could not store auto mode")
		return fmt.Errorf("store auto mode: %w", err)
	}
	return nil
}

// IsNewUser records the first sighting of userID and reports true exactly once.
// A failed check reports false so a user is never greeted twice.
func (s *Store) IsNewUser(ctx context.Context, userID, displayName string) bool {
	created, err := s.users.CreateIfAbsent(ctx, &data.User{
		ID:              userID,
		LastKnownName:   displayName,
		DefaultLanguage: s.fallback,
	})
	if err != nil {
		util.Log(ctx).WithError(err).WithField("user", userID).Error("could not record user")
		return false
	}

	if !created && displayName != "" {
		if err = s.users.SetLastKnownName(ctx, userID, displayName); err != nil {
			util.Log(ctx).WithError(err).WithField("user", userID).Warn("could not update user name")
		}
	}
	return created
}

// Welcome registers the user and, for a new user, infers a language from the
// country they connect from. It returns whether the user was new and the
// language to greet them in.
func (s *Store) Welcome(ctx context.Context, userID, name, country string) (bool, string) {
	if !s.IsNewUser(ctx, userID, name) {
		return false, s.GetDefaultLanguage(ctx, userID)
	}

	if code, ok := s.InferLanguage(ctx, country); ok {
		if err := s.SetDefaultLanguage(ctx, userID, code); err != nil {
			util.Log(ctx).WithError(err).
				WithField("user", userID).
				WithField("language", code).
				Warn("could not apply inferred language")
		}
	}
	return true, s.GetDefaultLanguage(ctx, userID)
}

// normalizeQuery folds case for catalog searches.
func normalizeQuery(q string) string {
	return strings.ToUpper(strings.TrimSpace(q))
}
