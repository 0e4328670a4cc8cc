// Package messages hands out lookup keys for chat messages without waiting on
// storage, persists them in the background and resolves translations for them.
package messages

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pitabwire/util"
	"golang.org/x/sync/singleflight"

	"github.com/pitabwire/linguist/cache"
	"github.com/pitabwire/linguist/data"
	"github.com/pitabwire/linguist/workerpool"
)

const (
	defaultDedupeWindow   = time.Minute
	defaultDedupeCapacity = 512
	defaultPersistRetries = 3
	defaultTranslationTTL = time.Hour

	defaultTranslationEntries = 4096
	translationKeyPrefix  = "translation"
)

var (
	// ErrNotYetAvailable means the key was issued but its write has not completed.
	ErrNotYetAvailable = errors.New("message not yet available")
	// ErrUnknownLookup means the key was never issued or its write failed.
	ErrUnknownLookup = errors.New("unknown lookup key")
)

// MessageRepository is the durable side of message registration.
type MessageRepository interface {
	Persist(ctx context.Context, lookupKey, rendered, plain string) (*data.Message, error)
	ResolveVariant(ctx context.Context, lookupKey string) (*data.MessageVariant, error)
	Get(ctx context.Context, id string) (*data.Message, error)
}

// TranslationRepository stores translations, at most one per message and language.
type TranslationRepository interface {
	Get(ctx context.Context, messageID, lang string) (*data.Translation, error)
	Save(ctx context.Context, messageID, lang, text, sourceLanguage string) (*data.Translation, error)
}

// Resolved is a persisted message together with the rendered form the lookup
// key was registered with.
type Resolved struct {
	Message  *data.Message
	Rendered string
}

type pendingEntry struct {
	done       chan struct{}
	contentKey string
}

// Store implements write-behind registration and translation resolution.
type Store struct {
	messages     MessageRepository
	translations TranslationRepository
	pool         workerpool.WorkerPool

	dedupeWindow   time.Duration
	dedupe         *cache.InMemoryCache
	persistRetries int

	translationCache cache.Cache[translationKey, Translated]
	ownedCache       *cache.InMemoryCache
	translationTTL   time.Duration
	inflight         singleflight.Group

	mu      sync.Mutex
	pending map[string]*pendingEntry
}

type Option func(*Store)

// WithDedupeWindow sets for how long, and for how many distinct contents, a
// repeated registration reuses the previous key.
func WithDedupeWindow(window time.Duration, capacity int) Option {
	return func(s *Store) {
		if window > 0 {
			s.dedupeWindow = window
		}
		if capacity > 0 {
			s.dedupe = cache.NewInMemoryCache(cache.WithMaxEntries(capacity))
		}
	}
}

func WithPersistRetries(retries int) Option {
	return func(s *Store) {
		s.persistRetries = max(retries, 0)
	}
}

// WithTranslationCache fronts the translation repository with c.
func WithTranslationCache(c cache.RawCache, ttl time.Duration) Option {
	return func(s *Store) {
		if c != nil {
			s.translationCache = newTranslationCache(c)
		}
		if ttl > 0 {
			s.translationTTL = ttl
		}
	}
}

func NewStore(
	messages MessageRepository,
	translations TranslationRepository,
	pool workerpool.WorkerPool,
	opts ...Option,
) *Store {
	s := &Store{
		messages:       messages,
		translations:   translations,
		pool:           pool,
		dedupeWindow:   defaultDedupeWindow,
		persistRetries: defaultPersistRetries,
		translationTTL: defaultTranslationTTL,
		pending:        make(map[string]*pendingEntry),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.dedupe == nil {
		s.dedupe = cache.NewInMemoryCache(cache.WithMaxEntries(defaultDedupeCapacity))
	}
	if s.translationCache == nil {
		s.ownedCache = cache.NewInMemoryCache(cache.WithMaxEntries(defaultTranslationEntries))
		s.translationCache = newTranslationCache(s.ownedCache)
	}
	return s
}

// Close releases the in-process caches. The pool, repositories and any cache
// passed in belong to the caller.
func (s *Store) Close() error {
	err := s.dedupe.Close()
	if s.ownedCache != nil {
		err = errors.Join(err, s.ownedCache.Close())
	}
	return err
}

// Register returns a lookup key for the message immediately and persists it in
// the background. The same content registered again within the dedupe window
// gets the previous key back.
func (s *Store) Register(ctx context.Context, rendered, plain string) string {
	contentKey := data.ContentHash(rendered, plain)
	if recent, found, _ := s.dedupe.Get(ctx, contentKey); found {
		return string(recent)
	}

	lookupKey := uuid.NewString()
	s.mu.Lock()
	s.pending[lookupKey] = &pendingEntry{done: make(chan struct{}), contentKey: contentKey}
	s.mu.Unlock()
	_ = s.dedupe.Set(ctx, contentKey, []byte(lookupKey), s.dedupeWindow)

	bgCtx := context.WithoutCancel(ctx)
	job := workerpool.NewJob(func(jobCtx context.Context) error {
		_, err := s.messages.Persist(jobCtx, lookupKey, rendered, plain)
		return err
	}, s.persistRetries)

	if err := workerpool.SubmitJob(bgCtx, s.pool, job); err != nil {
		util.Log(ctx).WithError(err).WithField("lookup_key", lookupKey).Error("could not schedule message persistence")
	}

	go s.settle(bgCtx, lookupKey, job)
	return lookupKey
}

func (s *Store) settle(ctx context.Context, lookupKey string, job *workerpool.Job) {
	err := job.Err()

	s.mu.Lock()
	entry := s.pending[lookupKey]
	delete(s.pending, lookupKey)
	s.mu.Unlock()

	if err != nil {
		util.Log(ctx).WithError(err).
			WithField("lookup_key", lookupKey).
			WithField("runs", job.Runs()).
			Error("message persistence failed, lookup key will not resolve")
		if entry != nil {
			_ = s.dedupe.Delete(ctx, entry.contentKey)
		}
	}

	if entry != nil {
		close(entry.done)
	}
}

// Pending reports whether lookupKey is still waiting for its write.
func (s *Store) Pending(lookupKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[lookupKey]
	return ok
}

// Resolve returns the message behind lookupKey, ErrNotYetAvailable while its
// write is in flight and ErrUnknownLookup when there is nothing to find.
func (s *Store) Resolve(ctx context.Context, lookupKey string) (*Resolved, error) {
	if lookupKey == "" {
		return nil, ErrUnknownLookup
	}
	if s.Pending(lookupKey) {
		return nil, ErrNotYetAvailable
	}

	variant, err := s.messages.ResolveVariant(ctx, lookupKey)
	if err != nil {
		if data.ErrorIsNoRows(err) {
			return nil, ErrUnknownLookup
		}
		return nil, fmt.Errorf("resolve lookup key: %w", err)
	}

	msg, err := s.messages.Get(ctx, variant.MessageID)
	if err != nil {
		if data.ErrorIsNoRows(err) {
			return nil, ErrUnknownLookup
		}
		return nil, fmt.Errorf("load message: %w", err)
	}

	return &Resolved{Message: msg, Rendered: variant.RenderedForm}, nil
}

// AwaitResolve waits for a pending write to settle, bounded by ctx, then resolves.
func (s *Store) AwaitResolve(ctx context.Context, lookupKey string) (*Resolved, error) {
	s.mu.Lock()
	entry := s.pending[lookupKey]
	s.mu.Unlock()

	if entry != nil {
		select {
		case <-entry.done:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrNotYetAvailable, ctx.Err())
		}
	}

	return s.Resolve(ctx, lookupKey)
}
