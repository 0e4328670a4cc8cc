package messages_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/pitabwire/linguist/config"
	"github.com/pitabwire/linguist/data"
	"github.com/pitabwire/linguist/datastore"
	"github.com/pitabwire/linguist/datastore/pool"
	"github.com/pitabwire/linguist/messages"
	"github.com/pitabwire/linguist/translator"
	"github.com/pitabwire/linguist/workerpool"
)

type gatedMessages struct {
	*datastore.MessageRepository
	gate chan struct{}
}

func (g *gatedMessages) Persist(ctx context.Context, lookupKey, rendered, plain string) (*data.Message, error) {
	<-g.gate
	return g.MessageRepository.Persist(ctx, lookupKey, rendered, plain)
}

type brokenMessages struct {
	*datastore.MessageRepository
	calls atomic.Int32
}

func (b *brokenMessages) Persist(context.Context, string, string, string) (*data.Message, error) {
	b.calls.Add(1)
	return nil, errors.New("disk full")
}

type panickingMessages struct {
	*datastore.MessageRepository
}

func (panickingMessages) Persist(context.Context, string, string, string) (*data.Message, error) {
	panic("driver bug")
}

type flakyTranslations struct {
	*datastore.TranslationRepository
	failures atomic.Int32
}

func (f *flakyTranslations) Save(ctx context.Context, messageID, lang, text, source string) (*data.Translation, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("connection reset")
	}
	return f.TranslationRepository.Save(ctx, messageID, lang, text, source)
}

type countingProvider struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (p *countingProvider) Translate(_ context.Context, text, target string) (*translator.Result, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.err != nil {
		return nil, p.err
	}
	return &translator.Result{Text: target + ":" + text, SourceLanguage: "EN"}, nil
}

type StoreSuite struct {
	suite.Suite
	db    *datastore.Store
	pool  workerpool.WorkerPool
	store *messages.Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	ctx := s.T().Context()

	p, err := pool.New(ctx, data.DSN("sqlite://:memory:"))
	s.Require().NoError(err)
	s.db = datastore.NewStore(p)
	s.Require().NoError(s.db.Migrate(ctx))

	cfg := &config.Configuration{WorkerPoolCPUFactorForWorkerCount: 2, WorkerPoolCapacity: 50, WorkerPoolCount: 1}
	s.pool, err = workerpool.New(ctx, cfg)
	s.Require().NoError(err)

	s.store = messages.NewStore(s.db.Messages, s.db.Translations, s.pool)
}

func (s *StoreSuite) TearDownTest() {
	s.NoError(s.store.Close())
	s.pool.Shutdown()
	s.db.Close(context.Background())
}

func (s *StoreSuite) await(key string) *messages.Resolved {
	ctx, cancel := context.WithTimeout(s.T().Context(), 5*time.Second)
	defer cancel()

	resolved, err := s.store.AwaitResolve(ctx, key)
	s.Require().NoError(err)
	return resolved
}

func (s *StoreSuite) TestRegisterThenResolve() {
	key := s.store.Register(s.T().Context(), `{"text":"<bob> hi"}`, "hi")
	s.NotEmpty(key)

	resolved := s.await(key)
	s.Equal("hi", resolved.Message.Text)
	s.Equal(`{"text":"<bob> hi"}`, resolved.Rendered)
	s.False(s.store.Pending(key))
}

func (s *StoreSuite) TestRegisterWithinWindowReusesKey() {
	first := s.store.Register(s.T().Context(), "r", "hello")
	second := s.store.Register(s.T().Context(), "r", "hello")
	s.Equal(first, second)

	other := s.store.Register(s.T().Context(), "r2", "hello")
	s.NotEqual(first, other)
}

func (s *StoreSuite) TestIdenticalContentResolvesToSameMessage() {
	store := messages.NewStore(s.db.Messages, s.db.Translations, s.pool,
		messages.WithDedupeWindow(time.Nanosecond, 8))
	defer store.Close()

	first := store.Register(s.T().Context(), "rendered", "same text")
	time.Sleep(time.Millisecond)
	second := store.Register(s.T().Context(), "rendered", "same text")
	s.Require().NotEqual(first, second)

	ctx, cancel := context.WithTimeout(s.T().Context(), 5*time.Second)
	defer cancel()
	a, err := store.AwaitResolve(ctx, first)
	s.Require().NoError(err)
	b, err := store.AwaitResolve(ctx, second)
	s.Require().NoError(err)
	s.Equal(a.Message.ID, b.Message.ID)
}

func (s *StoreSuite) TestResolveWhilePending() {
	gated := &gatedMessages{MessageRepository: s.db.Messages, gate: make(chan struct{})}
	store := messages.NewStore(gated, s.db.Translations, s.pool)
	defer store.Close()

	key := store.Register(s.T().Context(), "r", "pending text")
	_, err := store.Resolve(s.T().Context(), key)
	s.ErrorIs(err, messages.ErrNotYetAvailable)

	short, cancel := context.WithTimeout(s.T().Context(), 20*time.Millisecond)
	_, err = store.AwaitResolve(short, key)
	cancel()
	s.ErrorIs(err, messages.ErrNotYetAvailable)
	s.ErrorIs(err, context.DeadlineExceeded)

	close(gated.gate)
	ctx, cancel := context.WithTimeout(s.T().Context(), 5*time.Second)
	defer cancel()
	resolved, err := store.AwaitResolve(ctx, key)
	s.Require().NoError(err)
	s.Equal("pending text", resolved.Message.Text)
}

func (s *StoreSuite) TestRegisterDoesNotWaitForStorage() {
	gated := &gatedMessages{MessageRepository: s.db.Messages, gate: make(chan struct{})}
	store := messages.NewStore(gated, s.db.Translations, s.pool)
	defer func() {
		close(gated.gate)
		store.Close()
	}()

	done := make(chan string, 1)
	go func() { done <- store.Register(context.Background(), "r", "x") }()

	select {
	case key := <-done:
		s.NotEmpty(key)
	case <-time.After(time.Second):
		s.Fail("register blocked on storage")
	}
}

func (s *StoreSuite) TestUnknownLookup() {
	_, err := s.store.Resolve(s.T().Context(), "00000000-0000-0000-0000-000000000000")
	s.ErrorIs(err, messages.ErrUnknownLookup)

	_, err = s.store.AwaitResolve(s.T().Context(), "")
	s.ErrorIs(err, messages.ErrUnknownLookup)
}

func (s *StoreSuite) TestFailedPersistenceDegradesToUnknown() {
	broken := &brokenMessages{MessageRepository: s.db.Messages}
	store := messages.NewStore(broken, s.db.Translations, s.pool, messages.WithPersistRetries(0))
	defer store.Close()

	key := store.Register(s.T().Context(), "r", "lost")
	ctx, cancel := context.WithTimeout(s.T().Context(), 5*time.Second)
	defer cancel()

	_, err := store.AwaitResolve(ctx, key)
	s.ErrorIs(err, messages.ErrUnknownLookup)
	s.Equal(int32(1), broken.calls.Load())

	// a failed key is not handed out again
	s.NotEqual(key, store.Register(s.T().Context(), "r", "lost"))
}

func (s *StoreSuite) TestPanickingPersistenceDegradesToUnknown() {
	store := messages.NewStore(panickingMessages{s.db.Messages}, s.db.Translations, s.pool)
	defer store.Close()

	key := store.Register(s.T().Context(), "r", "doomed")
	s.Eventually(func() bool { return !store.Pending(key) }, 5*time.Second, 10*time.Millisecond)

	_, err := store.Resolve(s.T().Context(), key)
	s.ErrorIs(err, messages.ErrUnknownLookup)
	s.NotEqual(key, store.Register(s.T().Context(), "r", "doomed"))
}

func (s *StoreSuite) TestGetOrCreateTranslationOnce() {
	resolved := s.await(s.store.Register(s.T().Context(), "r", "good morning"))
	provider := &countingProvider{delay: 50 * time.Millisecond}

	var wg sync.WaitGroup
	results := make([]*messages.Translated, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t, err := s.store.GetOrCreateTranslation(s.T().Context(), resolved.Message, "de", provider)
			s.NoError(err)
			results[i] = t
		}()
	}
	wg.Wait()

	s.LessOrEqual(provider.calls.Load(), int32(2))
	s.Equal(results[0].Text, results[1].Text)
	s.Equal("DE", results[0].Language)
	s.Equal("EN", results[0].SourceLanguage)

	var rows int64
	s.Require().NoError(s.db.Pool().DB(s.T().Context()).
		Model(&data.Translation{}).Where("message_id = ?", resolved.Message.ID).Count(&rows).Error)
	s.Equal(int64(1), rows)

	calls := provider.calls.Load()
	again, err := s.store.GetOrCreateTranslation(s.T().Context(), resolved.Message, "DE", provider)
	s.Require().NoError(err)
	s.Equal(results[0].Text, again.Text)
	s.Equal(calls, provider.calls.Load())

	stored, err := s.db.Messages.Get(s.T().Context(), resolved.Message.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored.SourceLanguage)
	s.Equal("EN", *stored.SourceLanguage)
}

func (s *StoreSuite) TestStoredTranslationSkipsProvider() {
	resolved := s.await(s.store.Register(s.T().Context(), "r", "thanks"))
	_, err := s.db.Translations.Save(s.T().Context(), resolved.Message.ID, "FR", "merci", "EN")
	s.Require().NoError(err)

	provider := &countingProvider{}
	t, err := s.store.GetOrCreateTranslation(s.T().Context(), resolved.Message, "fr", provider)
	s.Require().NoError(err)
	s.Equal("merci", t.Text)
	s.Zero(provider.calls.Load())
}

func (s *StoreSuite) TestProviderFailureIsReturned() {
	resolved := s.await(s.store.Register(s.T().Context(), "r", "hi there"))
	provider := &countingProvider{err: translator.ErrRateLimited}

	_, err := s.store.GetOrCreateTranslation(s.T().Context(), resolved.Message, "DE", provider)
	s.ErrorIs(err, translator.ErrRateLimited)
}

func (s *StoreSuite) TestSaveFailureStillReturnsAndRetries() {
	flaky := &flakyTranslations{TranslationRepository: s.db.Translations}
	flaky.failures.Store(1)
	store := messages.NewStore(s.db.Messages, flaky, s.pool, messages.WithPersistRetries(3))
	defer store.Close()

	ctx, cancel := context.WithTimeout(s.T().Context(), 5*time.Second)
	defer cancel()
	resolved, err := store.AwaitResolve(ctx, store.Register(ctx, "r", "see you"))
	s.Require().NoError(err)

	t, err := store.GetOrCreateTranslation(ctx, resolved.Message, "ES", &countingProvider{})
	s.Require().NoError(err)
	s.Equal("ES:see you", t.Text)

	s.Eventually(func() bool {
		row, getErr := s.db.Translations.Get(ctx, resolved.Message.ID, "ES")
		return getErr == nil && row.Text == "ES:see you"
	}, 5*time.Second, 20*time.Millisecond)
}

func (s *StoreSuite) TestNilMessage() {
	_, err := s.store.GetOrCreateTranslation(s.T().Context(), nil, "DE", &countingProvider{})
	s.True(messages.IsUnavailable(err))
}
