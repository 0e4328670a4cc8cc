package cache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/pitabwire/linguist/cache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type InMemoryCacheSuite struct {
	suite.Suite
	clock *fakeClock
	cache *cache.InMemoryCache
}

func (s *InMemoryCacheSuite) SetupTest() {
	s.clock = &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s.cache = cache.NewInMemoryCache(cache.WithClock(s.clock.Now), cache.WithMaxEntries(3))
}

func (s *InMemoryCacheSuite) TearDownTest() {
	s.Require().NoError(s.cache.Close())
}

func (s *InMemoryCacheSuite) TestSetGetDelete() {
	ctx := s.T().Context()

	s.Require().NoError(s.cache.Set(ctx, "a", []byte("1"), 0))
	value, found, err := s.cache.Get(ctx, "a")
	s.Require().NoError(err)
	s.True(found)
	s.Equal([]byte("1"), value)

	s.Require().NoError(s.cache.Delete(ctx, "a"))
	_, found, err = s.cache.Get(ctx, "a")
	s.Require().NoError(err)
	s.False(found)
}

func (s *InMemoryCacheSuite) TestTTLExpiry() {
	ctx := s.T().Context()

	s.Require().NoError(s.cache.Set(ctx, "short", []byte("x"), time.Minute))
	exists, err := s.cache.Exists(ctx, "short")
	s.Require().NoError(err)
	s.True(exists)

	s.clock.Advance(time.Minute + time.Second)
	exists, err = s.cache.Exists(ctx, "short")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *InMemoryCacheSuite) TestLeastRecentlyUsedEviction() {
	ctx := s.T().Context()

	for _, k := range []string{"a", "b", "c"} {
		s.Require().NoError(s.cache.Set(ctx, k, []byte(k), 0))
	}
	// touch a so b becomes the oldest
	_, _, err := s.cache.Get(ctx, "a")
	s.Require().NoError(err)

	s.Require().NoError(s.cache.Set(ctx, "d", []byte("d"), 0))
	s.Equal(3, s.cache.Len())

	exists, _ := s.cache.Exists(ctx, "b")
	s.False(exists)
	for _, k := range []string{"a", "c", "d"} {
		exists, _ = s.cache.Exists(ctx, k)
		s.True(exists, k)
	}
}

func (s *InMemoryCacheSuite) TestIncrementKeepsExpiry() {
	ctx := s.T().Context()

	n, err := s.cache.Increment(ctx, "counter", 5)
	s.Require().NoError(err)
	s.Equal(int64(5), n)

	s.Require().NoError(s.cache.Expire(ctx, "counter", time.Second))

	n, err = s.cache.Increment(ctx, "counter", 2)
	s.Require().NoError(err)
	s.Equal(int64(7), n)

	n, err = s.cache.Decrement(ctx, "counter", 3)
	s.Require().NoError(err)
	s.Equal(int64(4), n)

	s.clock.Advance(2 * time.Second)
	n, err = s.cache.Increment(ctx, "counter", 1)
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func (s *InMemoryCacheSuite) TestFlush() {
	ctx := s.T().Context()

	s.Require().NoError(s.cache.Set(ctx, "a", []byte("1"), 0))
	s.Require().NoError(s.cache.Flush(ctx))
	s.Equal(0, s.cache.Len())
}

func TestInMemoryCache(t *testing.T) {
	suite.Run(t, new(InMemoryCacheSuite))
}

type profile struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func TestGenericCacheRoundTrip(t *testing.T) {
	ctx := t.Context()
	raw := cache.NewInMemoryCache()
	defer raw.Close()

	profiles := cache.NewGenericCache[int, profile](raw, "profiles", nil)
	require.NoError(t, profiles.Set(ctx, 7, profile{Name: "Steve", Age: 30}, time.Hour))

	got, found, err := profiles.Get(ctx, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, profile{Name: "Steve", Age: 30}, got)

	// keys are namespaced by prefix
	exists, err := raw.Exists(ctx, "profiles:7")
	require.NoError(t, err)
	assert.True(t, exists)

	_, found, err = profiles.Get(ctx, 8)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGenericCacheStringPassthrough(t *testing.T) {
	ctx := t.Context()
	raw := cache.NewInMemoryCache()
	defer raw.Close()

	names := cache.NewGenericCache[string, string](raw, "", nil)
	require.NoError(t, names.Set(ctx, "k", "plain value", 0))

	stored, found, err := raw.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "plain value", string(stored))

	got, _, err := names.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "plain value", got)
}
