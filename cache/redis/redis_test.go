package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/pitabwire/linguist/cache"
	"github.com/pitabwire/linguist/cache/redis"
	"github.com/pitabwire/linguist/tests"
	"github.com/pitabwire/linguist/tests/testvalkey"
)

type RedisCacheSuite struct {
	tests.BaseTestSuite
	cache *redis.Cache
}

func (s *RedisCacheSuite) SetupSuite() {
	s.InitResourceFunc = func(_ context.Context) []tests.TestResource {
		return []tests.TestResource{testvalkey.New()}
	}
	s.BaseTestSuite.SetupSuite()

	c, err := redis.New(cache.WithDSN(s.Resources()[0].GetDS()), cache.WithMaxAge(time.Minute))
	s.Require().NoError(err)
	s.cache = c
}

func (s *RedisCacheSuite) TearDownSuite() {
	if s.cache != nil {
		s.NoError(s.cache.Close())
	}
	s.BaseTestSuite.TearDownSuite()
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.cache.Flush(s.T().Context()))
}

func (s *RedisCacheSuite) TestSetGetDelete() {
	ctx := s.T().Context()

	s.Require().NoError(s.cache.Set(ctx, "greeting", []byte("hola"), time.Minute))
	value, found, err := s.cache.Get(ctx, "greeting")
	s.Require().NoError(err)
	s.True(found)
	s.Equal("hola", string(value))

	s.Require().NoError(s.cache.Delete(ctx, "greeting"))
	exists, err := s.cache.Exists(ctx, "greeting")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *RedisCacheSuite) TestMissingKey() {
	_, found, err := s.cache.Get(s.T().Context(), "absent")
	s.Require().NoError(err)
	s.False(found)
}

func (s *RedisCacheSuite) TestCounters() {
	ctx := s.T().Context()

	n, err := s.cache.Increment(ctx, "hits", 3)
	s.Require().NoError(err)
	s.Equal(int64(3), n)

	n, err = s.cache.Decrement(ctx, "hits", 1)
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	s.Require().NoError(s.cache.Expire(ctx, "hits", time.Second))
	s.Eventually(func() bool {
		exists, existsErr := s.cache.Exists(ctx, "hits")
		return existsErr == nil && !exists
	}, 5*time.Second, 50*time.Millisecond)
}

func (s *RedisCacheSuite) TestGenericWrapper() {
	ctx := s.T().Context()
	typed := cache.NewGenericCache[string, map[string]int](s.cache, "typed", nil)

	s.Require().NoError(typed.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))
	got, found, err := typed.Get(ctx, "k")
	s.Require().NoError(err)
	s.True(found)
	s.Equal(map[string]int{"a": 1}, got)
}

func TestRedisCache(t *testing.T) {
	suite.Run(t, new(RedisCacheSuite))
}
