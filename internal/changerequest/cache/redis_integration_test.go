//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"mppchs/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	rc     *containers.RedisContainer
	client *redis.Client
	cache  *RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.rc = containers.GetManager().GetRedis(s.T())
	s.client = s.rc.Client.Client
	s.Require().NoError(s.rc.Client.Health(context.Background()))
	s.cache = NewRedis(s.client, WithKeyPrefix("test:"))
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.rc.Flush(context.Background()))
}

func (s *RedisCacheSuite) TestSetGetDelete() {
	ctx := context.Background()
	_, ok, err := s.cache.Get(ctx, ListKey(1))
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.cache.Set(ctx, ListKey(1), []byte(`[1]`), time.Minute))
	raw, ok, err := s.cache.Get(ctx, ListKey(1))
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(`[1]`, string(raw))

	ttl, err := s.client.TTL(ctx, "test:"+ListKey(1)).Result()
	s.Require().NoError(err)
	s.Positive(ttl)

	s.Require().NoError(s.cache.Delete(ctx, ListKey(1)))
	_, ok, err = s.cache.Get(ctx, ListKey(1))
	s.Require().NoError(err)
	s.False(ok)
}
