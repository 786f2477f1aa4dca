package discovery

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lk2023060901/pangya-game-go/internal/json"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

// RedisStore 以带过期时间的字符串键发布状态。
type RedisStore struct {
	rdb redis.UniversalClient
	key string
	ttl time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb redis.UniversalClient, key string, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, key: key, ttl: ttl}
}

func (s *RedisStore) Publish(ctx context.Context, info ServerInfo) error {
	value, err := json.MarshalToString(info)
	if err != nil {
		return merr.WrapErrDiscoveryPublishFailed(s.key, err)
	}
	if err := s.rdb.Set(ctx, s.key, value, s.ttl).Err(); err != nil {
		return merr.WrapErrDiscoveryPublishFailed(s.key, err)
	}
	return nil
}

func (s *RedisStore) Close(ctx context.Context) error {
	return merr.WrapErrIoFailed(s.key, s.rdb.Del(ctx, s.key).Err())
}
