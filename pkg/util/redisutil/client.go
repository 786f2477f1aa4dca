package redisutil

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lk2023060901/pangya-game-go/pkg/log"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
	"github.com/lk2023060901/pangya-game-go/pkg/util/retry"
)

const pingTimeout = 3 * time.Second

// Options 为创建 Redis 客户端的参数，零值字段使用 go-redis 的默认值。
type Options struct {
	URL          string
	PoolSize     int
	MinIdleConns int
}

// NewClient 解析 redis:// 形式的 URL 创建客户端，并通过一次带重试的 PING 确认可用。
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	if opts.URL == "" {
		return nil, merr.WrapErrConfigInvalid("redis.url", "must not be empty")
	}
	ro, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, merr.WrapErrConfigInvalid("redis.url", err.Error())
	}
	if opts.PoolSize > 0 {
		ro.PoolSize = opts.PoolSize
	}
	if opts.MinIdleConns > 0 {
		ro.MinIdleConns = opts.MinIdleConns
	}

	cli := redis.NewClient(ro)
	err = retry.Do(ctx, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		err := cli.Ping(pingCtx).Err()
		// 服务端已经回复错误（密码错误、未认证等），重试没有意义。
		var replyErr redis.Error
		if errors.As(err, &replyErr) {
			return retry.Unrecoverable(err)
		}
		return err
	}, retry.Attempts(5), retry.Sleep(200*time.Millisecond))
	if err != nil {
		_ = cli.Close()
		return nil, errors.Wrapf(err, "redis %s unreachable", ro.Addr)
	}

	log.Info("connected to redis", zap.String("addr", ro.Addr), zap.Int("db", ro.DB))
	return cli, nil
}
