package etcd

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/lk2023060901/pangya-game-go/pkg/log"
	"github.com/lk2023060901/pangya-game-go/pkg/util/retry"
)

const defaultDialTimeout = 5 * time.Second

// NewClient 连接外部 etcd 集群，并通过一次带重试的 Status 调用确认至少一个节点可用。
func NewClient(ctx context.Context, endpoints []string, dialTimeout time.Duration) (*clientv3.Client, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("etcd endpoints is empty")
	}
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
		Logger:      log.L().Named("etcd-client"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create etcd client")
	}

	err = retry.Do(ctx, func() error {
		statusCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		_, err := cli.Status(statusCtx, endpoints[0])
		return err
	}, retry.Attempts(5), retry.Sleep(200*time.Millisecond))
	if err != nil {
		cli.Close()
		return nil, errors.Wrapf(err, "etcd endpoints %v unreachable", endpoints)
	}

	log.Info("connected to etcd", zap.Strings("endpoints", endpoints))
	return cli, nil
}
