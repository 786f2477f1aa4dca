package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/lk2023060901/pangya-game-go/internal/json"
	"github.com/lk2023060901/pangya-game-go/pkg/log"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

const revokeTimeout = time.Second

// EtcdStore 把状态写在一个租约下，并在后台为租约续期。
// 租约丢失（例如 etcd 长时间不可达导致过期）后，下一次 Publish 会重新申请租约。
type EtcdStore struct {
	cli *clientv3.Client
	key string
	ttl time.Duration

	mu      sync.Mutex
	leaseID clientv3.LeaseID
	stop    context.CancelFunc
	wg      sync.WaitGroup
	closed  bool

	logger *log.MLogger
}

var _ Store = (*EtcdStore)(nil)

func NewEtcdStore(cli *clientv3.Client, key string, ttl time.Duration) *EtcdStore {
	if ttl < time.Second {
		ttl = time.Second
	}
	return &EtcdStore{
		cli:    cli,
		key:    key,
		ttl:    ttl,
		logger: log.With(log.FieldComponent("discovery"), zap.String("key", key)),
	}
}

// LeaseID 返回当前租约，尚未申请或已丢失时为 0。
func (s *EtcdStore) LeaseID() clientv3.LeaseID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaseID
}

func (s *EtcdStore) Publish(ctx context.Context, info ServerInfo) error {
	value, err := json.MarshalToString(info)
	if err != nil {
		return merr.WrapErrDiscoveryPublishFailed(s.key, err)
	}

	lease, err := s.ensureLease(ctx)
	if err != nil {
		return merr.WrapErrDiscoveryPublishFailed(s.key, err)
	}
	_, err = s.cli.Put(ctx, s.key, value, clientv3.WithLease(lease))
	if errors.Is(err, rpctypes.ErrLeaseNotFound) {
		s.logger.Warn("lease not found, granting a new one", zap.Int64("leaseID", int64(lease)))
		s.dropLease(lease)
		if lease, err = s.ensureLease(ctx); err == nil {
			_, err = s.cli.Put(ctx, s.key, value, clientv3.WithLease(lease))
		}
	}
	if err != nil {
		return merr.WrapErrDiscoveryPublishFailed(s.key, err)
	}
	return nil
}

func (s *EtcdStore) ensureLease(ctx context.Context) (clientv3.LeaseID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, merr.WrapErrServiceShuttingDown("discovery store closed")
	}
	if s.leaseID != 0 {
		return s.leaseID, nil
	}

	resp, err := s.cli.Grant(ctx, int64(s.ttl/time.Second))
	if err != nil {
		return 0, errors.Wrap(err, "grant lease")
	}
	s.leaseID = resp.ID

	loopCtx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.wg.Add(1)
	go s.keepAliveLoop(loopCtx, resp.ID)

	s.logger.Info("granted discovery lease", zap.Int64("leaseID", int64(resp.ID)), zap.Duration("ttl", s.ttl))
	return resp.ID, nil
}

// dropLease 在 lease 仍为当前租约时将其清空，并停止对应的续期协程。
func (s *EtcdStore) dropLease(lease clientv3.LeaseID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaseID != lease {
		return
	}
	s.leaseID = 0
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
}

// keepAliveLoop 为租约续期，续期通道断开后按指数退避重新建立。
// 确认租约已不存在时退出，由下一次 Publish 重新申请。
func (s *EtcdStore) keepAliveLoop(ctx context.Context, lease clientv3.LeaseID) {
	defer s.wg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = s.ttl
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for {
		if ctx.Err() != nil {
			return
		}
		if lastErr != nil {
			next := bo.NextBackOff()
			s.logger.Warn("failed to keep discovery lease alive, wait for retry",
				zap.Error(lastErr), zap.Duration("nextBackoffInterval", next))
			select {
			case <-time.After(next):
			case <-ctx.Done():
				return
			}
		}

		ch, err := s.cli.KeepAlive(ctx, lease)
		if err != nil {
			lastErr = err
			continue
		}
		// 阻塞直到续期通道关闭。
		for range ch {
		}
		if ctx.Err() != nil {
			return
		}

		ttl, err := s.cli.TimeToLive(ctx, lease)
		if errors.Is(err, rpctypes.ErrLeaseNotFound) || (err == nil && ttl.TTL <= 0) {
			s.logger.Warn("discovery lease expired", zap.Int64("leaseID", int64(lease)))
			s.mu.Lock()
			if s.leaseID == lease {
				s.leaseID = 0
				s.stop = nil
			}
			s.mu.Unlock()
			return
		}
		lastErr = errors.New("keep alive channel closed")
		if err != nil {
			lastErr = err
		} else {
			bo.Reset()
		}
	}
}

// Close 停止续期并撤销租约，租约下的键随之删除。
func (s *EtcdStore) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	lease := s.leaseID
	s.leaseID = 0
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	s.mu.Unlock()
	s.wg.Wait()

	if lease == 0 {
		return nil
	}
	revokeCtx, cancel := context.WithTimeout(ctx, revokeTimeout)
	defer cancel()
	if _, err := s.cli.Revoke(revokeCtx, lease); err != nil {
		s.logger.Warn("failed to revoke discovery lease", zap.Int64("leaseID", int64(lease)), zap.Error(err))
		return err
	}
	s.logger.Info("discovery lease revoked", zap.Int64("leaseID", int64(lease)))
	return nil
}
