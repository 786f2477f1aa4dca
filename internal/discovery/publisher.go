package discovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/pangya-game-go/pkg/log"
)

const closeTimeout = 3 * time.Second

// Publisher 按固定间隔把 snapshot 的结果发布到 Store。
// 发布失败只记录日志，下一个周期重试。
type Publisher struct {
	store    Store
	interval time.Duration
	snapshot func(ctx context.Context) ServerInfo
	logger   *log.MLogger
}

func NewPublisher(store Store, interval time.Duration, snapshot func(ctx context.Context) ServerInfo) *Publisher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Publisher{
		store:    store,
		interval: interval,
		snapshot: snapshot,
		logger:   log.With(log.FieldComponent("discovery")),
	}
}

// PublishOnce 立即发布一次。
func (p *Publisher) PublishOnce(ctx context.Context) error {
	info := p.snapshot(ctx)
	if info.UpdatedAt.IsZero() {
		info.UpdatedAt = time.Now()
	}
	return p.store.Publish(ctx, info)
}

// Run 立即发布一次，然后周期性发布，直到 ctx 结束。
// 返回前删除服务发现中的记录。
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := p.store.Close(closeCtx); err != nil {
				p.logger.Warn("failed to withdraw server presence", zap.Error(err))
			}
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Publisher) tick(ctx context.Context) {
	if err := p.PublishOnce(ctx); err != nil && ctx.Err() == nil {
		p.logger.RatedWarn(10, "failed to publish server presence", zap.Error(err))
	}
}
