package discovery

import (
	"context"
)

// Store 是服务发现存储。
//
// 约定：
//   - Publish 覆盖写入最新状态，并保证在一段 TTL 内未再次发布时记录自动过期；
//   - Close 主动删除记录，之后不能再调用 Publish。
type Store interface {
	Publish(ctx context.Context, info ServerInfo) error
	Close(ctx context.Context) error
}

// NopStore 不做任何事，用于关闭服务发现的场景。
type NopStore struct{}

func (NopStore) Publish(context.Context, ServerInfo) error { return nil }

func (NopStore) Close(context.Context) error { return nil }
