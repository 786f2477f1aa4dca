// Package transport 负责选择 I/O 多路复用机制并创建监听套接字。
package transport

import (
	"context"
	"net"
	"sync"

	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

// Kind 表示当前平台可用的 I/O 多路复用机制。
type Kind string

const (
	KindEpoll    Kind = "epoll"
	KindKqueue   Kind = "kqueue"
	KindPortable Kind = "portable"
)

func (k Kind) String() string {
	return string(k)
}

var (
	selectOnce sync.Once
	selected   Kind
)

// Select 按 epoll > kqueue > portable 的顺序探测可用的机制，结果在进程内缓存。
func Select() Kind {
	selectOnce.Do(func() {
		selected = KindPortable
		for _, probe := range probes() {
			if probe.available() {
				selected = probe.kind
				return
			}
		}
	})
	return selected
}

type probe struct {
	kind      Kind
	available func() bool
}

// Listen 在 addr 上创建 TCP 监听。
// backlog <= 0 时使用系统默认值；地址非法或已被占用时返回 merr.ErrBindFailed。
func Listen(ctx context.Context, kind Kind, addr string, backlog int) (net.Listener, error) {
	if kind == KindEpoll {
		return listenWithBacklog(addr, backlog)
	}
	return listenPortable(ctx, addr)
}

func listenPortable(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, merr.WrapErrBindFailed(addr, err)
	}
	return ln, nil
}

// SetNoDelay 设置连接的 TCP_NODELAY，非 TCP 连接直接忽略。
func SetNoDelay(conn net.Conn, noDelay bool) error {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	return tcp.SetNoDelay(noDelay)
}
