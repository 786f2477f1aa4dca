package acceptor

import (
	"context"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	network "github.com/lk2023060901/pangya-game-go/internal/network"
	"github.com/lk2023060901/pangya-game-go/internal/network/framer"
	"github.com/lk2023060901/pangya-game-go/internal/network/session"
	"github.com/lk2023060901/pangya-game-go/internal/network/transport"
	"github.com/lk2023060901/pangya-game-go/pkg/log"
	"github.com/lk2023060901/pangya-game-go/pkg/metrics"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

// acceptRetryDelay 为临时性 accept 错误后的等待时间。
const acceptRetryDelay = 50 * time.Millisecond

// Bootstrap 是服务器侧的 TCP 接入层。
//
// 结构：
//   - 一个接收协程，只负责 accept；
//   - 一组事件循环，每个连接按会话 ID 固定绑定其中一个，其上的所有事件串行执行；
//   - 每个连接一个读协程，负责切帧并把帧投递到所属事件循环。
type Bootstrap struct {
	cfg     Config
	handler Handler

	kind     transport.Kind
	workers  *EventLoopGroup
	sessions *session.BaseManager
	nextID   atomic.Uint64

	mu       sync.Mutex
	listener net.Listener
	bound    chan struct{}

	shutdownOnce sync.Once
	shutdownCh   chan struct{}

	readers sync.WaitGroup
	logger  *log.MLogger
}

// NewBootstrap 创建接入层，Serve 之前不会占用任何端口。
func NewBootstrap(cfg Config, h Handler) *Bootstrap {
	cfg = cfg.withDefaults()
	return &Bootstrap{
		cfg:        cfg,
		handler:    h,
		sessions:   session.NewBaseManager(),
		bound:      make(chan struct{}),
		shutdownCh: make(chan struct{}),
		logger:     log.With(log.FieldComponent("bootstrap")),
	}
}

// Serve 绑定端口并开始接受连接，阻塞直至 ctx 取消、调用 Shutdown 或出现致命错误。
//
// 返回前会依次：停止接受连接、关闭所有存活会话（触发各自的关闭回调）、
// 等待读协程退出、排空事件循环。绑定失败时返回 merr.ErrBindFailed。
func (b *Bootstrap) Serve(ctx context.Context) error {
	if b.handler == nil {
		return merr.WrapErrParameterMissing("handler")
	}

	kind := transport.Select()
	b.logger.Info("selected transport", zap.Stringer("transport", kind))

	ln, err := transport.Listen(ctx, kind, b.cfg.Address, b.cfg.Backlog)
	if err != nil {
		return err
	}
	b.workers = NewEventLoopGroup("worker", b.cfg.WorkerThreads)

	b.mu.Lock()
	b.kind = kind
	b.listener = ln
	close(b.bound)
	b.mu.Unlock()

	b.logger.Info("game server listening",
		zap.Stringer("address", ln.Addr()),
		zap.Int("workerThreads", b.workers.Len()),
		zap.Int("backlog", b.cfg.Backlog))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-b.shutdownCh:
		}
		return ln.Close()
	})
	g.Go(func() error {
		return b.acceptLoop(ln)
	})
	err = g.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}

	b.closeSessions()
	b.readers.Wait()
	if werr := b.workers.ShutdownGracefully(context.Background()); werr != nil {
		b.logger.Warn("failed to drain event loops", zap.Error(werr))
	}
	b.logger.Info("game server stopped", zap.Error(err))
	return err
}

// Shutdown 停止接受新连接，Serve 随后返回。可多次调用。
func (b *Bootstrap) Shutdown() {
	b.shutdownOnce.Do(func() {
		close(b.shutdownCh)
	})
}

// Bound 返回一个在端口绑定成功后关闭的 channel。
func (b *Bootstrap) Bound() <-chan struct{} {
	return b.bound
}

// Addr 返回实际绑定的地址，绑定之前返回 nil。
func (b *Bootstrap) Addr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return nil
	}
	return b.listener.Addr()
}

// Transport 返回选中的传输机制，Serve 之前为空。
func (b *Bootstrap) Transport() transport.Kind {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.kind
}

// Sessions 返回存活会话的索引。
func (b *Bootstrap) Sessions() session.Manager {
	return b.sessions
}

func (b *Bootstrap) acceptLoop(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(acceptRetryDelay)
				continue
			}
			if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) {
				b.logger.RatedWarn(1, "accept failed, file descriptors exhausted", zap.Error(err))
				time.Sleep(acceptRetryDelay)
				continue
			}
			b.logger.Error("accept failed", zap.Error(err))
			return errors.Wrap(err, "accept")
		}
		b.accept(conn)
	}
}

func (b *Bootstrap) accept(conn net.Conn) {
	id := b.nextID.Inc()
	if err := transport.SetNoDelay(conn, b.cfg.TCPNoDelay); err != nil {
		b.logger.Warn("failed to set tcp no delay", log.FieldSessionID(id), zap.Error(err))
	}

	loop := b.workers.Next(id)
	sess := session.NewBaseSession(context.Background(), id, conn, loop,
		session.WithSendQueueSize(b.cfg.SendQueueSize),
		session.WithWriteTimeout(b.cfg.WriteTimeout))
	if err := b.sessions.Register(sess); err != nil {
		b.logger.Error("failed to register session", log.FieldSessionID(id), zap.Error(err))
		_ = sess.Close()
		return
	}
	metrics.ConnectionsAccepted.Inc()
	metrics.ConnectionsActive.Inc()

	activated := loop.Execute(func() {
		if sess.Closed() {
			b.release(sess)
			return
		}
		b.handler.OnActive(sess)
		sess.OnClose(func() {
			b.handler.OnClosed(sess)
			b.release(sess)
		})
	})
	if !activated {
		_ = sess.Close()
		b.release(sess)
		return
	}

	b.readers.Add(1)
	go func() {
		defer b.readers.Done()
		b.readLoop(sess, conn)
	}()
}

func (b *Bootstrap) release(sess session.Session) {
	if b.sessions.Unregister(sess.ID()) {
		metrics.ConnectionsActive.Dec()
	}
}

// readLoop 持续切帧并投递到会话所在的事件循环，连接断开或出错后关闭会话。
func (b *Bootstrap) readLoop(sess session.Session, conn net.Conn) {
	defer sess.Close()

	fr := framer.NewLengthFieldFramer(conn, b.cfg.Framer)
	for {
		if b.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(b.cfg.ReadTimeout))
		}
		frame, err := fr.ReadFrame()
		if err != nil {
			if sess.Closed() || isNormalClose(err) {
				return
			}
			stage := network.StageRead
			if errors.IsAny(err, merr.ErrFrameTooLarge, merr.ErrFrameMalformed) {
				stage = network.StageDecode
			}
			sess.Execute(func() {
				b.handler.OnError(sess, stage, err)
			})
			return
		}
		if !sess.Execute(func() { b.handler.OnFrame(sess, frame) }) {
			return
		}
	}
}

func (b *Bootstrap) closeSessions() {
	n := 0
	b.sessions.Range(func(sess session.Session) bool {
		_ = sess.Close()
		n++
		return true
	})
	if n > 0 {
		b.logger.Info("closed live sessions on shutdown", zap.Int("count", n))
	}
}

// isNormalClose 判断读错误是否属于对端正常断开。
func isNormalClose(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET)
}
