package session

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/pangya-game-go/pkg/log"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

// 默认参数。
const (
	defaultSendQueueSize = 1024
	// maxBatchFrames 为发送协程一次合并写出的最大帧数。
	maxBatchFrames = 64
)

// Option 用于配置 BaseSession。
type Option func(s *BaseSession)

// WithSendQueueSize 设置发送队列容量。
func WithSendQueueSize(n int) Option {
	return func(s *BaseSession) {
		if n > 0 {
			s.sendQueueSize = n
		}
	}
}

// WithWriteTimeout 设置单次批量写出的超时时间，0 表示不设置超时。
func WithWriteTimeout(d time.Duration) Option {
	return func(s *BaseSession) {
		s.writeTimeout = d
	}
}

// BaseSession 提供了 Session 接口的基础实现。
//
// 设计要点：
//   - Send 只做投递，写 conn 只发生在发送协程里，避免报文交叉；
//   - 关闭状态与关闭回调由同一把锁保护，OnClose 与 Close 之间没有竞态；
//   - 关闭回调投递到 Executor 执行，Executor 已停止时在关闭方协程内执行。
type BaseSession struct {
	id uint64

	ctx    context.Context
	cancel context.CancelFunc

	conn     net.Conn
	executor Executor

	remoteAddr net.Addr
	localAddr  net.Addr

	sendQueueSize int
	writeTimeout  time.Duration
	sendQueue     chan []byte
	sendDone      chan struct{}

	mu         sync.Mutex
	closed     bool
	hooks      []func()
	attachment any

	logger *log.MLogger
}

// 确保 BaseSession 实现了 Session 接口。
var _ Session = (*BaseSession)(nil)

// NewBaseSession 创建一个基于 net.Conn 的基础 Session 实例，并启动发送协程。
//
// 参数：
//   - parent  ：会话所属的上层上下文；若为 nil，则使用 context.Background()；
//   - id      ：会话 ID，由调用方保证全局唯一；
//   - conn    ：底层网络连接；
//   - executor：会话事件所在的事件循环，为 nil 时任务在调用方协程内直接执行。
func NewBaseSession(parent context.Context, id uint64, conn net.Conn, executor Executor, opts ...Option) *BaseSession {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	s := &BaseSession{
		id:            id,
		ctx:           ctx,
		cancel:        cancel,
		conn:          conn,
		executor:      executor,
		remoteAddr:    conn.RemoteAddr(),
		localAddr:     conn.LocalAddr(),
		sendQueueSize: defaultSendQueueSize,
		sendDone:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sendQueue = make(chan []byte, s.sendQueueSize)
	s.logger = log.With(log.FieldSessionID(id), log.FieldRemoteAddr(addrString(s.remoteAddr)))

	go s.sendLoop()
	return s
}

// ID 实现 Session.ID。
func (s *BaseSession) ID() uint64 {
	return s.id
}

// Context 实现 Session.Context。
func (s *BaseSession) Context() context.Context {
	return s.ctx
}

// RemoteAddr 实现 Session.RemoteAddr。
func (s *BaseSession) RemoteAddr() net.Addr {
	return s.remoteAddr
}

// LocalAddr 实现 Session.LocalAddr。
func (s *BaseSession) LocalAddr() net.Addr {
	return s.localAddr
}

// Logger 返回带有会话字段的日志对象。
func (s *BaseSession) Logger() *log.MLogger {
	return s.logger
}

// Send 实现 Session.Send。
func (s *BaseSession) Send(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if s.ctx.Err() != nil {
		return merr.WrapErrSessionClosed(s.id, "send")
	}

	select {
	case s.sendQueue <- data:
		return nil
	case <-s.ctx.Done():
		return merr.WrapErrSessionClosed(s.id, "send")
	default:
		s.logger.Warn("send queue overflow, closing session", zap.Int("queueSize", s.sendQueueSize))
		_ = s.Close()
		return merr.WrapErrSessionClosed(s.id, "send queue overflow")
	}
}

// Close 实现 Session.Close。
func (s *BaseSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	// 先取消上下文，再关闭连接，读协程会因此退出。
	s.cancel()
	err := s.conn.Close()

	if len(hooks) > 0 {
		runAll := func() {
			for _, hook := range hooks {
				s.runHook(hook)
			}
		}
		if !s.Execute(runAll) {
			runAll()
		}
	}
	return err
}

// Closed 实现 Session.Closed。
func (s *BaseSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// OnClose 实现 Session.OnClose。
func (s *BaseSession) OnClose(hook func()) bool {
	if hook == nil {
		return !s.Closed()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.runHook(hook)
		return false
	}
	s.hooks = append(s.hooks, hook)
	s.mu.Unlock()
	return true
}

// Execute 实现 Session.Execute。
func (s *BaseSession) Execute(task func()) bool {
	if s.executor == nil {
		task()
		return true
	}
	return s.executor.Execute(task)
}

// SetAttachment 实现 Session.SetAttachment。
func (s *BaseSession) SetAttachment(v any) {
	s.mu.Lock()
	s.attachment = v
	s.mu.Unlock()
}

// Attachment 实现 Session.Attachment。
func (s *BaseSession) Attachment() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachment
}

// SendDone 返回一个在发送协程退出后关闭的 channel。
func (s *BaseSession) SendDone() <-chan struct{} {
	return s.sendDone
}

func (s *BaseSession) runHook(hook func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session close hook panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	hook()
}

// sendLoop 为每个会话启动的专职发送协程。
//
// 行为：
//   - 从 sendQueue 中按顺序取出待发送帧，尽量合并后一次写出；
//   - 写出失败视为连接异常，关闭会话以触发上层清理；
//   - 会话关闭后队列中剩余的帧被丢弃。
func (s *BaseSession) sendLoop() {
	defer close(s.sendDone)

	batch := make(net.Buffers, 0, maxBatchFrames)
	for {
		select {
		case <-s.ctx.Done():
			return
		case data := <-s.sendQueue:
			batch = append(batch[:0], data)
		drain:
			for len(batch) < maxBatchFrames {
				select {
				case more := <-s.sendQueue:
					batch = append(batch, more)
				default:
					break drain
				}
			}

			if err := s.flush(batch); err != nil {
				if s.ctx.Err() == nil {
					s.logger.Debug("failed to write to connection", zap.Error(err))
				}
				_ = s.Close()
				return
			}
		}
	}
}

func (s *BaseSession) flush(batch net.Buffers) error {
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	// WriteTo 会消费 batch，这里传递副本。
	bufs := batch
	_, err := bufs.WriteTo(s.conn)
	return err
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
