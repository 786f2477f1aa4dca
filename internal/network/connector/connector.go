package connector

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/pangya-game-go/internal/network/framer"
	"github.com/lk2023060901/pangya-game-go/internal/network/session"
)

// Config 描述客户端连接的基础配置。
type Config struct {
	Framer framer.Config

	SendQueueSize int
	RecvQueueSize int

	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

func defaultConfig() Config {
	return Config{
		Framer:        framer.PangyaConfig(framer.DefaultMaxFrameLength),
		SendQueueSize: 1024,
		RecvQueueSize: 1024,
		DialTimeout:   5 * time.Second,
	}
}

func (cfg Config) withDefaults() Config {
	def := defaultConfig()
	if cfg.Framer.LengthFieldLength == 0 {
		cfg.Framer = def.Framer
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if cfg.RecvQueueSize <= 0 {
		cfg.RecvQueueSize = def.RecvQueueSize
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	return cfg
}

// ClientConn 是客户端侧的一条 TCP 连接，供压测工具与集成测试模拟客户端。
//
// 发送复用服务端的 session.BaseSession，收到的帧按顺序从 Recv 读出。
// 连接断开后先关闭 Done 再关闭 Recv，读到 Recv 关闭时 Err 已经可用。
type ClientConn struct {
	cfg  Config
	sess *session.BaseSession

	recv chan framer.Frame
	done chan struct{}
	err  error
}

// Dial 连接服务器，ctx 只约束拨号过程。
func Dial(ctx context.Context, addr string, cfg Config) (*ClientConn, error) {
	cfg = cfg.withDefaults()

	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}

	c := &ClientConn{
		cfg: cfg,
		sess: session.NewBaseSession(context.Background(), 0, conn, nil,
			session.WithSendQueueSize(cfg.SendQueueSize),
			session.WithWriteTimeout(cfg.WriteTimeout)),
		recv: make(chan framer.Frame, cfg.RecvQueueSize),
		done: make(chan struct{}),
	}
	go c.readLoop(conn)
	return c, nil
}

func (c *ClientConn) readLoop(conn net.Conn) {
	defer close(c.recv)
	defer close(c.done)
	defer c.sess.Close()

	f := framer.NewLengthFieldFramer(conn, c.cfg.Framer)
	for {
		frame, err := f.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.err = err
			}
			return
		}
		select {
		case c.recv <- frame:
		case <-c.sess.Context().Done():
			return
		}
	}
}

// Send 发送一段已经成帧的字节。
func (c *ClientConn) Send(raw []byte) error {
	return c.sess.Send(raw)
}

// SendFrame 按连接的帧格式封装 body 后发送，长度字段之前的字节填 0。
func (c *ClientConn) SendFrame(body []byte) error {
	raw, err := framer.AppendFrame(nil, c.cfg.Framer, make([]byte, c.cfg.Framer.LengthFieldOffset), body)
	if err != nil {
		return err
	}
	return c.sess.Send(raw)
}

// Recv 返回收到的帧，连接断开后被关闭。
func (c *ClientConn) Recv() <-chan framer.Frame {
	return c.recv
}

// Done 在读协程退出后关闭。
func (c *ClientConn) Done() <-chan struct{} {
	return c.done
}

// Err 返回连接异常断开的原因，对端正常关闭或主动 Close 时为 nil。
// 只有 Done 关闭之后才有意义。
func (c *ClientConn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *ClientConn) Close() error {
	return c.sess.Close()
}

func (c *ClientConn) LocalAddr() net.Addr {
	return c.sess.LocalAddr()
}

func (c *ClientConn) RemoteAddr() net.Addr {
	return c.sess.RemoteAddr()
}
