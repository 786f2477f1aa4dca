package acceptor

import (
	"context"
	"fmt"
	"sync"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/lk2023060901/pangya-game-go/internal/network/session"
	"github.com/lk2023060901/pangya-game-go/pkg/log"
)

// EventLoop 是单协程的任务执行器，任务按投递顺序串行执行。
// 任务队列没有上限。
type EventLoop struct {
	name string

	mu       sync.Mutex
	tasks    *queue.Queue
	shutdown bool

	wake chan struct{}
	done chan struct{}
}

var _ session.Executor = (*EventLoop)(nil)

func newEventLoop(name string) *EventLoop {
	l := &EventLoop{
		name:  name,
		tasks: queue.New(),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

// Execute 投递一个任务，事件循环已关闭时返回 false。
func (l *EventLoop) Execute(task func()) bool {
	if task == nil {
		return false
	}
	l.mu.Lock()
	if l.shutdown {
		l.mu.Unlock()
		return false
	}
	l.tasks.Add(task)
	l.mu.Unlock()

	l.signal()
	return true
}

// Pending 返回尚未执行的任务数。
func (l *EventLoop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks.Length()
}

// ShutdownGracefully 停止接收新任务，执行完已排队的任务后退出。
func (l *EventLoop) ShutdownGracefully(ctx context.Context) error {
	l.mu.Lock()
	l.shutdown = true
	l.mu.Unlock()
	l.signal()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *EventLoop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *EventLoop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for l.tasks.Length() == 0 {
			if l.shutdown {
				l.mu.Unlock()
				return
			}
			l.mu.Unlock()
			<-l.wake
			l.mu.Lock()
		}
		task := l.tasks.Remove().(func())
		l.mu.Unlock()

		l.runTask(task)
	}
}

func (l *EventLoop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("event loop task panicked",
				log.FieldComponent(l.name),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()
	task()
}

// EventLoopGroup 是一组事件循环，连接按 key 取模固定绑定到其中一个。
type EventLoopGroup struct {
	loops []*EventLoop
}

// NewEventLoopGroup 创建 n 个事件循环，n <= 0 时按 1 处理。
func NewEventLoopGroup(name string, n int) *EventLoopGroup {
	if n <= 0 {
		n = 1
	}
	g := &EventLoopGroup{loops: make([]*EventLoop, n)}
	for i := range g.loops {
		g.loops[i] = newEventLoop(fmt.Sprintf("%s-%d", name, i))
	}
	return g
}

// Next 返回 key 对应的事件循环，同一 key 总是得到同一个事件循环。
func (g *EventLoopGroup) Next(key uint64) *EventLoop {
	return g.loops[key%uint64(len(g.loops))]
}

// Len 返回事件循环数量。
func (g *EventLoopGroup) Len() int {
	return len(g.loops)
}

// ShutdownGracefully 关闭所有事件循环并等待它们执行完剩余任务。
func (g *EventLoopGroup) ShutdownGracefully(ctx context.Context) error {
	for _, l := range g.loops {
		l.mu.Lock()
		l.shutdown = true
		l.mu.Unlock()
		l.signal()
	}
	for _, l := range g.loops {
		if err := l.ShutdownGracefully(ctx); err != nil {
			return err
		}
	}
	return nil
}
