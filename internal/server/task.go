package server

import (
	"github.com/lk2023060901/pangya-game-go/internal/network/session"
	"github.com/lk2023060901/pangya-game-go/pkg/util/conc"
)

// SubmitTask 把可能阻塞的任务交给阻塞任务池执行，调用方永远不会被阻塞。
// 排队已满时返回的 Future 立即以 merr.ErrServiceTooManyRequests 失败，
// 任务 panic 时以 merr.ErrTaskPanicked 失败。任务之间不保证顺序。
func SubmitTask[R any](s *GameServer, fn func() (R, error)) *conc.Future[R] {
	return conc.Submit(s.pool, fn)
}

// SubmitTask 同包级函数 SubmitTask，结果类型为 any。
func (s *GameServer) SubmitTask(fn func() (any, error)) *conc.Future[any] {
	return s.pool.Submit(fn)
}

// RunTask 执行没有返回值的阻塞任务。
func (s *GameServer) RunTask(fn func() error) *conc.Future[any] {
	return s.pool.Submit(func() (any, error) {
		return nil, fn()
	})
}

// completeOn 在 future 完成后把 fn 投递到会话所在的事件循环执行。
// 事件循环已停止时 fn 在当前协程执行，此时该连接不会再有其他任务运行。
func completeOn[R any](sess session.Session, future *conc.Future[R], fn func(R, error)) {
	go func() {
		v, err := future.Await()
		if !sess.Execute(func() { fn(v, err) }) {
			fn(v, err)
		}
	}()
}
