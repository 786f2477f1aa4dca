// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package conc

import (
	"sync"

	"github.com/cockroachdb/errors"
	ants "github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/pangya-game-go/pkg/log"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

type task[T any] struct {
	fn   func() (T, error)
	done func(T, error)
}

func (t *task[T]) fail(err error) {
	var zero T
	t.done(zero, err)
}

// Pool 是一个带准入队列的协程池。
// Submit 永远不会阻塞调用方：任务先进入容量为 maxBacklog 的队列，
// 再由分发协程交给大小为 size 的 ants 协程池执行。队列满时任务立即失败。
type Pool[T any] struct {
	inner   *ants.Pool
	opt     *poolOption
	backlog chan *task[T]

	mu     sync.RWMutex
	closed bool
	stopCh chan struct{}
	doneCh chan struct{}

	// inflight 统计已入队但尚未完成的任务，Release 据此等待。
	inflight sync.WaitGroup
	pending  atomic.Int64
	running  atomic.Int64
}

// NewPool 创建一个协程池，size 为并发执行的任务数，maxBacklog 为等待执行的任务上限。
func NewPool[T any](size int, maxBacklog int, opts ...PoolOption) *Pool[T] {
	opt := defaultPoolOption()
	for _, o := range opts {
		o(opt)
	}

	if size <= 0 {
		size = 1
	}
	if maxBacklog < 0 {
		maxBacklog = 0
	}

	pool, err := ants.NewPool(size, opt.antsOptions()...)
	if err != nil {
		panic(err)
	}

	p := &Pool[T]{
		inner:   pool,
		opt:     opt,
		backlog: make(chan *task[T], maxBacklog),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go p.dispatch()
	return p
}

// Submit 提交一个任务，返回可等待的 Future。
// 队列已满时返回的 Future 立即以 ErrServiceTooManyRequests 失败；
// 协程池已释放时以 ErrServiceShuttingDown 失败。
func (pool *Pool[T]) Submit(fn func() (T, error)) *Future[T] {
	future := newFuture[T]()
	pool.submit(&task[T]{fn: fn, done: future.complete})
	return future
}

func (pool *Pool[T]) submit(t *task[T]) {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	if pool.closed {
		t.fail(merr.WrapErrServiceShuttingDown("conc pool released"))
		return
	}

	pool.inflight.Add(1)
	pool.addPending(1)
	select {
	case pool.backlog <- t:
	default:
		pool.addPending(-1)
		pool.inflight.Done()
		if pool.opt.rejectedCounter != nil {
			pool.opt.rejectedCounter.Inc()
		}
		t.fail(merr.WrapErrTooManyRequests(int32(cap(pool.backlog)), "blocking task backlog is full"))
	}
}

// Submit 在共享的 Pool[any] 上提交结果类型为 R 的任务。
// 排队、拒绝与 panic 的处理与 Pool.Submit 相同。
func Submit[R any](pool *Pool[any], fn func() (R, error)) *Future[R] {
	future := newFuture[R]()
	pool.submit(&task[any]{
		fn: func() (any, error) {
			return fn()
		},
		done: func(v any, err error) {
			r, _ := v.(R)
			future.complete(r, err)
		},
	})
	return future
}

func (pool *Pool[T]) dispatch() {
	defer close(pool.doneCh)
	for {
		select {
		case t := <-pool.backlog:
			pool.handOff(t)
		case <-pool.stopCh:
			// 释放前已入队的任务仍然执行完。
			for {
				select {
				case t := <-pool.backlog:
					pool.handOff(t)
				default:
					return
				}
			}
		}
	}
}

func (pool *Pool[T]) handOff(t *task[T]) {
	// 阻塞模式下 ants 在没有空闲 worker 时会等待，这正是背压所在。
	err := pool.inner.Submit(func() {
		defer pool.inflight.Done()
		pool.addRunning(1)
		pool.addPending(-1)
		defer pool.addRunning(-1)
		pool.execute(t)
	})
	if err != nil {
		defer pool.inflight.Done()
		pool.addPending(-1)
		if errors.Is(err, ants.ErrPoolOverload) {
			t.fail(merr.WrapErrTooManyRequests(int32(pool.inner.Cap()), err.Error()))
			return
		}
		t.fail(merr.WrapErrServiceUnavailable(err.Error(), "conc pool"))
	}
}

func (pool *Pool[T]) execute(t *task[T]) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("conc pool task panicked", zap.Any("panic", r), zap.Stack("stack"))
			if pool.opt.panicHandler != nil {
				pool.opt.panicHandler(r)
			}
			t.fail(merr.WrapErrTaskPanicked(r))
		}
	}()

	t.done(t.fn())
}

func (pool *Pool[T]) addPending(delta int64) {
	v := pool.pending.Add(delta)
	if pool.opt.pendingGauge != nil {
		pool.opt.pendingGauge.Set(float64(v))
	}
}

func (pool *Pool[T]) addRunning(delta int64) {
	v := pool.running.Add(delta)
	if pool.opt.runningGauge != nil {
		pool.opt.runningGauge.Set(float64(v))
	}
}

// Cap 返回并发执行任务数的上限。
func (pool *Pool[T]) Cap() int {
	return pool.inner.Cap()
}

// MaxBacklog 返回等待队列的容量。
func (pool *Pool[T]) MaxBacklog() int {
	return cap(pool.backlog)
}

// Pending 返回已提交但尚未开始执行的任务数。
func (pool *Pool[T]) Pending() int {
	return int(pool.pending.Load())
}

// Running 返回正在执行的任务数。
func (pool *Pool[T]) Running() int {
	return int(pool.running.Load())
}

// Free 返回空闲 worker 数。
func (pool *Pool[T]) Free() int {
	return pool.inner.Free()
}

// Release 停止接收新任务，等待已入队任务全部执行完毕后释放底层协程池。
// 可以重复调用。
func (pool *Pool[T]) Release() {
	pool.mu.Lock()
	if pool.closed {
		pool.mu.Unlock()
		<-pool.doneCh
		pool.inflight.Wait()
		return
	}
	pool.closed = true
	close(pool.stopCh)
	pool.mu.Unlock()

	<-pool.doneCh
	pool.inflight.Wait()
	pool.inner.Release()
}
