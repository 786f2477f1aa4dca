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
	"time"

	ants "github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lk2023060901/pangya-game-go/pkg/log"
)

type poolOption struct {
	preAlloc bool
	// expiryDuration 为空闲 worker 的回收间隔，0 使用 ants 的默认值。
	expiryDuration time.Duration
	// panicHandler 在任务 panic 之后调用，panic 本身总会转换为 Future 上的 merr.ErrTaskPanicked。
	panicHandler func(any)

	// 指标为 nil 时不采集。
	pendingGauge    prometheus.Gauge
	runningGauge    prometheus.Gauge
	rejectedCounter prometheus.Counter
}

// antsOptions 返回内部 ants.Pool 的选项。
// 派发协程依赖 Submit 在 worker 用尽时阻塞，因此 ants 始终以阻塞模式运行。
func (opt *poolOption) antsOptions() []ants.Option {
	result := []ants.Option{
		ants.WithPreAlloc(opt.preAlloc),
		ants.WithNonblocking(false),
		ants.WithPanicHandler(func(v any) {
			log.Error("conc pool worker panicked", zap.Any("panic", v))
		}),
	}
	if opt.expiryDuration > 0 {
		result = append(result, ants.WithExpiryDuration(opt.expiryDuration))
	}
	return result
}

// PoolOption 配置 Pool。
type PoolOption func(opt *poolOption)

func defaultPoolOption() *poolOption {
	return &poolOption{}
}

// WithPreAlloc 在创建时一次性分配全部 worker 的队列空间。
func WithPreAlloc(v bool) PoolOption {
	return func(opt *poolOption) {
		opt.preAlloc = v
	}
}

func WithExpiryDuration(d time.Duration) PoolOption {
	return func(opt *poolOption) {
		opt.expiryDuration = d
	}
}

func WithPanicHandler(fn func(any)) PoolOption {
	return func(opt *poolOption) {
		opt.panicHandler = fn
	}
}

// WithMetrics 挂载排队数、运行数与拒绝数指标。
func WithMetrics(pending, running prometheus.Gauge, rejected prometheus.Counter) PoolOption {
	return func(opt *poolOption) {
		opt.pendingGauge = pending
		opt.runningGauge = running
		opt.rejectedCounter = rejected
	}
}
