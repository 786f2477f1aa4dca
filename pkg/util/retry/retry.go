// Copyright (C) 2019-2020 Zilliz. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License
// is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express
// or implied. See the License for the specific language governing permissions and limitations under the License.

package retry

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/pangya-game-go/pkg/log"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

func getCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return file + ":" + strconv.Itoa(line)
}

// Do 执行 fn，失败时按指数退避重试，直到成功、次数用尽、ctx 结束或错误不可重试。
// 返回最后一次有意义的错误：ctx 结束导致的失败返回此前的业务错误。
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := newDefaultConfig()
	for _, opt := range opts {
		opt(c)
	}

	logger := log.Ctx(ctx).With(zap.String("caller", getCaller(2)))
	sleep := c.sleep
	var lastErr error
	for i := uint(0); c.attempts == 0 || i < c.attempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		if i%4 == 0 {
			logger.Warn("retry func failed", zap.Uint("retried", i), zap.Error(err))
		}
		if !c.retryable(err) {
			return pickErr(err, lastErr)
		}
		lastErr = err

		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < sleep {
			logger.Warn("retry func gave up before deadline", zap.Uint("retried", i))
			return lastErr
		}
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return lastErr
		}
		sleep = min(sleep*2, c.maxSleepTime)
	}
	logger.Warn("retry func reached max attempts", zap.Uint("attempts", c.attempts))
	return lastErr
}

// pickErr 在 err 只是 ctx 结束的结果时返回更早的业务错误。
func pickErr(err, lastErr error) error {
	if lastErr != nil && merr.IsCanceledOrTimeout(err) {
		return lastErr
	}
	return err
}

var errUnrecoverable = errors.New("unrecoverable error")

// Unrecoverable 标记 err 不可重试，Do 会立即返回它。
func Unrecoverable(err error) error {
	return merr.Combine(err, errUnrecoverable)
}

func IsRecoverable(err error) bool {
	return !errors.Is(err, errUnrecoverable)
}
