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

package merr

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

type ErrorType int32

const (
	SystemError ErrorType = 0
	InputError  ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError: "system_error",
	InputError:  "input_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// 叶子错误定义。
// 新增错误前请先确认下面已有的错误是否可以复用。
// 命名规则：Err + 所属模块 + 错误名。
var (
	// Service 相关
	ErrServiceNotReady         = newGameError("service not ready", 1, true)
	ErrServiceUnavailable      = newGameError("service unavailable", 2, true)
	ErrServiceTooManyRequests  = newGameError("too many concurrent requests, queue is full", 4, true)
	ErrServiceInternal         = newGameError("service internal error", 5, false)
	ErrServiceShuttingDown     = newGameError("service is shutting down", 6, false)
	ErrServiceResourceExceeded = newGameError("service resource exceeded", 7, true)

	// 配置相关
	ErrConfigNotFound = newGameError("config file not found", 100, false)
	ErrConfigInvalid  = newGameError("invalid config", 101, false)

	// 网络相关
	ErrBindFailed      = newGameError("failed to bind listening socket", 200, false)
	ErrListenerClosed  = newGameError("listener closed", 201, false)
	ErrSessionClosed   = newGameError("session closed", 202, false)
	ErrFrameTooLarge   = newGameError("frame too large", 203, false)
	ErrFrameMalformed  = newGameError("malformed frame", 204, false)
	ErrEventLoopClosed = newGameError("event loop closed", 205, false)

	// 认证相关
	ErrAuthFailed        = newGameError("authentication failed", 300, false)
	ErrSessionKeyInvalid = newGameError("invalid session key", 301, false)

	// 玩家相关
	ErrPlayerNotFound          = newGameError("player not found", 400, false)
	ErrDuplicateConnectionID   = newGameError("duplicate connection id", 401, false)
	ErrConnectionIDExhausted   = newGameError("connection id exhausted", 402, false)
	ErrPlayerAlreadyRegistered = newGameError("player already registered", 403, false)

	// 频道/房间相关
	ErrChannelNotFound = newGameError("server channel not found", 500, false)
	ErrChannelFull     = newGameError("server channel is full", 501, true)
	ErrRoomFull        = newGameError("room is full", 502, true)

	// 阻塞任务相关
	ErrTaskPanicked = newGameError("blocking task panicked", 600, false)

	// 服务发现相关
	ErrDiscoveryPublishFailed = newGameError("failed to publish server presence", 700, true)

	// IO 相关
	ErrIoKeyNotFound = newGameError("key not found", 1000, false)
	ErrIoFailed      = newGameError("IO failed", 1001, true)

	// 参数相关
	ErrParameterInvalid = newGameError("invalid parameter", 1100, false)
	ErrParameterMissing = newGameError("missing parameter", 1101, false)

	// General
	ErrOperationNotSupported = newGameError("unsupported operation", 3000, false)

	// 不要导出！
	// 仅用于将未知错误转换为 gameError。
	errUnexpected = newGameError("unexpected error", (1<<16)-1, false)
)

type errorOption func(*gameError)

func WithErrorType(etype ErrorType) errorOption {
	return func(err *gameError) {
		err.errType = etype
	}
}

type gameError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
	errType   ErrorType
}

func newGameError(msg string, code int32, retriable bool, options ...errorOption) gameError {
	err := gameError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e gameError) code() int32 {
	return e.errCode
}

func (e gameError) Error() string {
	return e.msg
}

func (e gameError) Detail() string {
	return e.detail
}

func (e gameError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(gameError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// 多错误的 cause 定义为最后一个错误，这样 Code 等方法才能正常工作。
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

// Combine 将多个错误合并为一个，nil 会被过滤掉。
func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}
