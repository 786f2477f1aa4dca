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
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case gameError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

func IsRetryableErr(err error) bool {
	if err, ok := errors.Cause(err).(gameError); ok {
		return err.retriable
	}

	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

func WrapErrAsInputError(err error) error {
	if merr, ok := err.(gameError); ok {
		WithErrorType(InputError)(&merr)
		return merr
	}
	return err
}

// GetErrorType 返回错误的类型，非 gameError 视为 SystemError。
func GetErrorType(err error) ErrorType {
	if merr, ok := errors.Cause(err).(gameError); ok {
		return merr.errType
	}

	return SystemError
}

// Service 相关错误封装。
func WrapErrServiceUnavailable(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrServiceUnavailable, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrTooManyRequests(limit int32, msg ...string) error {
	err := wrapFields(ErrServiceTooManyRequests,
		value("limit", limit),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrServiceShuttingDown(msg ...string) error {
	err := error(ErrServiceShuttingDown)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// 配置相关错误封装。
func WrapErrConfigNotFound(path string, msg ...string) error {
	err := wrapFields(ErrConfigNotFound, value("path", path))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrConfigInvalid(key string, reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrConfigInvalid, reason, value("key", key))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// 网络相关错误封装。
func WrapErrBindFailed(address string, cause error) error {
	desc := "unknown"
	if cause != nil {
		desc = cause.Error()
	}
	return wrapFieldsWithDesc(ErrBindFailed, desc, value("address", address))
}

func WrapErrSessionClosed(sessionID uint64, msg ...string) error {
	err := wrapFields(ErrSessionClosed, value("session", sessionID))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrFrameTooLarge(size int, limit int) error {
	return wrapFields(ErrFrameTooLarge, bound("frameLength", size, 0, limit))
}

func WrapErrFrameMalformed(reason string) error {
	return wrapFieldsWithDesc(ErrFrameMalformed, reason)
}

// 认证相关错误封装。
func WrapErrAuthFailed(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrAuthFailed, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSessionKeyInvalid(reason string) error {
	return wrapFieldsWithDesc(ErrSessionKeyInvalid, reason)
}

// 玩家相关错误封装。
func WrapErrPlayerNotFound(uid any, msg ...string) error {
	err := wrapFields(ErrPlayerNotFound, value("uid", uid))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrDuplicateConnectionID(connID any, msg ...string) error {
	err := wrapFields(ErrDuplicateConnectionID, value("connectionID", connID))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrConnectionIDExhausted(last any) error {
	return wrapFields(ErrConnectionIDExhausted, value("last", last))
}

func WrapErrPlayerAlreadyRegistered(uid any, msg ...string) error {
	err := wrapFields(ErrPlayerAlreadyRegistered, value("uid", uid))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// 频道/房间相关错误封装。
func WrapErrChannelNotFound(channelID any, msg ...string) error {
	err := wrapFields(ErrChannelNotFound, value("channel", channelID))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrChannelFull(channelID any, limit int) error {
	return wrapFields(ErrChannelFull, value("channel", channelID), value("limit", limit))
}

func WrapErrRoomFull(roomID any, limit int) error {
	return wrapFields(ErrRoomFull, value("room", roomID), value("limit", limit))
}

// 阻塞任务相关错误封装。
func WrapErrTaskPanicked(recovered any) error {
	return wrapFieldsWithDesc(ErrTaskPanicked, fmt.Sprint(recovered))
}

// 服务发现相关错误封装。
func WrapErrDiscoveryPublishFailed(key string, cause error) error {
	desc := "unknown"
	if cause != nil {
		desc = cause.Error()
	}
	return wrapFieldsWithDesc(ErrDiscoveryPublishFailed, desc, value("key", key))
}

// IO 相关错误封装。
func WrapErrIoKeyNotFound(key string, msg ...string) error {
	err := wrapFields(ErrIoKeyNotFound, value("key", key))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrIoFailed(key string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrIoFailed, err.Error(), value("key", key))
}

// 参数相关错误封装。
func WrapErrParameterInvalidMsg(fmt string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmt, args...)
}

func WrapErrParameterMissing[T any](param T, msg ...string) error {
	err := wrapFields(ErrParameterMissing,
		value("missing_param", param),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrOperationNotSupported(operation string) error {
	return wrapFields(ErrOperationNotSupported, value("operation", operation))
}

func wrapFields(err gameError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err gameError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}

type boundField struct {
	name  string
	value any
	lower any
	upper any
}

func bound(name string, value, lower, upper any) boundField {
	return boundField{
		name,
		value,
		lower,
		upper,
	}
}

func (f boundField) String() string {
	return fmt.Sprintf("%v out of range %v <= %s <= %v", f.value, f.lower, f.name, f.upper)
}
