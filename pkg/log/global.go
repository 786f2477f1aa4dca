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

package log

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxLogKeyType struct{}

// CtxLogKey 为 context 中保存 *MLogger 的键。
var CtxLogKey = ctxLogKeyType{}

func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

// RatedWarn 按全局限流器输出 Warn 日志，返回是否输出。
func RatedWarn(cost float64, msg string, fields ...zap.Field) bool {
	if !R().CheckCredit(cost) {
		return false
	}
	L().Warn(msg, fields...)
	return true
}

// With 基于全局 Logger 派生一个附加字段的 MLogger。
// 全局 Logger 替换之后新派生的 MLogger 才会生效，已经派生的保持不变。
func With(fields ...zap.Field) *MLogger {
	return &MLogger{
		Logger: L().WithOptions(zap.AddCallerSkip(-1)).With(fields...),
	}
}

// WithFields 返回一个 ctx 的子 context，其中的 Logger 附加了 fields。
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	return context.WithValue(ctx, CtxLogKey, Ctx(ctx).With(fields...))
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return WithFields(ctx, zap.String("traceID", traceID))
}

func WithConnectionID(ctx context.Context, connID uint32) context.Context {
	return WithFields(ctx, FieldConnectionID(connID))
}

func WithSessionID(ctx context.Context, sessionID uint64) context.Context {
	return WithFields(ctx, FieldSessionID(sessionID))
}

func WithModule(ctx context.Context, module string) context.Context {
	return WithFields(ctx, FieldModule(module))
}

// StartSpan 在 ctx 上开启一个 trace.Span，并把 traceID 附加到 ctx 中的 Logger。
// 未注册 TracerProvider 时 span 为空实现，不附加 traceID。
func StartSpan(ctx context.Context, name string, intent string) (context.Context, trace.Span) {
	spanCtx, span := otel.Tracer(name).Start(ctx, intent)
	if sc := span.SpanContext(); sc.HasTraceID() {
		spanCtx = WithTraceID(spanCtx, sc.TraceID().String())
	}
	return spanCtx, span
}

// Ctx 返回 ctx 中的 Logger，没有时返回全局 Logger。
func Ctx(ctx context.Context) *MLogger {
	if ctx != nil {
		if l, ok := ctx.Value(CtxLogKey).(*MLogger); ok {
			return l
		}
	}
	return &MLogger{Logger: L().WithOptions(zap.AddCallerSkip(-1))}
}
