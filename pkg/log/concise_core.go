package log

import "go.uber.org/zap/zapcore"

// conciseErrorCore 将 error 字段改写为纯字符串，从而不再输出 errorVerbose 堆栈。
type conciseErrorCore struct {
	zapcore.Core
}

var _ zapcore.Core = conciseErrorCore{}

func (c conciseErrorCore) With(fields []zapcore.Field) zapcore.Core {
	return conciseErrorCore{Core: c.Core.With(conciseFields(fields))}
}

func (c conciseErrorCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c conciseErrorCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, conciseFields(fields))
}

func conciseFields(fields []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fields {
		if f.Type != zapcore.ErrorType {
			continue
		}
		if out == nil {
			out = make([]zapcore.Field, len(fields))
			copy(out, fields)
		}
		err, _ := f.Interface.(error)
		if err == nil {
			out[i] = zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: "<nil>"}
			continue
		}
		out[i] = zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: err.Error()}
	}
	if out == nil {
		return fields
	}
	return out
}
