package log

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogSuite struct {
	suite.Suite
}

func (s *LogSuite) TestInitTestLogger() {
	lg, props, err := InitTestLogger(s.T(), &Config{Level: "info", Format: "json"})
	s.Require().NoError(err)
	s.Equal(zapcore.InfoLevel, props.Level.Level())
	lg.Info("hello", FieldConnectionID(1), FieldUID(2), FieldSessionID(3))
}

func (s *LogSuite) TestInvalidLevel() {
	_, _, err := InitTestLogger(s.T(), &Config{Level: "verbose"})
	s.Error(err)
}

func (s *LogSuite) TestCtxFields() {
	ctx := WithConnectionID(context.Background(), 7)
	ctx = WithModule(ctx, "server")
	l := Ctx(ctx)
	s.NotNil(l)
	s.NotSame(Ctx(context.Background()), l)
	s.NotNil(Ctx(nil)) //nolint:staticcheck
}

func (s *LogSuite) TestRatedLoggerWithGroup() {
	l := With(FieldComponent("test")).WithRateGroup("log_suite", 1, 1)
	s.True(l.RatedInfo(1, "first"))
	s.False(l.RatedInfo(1, "second"))
}

func (s *LogSuite) TestConciseErrorFields() {
	fields := []zapcore.Field{zap.String("k", "v"), zap.Error(errors.New("boom"))}
	out := conciseFields(fields)
	s.Equal(zapcore.StringType, out[1].Type)
	s.Equal("boom", out[1].String)
	s.Equal(zapcore.ErrorType, fields[1].Type)

	plain := []zapcore.Field{zap.Int("n", 1)}
	s.Equal(plain, conciseFields(plain))
}

func (s *LogSuite) TestBinder() {
	var b Binder
	s.NotNil(b.Logger())
	l := With(FieldModule("m"))
	b.SetLogger(l)
	s.Same(l, b.Logger())
}

func (s *LogSuite) TestStartSpanWithoutProvider() {
	ctx := WithModule(context.Background(), "m")
	spanCtx, span := StartSpan(ctx, "test", "op")
	defer span.End()

	s.False(span.SpanContext().HasTraceID())
	s.Same(Ctx(ctx), Ctx(spanCtx))
}

func TestLog(t *testing.T) {
	suite.Run(t, new(LogSuite))
}
