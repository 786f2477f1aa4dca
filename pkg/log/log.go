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

// Package log 是游戏服的日志库，基于 zap。
//
// 进程启动前使用输出到标准输出的默认 Logger，Application 读取配置后通过
// InitLogger 与 ReplaceGlobals 替换。各组件通过 With 派生携带固定字段的 MLogger，
// 请求级别的字段通过 WithFields 挂在 context 上，由 Ctx 取出。
package log

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/uber/jaeger-client-go/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	_globalL atomic.Pointer[zap.Logger]
	_globalP atomic.Pointer[ZapProperties]
	_globalR atomic.Value // RateLimiter

	_namedRateLimiters sync.Map // group name -> *utils.ReconfigurableRateLimiter
)

// RateLimiter 控制限流日志的输出频率。
type RateLimiter interface {
	CheckCredit(cost float64) bool
}

type nopRateLimiter struct{}

func (nopRateLimiter) CheckCredit(float64) bool { return true }

func init() {
	lg, props, _ := InitLogger(&Config{Level: "debug", Stdout: true, DisableErrorVerbose: true},
		zap.OnFatal(zapcore.WriteThenPanic))
	ReplaceGlobals(lg, props)
	configureRateLimiterFromEnv()
}

// InitLogger 按配置创建 Logger，输出到标准输出和（可选的）滚动日志文件。
// 返回的 Logger 已跳过一层调用栈，供包级函数使用。
func InitLogger(cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	var outputs []zapcore.WriteSyncer
	if cfg.File.Filename != "" {
		fileLog, err := newFileLog(&cfg.File)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, zapcore.AddSync(fileLog))
	}
	if cfg.Stdout {
		stdout, _, err := zap.Open("stdout")
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, stdout)
	}

	lg, props, err := InitLoggerWithWriteSyncer(cfg, zap.CombineWriteSyncers(outputs...), opts...)
	if err != nil {
		return nil, nil, err
	}
	return lg.WithOptions(zap.AddCallerSkip(1)), props, nil
}

// InitLoggerWithWriteSyncer 创建一个写入 output 的 Logger。
// 级别 "trace" 按 debug 处理。
func InitLoggerWithWriteSyncer(cfg *Config, output zapcore.WriteSyncer, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	levelText := cfg.Level
	if strings.EqualFold(levelText, "trace") {
		levelText = "debug"
	}
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(levelText)); err != nil {
		return nil, nil, errors.Wrapf(err, "invalid log level %q", cfg.Level)
	}

	var core zapcore.Core = zapcore.NewCore(cfg.buildEncoder(), output, level)
	if cfg.DisableErrorVerbose {
		core = conciseErrorCore{Core: core}
	}
	lg := zap.New(core, append(cfg.buildOptions(output), opts...)...)
	return lg, &ZapProperties{Core: core, Syncer: output, Level: level}, nil
}

func newFileLog(cfg *FileLogConfig) (*lumberjack.Logger, error) {
	path := filepath.Join(cfg.RootPath, cfg.Filename)
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		return nil, errors.Newf("log file %s is a directory", path)
	}
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = defaultLogMaxSize
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxDays,
		LocalTime:  true,
	}, nil
}

// L 返回全局 Logger，可以并发使用。
func L() *zap.Logger {
	return _globalL.Load()
}

// ReplaceGlobals 替换全局 Logger。
func ReplaceGlobals(logger *zap.Logger, props *ZapProperties) {
	_globalL.Store(logger)
	_globalP.Store(props)
}

// Sync 刷新全局 Logger 缓冲的日志。
func Sync() error {
	return L().Sync()
}

// SetLevel 动态调整全局日志级别。
func SetLevel(l zapcore.Level) {
	_globalP.Load().Level.SetLevel(l)
}

func GetLevel() zapcore.Level {
	return _globalP.Load().Level.Level()
}

// R 返回包级限流日志使用的限流器，未开启限流时不丢弃任何日志。
func R() RateLimiter {
	if rl, ok := _globalR.Load().(RateLimiter); ok {
		return rl
	}
	return nopRateLimiter{}
}

// configureRateLimiterFromEnv 读取 PANGYA_LOG_RATE_ENABLE、PANGYA_LOG_RATE_CREDIT_PER_SECOND
// 与 PANGYA_LOG_RATE_MAX_BALANCE，默认不限流。
func configureRateLimiterFromEnv() {
	if !getenvBool("PANGYA_LOG_RATE_ENABLE", false) {
		_globalR.Store(RateLimiter(nopRateLimiter{}))
		return
	}
	credit := getenvFloat("PANGYA_LOG_RATE_CREDIT_PER_SECOND", 1)
	maxBalance := getenvFloat("PANGYA_LOG_RATE_MAX_BALANCE", 60)
	_globalR.Store(RateLimiter(utils.NewRateLimiter(credit, maxBalance)))
}

// rateGroup 返回命名的限流器，同名分组共享额度，参数以最后一次设置为准。
func rateGroup(name string, creditPerSecond, maxBalance float64) *utils.ReconfigurableRateLimiter {
	rl := utils.NewRateLimiter(creditPerSecond, maxBalance)
	if actual, loaded := _namedRateLimiters.LoadOrStore(name, rl); loaded {
		rl = actual.(*utils.ReconfigurableRateLimiter)
		rl.Update(creditPerSecond, maxBalance)
	}
	return rl
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return f
}
