package application

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/lk2023060901/pangya-game-go/internal/config"
	"github.com/lk2023060901/pangya-game-go/internal/discovery"
	"github.com/lk2023060901/pangya-game-go/internal/persistence"
	"github.com/lk2023060901/pangya-game-go/internal/server"
	"github.com/lk2023060901/pangya-game-go/internal/sessionclient"
	"github.com/lk2023060901/pangya-game-go/pkg/log"
	"github.com/lk2023060901/pangya-game-go/pkg/metrics"
	"github.com/lk2023060901/pangya-game-go/pkg/util/etcd"
	"github.com/lk2023060901/pangya-game-go/pkg/util/redisutil"
)

const (
	// DefaultConfigPath 为未指定配置文件时使用的路径。
	DefaultConfigPath = "./config.yaml"
	// ConfigPathEnv 为指定配置文件路径的环境变量。
	ConfigPathEnv = "PANGYA_CONFIG_FILE_PATH"

	metricsShutdownTimeout = 3 * time.Second
)

// Application 是游戏服进程的运行时容器，负责加载配置、初始化日志并组装依赖。
type Application struct {
	configPath string
	cfg        *config.GameServerConfig
	loggers    map[string]*log.MLogger

	closers []func()
}

// New 创建 Application，configPath 为命令行指定的配置路径，可以为空。
func New(configPath string) *Application {
	return &Application{configPath: configPath}
}

// ResolveConfigPath 按以下优先级确定配置文件路径：
//  1. 默认值 ./config.yaml
//  2. 环境变量 PANGYA_CONFIG_FILE_PATH
//  3. 命令行 --config
func ResolveConfigPath(flagValue string) string {
	path := DefaultConfigPath
	if envPath := strings.TrimSpace(os.Getenv(ConfigPathEnv)); envPath != "" {
		path = envPath
	}
	if flagValue != "" {
		path = flagValue
	}
	return path
}

// Run 加载配置并运行游戏服，阻塞直至 ctx 取消或出现致命错误。
// 配置错误与端口绑定失败会在接受任何连接之前返回。
func (a *Application) Run(ctx context.Context) error {
	if err := a.initGlobalLoggerFromEnv(); err != nil {
		return err
	}
	defer log.Sync()

	path := ResolveConfigPath(a.configPath)
	cfg, err := config.Load(path)
	if err != nil {
		log.Error("failed to load config", zap.String("path", path), zap.Error(err))
		return err
	}
	a.cfg = cfg
	if err := a.initModuleLoggers(); err != nil {
		return err
	}
	defer a.close()

	metrics.Register(prometheus.DefaultRegisterer)
	a.serveMetrics()

	rdb, err := redisutil.NewClient(ctx, redisutil.Options{
		URL:          cfg.Redis.URL,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	if err != nil {
		log.Error("failed to connect redis", zap.Error(err))
		return err
	}
	a.onClose(func() { _ = rdb.Close() })

	store, err := a.discoveryStore(ctx, rdb)
	if err != nil {
		log.Error("failed to init discovery", zap.String("backend", cfg.Discovery.Backend), zap.Error(err))
		return err
	}

	opts := []server.Option{
		server.WithAuthenticator(sessionclient.NewClient(rdb)),
		server.WithPersistence(persistence.NewRedisContext(rdb)),
	}
	if store != nil {
		opts = append(opts, server.WithDiscoveryStore(store))
	}
	return server.NewGameServer(cfg, opts...).Start(ctx)
}

// Config 返回已加载的配置，Run 之前为 nil。
func (a *Application) Config() *config.GameServerConfig {
	return a.cfg
}

// Logger 返回配置中定义的具名 Logger，不存在时退回全局 Logger。
func (a *Application) Logger(name string) *log.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return log.With()
}

func (a *Application) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *Application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// discoveryStore 按 discovery.backend 创建服务发现存储，none 时返回 nil。
func (a *Application) discoveryStore(ctx context.Context, rdb redis.UniversalClient) (discovery.Store, error) {
	cfg := a.cfg
	key := discovery.Key(cfg.Discovery.KeyPrefix, discovery.ServerTypeGame, cfg.Server.ID)

	switch cfg.Discovery.Backend {
	case config.DiscoveryBackendRedis:
		return discovery.NewRedisStore(rdb, key, cfg.Discovery.TTL), nil
	case config.DiscoveryBackendEtcd:
		cli, err := a.etcdClient(ctx)
		if err != nil {
			return nil, err
		}
		return discovery.NewEtcdStore(cli, key, cfg.Discovery.TTL), nil
	default:
		return nil, nil
	}
}

func (a *Application) etcdClient(ctx context.Context) (*clientv3.Client, error) {
	cfg := a.cfg.Etcd
	if !cfg.UseEmbed {
		cli, err := etcd.NewClient(ctx, cfg.Endpoints, cfg.DialTimeout)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = cli.Close() })
		return cli, nil
	}

	if err := etcd.InitEtcdServer(true, "", cfg.DataDir, "", "warn"); err != nil {
		return nil, errors.Wrap(err, "start embedded etcd")
	}
	a.onClose(etcd.StopEtcdServer)
	cli, err := etcd.GetEmbedEtcdClient()
	if err != nil {
		return nil, err
	}
	a.onClose(func() { _ = cli.Close() })
	return cli, nil
}

// serveMetrics 在 metrics.listen 非空时暴露 /metrics。
func (a *Application) serveMetrics() {
	addr := a.cfg.Metrics.Listen
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("metrics server listening", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	a.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
}

// initGlobalLoggerFromEnv 根据 PANGYA_LOG_* 环境变量配置进程级 Logger：
//   - PANGYA_LOG_LEVEL：日志级别，默认 info；
//   - PANGYA_LOG_FORMAT：text 或 json，默认 text；
//   - PANGYA_LOG_STDOUT：是否输出到标准输出，默认 true；
//   - PANGYA_LOG_FILE_DIR、PANGYA_LOG_FILE：日志文件目录与文件名，文件名为空表示不写文件。
func (a *Application) initGlobalLoggerFromEnv() error {
	cfg := &log.Config{
		Level:               getenvDefault("PANGYA_LOG_LEVEL", "info"),
		Format:              getenvDefault("PANGYA_LOG_FORMAT", "text"),
		Stdout:              getenvBool("PANGYA_LOG_STDOUT", true),
		DisableErrorVerbose: true,
		File: log.FileLogConfig{
			RootPath: getenvDefault("PANGYA_LOG_FILE_DIR", ""),
			Filename: getenvDefault("PANGYA_LOG_FILE", ""),
		},
	}

	logger, props, err := log.InitLogger(cfg)
	if err != nil {
		return errors.Wrap(err, "init global logger from env")
	}
	log.ReplaceGlobals(logger, props)
	return nil
}

// initModuleLoggers 按配置中的 logging 段创建具名 Logger，例如：
//
//	logging:
//	  net:
//	    level: debug
//	    file:
//	      rootpath: ./logs
//	      filename: net.log
func (a *Application) initModuleLoggers() error {
	if len(a.cfg.Logging) == 0 {
		return nil
	}
	a.loggers = make(map[string]*log.MLogger, len(a.cfg.Logging))
	for name, lc := range a.cfg.Logging {
		cfgCopy := lc
		logger, _, err := log.InitLogger(&cfgCopy)
		if err != nil {
			return errors.Wrapf(err, "init module logger %q", name)
		}
		a.loggers[name] = &log.MLogger{Logger: logger.WithOptions(zap.AddCallerSkip(-1)).With(log.FieldModule(name))}
	}
	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
