package config

import (
	"net"
	"strconv"
	"time"

	"github.com/blang/semver/v4"
	"github.com/samber/lo"

	"github.com/lk2023060901/pangya-game-go/pkg/log"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
	"github.com/lk2023060901/pangya-game-go/pkg/util/viper"
)

// EnvPrefix 为覆盖配置项的环境变量前缀，例如 PANGYA_SERVER_PORT。
const EnvPrefix = "PANGYA"

const (
	DiscoveryBackendEtcd  = "etcd"
	DiscoveryBackendRedis = "redis"
	DiscoveryBackendNone  = "none"
)

// GameServerConfig 为游戏服启动所需的全部配置，加载完成后只读。
type GameServerConfig struct {
	Server         ServerConfig          `mapstructure:"server"`
	BlockingPool   BlockingPoolConfig    `mapstructure:"blocking-pool"`
	ServerChannels []ServerChannel       `mapstructure:"server-channels"`
	Redis          RedisConfig           `mapstructure:"redis"`
	Discovery      DiscoveryConfig       `mapstructure:"discovery"`
	Etcd           EtcdConfig            `mapstructure:"etcd"`
	Metrics        MetricsConfig         `mapstructure:"metrics"`
	Logging        map[string]log.Config `mapstructure:"logging"`
}

// ServerConfig 描述监听与网络线程拓扑。
type ServerConfig struct {
	ID          int    `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	BindAddress string `mapstructure:"bind-address"`
	Port        int    `mapstructure:"port"`
	// Backlog 为 listen 队列长度，0 表示使用系统默认值。
	Backlog int `mapstructure:"backlog"`
	// WorkerThreads 为处理连接事件的事件循环数量。
	WorkerThreads  int  `mapstructure:"worker-threads"`
	MaxPlayers     int  `mapstructure:"max-players"`
	TCPNoDelay     bool `mapstructure:"tcp-no-delay"`
	MaxFrameLength int  `mapstructure:"max-frame-length"`
}

// Address 返回 host:port 形式的监听地址。
func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.Port))
}

// BlockingPoolConfig 描述阻塞任务协程池。
type BlockingPoolConfig struct {
	Size       int           `mapstructure:"size"`
	MaxBacklog int           `mapstructure:"max-backlog"`
	Expiry     time.Duration `mapstructure:"expiry"`
	PreAlloc   bool          `mapstructure:"pre-alloc"`
}

// ServerChannel 为游戏服内的静态大厅频道定义。
type ServerChannel struct {
	ID         int    `mapstructure:"id" json:"id"`
	Name       string `mapstructure:"name" json:"name"`
	MaxPlayers int    `mapstructure:"max-players" json:"maxPlayers"`
	Flags      int    `mapstructure:"flags" json:"flags"`
}

type RedisConfig struct {
	URL          string `mapstructure:"url"`
	PoolSize     int    `mapstructure:"pool-size"`
	MinIdleConns int    `mapstructure:"min-idle-conns"`
}

type DiscoveryConfig struct {
	Backend   string        `mapstructure:"backend"`
	Interval  time.Duration `mapstructure:"interval"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key-prefix"`
	// AdvertiseAddress 为写入服务发现的对外地址，为空时使用 bind-address。
	AdvertiseAddress string `mapstructure:"advertise-address"`
}

type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial-timeout"`
	UseEmbed    bool          `mapstructure:"use-embed"`
	DataDir     string        `mapstructure:"data-dir"`
}

type MetricsConfig struct {
	// Listen 为 /metrics 的监听地址，为空表示不开启。
	Listen string `mapstructure:"listen"`
}

func setDefaults(c *viper.Config) {
	c.SetDefault("server.id", 1)
	c.SetDefault("server.name", "pangya-game")
	c.SetDefault("server.version", "1.0.0")
	c.SetDefault("server.bind-address", "0.0.0.0")
	c.SetDefault("server.port", 20201)
	c.SetDefault("server.backlog", 0)
	c.SetDefault("server.worker-threads", 2)
	c.SetDefault("server.max-players", 1000)
	c.SetDefault("server.tcp-no-delay", true)
	c.SetDefault("server.max-frame-length", 10000)

	c.SetDefault("blocking-pool.size", 64)
	c.SetDefault("blocking-pool.max-backlog", 4096)
	c.SetDefault("blocking-pool.expiry", time.Minute)
	c.SetDefault("blocking-pool.pre-alloc", false)

	c.SetDefault("redis.url", "redis://127.0.0.1:6379/0")
	c.SetDefault("redis.pool-size", 16)
	c.SetDefault("redis.min-idle-conns", 2)

	c.SetDefault("discovery.backend", DiscoveryBackendRedis)
	c.SetDefault("discovery.interval", 5*time.Second)
	c.SetDefault("discovery.ttl", 15*time.Second)
	c.SetDefault("discovery.key-prefix", "pangya/servers")

	c.SetDefault("etcd.endpoints", []string{"127.0.0.1:2379"})
	c.SetDefault("etcd.dial-timeout", 5*time.Second)
	c.SetDefault("etcd.data-dir", "default.etcd")
}

// Load 读取并校验配置文件，文件不存在时返回 merr.ErrConfigNotFound。
// 环境变量 PANGYA_<SECTION>_<KEY> 可以覆盖文件中的值。
func Load(path string) (*GameServerConfig, error) {
	c := viper.New()
	setDefaults(c)
	c.BindEnv(EnvPrefix)
	if err := c.LoadFile(path); err != nil {
		return nil, err
	}

	cfg := &GameServerConfig{}
	if err := c.Unmarshal(cfg); err != nil {
		return nil, merr.WrapErrConfigInvalid(path, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置的取值范围。
func (cfg *GameServerConfig) Validate() error {
	s := cfg.Server
	if s.Port < 0 || s.Port > 65535 {
		return merr.WrapErrConfigInvalid("server.port", "must be in [0, 65535]")
	}
	if s.BindAddress != "" && net.ParseIP(s.BindAddress) == nil {
		if _, err := net.LookupHost(s.BindAddress); err != nil {
			return merr.WrapErrConfigInvalid("server.bind-address", err.Error())
		}
	}
	if s.WorkerThreads <= 0 {
		return merr.WrapErrConfigInvalid("server.worker-threads", "must be positive")
	}
	if s.Backlog < 0 {
		return merr.WrapErrConfigInvalid("server.backlog", "must not be negative")
	}
	if s.MaxFrameLength <= 0 {
		return merr.WrapErrConfigInvalid("server.max-frame-length", "must be positive")
	}
	if _, err := semver.ParseTolerant(s.Version); err != nil {
		return merr.WrapErrConfigInvalid("server.version", err.Error())
	}
	if cfg.BlockingPool.Size <= 0 {
		return merr.WrapErrConfigInvalid("blocking-pool.size", "must be positive")
	}
	if cfg.BlockingPool.MaxBacklog < 0 {
		return merr.WrapErrConfigInvalid("blocking-pool.max-backlog", "must not be negative")
	}

	ids := make(map[int]struct{}, len(cfg.ServerChannels))
	for _, ch := range cfg.ServerChannels {
		if _, ok := ids[ch.ID]; ok {
			return merr.WrapErrConfigInvalid("server-channels", "duplicate channel id "+strconv.Itoa(ch.ID))
		}
		ids[ch.ID] = struct{}{}
		if ch.MaxPlayers < 0 {
			return merr.WrapErrConfigInvalid("server-channels", "negative max-players on channel "+strconv.Itoa(ch.ID))
		}
	}

	switch cfg.Discovery.Backend {
	case DiscoveryBackendEtcd, DiscoveryBackendRedis, DiscoveryBackendNone:
	default:
		return merr.WrapErrConfigInvalid("discovery.backend", "unknown backend "+cfg.Discovery.Backend)
	}
	if cfg.Discovery.Backend != DiscoveryBackendNone && cfg.Discovery.Interval <= 0 {
		return merr.WrapErrConfigInvalid("discovery.interval", "must be positive")
	}
	return nil
}

// ServerChannelByID 按 ID 查找频道定义，找不到时 ok 为 false。
func (cfg *GameServerConfig) ServerChannelByID(id int) (ServerChannel, bool) {
	return lo.Find(cfg.ServerChannels, func(ch ServerChannel) bool {
		return ch.ID == id
	})
}

// SemVersion 返回解析后的版本号，Validate 通过后不会失败。
func (cfg *GameServerConfig) SemVersion() semver.Version {
	v, err := semver.ParseTolerant(cfg.Server.Version)
	if err != nil {
		return semver.Version{}
	}
	return v
}
