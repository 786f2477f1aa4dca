package acceptor

import (
	"time"

	network "github.com/lk2023060901/pangya-game-go/internal/network"
	"github.com/lk2023060901/pangya-game-go/internal/network/framer"
	"github.com/lk2023060901/pangya-game-go/internal/network/session"
)

// Config 描述接入层的配置。
//
// 说明：
//   - Backlog 为 listen(2) 的积压队列长度，仅在 epoll 传输下生效；
//   - WorkerThreads 为事件循环数量，每个连接固定绑定其中一个；
//   - ReadTimeout/WriteTimeout 控制单次读写的超时时间（为 0 表示不设置 deadline）。
type Config struct {
	Address       string
	Backlog       int
	WorkerThreads int
	TCPNoDelay    bool

	Framer framer.Config

	SendQueueSize int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// 默认配置。
func defaultConfig() Config {
	return Config{
		Address:       "0.0.0.0:20201",
		Backlog:       128,
		WorkerThreads: 2,
		TCPNoDelay:    true,
		Framer:        framer.PangyaConfig(framer.DefaultMaxFrameLength),
		SendQueueSize: 1024,
	}
}

func (cfg Config) withDefaults() Config {
	def := defaultConfig()
	if cfg.Address == "" {
		cfg.Address = def.Address
	}
	if cfg.WorkerThreads <= 0 {
		cfg.WorkerThreads = def.WorkerThreads
	}
	if cfg.Framer.LengthFieldLength == 0 {
		cfg.Framer = def.Framer
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	return cfg
}

// Handler 由接入层的使用者实现，用于在连接生命周期的各个阶段插入自定义逻辑。
//
// 说明：
//   - 所有回调都在连接绑定的事件循环上按事件到达的顺序串行执行；
//   - 回调中不应执行阻塞操作，阻塞操作应交给阻塞任务池，完成后再通过
//     session.Execute 回到事件循环。
type Handler interface {
	// OnActive 在连接建立、会话创建完成后被调用一次。
	OnActive(sess session.Session)

	// OnFrame 在切分出一帧完整数据后被调用。
	OnFrame(sess session.Session, frame framer.Frame)

	// OnClosed 在会话关闭后被调用一次，且一定晚于 OnActive。
	OnClosed(sess session.Session)

	// OnError 在读取或解帧失败时被调用，随后会话会被关闭。
	//
	// stage 用于标识错误发生的位置，便于监控与排查。
	OnError(sess session.Session, stage network.Stage, err error)
}
