// Package server 把接入层、阻塞任务池、玩家注册表与大厅频道组装成游戏服。
package server

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/pangya-game-go/internal/config"
	"github.com/lk2023060901/pangya-game-go/internal/discovery"
	"github.com/lk2023060901/pangya-game-go/internal/network/acceptor"
	"github.com/lk2023060901/pangya-game-go/internal/network/framer"
	"github.com/lk2023060901/pangya-game-go/internal/persistence"
	"github.com/lk2023060901/pangya-game-go/internal/player"
	"github.com/lk2023060901/pangya-game-go/internal/sessionclient"
	"github.com/lk2023060901/pangya-game-go/internal/world"
	"github.com/lk2023060901/pangya-game-go/pkg/log"
	"github.com/lk2023060901/pangya-game-go/pkg/metrics"
	"github.com/lk2023060901/pangya-game-go/pkg/util/conc"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

// GameServer 是一个游戏服进程的运行时。
//
// 注册表与连接 ID 分配器是仅有的跨事件循环共享的可变结构，均为无锁实现；
// 配置在构造后只读。
type GameServer struct {
	cfg *config.GameServerConfig

	players  *player.Group
	connIDs  player.ConnectionIDSequence
	pool     *conc.Pool[any]
	channels []*world.Channel

	bootstrap *acceptor.Bootstrap
	auth      sessionclient.Authenticator
	pctx      *persistence.Context
	protocol  Protocol
	store     discovery.Store

	instance string
	logger   *log.MLogger
}

// Option 用于配置 GameServer 的外部协作方。
type Option func(s *GameServer)

// WithAuthenticator 设置会话密钥的认证方，Start 前必须设置。
func WithAuthenticator(auth sessionclient.Authenticator) Option {
	return func(s *GameServer) {
		s.auth = auth
	}
}

// WithPersistence 设置玩家数据的存储。
// 未设置时登录的玩家使用缺省数据，仅用于测试与单机调试。
func WithPersistence(pctx *persistence.Context) Option {
	return func(s *GameServer) {
		s.pctx = pctx
	}
}

// WithProtocol 设置客户端协议，默认为 RawProtocol。
func WithProtocol(p Protocol) Option {
	return func(s *GameServer) {
		s.protocol = p
	}
}

// WithDiscoveryStore 设置服务发现存储，未设置时不发布在线状态。
func WithDiscoveryStore(store discovery.Store) Option {
	return func(s *GameServer) {
		s.store = store
	}
}

// NewGameServer 根据配置创建游戏服，Start 之前不会占用端口。
func NewGameServer(cfg *config.GameServerConfig, opts ...Option) *GameServer {
	s := &GameServer{
		cfg:      cfg,
		players:  player.NewGroup(),
		channels: world.NewChannels(cfg.ServerChannels),
		protocol: RawProtocol{},
		instance: uuid.NewString(),
		logger:   log.With(log.FieldComponent("game-server"), zap.Int("serverID", cfg.Server.ID)),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.pool = conc.NewPool[any](cfg.BlockingPool.Size, cfg.BlockingPool.MaxBacklog,
		conc.WithExpiryDuration(cfg.BlockingPool.Expiry),
		conc.WithPreAlloc(cfg.BlockingPool.PreAlloc),
		conc.WithPanicHandler(func(any) { metrics.BlockingTasksPanicked.Inc() }),
		conc.WithMetrics(metrics.BlockingTasksPending, metrics.BlockingTasksRunning, metrics.BlockingTasksRejected))

	s.bootstrap = acceptor.NewBootstrap(acceptor.Config{
		Address:       cfg.Server.Address(),
		Backlog:       cfg.Server.Backlog,
		WorkerThreads: cfg.Server.WorkerThreads,
		TCPNoDelay:    cfg.Server.TCPNoDelay,
		Framer:        framer.PangyaConfig(cfg.Server.MaxFrameLength),
	}, newConnHandler(s))
	return s
}

// Start 绑定端口并提供服务，阻塞直至 ctx 取消、调用 Stop 或监听失败。
// 绑定失败时返回 merr.ErrBindFailed。返回前所有存活连接都已关闭并完成下线清理，
// 已提交的阻塞任务也已执行完毕。
func (s *GameServer) Start(ctx context.Context) error {
	defer s.pool.Release()
	if s.auth == nil {
		return merr.WrapErrParameterMissing("authenticator")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return s.bootstrap.Serve(gctx)
	})
	g.Go(func() error {
		select {
		case <-s.bootstrap.Bound():
		case <-gctx.Done():
			return nil
		}
		metrics.ServerInfo.WithLabelValues(strconv.Itoa(s.cfg.Server.ID), s.bootstrap.Transport().String()).Set(1)
		s.logger.Info("game server started",
			zap.String("instance", s.instance),
			zap.String("version", s.cfg.SemVersion().String()),
			zap.Int("channels", len(s.channels)))
		if s.store == nil {
			return nil
		}
		return discovery.NewPublisher(s.store, s.cfg.Discovery.Interval, s.Snapshot).Run(gctx)
	})
	return g.Wait()
}

// Stop 停止接受连接并触发 Start 返回，可以重复调用。
func (s *GameServer) Stop() {
	s.bootstrap.Shutdown()
}

// Bound 在监听端口绑定成功后关闭。
func (s *GameServer) Bound() <-chan struct{} {
	return s.bootstrap.Bound()
}

// Addr 返回实际监听的地址，绑定前为 nil。
func (s *GameServer) Addr() net.Addr {
	return s.bootstrap.Addr()
}

func (s *GameServer) Config() *config.GameServerConfig {
	return s.cfg
}

// Players 返回在线玩家注册表。
func (s *GameServer) Players() *player.Group {
	return s.players
}

func (s *GameServer) Channels() []*world.Channel {
	return s.channels
}

// ServerChannelByID 返回频道的静态定义。
func (s *GameServer) ServerChannelByID(id int) (config.ServerChannel, bool) {
	return s.cfg.ServerChannelByID(id)
}

// ChannelByID 返回频道的运行时对象。
func (s *GameServer) ChannelByID(id int) (*world.Channel, bool) {
	return lo.Find(s.channels, func(ch *world.Channel) bool {
		return ch.ID() == id
	})
}

// EnterChannel 把玩家移入指定频道，频道不存在时返回 merr.ErrChannelNotFound。
func (s *GameServer) EnterChannel(p *player.Player, channelID int) (*world.Channel, error) {
	ch, ok := s.ChannelByID(channelID)
	if !ok {
		return nil, merr.WrapErrChannelNotFound(channelID)
	}
	if err := ch.AddPlayer(p); err != nil {
		return nil, err
	}
	return ch, nil
}

// Instance 返回本进程的实例 ID，每次启动都不同。
func (s *GameServer) Instance() string {
	return s.instance
}

// Snapshot 返回当前的在线状态，用于服务发现。
func (s *GameServer) Snapshot(ctx context.Context) discovery.ServerInfo {
	cpuPercent, rss := discovery.Resources(ctx)

	address := s.cfg.Discovery.AdvertiseAddress
	if address == "" {
		address = s.cfg.Server.BindAddress
	}
	port := s.cfg.Server.Port
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}

	return discovery.ServerInfo{
		Type:        discovery.ServerTypeGame,
		ID:          s.cfg.Server.ID,
		Name:        s.cfg.Server.Name,
		Address:     address,
		Port:        port,
		Version:     s.cfg.SemVersion().String(),
		Instance:    s.instance,
		PlayerCount: s.players.Count(),
		MaxPlayers:  s.cfg.Server.MaxPlayers,
		Channels: lo.Map(s.channels, func(ch *world.Channel, _ int) discovery.ChannelInfo {
			info := ch.Info()
			return discovery.ChannelInfo{
				ID:          info.ID,
				Name:        info.Name,
				MaxPlayers:  info.MaxPlayers,
				PlayerCount: ch.Count(),
			}
		}),
		CPUPercent: cpuPercent,
		MemoryRSS:  rss,
		UpdatedAt:  time.Now(),
	}
}
