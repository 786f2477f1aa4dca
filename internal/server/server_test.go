package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/pangya-game-go/internal/config"
	"github.com/lk2023060901/pangya-game-go/internal/network/connector"
	"github.com/lk2023060901/pangya-game-go/internal/network/framer"
	"github.com/lk2023060901/pangya-game-go/internal/network/router"
	"github.com/lk2023060901/pangya-game-go/internal/network/session"
	"github.com/lk2023060901/pangya-game-go/internal/persistence"
	"github.com/lk2023060901/pangya-game-go/internal/player"
	"github.com/lk2023060901/pangya-game-go/internal/sessionclient"
	"github.com/lk2023060901/pangya-game-go/pkg/metrics"
	"github.com/lk2023060901/pangya-game-go/pkg/util/conc"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

func testConfig() *config.GameServerConfig {
	return &config.GameServerConfig{
		Server: config.ServerConfig{
			ID:             1,
			Name:           "test",
			Version:        "1.2.3",
			BindAddress:    "127.0.0.1",
			Port:           0,
			WorkerThreads:  2,
			MaxPlayers:     100,
			TCPNoDelay:     true,
			MaxFrameLength: framer.DefaultMaxFrameLength,
		},
		BlockingPool: config.BlockingPoolConfig{
			Size:       4,
			MaxBacklog: 64,
		},
		ServerChannels: []config.ServerChannel{
			{ID: 1, Name: "Free #1", MaxPlayers: 10},
			{ID: 2, Name: "Rookie", MaxPlayers: 1},
		},
		Discovery: config.DiscoveryConfig{
			Backend:  config.DiscoveryBackendNone,
			Interval: time.Second,
		},
	}
}

// newPipeSession 返回一个直接在调用方执行回调的会话。
func newPipeSession(t *testing.T, id uint64) *session.BaseSession {
	server, client := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })
	sess := session.NewBaseSession(context.Background(), id, server, nil)
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func (s *GameServer) registerInfo(sess session.Session, info sessionclient.SessionInfo) (*player.Player, error) {
	return s.RegisterPlayer(sess, info, nil, nil, nil, nil, nil, nil, nil, nil)
}

type failingContainer struct {
	err    error
	panics bool
	calls  int
}

func (c *failingContainer) RemovePlayer(*player.Player) error {
	c.calls++
	if c.panics {
		panic("container is broken")
	}
	return c.err
}

type RegisterSuite struct {
	suite.Suite

	server *GameServer
}

func (s *RegisterSuite) SetupTest() {
	s.server = NewGameServer(testConfig())
	s.T().Cleanup(s.server.pool.Release)
}

func (s *RegisterSuite) TestRegisterAndDisconnect() {
	sess := newPipeSession(s.T(), 1)
	p, err := s.server.registerInfo(sess, sessionclient.SessionInfo{UID: 1001, Username: "alice", Nickname: "Alice"})
	s.Require().NoError(err)
	s.Equal(player.ConnectionID(1), p.ConnectionID())
	s.Equal(player.UID(1001), p.UID())
	s.Equal("Alice", p.Nickname())
	s.Equal(int64(10000), p.Wallet.Pang)
	s.Equal(1, s.server.Players().Count())

	got, ok := s.server.Players().Get(p.ConnectionID())
	s.True(ok)
	s.Same(p, got)

	ch, err := s.server.EnterChannel(p, 1)
	s.Require().NoError(err)
	room := ch.CreateRoom("practice", 4)
	s.Require().NoError(room.AddPlayer(p))

	s.Require().NoError(sess.Close())
	s.True(p.TornDown())
	s.Equal(0, s.server.Players().Count())
	s.Equal(0, ch.Count())
	s.Nil(p.CurrentRoom())
	s.Nil(p.CurrentChannel())
	_, ok = ch.Room(room.ID())
	s.False(ok)
}

func (s *RegisterSuite) TestRegisterOnClosedSession() {
	sess := newPipeSession(s.T(), 1)
	s.Require().NoError(sess.Close())

	p, err := s.server.registerInfo(sess, sessionclient.SessionInfo{UID: 1})
	s.ErrorIs(err, merr.ErrSessionClosed)
	s.Nil(p)
	s.Equal(0, s.server.Players().Count())

	// 分配出去的 ID 不会被复用
	sess2 := newPipeSession(s.T(), 2)
	p2, err := s.server.registerInfo(sess2, sessionclient.SessionInfo{UID: 2})
	s.Require().NoError(err)
	s.Equal(player.ConnectionID(2), p2.ConnectionID())
}

func (s *RegisterSuite) TestTeardownErrorsNeverSkipRegistryRemoval() {
	sess := newPipeSession(s.T(), 1)
	p, err := s.server.registerInfo(sess, sessionclient.SessionInfo{UID: 7})
	s.Require().NoError(err)

	room := &failingContainer{panics: true}
	ch := &failingContainer{err: errors.New("channel store unavailable")}
	p.SetCurrentRoom(room)
	p.SetCurrentChannel(ch)

	roomErrors := testutil.ToFloat64(metrics.TeardownErrors.WithLabelValues(teardownStageRoom))
	channelErrors := testutil.ToFloat64(metrics.TeardownErrors.WithLabelValues(teardownStageChannel))

	s.Require().NoError(sess.Close())
	s.Equal(0, s.server.Players().Count())
	s.Equal(1, room.calls)
	s.Equal(1, ch.calls)
	s.Nil(p.CurrentRoom())
	s.Nil(p.CurrentChannel())
	s.Equal(roomErrors+1, testutil.ToFloat64(metrics.TeardownErrors.WithLabelValues(teardownStageRoom)))
	s.Equal(channelErrors+1, testutil.ToFloat64(metrics.TeardownErrors.WithLabelValues(teardownStageChannel)))
}

func (s *RegisterSuite) TestTeardownRunsOnce() {
	sess := newPipeSession(s.T(), 1)
	p, err := s.server.registerInfo(sess, sessionclient.SessionInfo{UID: 7})
	s.Require().NoError(err)
	room := &failingContainer{}
	p.SetCurrentRoom(room)

	s.server.onPlayerDisconnect(p)
	s.server.onPlayerDisconnect(p)
	s.Require().NoError(sess.Close())
	s.Equal(1, room.calls)
	s.Equal(0, s.server.Players().Count())
}

func (s *RegisterSuite) TestConcurrentRegistrationUniqueIDs() {
	const n = 64
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[player.ConnectionID]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := newPipeSession(s.T(), uint64(i+1))
			p, err := s.server.registerInfo(sess, sessionclient.SessionInfo{UID: player.UID(i + 1)})
			if !s.NoError(err) {
				return
			}
			mu.Lock()
			ids[p.ConnectionID()] = struct{}{}
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	s.Len(ids, n)
	s.Equal(n, s.server.Players().Count())
	for id := player.ConnectionID(1); id <= n; id++ {
		s.Contains(ids, id)
	}
}

func (s *RegisterSuite) TestEnterChannel() {
	sess := newPipeSession(s.T(), 1)
	p, err := s.server.registerInfo(sess, sessionclient.SessionInfo{UID: 1})
	s.Require().NoError(err)

	_, err = s.server.EnterChannel(p, 99)
	s.ErrorIs(err, merr.ErrChannelNotFound)

	ch, err := s.server.EnterChannel(p, 2)
	s.Require().NoError(err)
	s.Same(ch, p.CurrentChannel())

	sess2 := newPipeSession(s.T(), 2)
	p2, err := s.server.registerInfo(sess2, sessionclient.SessionInfo{UID: 2})
	s.Require().NoError(err)
	_, err = s.server.EnterChannel(p2, 2)
	s.ErrorIs(err, merr.ErrChannelFull)

	def, ok := s.server.ServerChannelByID(2)
	s.True(ok)
	s.Equal("Rookie", def.Name)
}

func (s *RegisterSuite) TestSnapshot() {
	sess := newPipeSession(s.T(), 1)
	p, err := s.server.registerInfo(sess, sessionclient.SessionInfo{UID: 1})
	s.Require().NoError(err)
	_, err = s.server.EnterChannel(p, 1)
	s.Require().NoError(err)

	info := s.server.Snapshot(context.Background())
	s.Equal("game", info.Type)
	s.Equal(1, info.ID)
	s.Equal("1.2.3", info.Version)
	s.Equal(s.server.Instance(), info.Instance)
	s.Equal(1, info.PlayerCount)
	s.Equal(100, info.MaxPlayers)
	s.Require().Len(info.Channels, 2)
	s.Equal(1, info.Channels[0].PlayerCount)
	s.Equal(0, info.Channels[1].PlayerCount)
	s.False(info.UpdatedAt.IsZero())
}

func TestRegister(t *testing.T) {
	suite.Run(t, new(RegisterSuite))
}

func TestTasks(t *testing.T) {
	cfg := testConfig()
	cfg.BlockingPool = config.BlockingPoolConfig{Size: 1, MaxBacklog: 1}
	s := NewGameServer(cfg)
	defer s.pool.Release()

	v, err := SubmitTask(s, func() (string, error) { return "loaded", nil }).Await()
	require.NoError(t, err)
	assert.Equal(t, "loaded", v)

	errBoom := errors.New("boom")
	assert.ErrorIs(t, s.RunTask(func() error { return errBoom }).Err(), errBoom)
	assert.ErrorIs(t, s.RunTask(func() error { panic("boom") }).Err(), merr.ErrTaskPanicked)

	// 占满唯一的 worker 和排队位后，新任务立即被拒绝，提交方不会被阻塞
	release := make(chan struct{})
	started := make(chan struct{})
	running := s.RunTask(func() error {
		close(started)
		<-release
		return nil
	})
	<-started

	var queued []*conc.Future[any]
	var rejected *conc.Future[any]
	for i := 0; i < 4 && rejected == nil; i++ {
		f := s.SubmitTask(func() (any, error) { return i, nil })
		select {
		case <-f.Done():
			rejected = f
		default:
			queued = append(queued, f)
		}
	}
	require.NotNil(t, rejected)
	assert.ErrorIs(t, rejected.Err(), merr.ErrServiceTooManyRequests)
	assert.True(t, merr.IsRetryableErr(rejected.Err()))

	close(release)
	assert.NoError(t, running.Err())
	assert.NoError(t, conc.AwaitAll(queued...))
}

func TestSlowTaskDoesNotDelayOthers(t *testing.T) {
	s := NewGameServer(testConfig())
	defer s.pool.Release()

	release := make(chan struct{})
	started := make(chan struct{})
	slow := s.RunTask(func() error {
		close(started)
		<-release
		return nil
	})
	<-started

	fast := SubmitTask(s, func() (int, error) { return 7, nil })
	select {
	case <-fast.Done():
	case <-time.After(time.Second):
		require.FailNow(t, "unrelated task was delayed by a slow one")
	}
	assert.Equal(t, 7, fast.Value())
	assert.False(t, isDone(slow.Done()))

	close(release)
	assert.NoError(t, slow.Err())
}

func isDone(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// stoppedExecutor 模拟已经关闭的事件循环。
type stoppedExecutor struct{}

func (stoppedExecutor) Execute(func()) bool { return false }

func TestCompleteOnStoppedLoop(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	sess := session.NewBaseSession(context.Background(), 1, server, stoppedExecutor{})
	defer sess.Close()

	errBoom := errors.New("boom")
	done := make(chan error, 1)
	completeOn(sess, conc.Go(func() (int, error) { return 0, errBoom }), func(_ int, err error) {
		done <- err
	})
	select {
	case err := <-done:
		assert.ErrorIs(t, err, errBoom)
	case <-time.After(time.Second):
		require.FailNow(t, "completion was dropped by a stopped loop")
	}
}

// LifecycleSuite 通过真实的 TCP 连接、Redis 会话密钥与 Redis 存储跑完整的登录与断线流程。
type LifecycleSuite struct {
	suite.Suite

	mr     *miniredis.Miniredis
	rdb    *redis.Client
	auth   *sessionclient.Client
	pctx   *persistence.Context
	router *router.Router
	server *GameServer

	cancel context.CancelFunc
	done   chan error
}

func (s *LifecycleSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.rdb = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.auth = sessionclient.NewClient(s.rdb)
	s.pctx = persistence.NewRedisContext(s.rdb)
	s.router = router.New()

	s.server = NewGameServer(testConfig(),
		WithAuthenticator(s.auth),
		WithPersistence(s.pctx),
		WithProtocol(RawProtocol{Router: s.router}))

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() {
		s.done <- s.server.Start(ctx)
	}()

	select {
	case <-s.server.Bound():
	case err := <-s.done:
		s.FailNow("server failed to start", "%v", err)
	case <-time.After(5 * time.Second):
		s.FailNow("server did not bind in time")
	}
}

func (s *LifecycleSuite) TearDownTest() {
	s.cancel()
	select {
	case err := <-s.done:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.Fail("server did not stop in time")
	}
	_ = s.rdb.Close()
}

func (s *LifecycleSuite) account(uid player.UID, key string) {
	ctx := context.Background()
	name := fmt.Sprintf("user%d", uid)
	s.Require().NoError(persistence.Save(ctx, s.pctx, uid, &persistence.State{
		Profile: &persistence.Profile{UID: uid, Username: name, Nickname: name},
		Wallet:  &player.Wallet{Pang: 500, Cookies: 3},
	}))
	s.Require().NoError(s.auth.Store(ctx, key,
		sessionclient.SessionInfo{UID: uid, Username: name, Nickname: name}, time.Minute))
}

func (s *LifecycleSuite) dialAndLogin(key string) *connector.ClientConn {
	c, err := connector.Dial(context.Background(), s.server.Addr().String(), connector.Config{})
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = c.Close() })

	frame, err := EncodeRawLogin(framer.PangyaConfig(framer.DefaultMaxFrameLength), key)
	s.Require().NoError(err)
	s.Require().NoError(c.Send(frame))
	return c
}

// waitClosed 等待服务端关闭连接。
func (s *LifecycleSuite) waitClosed(c *connector.ClientConn) {
	select {
	case <-c.Done():
		s.NoError(c.Err())
	case <-time.After(5 * time.Second):
		s.Fail("connection still open")
	}
}

func (s *LifecycleSuite) waitPlayers(n int) {
	s.Eventually(func() bool {
		return s.server.Players().Count() == n
	}, 5*time.Second, 10*time.Millisecond, "expected %d online players", n)
}

func (s *LifecycleSuite) TestThreeClientsLoginAndDisconnect() {
	for i := 1; i <= 3; i++ {
		s.account(player.UID(1000+i), fmt.Sprintf("key%d", i))
	}
	conns := []*connector.ClientConn{
		s.dialAndLogin("key1"),
		s.dialAndLogin("key2"),
		s.dialAndLogin("key3"),
	}
	s.waitPlayers(3)

	ids := make(map[player.ConnectionID]struct{})
	s.server.Players().Range(func(p *player.Player) bool {
		ids[p.ConnectionID()] = struct{}{}
		s.Equal(int64(500), p.Wallet.Pang)
		return true
	})
	s.Len(ids, 3)
	for _, key := range []string{"key1", "key2", "key3"} {
		s.False(s.mr.Exists("pangya:session:" + key))
	}

	p, ok := s.server.Players().FindByUID(1002)
	s.Require().True(ok)
	_, err := s.server.EnterChannel(p, 1)
	s.Require().NoError(err)
	ch, _ := s.server.ChannelByID(1)
	s.Equal(1, ch.Count())

	s.Require().NoError(conns[1].Close())
	s.waitPlayers(2)
	s.Eventually(func() bool { return ch.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
	_, ok = s.server.Players().FindByUID(1002)
	s.False(ok)

	// 停服会关闭剩余连接并完成清理
	s.server.Stop()
	s.Require().NoError(<-s.done)
	s.done <- nil
	s.Equal(0, s.server.Players().Count())
}

func (s *LifecycleSuite) TestUnknownSessionKeyClosesConnection() {
	s.waitClosed(s.dialAndLogin("nobody"))
	s.Equal(0, s.server.Players().Count())
}

func (s *LifecycleSuite) TestSessionKeyUsedOnce() {
	s.account(2001, "once")
	s.dialAndLogin("once")
	s.waitPlayers(1)

	s.waitClosed(s.dialAndLogin("once"))
	s.Equal(1, s.server.Players().Count())
}

func (s *LifecycleSuite) TestMissingProfileRejected() {
	s.Require().NoError(s.auth.Store(context.Background(), "ghost",
		sessionclient.SessionInfo{UID: 404, Username: "ghost"}, time.Minute))
	s.waitClosed(s.dialAndLogin("ghost"))
	s.Equal(0, s.server.Players().Count())
}

func (s *LifecycleSuite) TestRoutedPackets() {
	s.Require().NoError(s.router.Register(0x0002, func(p *player.Player, body []byte) error {
		reply, err := framer.AppendFrame(nil, framer.PangyaConfig(0), []byte{0},
			append([]byte{0, 0x02, 0x00}, body...))
		if err != nil {
			return err
		}
		return p.Send(reply)
	}))

	s.account(3001, "router")
	c := s.dialAndLogin("router")
	s.waitPlayers(1)

	s.Require().NoError(c.SendFrame([]byte{1, 0x02, 0x00, 'h', 'i'}))
	select {
	case frame := <-c.Recv():
		id, err := router.PacketID(frame)
		s.Require().NoError(err)
		s.Equal(uint16(0x0002), id)
		s.Equal([]byte("hi"), frame.Payload()[3:])
	case <-time.After(5 * time.Second):
		s.FailNow("no reply received")
	}

	// 未注册的包 ID 会断开连接并清理玩家
	s.Require().NoError(c.SendFrame([]byte{2, 0xff, 0x00}))
	s.waitClosed(c)
	s.waitPlayers(0)
}

func TestLifecycle(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}

func TestStartErrors(t *testing.T) {
	s := NewGameServer(testConfig())
	assert.ErrorIs(t, s.Start(context.Background()), merr.ErrParameterMissing)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig()
	cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port
	s = NewGameServer(cfg, WithAuthenticator(sessionclient.NewClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}))))
	assert.ErrorIs(t, s.Start(context.Background()), merr.ErrBindFailed)
	assert.Zero(t, s.Players().Count())
	assert.Equal(t, player.InvalidConnectionID, s.connIDs.Last())
}
