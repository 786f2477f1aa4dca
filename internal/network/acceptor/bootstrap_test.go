package acceptor

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	network "github.com/lk2023060901/pangya-game-go/internal/network"
	"github.com/lk2023060901/pangya-game-go/internal/network/framer"
	"github.com/lk2023060901/pangya-game-go/internal/network/session"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

type event struct {
	kind  string
	sess  uint64
	stage network.Stage
	err   error
	frame []byte
}

// recordingHandler 记录所有回调，并把收到的帧原样发回。
type recordingHandler struct {
	mu     sync.Mutex
	events []event
	ch     chan event
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{ch: make(chan event, 64)}
}

func (h *recordingHandler) record(e event) {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
	h.ch <- e
}

func (h *recordingHandler) OnActive(sess session.Session) {
	h.record(event{kind: "active", sess: sess.ID()})
}

func (h *recordingHandler) OnFrame(sess session.Session, frame framer.Frame) {
	h.record(event{kind: "frame", sess: sess.ID(), frame: frame.Raw})
	_ = sess.Send(frame.Raw)
}

func (h *recordingHandler) OnClosed(sess session.Session) {
	h.record(event{kind: "closed", sess: sess.ID()})
}

func (h *recordingHandler) OnError(sess session.Session, stage network.Stage, err error) {
	h.record(event{kind: "error", sess: sess.ID(), stage: stage, err: err})
}

type BootstrapSuite struct {
	suite.Suite

	handler   *recordingHandler
	bootstrap *Bootstrap
	cancel    context.CancelFunc
	served    chan error
}

func (s *BootstrapSuite) SetupTest() {
	s.handler = newRecordingHandler()
	s.bootstrap = NewBootstrap(Config{
		Address:       "127.0.0.1:0",
		WorkerThreads: 2,
		TCPNoDelay:    true,
	}, s.handler)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.served = make(chan error, 1)
	go func() { s.served <- s.bootstrap.Serve(ctx) }()

	select {
	case <-s.bootstrap.Bound():
	case err := <-s.served:
		s.FailNow("serve failed", err)
	}
}

func (s *BootstrapSuite) TearDownTest() {
	s.cancel()
	select {
	case err := <-s.served:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.Fail("serve did not return")
	}
}

func (s *BootstrapSuite) next() event {
	select {
	case e := <-s.handler.ch:
		return e
	case <-time.After(2 * time.Second):
		s.FailNow("timed out waiting for event")
		return event{}
	}
}

func (s *BootstrapSuite) dial() net.Conn {
	conn, err := net.Dial("tcp", s.bootstrap.Addr().String())
	s.Require().NoError(err)
	return conn
}

func (s *BootstrapSuite) TestEchoAndClose() {
	conn := s.dial()

	active := s.next()
	s.Equal("active", active.kind)

	cfg := framer.PangyaConfig(0)
	raw, err := framer.AppendFrame(nil, cfg, []byte{0x01}, []byte{0x00, 0x10, 0x20})
	s.Require().NoError(err)
	_, err = conn.Write(raw)
	s.Require().NoError(err)

	frame := s.next()
	s.Equal("frame", frame.kind)
	s.Equal(active.sess, frame.sess)
	s.Equal(raw, frame.frame)

	echo, err := framer.NewLengthFieldFramer(conn, cfg).ReadFrame()
	s.Require().NoError(err)
	s.Equal(raw, echo.Raw)
	s.Equal(1, s.bootstrap.Sessions().Count())

	s.NoError(conn.Close())
	closed := s.next()
	s.Equal("closed", closed.kind)
	s.Equal(active.sess, closed.sess)
	s.Eventually(func() bool { return s.bootstrap.Sessions().Count() == 0 }, time.Second, 10*time.Millisecond)
}

func (s *BootstrapSuite) TestOversizedFrameClosesConnection() {
	conn := s.dial()
	defer conn.Close()
	s.Equal("active", s.next().kind)

	_, err := conn.Write([]byte{0x00, 0xff, 0xff})
	s.Require().NoError(err)

	e := s.next()
	s.Equal("error", e.kind)
	s.Equal(network.StageDecode, e.stage)
	s.ErrorIs(e.err, merr.ErrFrameTooLarge)
	s.Equal("closed", s.next().kind)
}

func (s *BootstrapSuite) TestShutdownClosesLiveSessions() {
	conns := []net.Conn{s.dial(), s.dial(), s.dial()}
	for range conns {
		s.Equal("active", s.next().kind)
	}

	s.bootstrap.Shutdown()
	s.bootstrap.Shutdown()
	for range conns {
		s.Equal("closed", s.next().kind)
	}
	for _, c := range conns {
		_ = c.Close()
	}
}

func (s *BootstrapSuite) TestDistinctSessionIDs() {
	a, b := s.dial(), s.dial()
	defer a.Close()
	defer b.Close()
	first, second := s.next(), s.next()
	s.NotEqual(first.sess, second.sess)
	s.NotEmpty(s.bootstrap.Transport())
}

func (s *BootstrapSuite) TestBindInUse() {
	other := NewBootstrap(Config{Address: s.bootstrap.Addr().String()}, newRecordingHandler())
	err := other.Serve(context.Background())
	s.ErrorIs(err, merr.ErrBindFailed)
}

func TestBootstrap(t *testing.T) {
	suite.Run(t, new(BootstrapSuite))
}

func TestServeWithoutHandler(t *testing.T) {
	err := NewBootstrap(Config{Address: "127.0.0.1:0"}, nil).Serve(context.Background())
	assert.ErrorIs(t, err, merr.ErrParameterMissing)
}
