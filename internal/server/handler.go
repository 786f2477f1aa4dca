package server

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	network "github.com/lk2023060901/pangya-game-go/internal/network"
	"github.com/lk2023060901/pangya-game-go/internal/network/acceptor"
	"github.com/lk2023060901/pangya-game-go/internal/network/framer"
	"github.com/lk2023060901/pangya-game-go/internal/network/session"
	"github.com/lk2023060901/pangya-game-go/internal/persistence"
	"github.com/lk2023060901/pangya-game-go/internal/player"
	"github.com/lk2023060901/pangya-game-go/internal/sessionclient"
	"github.com/lk2023060901/pangya-game-go/pkg/log"
	"github.com/lk2023060901/pangya-game-go/pkg/metrics"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

const (
	loginResultSuccess = "success"
	loginResultFailure = "failure"
)

// connState 为单个连接的登录状态，只在连接所属的事件循环上读写。
type connState struct {
	loginPending bool
	player       *player.Player
}

type loginResult struct {
	info  sessionclient.SessionInfo
	state *persistence.State
}

// connHandler 驱动连接的登录流程：
// 第一帧解析出会话密钥，认证与加载数据在阻塞任务池中进行，完成后回到事件循环注册玩家；
// 登录完成前到达的帧被丢弃，之后的帧交给 Protocol.Dispatch。
type connHandler struct {
	server *GameServer
	logger *log.MLogger
}

var _ acceptor.Handler = (*connHandler)(nil)

func newConnHandler(s *GameServer) *connHandler {
	return &connHandler{
		server: s,
		logger: log.With(log.FieldComponent("conn-handler")).WithRateGroup("conn-handler", 1, 60),
	}
}

func stateOf(sess session.Session) *connState {
	st, _ := sess.Attachment().(*connState)
	return st
}

func (h *connHandler) OnActive(sess session.Session) {
	h.logger.Info("connection established",
		log.FieldSessionID(sess.ID()),
		log.FieldRemoteAddr(sess.RemoteAddr().String()))

	sess.SetAttachment(&connState{})
	if err := h.server.protocol.Greet(sess); err != nil {
		h.logger.Warn("failed to greet connection", log.FieldSessionID(sess.ID()), zap.Error(err))
		_ = sess.Close()
	}
}

func (h *connHandler) OnFrame(sess session.Session, frame framer.Frame) {
	st := stateOf(sess)
	if st == nil {
		return
	}

	switch {
	case st.player != nil:
		if err := h.server.protocol.Dispatch(st.player, frame); err != nil {
			st.player.Logger().Warn("failed to dispatch frame", zap.Error(err))
			_ = sess.Close()
		}
	case st.loginPending:
		h.logger.RatedWarn(1, "frame dropped while login is pending",
			log.FieldSessionID(sess.ID()),
			zap.Int("length", len(frame.Raw)))
	default:
		h.beginLogin(sess, st, frame)
	}
}

func (h *connHandler) beginLogin(sess session.Session, st *connState, frame framer.Frame) {
	key, err := h.server.protocol.DecodeLogin(frame)
	if err != nil {
		h.logger.Warn("failed to decode login frame", log.FieldSessionID(sess.ID()), zap.Error(err))
		_ = sess.Close()
		return
	}

	st.loginPending = true
	start := time.Now()
	ctx, span := log.StartSpan(log.WithSessionID(sess.Context(), sess.ID()), "gameserver", "login")
	future := SubmitTask(h.server, func() (loginResult, error) {
		return h.server.login(ctx, key)
	})
	completeOn(sess, future, func(res loginResult, err error) {
		err = h.completeLogin(sess, st, start, res, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "login failed")
		}
		span.End()
	})
}

func (h *connHandler) completeLogin(sess session.Session, st *connState, start time.Time, res loginResult, err error) error {
	st.loginPending = false
	if err == nil {
		var p *player.Player
		p, err = h.server.registerState(sess, res.info, res.state)
		st.player = p
	}

	latency := float64(time.Since(start).Milliseconds())
	if err != nil {
		metrics.LoginLatency.WithLabelValues(loginResultFailure).Observe(latency)
		if merr.IsCanceledOrTimeout(err) || errors.Is(err, merr.ErrSessionClosed) {
			h.logger.Debug("connection closed during login", log.FieldSessionID(sess.ID()), zap.Error(err))
		} else {
			h.logger.Warn("login failed",
				log.FieldSessionID(sess.ID()),
				zap.Int32("code", merr.Code(err)),
				zap.Stringer("errorType", merr.GetErrorType(err)),
				zap.Error(err))
		}
		_ = sess.Close()
		return err
	}
	metrics.LoginLatency.WithLabelValues(loginResultSuccess).Observe(latency)
	return nil
}

func (h *connHandler) OnClosed(sess session.Session) {
	fields := []zap.Field{log.FieldSessionID(sess.ID())}
	if st := stateOf(sess); st != nil && st.player != nil {
		fields = append(fields, log.FieldConnectionID(uint32(st.player.ConnectionID())))
	}
	h.logger.Debug("connection closed", fields...)
}

func (h *connHandler) OnError(sess session.Session, stage network.Stage, err error) {
	h.logger.Warn("connection error",
		log.FieldSessionID(sess.ID()),
		zap.Stringer("stage", stage),
		zap.Error(err))
}

// login 认证会话密钥并加载玩家数据，在阻塞任务池中执行。
func (s *GameServer) login(ctx context.Context, key string) (loginResult, error) {
	info, err := s.auth.Authenticate(ctx, key)
	if err != nil {
		return loginResult{}, err
	}
	st, err := s.loadState(ctx, info)
	if err != nil {
		return loginResult{}, err
	}
	return loginResult{info: info, state: st}, nil
}

func (s *GameServer) loadState(ctx context.Context, info sessionclient.SessionInfo) (*persistence.State, error) {
	if s.pctx == nil {
		return &persistence.State{}, nil
	}
	return persistence.Load(ctx, s.pctx, info.UID)
}
