package server

import (
	"go.uber.org/zap"

	"github.com/lk2023060901/pangya-game-go/internal/network/session"
	"github.com/lk2023060901/pangya-game-go/internal/persistence"
	"github.com/lk2023060901/pangya-game-go/internal/player"
	"github.com/lk2023060901/pangya-game-go/internal/sessionclient"
	"github.com/lk2023060901/pangya-game-go/pkg/log"
	"github.com/lk2023060901/pangya-game-go/pkg/metrics"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

const (
	teardownStageRoom    = "room"
	teardownStageChannel = "channel"
)

// RegisterPlayer 为已认证的会话分配连接 ID、构造玩家并加入在线注册表，
// 然后在会话上挂载一次性的关闭回调，断线时执行下线清理。
//
// 关闭回调的挂载与会话的关闭状态是原子的：如果会话在注册过程中已经关闭，
// 清理会立即执行，注册表中不会残留该玩家，此时返回 merr.ErrSessionClosed。
func (s *GameServer) RegisterPlayer(
	sess session.Session,
	info sessionclient.SessionInfo,
	wallet *player.Wallet,
	characters *player.CharacterRoster,
	caddies *player.CaddieRoster,
	inventory *player.Inventory,
	cards *player.CardInventory,
	equipment *player.Equipment,
	statistics *player.Statistics,
	achievements *player.Achievements,
) (*player.Player, error) {
	connID, err := s.connIDs.Next()
	if err != nil {
		s.logger.Error("failed to allocate connection id", log.FieldUID(uint32(info.UID)), zap.Error(err))
		return nil, err
	}

	p := player.New(sess, connID, player.Profile{
		UID:          info.UID,
		Username:     info.Username,
		Nickname:     info.Nickname,
		Wallet:       wallet,
		Characters:   characters,
		Caddies:      caddies,
		Inventory:    inventory,
		Cards:        cards,
		Equipment:    equipment,
		Statistics:   statistics,
		Achievements: achievements,
	})
	if err := s.players.Add(p); err != nil {
		return nil, err
	}
	metrics.OnlinePlayers.Set(float64(s.players.Count()))

	if !sess.OnClose(func() { s.onPlayerDisconnect(p) }) {
		p.Logger().Info("session closed while registering player")
		return nil, merr.WrapErrSessionClosed(sess.ID(), "register player")
	}

	p.Logger().Info("player registered",
		zap.String("username", p.Username()),
		zap.Int("onlinePlayers", s.players.Count()))
	return p, nil
}

// registerState 用登录时加载的数据注册玩家。
func (s *GameServer) registerState(sess session.Session, info sessionclient.SessionInfo, st *persistence.State) (*player.Player, error) {
	return s.RegisterPlayer(sess, info,
		st.Wallet,
		st.Characters,
		st.Caddies,
		st.Inventory,
		st.Cards,
		st.Equipment,
		st.Statistics,
		st.Achievements,
	)
}

// onPlayerDisconnect 执行玩家的下线清理，只会生效一次：
// 先退出房间，再退出频道，最后从注册表移除。
// 前两步的错误和 panic 只记录并计数，不会跳过从注册表移除。
func (s *GameServer) onPlayerDisconnect(p *player.Player) {
	if !p.MarkTornDown() {
		return
	}

	if room := p.CurrentRoom(); room != nil {
		s.teardownStep(p, teardownStageRoom, func() error {
			return room.RemovePlayer(p)
		})
		p.ClearCurrentRoom(room)
	}
	if ch := p.CurrentChannel(); ch != nil {
		s.teardownStep(p, teardownStageChannel, func() error {
			return ch.RemovePlayer(p)
		})
		p.ClearCurrentChannel(ch)
	}

	s.players.Remove(p)
	metrics.OnlinePlayers.Set(float64(s.players.Count()))
	p.Logger().Info("player disconnected", zap.Int("onlinePlayers", s.players.Count()))
}

func (s *GameServer) teardownStep(p *player.Player, stage string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.TeardownErrors.WithLabelValues(stage).Inc()
			p.Logger().Error("player teardown step panicked",
				zap.String("stage", stage),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()
	if err := fn(); err != nil {
		metrics.TeardownErrors.WithLabelValues(stage).Inc()
		p.Logger().Warn("player teardown step failed", zap.String("stage", stage), zap.Error(err))
	}
}
