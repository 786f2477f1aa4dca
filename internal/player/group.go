package player

import (
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/pangya-game-go/pkg/log"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

// Group 是在线玩家注册表，以连接 ID 为键。
// 所有方法都可以并发调用，Count 不加锁。
type Group struct {
	players sync.Map // map[ConnectionID]*Player
	count   atomic.Int64
}

func NewGroup() *Group {
	return &Group{}
}

// Add 注册玩家。连接 ID 已存在时返回 merr.ErrDuplicateConnectionID，注册表保持不变。
func (g *Group) Add(p *Player) error {
	if _, loaded := g.players.LoadOrStore(p.ConnectionID(), p); loaded {
		err := merr.WrapErrDuplicateConnectionID(p.ConnectionID())
		log.Error("player registry rejected duplicate connection id",
			log.FieldConnectionID(uint32(p.ConnectionID())),
			log.FieldUID(uint32(p.UID())),
			zap.Error(err))
		return err
	}
	g.count.Inc()
	return nil
}

// Remove 注销玩家，只有当注册的是同一个玩家实例时才会删除。可以重复调用。
func (g *Group) Remove(p *Player) bool {
	if g.players.CompareAndDelete(p.ConnectionID(), p) {
		g.count.Dec()
		return true
	}
	return false
}

// Count 返回在线玩家数。
func (g *Group) Count() int {
	return int(g.count.Load())
}

// Get 按连接 ID 查找玩家。
func (g *Group) Get(id ConnectionID) (*Player, bool) {
	v, ok := g.players.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Player), true
}

// FindByUID 按账号 ID 查找玩家，需要遍历注册表。
func (g *Group) FindByUID(uid UID) (*Player, bool) {
	var found *Player
	g.Range(func(p *Player) bool {
		if p.UID() == uid {
			found = p
			return false
		}
		return true
	})
	return found, found != nil
}

// Range 遍历在线玩家，fn 返回 false 时停止。
// 遍历期间可以并发增删，每个玩家最多被访问一次；遍历开始后新增的玩家可能不会被访问到。
func (g *Group) Range(fn func(p *Player) bool) {
	g.players.Range(func(_, value any) bool {
		return fn(value.(*Player))
	})
}

// Snapshot 返回当前在线玩家的快照。
func (g *Group) Snapshot() []*Player {
	players := make([]*Player, 0, g.Count())
	g.Range(func(p *Player) bool {
		players = append(players, p)
		return true
	})
	return players
}
