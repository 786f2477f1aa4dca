package world

import (
	"sync"

	"github.com/samber/lo"

	"github.com/lk2023060901/pangya-game-go/internal/player"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

// Room 是频道内的游戏房间，最后一名玩家离开后自动从频道移除。
type Room struct {
	id       uint32
	name     string
	capacity int
	channel  *Channel

	mu      sync.Mutex
	members map[player.ConnectionID]*player.Player
	// order 记录加入顺序，房主离开时由下一位接任。
	order []player.ConnectionID
}

var _ player.Container = (*Room)(nil)

func newRoom(id uint32, name string, capacity int, channel *Channel) *Room {
	return &Room{
		id:       id,
		name:     name,
		capacity: capacity,
		channel:  channel,
		members:  make(map[player.ConnectionID]*player.Player),
	}
}

func (r *Room) ID() uint32 {
	return r.id
}

func (r *Room) Name() string {
	return r.name
}

// Channel 返回房间所属频道。
func (r *Room) Channel() *Channel {
	return r.channel
}

func (r *Room) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Owner 返回房主，房间为空时返回 nil。
func (r *Room) Owner() *player.Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return nil
	}
	return r.members[r.order[0]]
}

// AddPlayer 将玩家加入房间并设置玩家的当前房间，玩家仍在其他房间时先退出原房间。
func (r *Room) AddPlayer(p *player.Player) error {
	if prev := p.CurrentRoom(); prev != nil && prev != player.Container(r) {
		if err := prev.RemovePlayer(p); err != nil {
			return err
		}
	}

	r.mu.Lock()
	if _, ok := r.members[p.ConnectionID()]; ok {
		r.mu.Unlock()
		return nil
	}
	if r.capacity > 0 && len(r.members) >= r.capacity {
		r.mu.Unlock()
		return merr.WrapErrRoomFull(r.id, r.capacity)
	}
	r.members[p.ConnectionID()] = p
	r.order = append(r.order, p.ConnectionID())
	r.mu.Unlock()

	p.SetCurrentRoom(r)
	return nil
}

// RemovePlayer 将玩家移出房间，玩家不在房间内时什么也不做。
func (r *Room) RemovePlayer(p *player.Player) error {
	r.mu.Lock()
	member, ok := r.members[p.ConnectionID()]
	if !ok || member != p {
		r.mu.Unlock()
		return nil
	}
	delete(r.members, p.ConnectionID())
	r.order = lo.Without(r.order, p.ConnectionID())
	empty := len(r.members) == 0
	r.mu.Unlock()

	p.ClearCurrentRoom(r)
	if empty && r.channel != nil {
		r.channel.removeRoom(r)
	}
	return nil
}

// Players 按加入顺序返回房间内玩家。
func (r *Room) Players() []*player.Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Map(r.order, func(id player.ConnectionID, _ int) *player.Player {
		return r.members[id]
	})
}
