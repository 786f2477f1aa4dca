// Package world 提供玩家所在的运行时容器：大厅频道与房间。
package world

import (
	"sync"

	"github.com/samber/lo"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/pangya-game-go/internal/config"
	"github.com/lk2023060901/pangya-game-go/internal/player"
	"github.com/lk2023060901/pangya-game-go/pkg/log"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

// Channel 是一个大厅频道的运行时状态，容量取自 ServerChannel.MaxPlayers，0 表示不限。
type Channel struct {
	info config.ServerChannel

	mu      sync.RWMutex
	members map[player.ConnectionID]*player.Player
	byUID   map[player.UID]player.ConnectionID
	rooms   map[uint32]*Room

	nextRoomID atomic.Uint32
	logger     *log.MLogger
}

var _ player.Container = (*Channel)(nil)

// NewChannel 根据静态配置创建频道。
func NewChannel(info config.ServerChannel) *Channel {
	return &Channel{
		info:    info,
		members: make(map[player.ConnectionID]*player.Player),
		byUID:   make(map[player.UID]player.ConnectionID),
		rooms:   make(map[uint32]*Room),
		logger:  log.With(log.FieldComponent("channel"), zap.Int("channelID", info.ID)),
	}
}

// NewChannels 按配置顺序创建全部频道。
func NewChannels(infos []config.ServerChannel) []*Channel {
	return lo.Map(infos, func(info config.ServerChannel, _ int) *Channel {
		return NewChannel(info)
	})
}

func (c *Channel) ID() int {
	return c.info.ID
}

func (c *Channel) Name() string {
	return c.info.Name
}

// Info 返回频道的静态配置。
func (c *Channel) Info() config.ServerChannel {
	return c.info
}

// Count 返回频道内玩家数。
func (c *Channel) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

func (c *Channel) full() bool {
	return c.info.MaxPlayers > 0 && len(c.members) >= c.info.MaxPlayers
}

// Full 返回频道是否已满。
func (c *Channel) Full() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.full()
}

// AddPlayer 将玩家加入频道并设置玩家的当前频道。
// 玩家仍在其他频道时，先从原频道移出。同一账号已在频道内时返回 merr.ErrPlayerAlreadyRegistered。
func (c *Channel) AddPlayer(p *player.Player) error {
	if prev := p.CurrentChannel(); prev != nil && prev != player.Container(c) {
		if err := prev.RemovePlayer(p); err != nil {
			return err
		}
	}

	c.mu.Lock()
	if _, ok := c.members[p.ConnectionID()]; ok {
		c.mu.Unlock()
		return nil
	}
	if _, ok := c.byUID[p.UID()]; ok {
		c.mu.Unlock()
		return merr.WrapErrPlayerAlreadyRegistered(p.UID(), "channel")
	}
	if c.full() {
		c.mu.Unlock()
		return merr.WrapErrChannelFull(c.info.ID, c.info.MaxPlayers)
	}
	c.members[p.ConnectionID()] = p
	c.byUID[p.UID()] = p.ConnectionID()
	c.mu.Unlock()

	p.SetCurrentChannel(c)
	c.logger.Debug("player entered channel", log.FieldConnectionID(uint32(p.ConnectionID())))
	return nil
}

// RemovePlayer 将玩家移出频道，玩家不在频道内时什么也不做。
// 玩家所在的本频道房间也会一并退出。
func (c *Channel) RemovePlayer(p *player.Player) error {
	if room, ok := p.CurrentRoom().(*Room); ok && room.channel == c {
		if err := room.RemovePlayer(p); err != nil {
			return err
		}
	}

	c.mu.Lock()
	member, ok := c.members[p.ConnectionID()]
	if !ok || member != p {
		c.mu.Unlock()
		return nil
	}
	delete(c.members, p.ConnectionID())
	delete(c.byUID, p.UID())
	c.mu.Unlock()

	p.ClearCurrentChannel(c)
	c.logger.Debug("player left channel", log.FieldConnectionID(uint32(p.ConnectionID())))
	return nil
}

// Contains 返回账号是否在频道内。
func (c *Channel) Contains(uid player.UID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byUID[uid]
	return ok
}

// FindByUID 按账号查找频道内的玩家。
func (c *Channel) FindByUID(uid player.UID) (*player.Player, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	connID, ok := c.byUID[uid]
	if !ok {
		return nil, false
	}
	p, ok := c.members[connID]
	return p, ok
}

// Players 返回频道内玩家的快照。
func (c *Channel) Players() []*player.Player {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.Values(c.members)
}

// Broadcast 向频道内所有玩家发送数据，返回发送失败的玩家数。
func (c *Channel) Broadcast(data []byte) int {
	failed := 0
	for _, p := range c.Players() {
		if err := p.Send(data); err != nil {
			failed++
		}
	}
	return failed
}

// CreateRoom 在频道内创建房间，capacity <= 0 表示不限人数。
func (c *Channel) CreateRoom(name string, capacity int) *Room {
	room := newRoom(c.nextRoomID.Inc(), name, capacity, c)
	c.mu.Lock()
	c.rooms[room.id] = room
	c.mu.Unlock()
	return room
}

// Room 按 ID 查找房间。
func (c *Channel) Room(id uint32) (*Room, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	room, ok := c.rooms[id]
	return room, ok
}

// Rooms 返回频道内房间的快照。
func (c *Channel) Rooms() []*Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.Values(c.rooms)
}

func (c *Channel) removeRoom(room *Room) {
	c.mu.Lock()
	if c.rooms[room.id] == room {
		delete(c.rooms, room.id)
	}
	c.mu.Unlock()
}
