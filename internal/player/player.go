package player

import (
	"net"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/pangya-game-go/pkg/log"
)

// Conn 是玩家持有的网络会话句柄。
type Conn interface {
	// ID 返回网络层分配的会话 ID。
	ID() uint64
	Send(data []byte) error
	Close() error
	RemoteAddr() net.Addr
}

// Container 是可以容纳玩家的游戏容器（房间、频道）。
// 玩家只持有容器的非拥有引用，断线时调用 RemovePlayer 将自己移出。
type Container interface {
	RemovePlayer(p *Player) error
}

type containerRef struct {
	c Container
}

// Profile 为构造 Player 所需的账号信息与已加载的子状态。
type Profile struct {
	UID          UID
	Username     string
	Nickname     string
	Wallet       *Wallet
	Characters   *CharacterRoster
	Caddies      *CaddieRoster
	Inventory    *Inventory
	Cards        *CardInventory
	Equipment    *Equipment
	Statistics   *Statistics
	Achievements *Achievements
}

// Player 为已注册的在线玩家。
// 身份字段在构造后只读；子状态只应在玩家所属的事件循环上修改。
type Player struct {
	conn     Conn
	uid      UID
	connID   ConnectionID
	username string
	nickname string

	Wallet       *Wallet
	Characters   *CharacterRoster
	Caddies      *CaddieRoster
	Inventory    *Inventory
	Cards        *CardInventory
	Equipment    *Equipment
	Statistics   *Statistics
	Achievements *Achievements

	currentRoom    atomic.Pointer[containerRef]
	currentChannel atomic.Pointer[containerRef]
	tornDown       atomic.Bool

	logger *log.MLogger
}

// New 构造一个玩家，nil 子状态会被替换为缺省值。
func New(conn Conn, connID ConnectionID, profile Profile) *Player {
	p := &Player{
		conn:         conn,
		uid:          profile.UID,
		connID:       connID,
		username:     profile.Username,
		nickname:     profile.Nickname,
		Wallet:       profile.Wallet,
		Characters:   profile.Characters,
		Caddies:      profile.Caddies,
		Inventory:    profile.Inventory,
		Cards:        profile.Cards,
		Equipment:    profile.Equipment,
		Statistics:   profile.Statistics,
		Achievements: profile.Achievements,
	}
	if p.Wallet == nil {
		p.Wallet = NewWallet()
	}
	if p.Characters == nil {
		p.Characters = &CharacterRoster{}
	}
	if p.Caddies == nil {
		p.Caddies = &CaddieRoster{}
	}
	if p.Inventory == nil {
		p.Inventory = &Inventory{}
	}
	if p.Cards == nil {
		p.Cards = &CardInventory{}
	}
	if p.Equipment == nil {
		p.Equipment = &Equipment{}
	}
	if p.Statistics == nil {
		p.Statistics = &Statistics{}
	}
	if p.Achievements == nil {
		p.Achievements = &Achievements{}
	}
	p.logger = log.With(
		log.FieldConnectionID(uint32(connID)),
		log.FieldUID(uint32(profile.UID)),
		zap.String("nickname", profile.Nickname),
	)
	return p
}

func (p *Player) Conn() Conn {
	return p.conn
}

func (p *Player) UID() UID {
	return p.uid
}

func (p *Player) ConnectionID() ConnectionID {
	return p.connID
}

func (p *Player) Username() string {
	return p.username
}

func (p *Player) Nickname() string {
	return p.nickname
}

// Logger 返回携带玩家身份字段的 Logger。
func (p *Player) Logger() *log.MLogger {
	return p.logger
}

// Send 通过玩家的会话发送一帧数据。
func (p *Player) Send(data []byte) error {
	return p.conn.Send(data)
}

// EquippedCharacter 返回当前装备的角色。
func (p *Player) EquippedCharacter() (Character, bool) {
	return p.Characters.FindByUID(p.Equipment.CharacterUID)
}

// ActiveCaddie 返回当前装备的球童。
func (p *Player) ActiveCaddie() (Caddie, bool) {
	return p.Caddies.FindByUID(p.Equipment.CaddieUID)
}

func (p *Player) CurrentRoom() Container {
	return load(&p.currentRoom)
}

func (p *Player) SetCurrentRoom(c Container) {
	store(&p.currentRoom, c)
}

// ClearCurrentRoom 仅当当前房间为 c 时清空引用。
func (p *Player) ClearCurrentRoom(c Container) bool {
	return clearIf(&p.currentRoom, c)
}

func (p *Player) CurrentChannel() Container {
	return load(&p.currentChannel)
}

func (p *Player) SetCurrentChannel(c Container) {
	store(&p.currentChannel, c)
}

// ClearCurrentChannel 仅当当前频道为 c 时清空引用。
func (p *Player) ClearCurrentChannel(c Container) bool {
	return clearIf(&p.currentChannel, c)
}

// MarkTornDown 将玩家标记为已下线，只有第一次调用返回 true。
func (p *Player) MarkTornDown() bool {
	return p.tornDown.CompareAndSwap(false, true)
}

func (p *Player) TornDown() bool {
	return p.tornDown.Load()
}

func load(ptr *atomic.Pointer[containerRef]) Container {
	ref := ptr.Load()
	if ref == nil {
		return nil
	}
	return ref.c
}

func store(ptr *atomic.Pointer[containerRef], c Container) {
	if c == nil {
		ptr.Store(nil)
		return
	}
	ptr.Store(&containerRef{c: c})
}

func clearIf(ptr *atomic.Pointer[containerRef], c Container) bool {
	for {
		ref := ptr.Load()
		if ref == nil || ref.c != c {
			return false
		}
		if ptr.CompareAndSwap(ref, nil) {
			return true
		}
	}
}
