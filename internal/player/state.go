package player

import (
	"github.com/samber/lo"

	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

// DefaultPangBalance 为新账号的初始 pang 余额。
const DefaultPangBalance int64 = 10000

// 以下子状态由持久化层加载，注册完成后只在玩家所属的事件循环上修改。

type Wallet struct {
	Pang    int64 `json:"pang"`
	Cookies int64 `json:"cookies"`
}

func NewWallet() *Wallet {
	return &Wallet{Pang: DefaultPangBalance}
}

// UpdatePang 按 delta 调整 pang 余额并返回调整后的值。
func (w *Wallet) UpdatePang(delta int64) int64 {
	w.Pang += delta
	return w.Pang
}

func (w *Wallet) UpdateCookies(delta int64) int64 {
	w.Cookies += delta
	return w.Cookies
}

type Character struct {
	UID       uint32   `json:"uid"`
	TypeID    uint32   `json:"typeId"`
	HairColor uint8    `json:"hairColor"`
	PartIDs   []uint32 `json:"partIds,omitempty"`
}

type CharacterRoster struct {
	Characters []Character `json:"characters"`
}

func (r *CharacterRoster) FindByUID(uid uint32) (Character, bool) {
	return lo.Find(r.Characters, func(c Character) bool { return c.UID == uid })
}

type Caddie struct {
	UID    uint32 `json:"uid"`
	TypeID uint32 `json:"typeId"`
	Level  uint8  `json:"level"`
}

type CaddieRoster struct {
	Caddies []Caddie `json:"caddies"`
}

func (r *CaddieRoster) FindByUID(uid uint32) (Caddie, bool) {
	return lo.Find(r.Caddies, func(c Caddie) bool { return c.UID == uid })
}

type Item struct {
	UID      uint32 `json:"uid"`
	TypeID   uint32 `json:"typeId"`
	Quantity uint32 `json:"quantity"`
}

type Inventory struct {
	Items []Item `json:"items"`
}

func (inv *Inventory) FindByUID(uid uint32) (Item, bool) {
	return lo.Find(inv.Items, func(it Item) bool { return it.UID == uid })
}

type Card struct {
	UID      uint32 `json:"uid"`
	TypeID   uint32 `json:"typeId"`
	Quantity uint32 `json:"quantity"`
}

type CardInventory struct {
	Cards []Card `json:"cards"`
}

// Equipment 记录当前装备的角色与球童，0 表示未装备。
type Equipment struct {
	CharacterUID uint32   `json:"characterUid"`
	CaddieUID    uint32   `json:"caddieUid"`
	ItemUIDs     []uint32 `json:"itemUids,omitempty"`
}

type Statistics struct {
	Rank       int   `json:"rank"`
	Experience int64 `json:"experience"`
	Games      int64 `json:"games"`
	HoleInOnes int64 `json:"holeInOnes"`
}

// AddExperience 增加经验值，amount 不能为负数。
func (s *Statistics) AddExperience(amount int64) error {
	if amount < 0 {
		return merr.WrapErrParameterInvalidMsg("cannot add negative experience %d", amount)
	}
	s.Experience += amount
	return nil
}

type Achievements struct {
	Completed []uint32 `json:"completed"`
}
