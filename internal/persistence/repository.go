// Package persistence 负责玩家状态的读写。
package persistence

import (
	"context"

	"github.com/lk2023060901/pangya-game-go/internal/player"
)

// Repository 是单类玩家数据的存取接口，实现需要可以并发调用。
//
// Load 在记录不存在时，对有缺省值的实体返回缺省值，否则返回 merr.ErrIoKeyNotFound。
type Repository[T any] interface {
	Load(ctx context.Context, uid player.UID) (*T, error)
	Save(ctx context.Context, uid player.UID, v *T) error
}

// Profile 为账号的基础资料。
type Profile struct {
	UID      player.UID `json:"uid"`
	Username string     `json:"username"`
	Nickname string     `json:"nickname"`
}

// Context 聚合登录时需要加载的全部仓库。
type Context struct {
	Profiles     Repository[Profile]
	Wallets      Repository[player.Wallet]
	Characters   Repository[player.CharacterRoster]
	Caddies      Repository[player.CaddieRoster]
	Inventories  Repository[player.Inventory]
	Cards        Repository[player.CardInventory]
	Equipment    Repository[player.Equipment]
	Statistics   Repository[player.Statistics]
	Achievements Repository[player.Achievements]
}
