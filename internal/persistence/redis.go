package persistence

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/lk2023060901/pangya-game-go/internal/json"
	"github.com/lk2023060901/pangya-game-go/internal/player"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

// KeyPrefix 为所有玩家数据键的前缀，完整格式为 pangya:<entity>:<uid>。
const KeyPrefix = "pangya"

// 实体名。
const (
	EntityProfile      = "profile"
	EntityWallet       = "wallet"
	EntityCharacters   = "characters"
	EntityCaddies      = "caddies"
	EntityInventory    = "inventory"
	EntityCards        = "cards"
	EntityEquipment    = "equipment"
	EntityStatistics   = "statistics"
	EntityAchievements = "achievements"
)

// Key 返回实体在 Redis 中的键。
func Key(entity string, uid player.UID) string {
	return fmt.Sprintf("%s:%s:%d", KeyPrefix, entity, uid)
}

// RedisRepository 以 JSON 字符串形式在 Redis 中保存一类实体。
type RedisRepository[T any] struct {
	client redis.UniversalClient
	entity string
	// missing 为记录不存在时的缺省值构造函数，为 nil 表示记录必须存在。
	missing func() *T
}

var _ Repository[Profile] = (*RedisRepository[Profile])(nil)

// NewRedisRepository 创建一个 Redis 仓库。
func NewRedisRepository[T any](client redis.UniversalClient, entity string, missing func() *T) *RedisRepository[T] {
	return &RedisRepository[T]{client: client, entity: entity, missing: missing}
}

func (r *RedisRepository[T]) Load(ctx context.Context, uid player.UID) (*T, error) {
	key := Key(r.entity, uid)
	raw, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		if r.missing == nil {
			return nil, merr.WrapErrIoKeyNotFound(key)
		}
		return r.missing(), nil
	}
	if err != nil {
		return nil, merr.WrapErrIoFailed(key, err)
	}

	v := new(T)
	if err := json.UnmarshalFromString(raw, v); err != nil {
		return nil, merr.WrapErrIoFailed(key, err)
	}
	return v, nil
}

func (r *RedisRepository[T]) Save(ctx context.Context, uid player.UID, v *T) error {
	key := Key(r.entity, uid)
	raw, err := json.MarshalToString(v)
	if err != nil {
		return merr.WrapErrIoFailed(key, err)
	}
	return merr.WrapErrIoFailed(key, r.client.Set(ctx, key, raw, 0).Err())
}

func zero[T any]() func() *T {
	return func() *T { return new(T) }
}

// NewRedisContext 创建基于同一个 Redis 客户端的全部仓库。
// 资料必须存在；钱包缺省为初始余额，其余缺省为空。
func NewRedisContext(client redis.UniversalClient) *Context {
	return &Context{
		Profiles:     NewRedisRepository[Profile](client, EntityProfile, nil),
		Wallets:      NewRedisRepository(client, EntityWallet, player.NewWallet),
		Characters:   NewRedisRepository(client, EntityCharacters, zero[player.CharacterRoster]()),
		Caddies:      NewRedisRepository(client, EntityCaddies, zero[player.CaddieRoster]()),
		Inventories:  NewRedisRepository(client, EntityInventory, zero[player.Inventory]()),
		Cards:        NewRedisRepository(client, EntityCards, zero[player.CardInventory]()),
		Equipment:    NewRedisRepository(client, EntityEquipment, zero[player.Equipment]()),
		Statistics:   NewRedisRepository(client, EntityStatistics, zero[player.Statistics]()),
		Achievements: NewRedisRepository(client, EntityAchievements, zero[player.Achievements]()),
	}
}
