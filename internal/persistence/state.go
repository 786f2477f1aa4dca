package persistence

import (
	"context"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/pangya-game-go/internal/player"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

// State 为一个账号登录时加载的全部数据。
type State struct {
	Profile      *Profile
	Wallet       *player.Wallet
	Characters   *player.CharacterRoster
	Caddies      *player.CaddieRoster
	Inventory    *player.Inventory
	Cards        *player.CardInventory
	Equipment    *player.Equipment
	Statistics   *player.Statistics
	Achievements *player.Achievements
}

// Load 并行加载账号的全部数据。资料不存在时返回 merr.ErrPlayerNotFound。
func Load(ctx context.Context, pctx *Context, uid player.UID) (*State, error) {
	st := &State{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		profile, err := pctx.Profiles.Load(gctx, uid)
		if errors.Is(err, merr.ErrIoKeyNotFound) {
			return merr.WrapErrPlayerNotFound(uid, "load profile")
		}
		st.Profile = profile
		return err
	})
	goLoad(gctx, g, pctx.Wallets, uid, &st.Wallet)
	goLoad(gctx, g, pctx.Characters, uid, &st.Characters)
	goLoad(gctx, g, pctx.Caddies, uid, &st.Caddies)
	goLoad(gctx, g, pctx.Inventories, uid, &st.Inventory)
	goLoad(gctx, g, pctx.Cards, uid, &st.Cards)
	goLoad(gctx, g, pctx.Equipment, uid, &st.Equipment)
	goLoad(gctx, g, pctx.Statistics, uid, &st.Statistics)
	goLoad(gctx, g, pctx.Achievements, uid, &st.Achievements)

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return st, nil
}

func goLoad[T any](ctx context.Context, g *errgroup.Group, repo Repository[T], uid player.UID, dst **T) {
	g.Go(func() error {
		v, err := repo.Load(ctx, uid)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	})
}

// Save 并行写入 State 中所有非 nil 的数据。
func Save(ctx context.Context, pctx *Context, uid player.UID, st *State) error {
	g, gctx := errgroup.WithContext(ctx)
	goSave(gctx, g, pctx.Profiles, uid, st.Profile)
	goSave(gctx, g, pctx.Wallets, uid, st.Wallet)
	goSave(gctx, g, pctx.Characters, uid, st.Characters)
	goSave(gctx, g, pctx.Caddies, uid, st.Caddies)
	goSave(gctx, g, pctx.Inventories, uid, st.Inventory)
	goSave(gctx, g, pctx.Cards, uid, st.Cards)
	goSave(gctx, g, pctx.Equipment, uid, st.Equipment)
	goSave(gctx, g, pctx.Statistics, uid, st.Statistics)
	goSave(gctx, g, pctx.Achievements, uid, st.Achievements)
	return g.Wait()
}

func goSave[T any](ctx context.Context, g *errgroup.Group, repo Repository[T], uid player.UID, v *T) {
	if v == nil {
		return
	}
	g.Go(func() error {
		return repo.Save(ctx, uid, v)
	})
}

// PlayerProfile 把加载结果转换为构造 Player 所需的 Profile。
func (st *State) PlayerProfile() player.Profile {
	var p player.Profile
	if st.Profile != nil {
		p.UID = st.Profile.UID
		p.Username = st.Profile.Username
		p.Nickname = st.Profile.Nickname
	}
	p.Wallet = st.Wallet
	p.Characters = st.Characters
	p.Caddies = st.Caddies
	p.Inventory = st.Inventory
	p.Cards = st.Cards
	p.Equipment = st.Equipment
	p.Statistics = st.Statistics
	p.Achievements = st.Achievements
	return p
}
