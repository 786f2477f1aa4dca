package persistence

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/pangya-game-go/internal/player"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

type PersistenceSuite struct {
	suite.Suite

	mr     *miniredis.Miniredis
	client *redis.Client
	pctx   *Context
}

func (s *PersistenceSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.pctx = NewRedisContext(s.client)
}

func (s *PersistenceSuite) TearDownTest() {
	_ = s.client.Close()
}

func (s *PersistenceSuite) TestKey() {
	s.Equal("pangya:wallet:42", Key(EntityWallet, 42))
}

func (s *PersistenceSuite) TestLoadMissingProfile() {
	_, err := Load(context.Background(), s.pctx, 1)
	s.ErrorIs(err, merr.ErrPlayerNotFound)
}

func (s *PersistenceSuite) TestLoadDefaults() {
	ctx := context.Background()
	s.Require().NoError(s.pctx.Profiles.Save(ctx, 7, &Profile{UID: 7, Username: "alice", Nickname: "Alice"}))

	st, err := Load(ctx, s.pctx, 7)
	s.Require().NoError(err)
	s.Equal("alice", st.Profile.Username)
	s.Equal(player.DefaultPangBalance, st.Wallet.Pang)
	s.Empty(st.Characters.Characters)
	s.NotNil(st.Achievements)

	profile := st.PlayerProfile()
	s.Equal(player.UID(7), profile.UID)
	s.Equal("Alice", profile.Nickname)
}

func (s *PersistenceSuite) TestSaveAndLoad() {
	ctx := context.Background()
	in := &State{
		Profile:    &Profile{UID: 9, Username: "bob", Nickname: "Bob"},
		Wallet:     &player.Wallet{Pang: 123, Cookies: 4},
		Characters: &player.CharacterRoster{Characters: []player.Character{{UID: 1, TypeID: 67108864}}},
		Equipment:  &player.Equipment{CharacterUID: 1},
	}
	s.Require().NoError(Save(ctx, s.pctx, 9, in))
	s.True(s.mr.Exists(Key(EntityWallet, 9)))
	s.False(s.mr.Exists(Key(EntityCards, 9)))

	out, err := Load(ctx, s.pctx, 9)
	s.Require().NoError(err)
	s.Equal(int64(123), out.Wallet.Pang)
	s.Equal(in.Characters, out.Characters)
	s.Equal(uint32(1), out.Equipment.CharacterUID)
}

func (s *PersistenceSuite) TestCorruptRecord() {
	ctx := context.Background()
	s.Require().NoError(s.pctx.Profiles.Save(ctx, 3, &Profile{UID: 3}))
	s.Require().NoError(s.mr.Set(Key(EntityStatistics, 3), "{not json"))

	_, err := Load(ctx, s.pctx, 3)
	s.ErrorIs(err, merr.ErrIoFailed)
}

func (s *PersistenceSuite) TestRedisUnavailable() {
	s.mr.Close()
	_, err := s.pctx.Wallets.Load(context.Background(), 1)
	s.ErrorIs(err, merr.ErrIoFailed)
}

func TestPersistence(t *testing.T) {
	suite.Run(t, new(PersistenceSuite))
}
