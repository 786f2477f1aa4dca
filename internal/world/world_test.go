package world

import (
	"net"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/pangya-game-go/internal/config"
	"github.com/lk2023060901/pangya-game-go/internal/player"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

type fakeConn struct {
	id   uint64
	sent [][]byte
}

func (c *fakeConn) ID() uint64 { return c.id }

func (c *fakeConn) Send(data []byte) error {
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}
}

func newPlayer(connID player.ConnectionID, uid player.UID) *player.Player {
	return player.New(&fakeConn{id: uint64(connID)}, connID, player.Profile{UID: uid, Nickname: "p"})
}

type WorldSuite struct {
	suite.Suite
	channel *Channel
}

func (s *WorldSuite) SetupTest() {
	s.channel = NewChannel(config.ServerChannel{ID: 1, Name: "Rookie", MaxPlayers: 2})
}

func (s *WorldSuite) TestChannelAddRemove() {
	p := newPlayer(1, 100)
	s.NoError(s.channel.AddPlayer(p))
	s.NoError(s.channel.AddPlayer(p))
	s.Equal(1, s.channel.Count())
	s.True(s.channel.Contains(100))
	found, ok := s.channel.FindByUID(100)
	s.True(ok)
	s.Same(p, found)
	s.Equal(player.Container(s.channel), p.CurrentChannel())

	s.NoError(s.channel.RemovePlayer(p))
	s.NoError(s.channel.RemovePlayer(p))
	s.Equal(0, s.channel.Count())
	s.False(s.channel.Contains(100))
	_, ok = s.channel.FindByUID(100)
	s.False(ok)
	s.Nil(p.CurrentChannel())
}

func (s *WorldSuite) TestChannelCapacity() {
	s.NoError(s.channel.AddPlayer(newPlayer(1, 100)))
	s.NoError(s.channel.AddPlayer(newPlayer(2, 101)))
	s.True(s.channel.Full())
	s.ErrorIs(s.channel.AddPlayer(newPlayer(3, 102)), merr.ErrChannelFull)
}

func (s *WorldSuite) TestChannelRejectsSameAccount() {
	s.NoError(s.channel.AddPlayer(newPlayer(1, 100)))
	s.ErrorIs(s.channel.AddPlayer(newPlayer(2, 100)), merr.ErrPlayerAlreadyRegistered)
}

func (s *WorldSuite) TestSwitchChannel() {
	other := NewChannel(config.ServerChannel{ID: 2, Name: "Beginner"})
	p := newPlayer(1, 100)
	s.NoError(s.channel.AddPlayer(p))
	s.NoError(other.AddPlayer(p))

	s.Equal(0, s.channel.Count())
	s.Equal(1, other.Count())
	s.Equal(player.Container(other), p.CurrentChannel())
}

func (s *WorldSuite) TestRemoveNonMember() {
	p := newPlayer(1, 100)
	s.NoError(s.channel.RemovePlayer(p))
	s.NoError(s.channel.CreateRoom("x", 0).RemovePlayer(p))
}

func (s *WorldSuite) TestRoomLifecycle() {
	a, b := newPlayer(1, 100), newPlayer(2, 101)
	s.NoError(s.channel.AddPlayer(a))
	s.NoError(s.channel.AddPlayer(b))

	room := s.channel.CreateRoom("Visitor", 1)
	s.NoError(room.AddPlayer(a))
	s.ErrorIs(room.AddPlayer(b), merr.ErrRoomFull)
	s.Same(a, room.Owner())
	s.Equal(player.Container(room), a.CurrentRoom())

	got, ok := s.channel.Room(room.ID())
	s.True(ok)
	s.Same(room, got)

	// 离开频道时一并退出房间，空房间被回收
	s.NoError(s.channel.RemovePlayer(a))
	s.Nil(a.CurrentRoom())
	s.Equal(0, room.Count())
	_, ok = s.channel.Room(room.ID())
	s.False(ok)
}

func (s *WorldSuite) TestRoomOwnerTransfer() {
	room := s.channel.CreateRoom("Match", 4)
	a, b := newPlayer(1, 100), newPlayer(2, 101)
	s.NoError(room.AddPlayer(a))
	s.NoError(room.AddPlayer(b))
	s.NoError(room.RemovePlayer(a))
	s.Same(b, room.Owner())
	s.Equal([]*player.Player{b}, room.Players())
}

func (s *WorldSuite) TestBroadcast() {
	conn := &fakeConn{id: 1}
	p := player.New(conn, 1, player.Profile{UID: 100})
	s.NoError(s.channel.AddPlayer(p))
	s.Equal(0, s.channel.Broadcast([]byte{0x01}))
	s.Len(conn.sent, 1)
}

func (s *WorldSuite) TestNewChannels() {
	channels := NewChannels([]config.ServerChannel{{ID: 1}, {ID: 2}})
	s.Len(channels, 2)
	s.Equal(2, channels[1].ID())
}

func TestWorld(t *testing.T) {
	suite.Run(t, new(WorldSuite))
}
