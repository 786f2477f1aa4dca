package router

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/pangya-game-go/internal/network/framer"
	"github.com/lk2023060901/pangya-game-go/internal/player"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

func packet(t *testing.T, id uint16, body ...byte) framer.Frame {
	payload := append([]byte{7, byte(id), byte(id >> 8)}, body...)
	raw, err := framer.AppendFrame(nil, framer.PangyaConfig(0), []byte{0}, payload)
	require.NoError(t, err)
	return framer.Frame{Raw: raw, HeaderLength: 3}
}

func TestRouterDispatch(t *testing.T) {
	r := New()
	p := player.New(nil, 1, player.Profile{UID: 10})

	var got []byte
	require.NoError(t, r.Register(0x0002, func(pl *player.Player, body []byte) error {
		assert.Same(t, p, pl)
		got = body
		return nil
	}))
	assert.ErrorIs(t, r.Register(0x0002, func(*player.Player, []byte) error { return nil }), merr.ErrParameterInvalid)
	assert.ErrorIs(t, r.Register(0x0003, nil), merr.ErrParameterMissing)

	require.NoError(t, r.Handle(p, packet(t, 0x0002, 0xaa, 0xbb)))
	assert.Equal(t, []byte{0xaa, 0xbb}, got)

	id, err := PacketID(packet(t, 0x1234))
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), id)
}

func TestRouterUnknownAndErrors(t *testing.T) {
	r := New()
	p := player.New(nil, 1, player.Profile{UID: 10})

	err := r.Handle(p, packet(t, 0x00ff))
	assert.ErrorIs(t, err, merr.ErrOperationNotSupported)
	assert.Contains(t, err.Error(), "0x00ff")

	var fallbackCalls int
	r.SetFallback(func(*player.Player, []byte) error {
		fallbackCalls++
		return nil
	})
	assert.NoError(t, r.Handle(p, packet(t, 0x00ff)))
	assert.Equal(t, 1, fallbackCalls)

	errBoom := errors.New("boom")
	require.NoError(t, r.Register(0x0010, func(*player.Player, []byte) error { return errBoom }))
	assert.ErrorIs(t, r.Handle(p, packet(t, 0x0010)), errBoom)

	short := framer.Frame{Raw: []byte{0, 1, 0, 9}, HeaderLength: 3}
	assert.ErrorIs(t, r.Handle(p, short), merr.ErrFrameMalformed)
}
