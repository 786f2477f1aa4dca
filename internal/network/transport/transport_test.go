package transport

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

func TestSelectIsStable(t *testing.T) {
	kind := Select()
	assert.Contains(t, []Kind{KindEpoll, KindKqueue, KindPortable}, kind)
	assert.Equal(t, kind, Select())
}

func TestListenAndAccept(t *testing.T) {
	for _, kind := range []Kind{Select(), KindPortable} {
		ln, err := Listen(context.Background(), kind, "127.0.0.1:0", 128)
		require.NoError(t, err, kind)

		done := make(chan struct{})
		go func() {
			defer close(done)
			conn, err := ln.Accept()
			if assert.NoError(t, err) {
				assert.NoError(t, SetNoDelay(conn, true))
				_ = conn.Close()
			}
		}()

		conn, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		<-done
		_ = conn.Close()
		_ = ln.Close()
	}
}

func TestListenAddressInUse(t *testing.T) {
	ln, err := Listen(context.Background(), Select(), "127.0.0.1:0", 0)
	require.NoError(t, err)
	defer ln.Close()

	_, err = Listen(context.Background(), Select(), ln.Addr().String(), 0)
	assert.ErrorIs(t, err, merr.ErrBindFailed)
}

func TestListenInvalidAddress(t *testing.T) {
	_, err := Listen(context.Background(), Select(), "127.0.0.1:99999", 0)
	assert.ErrorIs(t, err, merr.ErrBindFailed)

	_, err = Listen(context.Background(), KindPortable, "not-an-address", 0)
	assert.ErrorIs(t, err, merr.ErrBindFailed)
}

func TestSetNoDelayIgnoresNonTCP(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	assert.NoError(t, SetNoDelay(a, true))
}
