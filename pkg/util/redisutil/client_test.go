package redisutil

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	cli, err := NewClient(context.Background(), Options{URL: "redis://" + mr.Addr() + "/0", PoolSize: 4})
	require.NoError(t, err)
	defer cli.Close()

	assert.NoError(t, cli.Set(context.Background(), "k", "v", 0).Err())
	v, err := mr.Get("k")
	assert.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestNewClientAuthRejected(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("secret")

	start := time.Now()
	_, err := NewClient(context.Background(), Options{URL: "redis://" + mr.Addr() + "/0"})
	assert.ErrorContains(t, err, "NOAUTH")
	assert.Less(t, time.Since(start), time.Second)

	cli, err := NewClient(context.Background(), Options{URL: "redis://:secret@" + mr.Addr() + "/0"})
	require.NoError(t, err)
	_ = cli.Close()
}

func TestNewClientInvalidURL(t *testing.T) {
	_, err := NewClient(context.Background(), Options{})
	assert.ErrorIs(t, err, merr.ErrConfigInvalid)

	_, err = NewClient(context.Background(), Options{URL: "http://nope"})
	assert.ErrorIs(t, err, merr.ErrConfigInvalid)
}
