package discovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/pangya-game-go/internal/json"
	"github.com/lk2023060901/pangya-game-go/pkg/util/merr"
)

type memoryStore struct {
	mu        sync.Mutex
	published []ServerInfo
	failNext  bool
	closed    bool
}

func (s *memoryStore) Publish(_ context.Context, info ServerInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errors.New("store unavailable")
	}
	s.published = append(s.published, info)
	return nil
}

func (s *memoryStore) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "pangya/servers/game/3", Key("pangya/servers", ServerTypeGame, 3))
}

func TestPublisherRun(t *testing.T) {
	store := &memoryStore{failNext: true}
	var players int
	var mu sync.Mutex
	p := NewPublisher(store, 10*time.Millisecond, func(context.Context) ServerInfo {
		mu.Lock()
		defer mu.Unlock()
		players++
		return ServerInfo{Type: ServerTypeGame, ID: 1, PlayerCount: players}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// 第一次发布失败不影响后续周期
	assert.Eventually(t, func() bool { return store.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.True(t, store.closed)
	assert.False(t, store.published[0].UpdatedAt.IsZero())
	assert.Less(t, store.published[0].PlayerCount, store.published[1].PlayerCount)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	key := Key("pangya/servers", ServerTypeGame, 1)
	store := NewRedisStore(rdb, key, 15*time.Second)

	info := ServerInfo{Type: ServerTypeGame, ID: 1, Name: "Gaia", Port: 20201, PlayerCount: 3}
	require.NoError(t, store.Publish(ctx, info))
	assert.Equal(t, 15*time.Second, mr.TTL(key))

	raw, err := mr.Get(key)
	require.NoError(t, err)
	var got ServerInfo
	require.NoError(t, json.UnmarshalFromString(raw, &got))
	assert.Equal(t, "Gaia", got.Name)
	assert.Equal(t, 3, got.PlayerCount)

	mr.FastForward(16 * time.Second)
	assert.False(t, mr.Exists(key))

	require.NoError(t, store.Publish(ctx, info))
	require.NoError(t, store.Close(ctx))
	assert.False(t, mr.Exists(key))
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	err := NewRedisStore(rdb, "k", time.Second).Publish(context.Background(), ServerInfo{})
	assert.ErrorIs(t, err, merr.ErrDiscoveryPublishFailed)
	assert.True(t, merr.IsRetryableErr(err))
}

func TestResources(t *testing.T) {
	cpuPercent, rss := Resources(context.Background())
	assert.GreaterOrEqual(t, cpuPercent, 0.0)
	assert.Greater(t, rss, uint64(0))
}
