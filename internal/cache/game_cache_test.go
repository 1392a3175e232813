package cache

import (
	"context"
	"testing"
	"time"

	"github.com/Taiters/coup-clone/internal/config"
	"github.com/Taiters/coup-clone/internal/coup"
	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/game"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (GameCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewGameCache(client, time.Minute), mr
}

func startedGame(t *testing.T) *coup.Game {
	t.Helper()
	engine := coup.NewEngine(coup.DefaultRules())
	g, host, err := engine.NewGame("abcdef", "alice")
	require.NoError(t, err)
	host.ID = 1
	bob, err := engine.Join(g, "bob")
	require.NoError(t, err)
	bob.ID = 2
	require.NoError(t, engine.Start(g, host.ID))
	return g
}

func TestGameCacheMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	view, err := c.Get(ctx, "abcdef")
	require.NoError(t, err)
	assert.Nil(t, view)

	// 无法解析的数据按未命中处理
	require.NoError(t, mr.Set("game:abcdef", "{broken"))
	view, err = c.Get(ctx, "abcdef")
	require.NoError(t, err)
	assert.Nil(t, view)
}

func TestGameCacheNotify(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	g := startedGame(t)

	require.NoError(t, c.Notify(ctx, &game.Update{GameID: g.ID, Game: g}))
	assert.Equal(t, time.Minute, mr.TTL("game:abcdef"))

	view, err := c.Get(ctx, g.ID)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, coup.StateRunning, view.State)
	assert.Zero(t, view.ViewerID)
	require.Len(t, view.Players, 2)
	for _, p := range view.Players {
		assert.Equal(t, [2]coup.Influence{coup.Unknown, coup.Unknown}, p.Influence, "缓存中只有公开信息")
	}

	require.NoError(t, c.Notify(ctx, &game.Update{GameID: g.ID, Deleted: true}))
	assert.False(t, mr.Exists("game:abcdef"))
}

func TestGameCacheExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	view := startedGame(t).View(0)
	require.NoError(t, c.Set(ctx, &view))

	mr.FastForward(2 * time.Minute)
	got, err := c.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGameCacheUnavailable(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, c.Ping(context.Background()))
	mr.Close()

	err := c.Ping(context.Background())
	assert.True(t, errors.Is(err, errors.ErrCacheUnavailable))
	_, err = c.Get(context.Background(), "abcdef")
	assert.True(t, errors.Is(err, errors.ErrCacheUnavailable))
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	client, err := NewClient(context.Background(), &config.RedisConfig{Addr: addr})
	require.NoError(t, err)
	client.Close()

	mr.Close()
	_, err = NewClient(context.Background(), &config.RedisConfig{Addr: addr})
	assert.True(t, errors.Is(err, errors.ErrCacheUnavailable))
}
