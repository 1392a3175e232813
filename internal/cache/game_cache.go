package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Taiters/coup-clone/internal/config"
	"github.com/Taiters/coup-clone/internal/coup"
	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/game"
	"github.com/Taiters/coup-clone/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// defaultTTL 未配置时公开视图的缓存时长
const defaultTTL = 10 * time.Minute

// GameCache 公开对局视图的读缓存
type GameCache interface {
	game.Notifier
	Set(ctx context.Context, view *coup.GameView) error
	Get(ctx context.Context, gameID string) (*coup.GameView, error)
	Delete(ctx context.Context, gameID string) error
	Ping(ctx context.Context) error
}

type gameCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ GameCache = (*gameCache)(nil)

// NewGameCache 基于已有的 redis 客户端创建缓存
func NewGameCache(client *redis.Client, ttl time.Duration) GameCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &gameCache{
		client: client,
		ttl:    ttl,
		logger: logger.GetModuleLogger(logger.ModuleCache),
	}
}

// NewClient 按配置连接 redis，连接失败时返回错误
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, errors.ErrCacheUnavailable, "连接redis失败: %s", cfg.Addr)
	}
	return client, nil
}

func (c *gameCache) key(gameID string) string {
	return fmt.Sprintf("game:%s", gameID)
}

// Set 写入公开视图
func (c *gameCache) Set(ctx context.Context, view *coup.GameView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return errors.Wrap(err, errors.ErrMessageFormat)
	}
	if err := c.client.Set(ctx, c.key(view.ID), data, c.ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCacheUnavailable)
	}
	return nil
}

// Get 读取公开视图，未命中时返回 nil, nil
func (c *gameCache) Get(ctx context.Context, gameID string) (*coup.GameView, error) {
	data, err := c.client.Get(ctx, c.key(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCacheUnavailable)
	}
	var view coup.GameView
	if err := json.Unmarshal(data, &view); err != nil {
		// 格式不兼容的旧数据按未命中处理
		c.logger.Warn("缓存数据解析失败", zap.String("game_id", gameID), zap.Error(err))
		return nil, nil
	}
	return &view, nil
}

// Delete 删除缓存
func (c *gameCache) Delete(ctx context.Context, gameID string) error {
	if err := c.client.Del(ctx, c.key(gameID)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCacheUnavailable)
	}
	return nil
}

// Ping 健康检查
func (c *gameCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCacheUnavailable)
	}
	return nil
}

// Notify 每次提交后刷新公开视图，对局删除时清除
func (c *gameCache) Notify(ctx context.Context, u *game.Update) error {
	if u.Deleted || u.Game == nil {
		return c.Delete(ctx, u.GameID)
	}
	view := u.Game.View(0)
	return c.Set(ctx, &view)
}
