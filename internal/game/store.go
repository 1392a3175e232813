package game

import (
	"context"
	"time"

	"github.com/Taiters/coup-clone/internal/coup"
	"github.com/Taiters/coup-clone/internal/repository"
)

// Store 对局聚合的持久化契约，Commit 必须整体成功或整体失败
type Store interface {
	Load(ctx context.Context, id string) (*coup.Game, error)
	Exists(ctx context.Context, id string) (bool, error)
	Commit(ctx context.Context, c *repository.Commit) error
	ExpiredDeadlines(ctx context.Context, now time.Time) ([]string, error)
	Events(ctx context.Context, gameID string, afterID uint, limit int) ([]coup.Event, error)
	ListLobbies(ctx context.Context, p *repository.Pagination) ([]repository.LobbySummary, error)
}

var (
	_ Store = (repository.GameRepository)(nil)
	_ Store = (*MemoryStore)(nil)
)
