package service

import (
	"context"
	"time"

	"github.com/Taiters/coup-clone/internal/game"
	"github.com/Taiters/coup-clone/internal/models"
)

// SessionStore 会话持久化，数据库仓储与内存存储都满足
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	DeleteIdle(ctx context.Context, idleBefore time.Time) (int64, error)
}

// SessionService 匿名会话服务接口
type SessionService interface {
	// 创建与恢复
	Create(ctx context.Context) (*SessionGrant, error)
	Resume(ctx context.Context, req *ResumeRequest) (*SessionGrant, error)

	// 验证
	Authenticate(ctx context.Context, token string) (game.Caller, error)
	Resolve(ctx context.Context, sessionID string) (game.Caller, error)

	// 清理
	CleanupIdle(ctx context.Context) (int64, error)
	StartCleanup(ctx context.Context, interval time.Duration)
}

// ResumeRequest 恢复会话请求
type ResumeRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Secret    string `json:"secret" binding:"required"`
}

// SessionGrant 签发给客户端的会话凭据，Secret 只在创建时返回
type SessionGrant struct {
	SessionID string    `json:"session_id"`
	Secret    string    `json:"secret,omitempty"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	GameID    string    `json:"game_id,omitempty"`
	PlayerID  uint      `json:"player_id,omitempty"`
}
