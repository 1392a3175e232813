package service

import (
	"context"
	"time"

	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/game"
	"github.com/Taiters/coup-clone/internal/models"
	"github.com/Taiters/coup-clone/internal/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sessionService 会话服务实现
type sessionService struct {
	store      SessionStore
	jwtManager *utils.JWTManager
	cfg        *Config
	log        *zap.Logger
}

// NewSessionService 创建会话服务
func NewSessionService(store SessionStore, jwtManager *utils.JWTManager, cfg *Config, log *zap.Logger) SessionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &sessionService{
		store:      store,
		jwtManager: jwtManager,
		cfg:        cfg,
		log:        log,
	}
}

func (s *sessionService) now() time.Time {
	if s.cfg.Now != nil {
		return s.cfg.Now()
	}
	return time.Now().UTC()
}

// Create 创建匿名会话
func (s *sessionService) Create(ctx context.Context) (*SessionGrant, error) {
	secret, err := utils.GenerateResumeSecret()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrUnknown, "生成恢复密钥失败")
	}
	hash, err := utils.HashSecret(secret)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrUnknown, "哈希恢复密钥失败")
	}

	session := &models.Session{
		ID:         uuid.New().String(),
		SecretHash: hash,
		LastSeenAt: s.now(),
	}
	if err := s.store.Create(ctx, session); err != nil {
		return nil, err
	}

	grant, err := s.grant(session)
	if err != nil {
		return nil, err
	}
	grant.Secret = secret

	s.log.Info("会话已创建", zap.String("session_id", session.ID))
	return grant, nil
}

// Resume 凭恢复密钥重新签发令牌
func (s *sessionService) Resume(ctx context.Context, req *ResumeRequest) (*SessionGrant, error) {
	session, err := s.store.FindByID(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	ok, err := utils.VerifySecret(req.Secret, session.SecretHash)
	if err != nil || !ok {
		s.log.Warn("会话恢复失败", zap.String("session_id", req.SessionID))
		return nil, errors.New(errors.ErrAuthentication, "恢复密钥不正确")
	}

	if err := s.store.Touch(ctx, session.ID, s.now()); err != nil {
		return nil, err
	}
	return s.grant(session)
}

// Authenticate 校验令牌并解析调用方
func (s *sessionService) Authenticate(ctx context.Context, token string) (game.Caller, error) {
	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		if err == utils.ErrExpiredToken {
			return game.Caller{}, errors.New(errors.ErrTokenExpired)
		}
		return game.Caller{}, errors.New(errors.ErrTokenInvalid)
	}
	return s.Resolve(ctx, claims.SessionID)
}

// Resolve 读取会话当前的入座信息
func (s *sessionService) Resolve(ctx context.Context, sessionID string) (game.Caller, error) {
	session, err := s.store.FindByID(ctx, sessionID)
	if err != nil {
		return game.Caller{}, err
	}

	now := s.now()
	if now.Sub(session.LastSeenAt) >= s.cfg.TouchInterval {
		if err := s.store.Touch(ctx, session.ID, now); err != nil {
			s.log.Warn("刷新会话活跃时间失败", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	return callerOf(session), nil
}

// CleanupIdle 删除长时间未活跃且未入座的会话
func (s *sessionService) CleanupIdle(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteIdle(ctx, s.now().Add(-s.cfg.IdleTimeout))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("已清理空闲会话", zap.Int64("count", n))
	}
	return n, nil
}

// StartCleanup 定时清理空闲会话，ctx 取消后退出
func (s *sessionService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.CleanupIdle(ctx); err != nil {
					s.log.Error("清理空闲会话失败", zap.Error(err))
				}
			}
		}
	}()
}

func (s *sessionService) grant(session *models.Session) (*SessionGrant, error) {
	token, expiresAt, err := s.jwtManager.GenerateSessionToken(session.ID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrUnknown, "签发令牌失败")
	}
	caller := callerOf(session)
	return &SessionGrant{
		SessionID: session.ID,
		Token:     token,
		ExpiresAt: expiresAt,
		GameID:    caller.GameID,
		PlayerID:  caller.PlayerID,
	}, nil
}

func callerOf(session *models.Session) game.Caller {
	caller := game.Caller{SessionID: session.ID}
	if session.Seated() {
		caller.PlayerID = *session.PlayerID
		caller.GameID = *session.GameID
	}
	return caller
}
