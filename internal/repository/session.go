package repository

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/models"
	"gorm.io/gorm"
)

// SessionRepository 会话仓储接口
type SessionRepository interface {
	BaseRepository
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	DeleteIdle(ctx context.Context, idleBefore time.Time) (int64, error)
}

// sessionRepo 会话仓储实现
type sessionRepo struct {
	*BaseRepo
}

// NewSessionRepository 创建会话仓储
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Create 创建会话
func (r *sessionRepo) Create(ctx context.Context, session *models.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return errors.Wrap(err, errors.ErrDatabaseInsert)
	}
	return nil
}

// FindByID 根据ID查找
func (r *sessionRepo) FindByID(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf(errors.ErrSessionNotFound, "会话 %s 不存在", id)
		}
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return &session, nil
}

// Touch 刷新最后活跃时间
func (r *sessionRepo) Touch(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ?", id).
		Update("last_seen_at", at)
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrDatabaseUpdate)
	}
	if result.RowsAffected == 0 {
		return errors.Newf(errors.ErrSessionNotFound, "会话 %s 不存在", id)
	}
	return nil
}

// DeleteIdle 删除长时间未活跃且未入座的会话
func (r *sessionRepo) DeleteIdle(ctx context.Context, idleBefore time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("last_seen_at < ? AND player_id IS NULL", idleBefore).
		Delete(&models.Session{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, errors.ErrDatabaseDelete)
	}
	return result.RowsAffected, nil
}
