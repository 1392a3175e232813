package repository

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/Taiters/coup-clone/internal/coup"
	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/logger"
	"github.com/Taiters/coup-clone/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GameRepository 对局聚合仓储接口
type GameRepository interface {
	BaseRepository
	Load(ctx context.Context, id string) (*coup.Game, error)
	Exists(ctx context.Context, id string) (bool, error)
	Commit(ctx context.Context, c *Commit) error
	ExpiredDeadlines(ctx context.Context, now time.Time) ([]string, error)
	Events(ctx context.Context, gameID string, afterID uint, limit int) ([]coup.Event, error)
	ListLobbies(ctx context.Context, p *Pagination) ([]LobbySummary, error)
}

// gameRepo 对局仓储实现
type gameRepo struct {
	*BaseRepo
}

// NewGameRepository 创建对局仓储
func NewGameRepository(db *gorm.DB) GameRepository {
	return &gameRepo{
		BaseRepo: NewBaseRepo(db),
	}
}

// Load 读取对局及按座位排序的玩家
func (r *gameRepo) Load(ctx context.Context, id string) (*coup.Game, error) {
	var row models.Game
	err := r.db.WithContext(ctx).
		Preload("Players", func(db *gorm.DB) *gorm.DB {
			return db.Order("seat ASC")
		}).
		First(&row, "id = ?", id).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf(errors.ErrGameNotFound, "对局 %s 不存在", id)
		}
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return toGame(&row)
}

// Exists 对局ID是否已被占用
func (r *gameRepo) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Game{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return count > 0, nil
}

// Commit 在一个事务中写入对局、玩家、日志与会话绑定
func (r *gameRepo) Commit(ctx context.Context, c *Commit) (err error) {
	start := time.Now()
	defer func() {
		logger.LogDatabaseOperation(c.operation(), c.Game.ID, time.Since(start), err)
	}()

	return r.Transaction(ctx, func(tx *gorm.DB) error {
		if c.Delete {
			return deleteGame(tx, c.Game.ID)
		}
		if err := saveGame(tx, c.Game, c.Create); err != nil {
			return err
		}
		if err := removePlayers(tx, c.Removed); err != nil {
			return err
		}
		if err := savePlayers(tx, c.Game); err != nil {
			return err
		}
		if err := unbindSessions(tx, c.Unbind); err != nil {
			return err
		}
		if err := appendEvents(tx, c.Events); err != nil {
			return err
		}
		if c.Bind != nil {
			return bindSession(tx, c.Game.ID, c.Bind)
		}
		return nil
	})
}

func saveGame(tx *gorm.DB, g *coup.Game, create bool) error {
	row := toGameRow(g)
	if create {
		var count int64
		if err := tx.Model(&models.Game{}).Where("id = ?", g.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errors.Newf(errors.ErrAlreadyExists, "对局ID %s 已被占用", g.ID)
		}
		if err := tx.Omit(clause.Associations).Create(row).Error; err != nil {
			if stderrors.Is(err, gorm.ErrDuplicatedKey) {
				return errors.Newf(errors.ErrAlreadyExists, "对局ID %s 已被占用", g.ID)
			}
			return err
		}
		return nil
	}
	return tx.Model(row).
		Select("*").
		Omit("id", "created_at", clause.Associations).
		Updates(row).Error
}

// savePlayers 新玩家插入并回填ID，已有玩家整行更新，座位取名单下标
func savePlayers(tx *gorm.DB, g *coup.Game) error {
	for seat, p := range g.Players {
		row := toPlayerRow(g.ID, seat, p)
		if p.ID == 0 {
			if err := tx.Create(row).Error; err != nil {
				return err
			}
			p.ID = row.ID
			continue
		}
		err := tx.Model(row).
			Select("*").
			Omit("id", "created_at").
			Updates(row).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func removePlayers(tx *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := unbindSessions(tx, ids); err != nil {
		return err
	}
	return tx.Where("id IN ?", ids).Delete(&models.Player{}).Error
}

func appendEvents(tx *gorm.DB, events []coup.Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]models.Event, len(events))
	for i, ev := range events {
		rows[i] = models.Event{GameID: ev.GameID, Message: ev.Message, CreatedAt: ev.CreatedAt}
	}
	if err := tx.Create(&rows).Error; err != nil {
		return err
	}
	for i := range rows {
		events[i].ID = rows[i].ID
		events[i].CreatedAt = rows[i].CreatedAt
	}
	return nil
}

func unbindSessions(tx *gorm.DB, playerIDs []uint) error {
	if len(playerIDs) == 0 {
		return nil
	}
	return tx.Model(&models.Session{}).
		Where("player_id IN ?", playerIDs).
		Updates(map[string]interface{}{"player_id": nil, "game_id": nil}).Error
}

// bindSession 只绑定尚未入座的会话，并发入座时后到者失败
func bindSession(tx *gorm.DB, gameID string, b *Binding) error {
	result := tx.Model(&models.Session{}).
		Where("id = ? AND player_id IS NULL", b.SessionID).
		Updates(map[string]interface{}{"player_id": b.Player.ID, "game_id": gameID})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}
	var count int64
	if err := tx.Model(&models.Session{}).Where("id = ?", b.SessionID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return errors.Newf(errors.ErrSessionNotFound, "会话 %s 不存在", b.SessionID)
	}
	return errors.Newf(errors.ErrPlayerAlreadyInGame, "会话 %s 已在其他对局中", b.SessionID)
}

func deleteGame(tx *gorm.DB, id string) error {
	err := tx.Model(&models.Session{}).
		Where("game_id = ?", id).
		Updates(map[string]interface{}{"player_id": nil, "game_id": nil}).Error
	if err != nil {
		return err
	}
	if err := tx.Where("game_id = ?", id).Delete(&models.Event{}).Error; err != nil {
		return err
	}
	if err := tx.Where("game_id = ?", id).Delete(&models.Player{}).Error; err != nil {
		return err
	}
	return tx.Where("id = ?", id).Delete(&models.Game{}).Error
}

// ExpiredDeadlines 响应窗口已过期的进行中对局
func (r *gameRepo) ExpiredDeadlines(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	// 截止时间统一以UTC写入
	now = now.UTC()
	err := r.db.WithContext(ctx).
		Model(&models.Game{}).
		Where("state = ? AND turn_state_deadline IS NOT NULL AND turn_state_deadline <= ?", string(coup.StateRunning), now).
		Order("turn_state_deadline ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return ids, nil
}

// Events 按ID升序返回 afterID 之后的日志
func (r *gameRepo) Events(ctx context.Context, gameID string, afterID uint, limit int) ([]coup.Event, error) {
	var rows []models.Event
	query := r.db.WithContext(ctx).
		Where("game_id = ? AND id > ?", gameID, afterID).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	events := make([]coup.Event, len(rows))
	for i := range rows {
		events[i] = toEvent(&rows[i])
	}
	return events, nil
}

// ListLobbies 分页列出尚在大厅的对局
func (r *gameRepo) ListLobbies(ctx context.Context, p *Pagination) ([]LobbySummary, error) {
	db := r.db.WithContext(ctx)
	base := db.Model(&models.Game{}).Where("state = ?", string(coup.StateLobby))
	if err := base.Count(&p.Total).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}

	var rows []models.Game
	err := db.Where("state = ?", string(coup.StateLobby)).
		Preload("Players", func(db *gorm.DB) *gorm.DB {
			return db.Order("seat ASC")
		}).
		Order("id ASC").
		Scopes(Paginate(p)).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}

	lobbies := make([]LobbySummary, 0, len(rows))
	for _, row := range rows {
		summary := LobbySummary{ID: row.ID, Players: len(row.Players)}
		for _, p := range row.Players {
			if p.Host {
				summary.Host = p.Name
			}
		}
		lobbies = append(lobbies, summary)
	}
	return lobbies, nil
}
