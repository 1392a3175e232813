package database

import (
	"fmt"

	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/logger"
	"github.com/Taiters/coup-clone/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate 自动迁移全局数据库的表结构
func AutoMigrate() error {
	if DB == nil {
		return errors.New(errors.ErrDatabaseConnect, "数据库未初始化")
	}
	return Migrate(DB)
}

// Migrate 迁移表结构并创建索引
func Migrate(db *gorm.DB) error {
	// 获取迁移锁，避免多个进程同时迁移同一个 SQLite 文件
	if dbPath := sqlitePath(db); dbPath != "" {
		CleanupStaleLocks(dbPath)
		lockFile, err := acquireMigrationLock(dbPath)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return err
		}
		defer releaseMigrationLock(lockFile)
	}

	logger.Info("开始数据库迁移...")
	for _, model := range models.All() {
		if err := db.AutoMigrate(model); err != nil {
			logger.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return errors.Wrapf(err, errors.ErrDatabaseUpdate, "迁移 %T 失败", model)
		}
		logger.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	createIndexes(db)

	logger.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建组合索引
func createIndexes(db *gorm.DB) {
	indexes := map[string]string{
		"idx_players_game_seat":       "CREATE INDEX IF NOT EXISTS idx_players_game_seat ON players(game_id, seat)",
		"idx_events_game_id_id":       "CREATE INDEX IF NOT EXISTS idx_events_game_id_id ON events(game_id, id)",
		"idx_games_state_deadline":    "CREATE INDEX IF NOT EXISTS idx_games_state_deadline ON games(state, turn_state_deadline)",
		"idx_sessions_game_last_seen": "CREATE INDEX IF NOT EXISTS idx_sessions_game_last_seen ON sessions(game_id, last_seen_at)",
	}
	for name, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			logger.Warn("创建索引失败", zap.String("index", name), zap.Error(err))
		}
	}
}
