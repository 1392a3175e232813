package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Taiters/coup-clone/internal/coup"
	"github.com/Taiters/coup-clone/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB 为测试设置内存数据库
func SetupTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	// 使用内存数据库进行测试，单连接保证所有语句看到同一个库
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(models.All()...))

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

// CreateTestSession 创建一个未入座的会话
func CreateTestSession(t testing.TB, db *gorm.DB, id string) *models.Session {
	t.Helper()
	session := &models.Session{
		ID:         id,
		SecretHash: "hash-" + id,
		LastSeenAt: time.Now(),
	}
	require.NoError(t, NewSessionRepository(db).Create(context.Background(), session))
	return session
}

// CreateTestLobby 创建大厅对局，房主绑定到给定会话
func CreateTestLobby(t testing.TB, db *gorm.DB, engine *coup.Engine, gameID, sessionID, host string) *coup.Game {
	t.Helper()
	g, p, err := engine.NewGame(gameID, host)
	require.NoError(t, err)
	err = NewGameRepository(db).Commit(context.Background(), &Commit{
		Game:   g,
		Events: g.DrainEvents(),
		Create: true,
		Bind:   &Binding{SessionID: sessionID, Player: p},
	})
	require.NoError(t, err)
	return g
}
