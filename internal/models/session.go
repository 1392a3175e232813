package models

import (
	"time"
)

// Session 匿名会话表，入座后绑定玩家与对局
type Session struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	PlayerID   *uint     `gorm:"index" json:"player_id,omitempty"`
	GameID     *string   `gorm:"size:16;index" json:"game_id,omitempty"`
	SecretHash string    `gorm:"size:255;not null" json:"-"`
	LastSeenAt time.Time `gorm:"index" json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Session) TableName() string {
	return "sessions"
}

// Seated 是否已入座
func (s *Session) Seated() bool {
	return s.PlayerID != nil && s.GameID != nil
}

// All 需要迁移的全部模型
func All() []interface{} {
	return []interface{}{
		&Game{},
		&Player{},
		&Event{},
		&Session{},
	}
}
