package models

import (
	"time"
)

// Game 对局表，回合上下文平铺在同一行
type Game struct {
	ID                  string     `gorm:"primaryKey;size:16" json:"id"`
	State               string     `gorm:"size:16;not null;index" json:"state"` // LOBBY, RUNNING, FINISHED
	Deck                string     `gorm:"size:32;not null" json:"-"`           // 每张牌一位数字，牌顶在末尾
	PlayerTurnID        *uint      `json:"player_turn_id"`
	TurnAction          *string    `gorm:"size:16" json:"turn_action"`
	TurnState           string     `gorm:"size:32;not null" json:"turn_state"`
	TargetID            *uint      `json:"target_id"`
	ChallengedByID      *uint      `json:"challenged_by_id"`
	BlockedByID         *uint      `json:"blocked_by_id"`
	BlockChallengedByID *uint      `json:"block_challenged_by_id"`
	TurnStateModified   time.Time  `json:"turn_state_modified"`
	TurnStateDeadline   *time.Time `gorm:"index" json:"turn_state_deadline,omitempty"`
	WinnerID            *uint      `json:"winner_id"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`

	// 关联
	Players []Player `gorm:"foreignKey:GameID" json:"players,omitempty"`
}

// TableName 指定表名
func (Game) TableName() string {
	return "games"
}

// Player 座位表
type Player struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	GameID             string    `gorm:"size:16;not null;index" json:"game_id"`
	Seat               int       `gorm:"not null" json:"seat"`
	Name               string    `gorm:"size:64;not null" json:"name"`
	Coins              int       `gorm:"not null;default:0" json:"coins"`
	InfluenceA         int       `gorm:"not null" json:"-"`
	InfluenceB         int       `gorm:"not null" json:"-"`
	RevealedInfluenceA bool      `gorm:"not null;default:false" json:"revealed_influence_a"`
	RevealedInfluenceB bool      `gorm:"not null;default:false" json:"revealed_influence_b"`
	Host               bool      `gorm:"not null;default:false" json:"host"`
	AcceptsAction      bool      `gorm:"not null;default:false" json:"accepts_action"`
	Left               bool      `gorm:"not null;default:false" json:"left"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Player) TableName() string {
	return "players"
}

// Event 对局日志表，只追加
type Event struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	GameID    string    `gorm:"size:16;not null;index" json:"game_id"`
	Message   string    `gorm:"size:255;not null" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定表名
func (Event) TableName() string {
	return "events"
}
