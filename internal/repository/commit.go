package repository

import (
	"github.com/Taiters/coup-clone/internal/coup"
)

// Commit 一次意图处理产生的全部写入，必须在同一事务中落库
type Commit struct {
	Game *coup.Game
	// Events 待追加的日志，落库后回填ID与时间
	Events []coup.Event
	// Create 新建对局，ID冲突时返回 ErrAlreadyExists
	Create bool
	// Delete 删除对局及其玩家、日志
	Delete bool
	// Removed 需要删除的玩家行
	Removed []uint
	// Unbind 这些玩家对应的会话解除入座
	Unbind []uint
	// Bind 把会话绑定到新入座的玩家
	Bind *Binding
}

// Binding 会话入座
type Binding struct {
	SessionID string
	Player    *coup.Player
}

// LobbySummary 大厅列表中的一项
type LobbySummary struct {
	ID      string `json:"id"`
	Host    string `json:"host"`
	Players int    `json:"players"`
}

func (c *Commit) operation() string {
	switch {
	case c.Delete:
		return "delete"
	case c.Create:
		return "create"
	default:
		return "update"
	}
}
