package game

import (
	"github.com/Taiters/coup-clone/internal/coup"
)

// Caller 调用方身份，由会话服务解析后显式传入每一次调用
type Caller struct {
	SessionID string
	PlayerID  uint
	GameID    string
}

// Seated 是否已在某个对局中入座
func (c Caller) Seated() bool {
	return c.PlayerID != 0 && c.GameID != ""
}

// IntentKind 玩家意图
type IntentKind string

const (
	IntentCreateGame     IntentKind = "create_game"
	IntentJoinGame       IntentKind = "join_game"
	IntentLeaveGame      IntentKind = "leave_game"
	IntentSetName        IntentKind = "set_name"
	IntentStartGame      IntentKind = "start_game"
	IntentRestartGame    IntentKind = "restart_game"
	IntentTakeAction     IntentKind = "take_action"
	IntentAcceptAction   IntentKind = "accept_action"
	IntentChallenge      IntentKind = "challenge"
	IntentBlock          IntentKind = "block"
	IntentAcceptBlock    IntentKind = "accept_block"
	IntentChallengeBlock IntentKind = "challenge_block"
	IntentReveal         IntentKind = "reveal"
	IntentExchange       IntentKind = "exchange"
)

// Intent 一次玩家请求，字段按意图取用
type Intent struct {
	Kind      IntentKind       `json:"intent"`
	GameID    string           `json:"game_id,omitempty"`
	Name      string           `json:"name,omitempty"`
	Action    coup.ActionKind  `json:"action,omitempty"`
	TargetID  uint             `json:"target_id,omitempty"`
	Influence coup.Influence   `json:"influence,omitempty"`
	Kept      []coup.Influence `json:"kept,omitempty"`
}

// Result 意图处理结果
type Result struct {
	GameID string
	// PlayerID 调用方处理后的玩家ID，离开后为 0
	PlayerID uint
	// Game 提交后的快照，对局被删除时为 nil
	Game    *coup.Game
	Events  []coup.Event
	Deleted bool
}

// Caller 处理后调用方的身份
func (r *Result) Caller(sessionID string) Caller {
	if r.PlayerID == 0 {
		return Caller{SessionID: sessionID}
	}
	return Caller{SessionID: sessionID, PlayerID: r.PlayerID, GameID: r.GameID}
}

// View 调用方视角的对局快照
func (r *Result) View() *coup.GameView {
	if r.Game == nil {
		return nil
	}
	view := r.Game.View(r.PlayerID)
	return &view
}

// Update 推送给通知器的变更
type Update struct {
	GameID  string
	Game    *coup.Game
	Events  []coup.Event
	Deleted bool
	// Detached 不再属于该对局的玩家
	Detached []uint
}
