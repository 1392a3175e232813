package websocket

import (
	"encoding/json"
	"time"

	"github.com/Taiters/coup-clone/internal/coup"
	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/game"
)

// MessageType 消息类型
const (
	// 客户端 -> 服务端
	MessageTypeIntent = "intent"
	MessageTypeSync   = "sync"
	MessageTypePing   = "ping"

	// 服务端 -> 客户端
	MessageTypeConnected = "connected"
	MessageTypeSession   = "session"
	MessageTypeGame      = "game"
	MessageTypeHand      = "hand"
	MessageTypeEvents    = "events"
	MessageTypeDeleted   = "deleted"
	MessageTypeAck       = "ack"
	MessageTypeError     = "error"
	MessageTypePong      = "pong"
)

// Message WebSocket消息，ID 为客户端请求ID，服务端在应答中回显
type Message struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// SessionPayload 会话与入座信息
type SessionPayload struct {
	SessionID string `json:"session_id"`
	GameID    string `json:"game_id,omitempty"`
	PlayerID  uint   `json:"player_id,omitempty"`
}

// HandPayload 玩家自己的手牌
type HandPayload struct {
	PlayerID        uint              `json:"player_id"`
	Influence       [2]coup.Influence `json:"influence"`
	Revealed        [2]bool           `json:"revealed"`
	ExchangeOptions []coup.Influence  `json:"exchange_options,omitempty"`
}

// AckPayload 意图处理成功
type AckPayload struct {
	Intent game.IntentKind `json:"intent"`
	GameID string          `json:"game_id,omitempty"`
}

// DeletedPayload 对局已删除
type DeletedPayload struct {
	GameID string `json:"game_id"`
}

// ErrorPayload 结构化拒绝
type ErrorPayload struct {
	Code    errors.ErrorCode `json:"code"`
	Kind    string           `json:"kind"`
	Message string           `json:"message"`
	Details string           `json:"details,omitempty"`
}

// NewMessage 构造消息
func NewMessage(msgType, id string, data interface{}) (*Message, error) {
	msg := &Message{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().Unix(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return msg, nil
}

// Encode 序列化消息
func Encode(msgType, id string, data interface{}) ([]byte, error) {
	msg, err := NewMessage(msgType, id, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// Decode 解析客户端消息
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, errors.ErrMessageFormat, "消息格式错误")
	}
	if msg.Type == "" {
		return nil, errors.New(errors.ErrMessageFormat, "消息类型不能为空")
	}
	return &msg, nil
}

// DecodeIntent 解析意图消息体
func DecodeIntent(msg *Message) (game.Intent, error) {
	var in game.Intent
	if len(msg.Data) == 0 {
		return in, errors.New(errors.ErrMessageFormat, "缺少意图数据")
	}
	if err := json.Unmarshal(msg.Data, &in); err != nil {
		return in, errors.Wrap(err, errors.ErrMessageFormat, "意图格式错误")
	}
	return in, nil
}

// NewErrorPayload 从错误构造拒绝消息体
func NewErrorPayload(err error) *ErrorPayload {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.Wrap(err, errors.ErrUnknown)
	}
	return &ErrorPayload{
		Code:    appErr.Code,
		Kind:    appErr.Kind(),
		Message: appErr.Message,
		Details: appErr.Details,
	}
}

// handPayload 交换阶段附带可选牌
func handPayload(g *coup.Game, playerID uint) *HandPayload {
	p := g.Player(playerID)
	if p == nil {
		return nil
	}
	hand := &HandPayload{
		PlayerID:  playerID,
		Influence: p.Influence,
		Revealed:  p.Revealed,
	}
	if g.Turn.Phase == coup.PhaseExchanging && g.Turn.PlayerID == playerID {
		if options, err := g.ExchangeOptions(); err == nil {
			hand.ExchangeOptions = options
		}
	}
	return hand
}

func sessionPayload(c game.Caller) *SessionPayload {
	return &SessionPayload{SessionID: c.SessionID, GameID: c.GameID, PlayerID: c.PlayerID}
}

func errUnsupportedMessage(msgType string) error {
	return errors.Newf(errors.ErrMessageFormat, "不支持的消息类型: %s", msgType)
}
