package websocket

import (
	"context"
	"time"

	"github.com/Taiters/coup-clone/internal/coup"
	"github.com/Taiters/coup-clone/internal/game"
	"github.com/Taiters/coup-clone/internal/logger"
	"go.uber.org/zap"
)

// Dispatcher 意图分发
type Dispatcher interface {
	Dispatch(ctx context.Context, caller game.Caller, in game.Intent) (*game.Result, error)
	Snapshot(ctx context.Context, gameID string) (*coup.Game, error)
	Events(ctx context.Context, gameID string, afterID uint, limit int) ([]coup.Event, error)
}

// Resolver 按会话读取最新的入座信息
type Resolver interface {
	Resolve(ctx context.Context, sessionID string) (game.Caller, error)
}

// syncEventLimit 重连时补发的日志条数
const syncEventLimit = 50

// IntentHandler 把客户端消息解码为意图并交给协调器
type IntentHandler struct {
	hub        *Hub
	dispatcher Dispatcher
	resolver   Resolver
	timeout    time.Duration
	logger     *zap.Logger
}

var _ MessageHandler = (*IntentHandler)(nil)

// NewIntentHandler 创建意图处理器，并接管 Hub 的连接回调
func NewIntentHandler(hub *Hub, dispatcher Dispatcher, resolver Resolver, log *zap.Logger) *IntentHandler {
	if log == nil {
		log = logger.GetModuleLogger(logger.ModuleWebSocket)
	}
	h := &IntentHandler{
		hub:        hub,
		dispatcher: dispatcher,
		resolver:   resolver,
		timeout:    10 * time.Second,
		logger:     log,
	}
	hub.OnConnect(h.Sync)
	return h
}

// HandleClientMessage 处理客户端消息
func (h *IntentHandler) HandleClientMessage(c *Client, data []byte) {
	msg, err := Decode(data)
	if err != nil {
		h.logger.Warn("解析WebSocket消息失败", zap.String("client_id", c.ID), zap.Error(err))
		c.SendError("", err)
		return
	}
	logger.LogWebSocketMessage("receive", msg.Type, msg.Data)

	switch msg.Type {
	case MessageTypePing:
		c.Send(MessageTypePong, msg.ID, nil)
	case MessageTypeSync:
		h.Sync(c)
	case MessageTypeIntent:
		h.handleIntent(c, msg)
	default:
		h.logger.Warn("收到不支持的消息类型",
			zap.String("client_id", c.ID),
			zap.String("type", msg.Type))
		c.SendError(msg.ID, errUnsupportedMessage(msg.Type))
	}
}

func (h *IntentHandler) handleIntent(c *Client, msg *Message) {
	in, err := DecodeIntent(msg)
	if err != nil {
		c.SendError(msg.ID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	caller, err := h.refresh(ctx, c)
	if err != nil {
		c.SendError(msg.ID, err)
		return
	}

	res, err := h.dispatcher.Dispatch(ctx, caller, in)
	if err != nil {
		c.SendError(msg.ID, err)
		return
	}

	if next := res.Caller(caller.SessionID); next != caller {
		h.hub.Rebind(next, res.Game)
	}
	c.Send(MessageTypeAck, msg.ID, &AckPayload{Intent: in.Kind, GameID: res.GameID})
}

// refresh 以会话存储为准更新连接的入座信息
func (h *IntentHandler) refresh(ctx context.Context, c *Client) (game.Caller, error) {
	current := c.Caller()
	if h.resolver == nil {
		return current, nil
	}
	caller, err := h.resolver.Resolve(ctx, current.SessionID)
	if err != nil {
		return current, err
	}
	if caller != current {
		h.hub.Bind(caller)
	}
	return caller, nil
}

// Sync 补发当前会话、对局视图与最近的日志
func (h *IntentHandler) Sync(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	caller, err := h.refresh(ctx, c)
	if err != nil {
		c.SendError("", err)
		return
	}
	c.Send(MessageTypeSession, "", sessionPayload(caller))
	if !caller.Seated() {
		return
	}

	g, err := h.dispatcher.Snapshot(ctx, caller.GameID)
	if err != nil {
		c.SendError("", err)
		return
	}
	events, err := h.dispatcher.Events(ctx, caller.GameID, 0, 0)
	if err != nil {
		h.logger.Warn("读取对局日志失败", zap.String("game_id", caller.GameID), zap.Error(err))
	}
	if len(events) > syncEventLimit {
		events = events[len(events)-syncEventLimit:]
	}
	h.hub.pushState(c, caller.PlayerID, g, events)
}
