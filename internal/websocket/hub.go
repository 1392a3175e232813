package websocket

import (
	"context"
	"sync"

	"github.com/Taiters/coup-clone/internal/coup"
	"github.com/Taiters/coup-clone/internal/game"
	"github.com/Taiters/coup-clone/internal/logger"
	"go.uber.org/zap"
)

// Hub WebSocket连接管理中心，按对局划分房间
type Hub struct {
	mu sync.RWMutex

	// 客户端连接池
	clients map[string]*Client

	// 对局ID到客户端的映射
	rooms map[string]map[string]*Client

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// 连接建立后的回调，用于补发当前状态
	onConnect func(c *Client)

	logger *zap.Logger
}

var _ game.Notifier = (*Hub)(nil)

// NewHub 创建Hub
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = logger.GetModuleLogger(logger.ModuleWebSocket)
	}
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     log,
	}
}

// OnConnect 设置连接建立后的回调
func (h *Hub) OnConnect(fn func(c *Client)) {
	h.onConnect = fn
}

// Run 运行Hub，ctx 取消后关闭全部连接
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return
		case client := <-h.register:
			h.registerClient(client)
			if h.onConnect != nil {
				go h.onConnect(client)
			}
		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

// Register 注册客户端，Hub 已停止时返回 false
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	caller := client.caller
	if caller.Seated() {
		h.joinRoomLocked(client, caller.GameID)
	}
	h.mu.Unlock()

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID),
		zap.String("session_id", caller.SessionID),
		zap.String("game_id", caller.GameID),
	)
	h.sendTo(client, MessageTypeConnected, "", sessionPayload(caller))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	h.leaveRoomLocked(client)
	delete(h.clients, client.ID)
	close(client.send)
	sessionID := client.caller.SessionID
	h.mu.Unlock()

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID),
		zap.String("session_id", sessionID),
	)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		h.leaveRoomLocked(client)
		delete(h.clients, id)
		close(client.send)
	}
}

func (h *Hub) joinRoomLocked(client *Client, gameID string) {
	room := h.rooms[gameID]
	if room == nil {
		room = make(map[string]*Client)
		h.rooms[gameID] = room
	}
	room[client.ID] = client
	client.room = gameID
}

func (h *Hub) leaveRoomLocked(client *Client) {
	if client.room == "" {
		return
	}
	if room := h.rooms[client.room]; room != nil {
		delete(room, client.ID)
		if len(room) == 0 {
			delete(h.rooms, client.room)
		}
	}
	client.room = ""
}

// Bind 更新某个会话全部连接的入座信息，并把连接移到对应房间
func (h *Hub) Bind(caller game.Caller) []*Client {
	h.mu.Lock()
	var moved []*Client
	for _, client := range h.clients {
		if client.caller.SessionID != caller.SessionID || client.caller == caller {
			continue
		}
		client.caller = caller
		h.leaveRoomLocked(client)
		if caller.Seated() {
			h.joinRoomLocked(client, caller.GameID)
		}
		moved = append(moved, client)
	}
	h.mu.Unlock()

	for _, client := range moved {
		h.sendTo(client, MessageTypeSession, "", sessionPayload(caller))
	}
	return moved
}

// Rebind 入座状态变化后移动连接，并向新入座的连接补发完整状态
func (h *Hub) Rebind(caller game.Caller, g *coup.Game) {
	moved := h.Bind(caller)
	if !caller.Seated() || g == nil {
		return
	}
	for _, client := range moved {
		h.pushState(client, caller.PlayerID, g, nil)
	}
}

// Notify 把已提交的变更按玩家视角推送给房间内的连接
func (h *Hub) Notify(ctx context.Context, u *game.Update) error {
	detached := make(map[uint]bool, len(u.Detached))
	for _, id := range u.Detached {
		detached[id] = true
	}

	h.mu.Lock()
	room := h.rooms[u.GameID]
	members := make([]*Client, 0, len(room))
	viewers := make([]uint, 0, len(room))
	var dropped []*Client
	for _, client := range room {
		if u.Deleted || detached[client.caller.PlayerID] {
			client.caller = game.Caller{SessionID: client.caller.SessionID}
			h.leaveRoomLocked(client)
			dropped = append(dropped, client)
			continue
		}
		members = append(members, client)
		viewers = append(viewers, client.caller.PlayerID)
	}
	h.mu.Unlock()

	for _, client := range dropped {
		if u.Deleted {
			h.sendTo(client, MessageTypeDeleted, "", &DeletedPayload{GameID: u.GameID})
		}
		h.sendTo(client, MessageTypeSession, "", sessionPayload(client.Caller()))
	}
	for i, client := range members {
		h.pushState(client, viewers[i], u.Game, u.Events)
	}
	return nil
}

// pushState 发送个性化视图、手牌与日志增量
func (h *Hub) pushState(client *Client, pid uint, g *coup.Game, events []coup.Event) {
	if g == nil {
		return
	}
	h.sendTo(client, MessageTypeGame, "", g.View(pid))
	if hand := handPayload(g, pid); hand != nil {
		h.sendTo(client, MessageTypeHand, "", hand)
	}
	if len(events) > 0 {
		h.sendTo(client, MessageTypeEvents, "", events)
	}
}

// sendTo 编码后放入客户端发送队列
func (h *Hub) sendTo(client *Client, msgType, id string, data interface{}) {
	payload, err := Encode(msgType, id, data)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.String("type", msgType), zap.Error(err))
		return
	}
	logger.LogWebSocketMessage("send", msgType, data)

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.clients[client.ID] != client {
		return
	}
	select {
	case client.send <- payload:
	default:
		h.logger.Warn("客户端发送缓冲区满",
			zap.String("client_id", client.ID),
			zap.String("type", msgType),
		)
	}
}

// GetOnlineCount 获取在线连接数
func (h *Hub) GetOnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize 对局房间内的连接数
func (h *Hub) RoomSize(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[gameID])
}
