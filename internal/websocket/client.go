package websocket

import (
	"time"

	"github.com/Taiters/coup-clone/internal/config"
	"github.com/Taiters/coup-clone/internal/game"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Options 连接参数
type Options struct {
	// 写超时
	WriteWait time.Duration
	// 读取pong超时
	PongWait time.Duration
	// ping发送周期，必须小于 PongWait
	PingPeriod time.Duration
	// 最大消息大小
	MaxMessageSize int64
	// 发送队列长度
	SendBuffer int
}

// DefaultOptions 默认连接参数
func DefaultOptions() Options {
	return Options{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 8 * 1024,
		SendBuffer:     64,
	}
}

// OptionsFrom 从配置构建连接参数
func OptionsFrom(cfg *config.WebSocketConfig) Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteWait = cfg.WriteTimeout
	}
	if cfg.PongTimeout > 0 {
		opts.PongWait = cfg.PongTimeout
	}
	if cfg.PingInterval > 0 && cfg.PingInterval < opts.PongWait {
		opts.PingPeriod = cfg.PingInterval
	} else {
		opts.PingPeriod = (opts.PongWait * 9) / 10
	}
	if cfg.MaxMessageSize > 0 {
		opts.MaxMessageSize = cfg.MaxMessageSize
	}
	return opts
}

// MessageHandler 客户端消息处理器
type MessageHandler interface {
	HandleClientMessage(c *Client, data []byte)
}

// Client WebSocket客户端，caller 与 room 由 Hub 的锁保护
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	opts Options

	caller game.Caller
	room   string
}

// NewClient 创建新客户端
func NewClient(hub *Hub, conn *websocket.Conn, caller game.Caller, opts Options) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultOptions().SendBuffer
	}
	return &Client{
		ID:     uuid.New().String(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, opts.SendBuffer),
		opts:   opts,
		caller: caller,
	}
}

// Caller 当前入座信息
func (c *Client) Caller() game.Caller {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	return c.caller
}

// Send 向客户端发送消息
func (c *Client) Send(msgType, id string, data interface{}) {
	c.hub.sendTo(c, msgType, id, data)
}

// SendError 发送结构化拒绝
func (c *Client) SendError(id string, err error) {
	c.hub.sendTo(c, MessageTypeError, id, NewErrorPayload(err))
}

// ReadPump 读取消息，返回时注销客户端
func (c *Client) ReadPump(handler MessageHandler) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket读取错误",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			return
		}
		handler.HandleClientMessage(c, message)
	}
}

// WritePump 写入消息并定时发送ping
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				// Hub关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
