package api

import (
	"net/http"

	"github.com/Taiters/coup-clone/internal/config"
	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/middleware"
	"github.com/Taiters/coup-clone/internal/service"
	ws "github.com/Taiters/coup-clone/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler WebSocket处理器
type WebSocketHandler struct {
	hub      *ws.Hub
	intents  *ws.IntentHandler
	sessions service.SessionService
	upgrader websocket.Upgrader
	opts     ws.Options
	logger   *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(hub *ws.Hub, intents *ws.IntentHandler, sessions service.SessionService, cfg *config.WebSocketConfig, logger *zap.Logger) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:    cfg.ReadBufferSize,
		WriteBufferSize:   cfg.WriteBufferSize,
		EnableCompression: cfg.EnableCompression,
		CheckOrigin: func(r *http.Request) bool {
			// 身份由会话令牌保证，不限制来源
			return true
		},
	}
	return &WebSocketHandler{
		hub:      hub,
		intents:  intents,
		sessions: sessions,
		upgrader: upgrader,
		opts:     ws.OptionsFrom(cfg),
		logger:   logger,
	}
}

// Connect 建立游戏连接，令牌在升级前校验
// @Summary WebSocket连接
// @Tags Realtime
// @Param token query string true "会话令牌"
// @Success 101
// @Failure 401 {object} errors.ErrorResponse
// @Router /ws [get]
func (h *WebSocketHandler) Connect(c *gin.Context) {
	token := middleware.ExtractToken(c)
	if token == "" {
		middleware.AbortWithError(c, errors.New(errors.ErrAuthentication, "缺少会话令牌"))
		return
	}
	caller, err := h.sessions.Authenticate(c.Request.Context(), token)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败",
			zap.String("session_id", caller.SessionID),
			zap.Error(err))
		return
	}

	client := ws.NewClient(h.hub, conn, caller, h.opts)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump(h.intents)

	h.logger.Info("WebSocket连接建立",
		zap.String("client_id", client.ID),
		zap.String("session_id", caller.SessionID),
		zap.String("game_id", caller.GameID))
}
