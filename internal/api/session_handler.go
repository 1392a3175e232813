package api

import (
	"net/http"

	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/middleware"
	"github.com/Taiters/coup-clone/internal/service"
	"github.com/gin-gonic/gin"
)

// SessionHandler 匿名会话处理器
type SessionHandler struct {
	sessions service.SessionService
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(sessions service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// SessionInfo 当前会话与入座信息
type SessionInfo struct {
	SessionID string `json:"session_id"`
	GameID    string `json:"game_id,omitempty"`
	PlayerID  uint   `json:"player_id,omitempty"`
}

// Create 创建匿名会话
// @Summary 创建会话
// @Description 签发会话令牌与恢复密钥，恢复密钥只返回这一次
// @Tags Session
// @Produce json
// @Success 201 {object} service.SessionGrant
// @Router /api/v1/sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	grant, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, grant)
}

// Resume 用恢复密钥重新签发令牌
// @Summary 恢复会话
// @Tags Session
// @Accept json
// @Produce json
// @Param request body service.ResumeRequest true "会话ID与恢复密钥"
// @Success 200 {object} service.SessionGrant
// @Failure 401 {object} errors.ErrorResponse
// @Router /api/v1/sessions/resume [post]
func (h *SessionHandler) Resume(c *gin.Context) {
	var req service.ResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, errors.Wrap(err, errors.ErrInvalidParam, "请求参数错误"))
		return
	}
	grant, err := h.sessions.Resume(c.Request.Context(), &req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, grant)
}

// Me 当前会话
// @Summary 当前会话
// @Tags Session
// @Security Bearer
// @Produce json
// @Success 200 {object} SessionInfo
// @Router /api/v1/sessions/me [get]
func (h *SessionHandler) Me(c *gin.Context) {
	caller, _ := middleware.GetCaller(c)
	c.JSON(http.StatusOK, &SessionInfo{
		SessionID: caller.SessionID,
		GameID:    caller.GameID,
		PlayerID:  caller.PlayerID,
	})
}
