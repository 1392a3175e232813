package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Taiters/coup-clone/internal/cache"
	"github.com/Taiters/coup-clone/internal/coup"
	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/game"
	"github.com/Taiters/coup-clone/internal/middleware"
	"github.com/Taiters/coup-clone/internal/repository"
	"github.com/Taiters/coup-clone/internal/utils"
	ws "github.com/Taiters/coup-clone/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024
	maxEventLimit = 200
)

// GameHandler 对局处理器
type GameHandler struct {
	games     Games
	hub       *ws.Hub
	cache     cache.GameCache
	publicURL string
	idLength  int
	logger    *zap.Logger
}

// NewGameHandler 创建对局处理器
func NewGameHandler(games Games, hub *ws.Hub, gameCache cache.GameCache, publicURL string, idLength int, log *zap.Logger) *GameHandler {
	return &GameHandler{
		games:     games,
		hub:       hub,
		cache:     gameCache,
		publicURL: strings.TrimRight(publicURL, "/"),
		idLength:  idLength,
		logger:    log,
	}
}

// NameRequest 创建或加入对局时的昵称
type NameRequest struct {
	Name string `json:"name"`
}

// IntentResponse 意图处理结果，Game 为调用方视角
type IntentResponse struct {
	Intent   game.IntentKind `json:"intent"`
	GameID   string          `json:"game_id,omitempty"`
	PlayerID uint            `json:"player_id,omitempty"`
	Deleted  bool            `json:"deleted,omitempty"`
	Game     *coup.GameView  `json:"game,omitempty"`
}

// LobbyListResponse 大厅列表
type LobbyListResponse struct {
	Lobbies    []repository.LobbySummary `json:"lobbies"`
	Pagination *repository.Pagination    `json:"pagination"`
	HasMore    bool                      `json:"has_more"`
}

// ListLobbies 等待开局的对局
// @Summary 大厅列表
// @Tags Game
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} LobbyListResponse
// @Router /api/v1/games [get]
func (h *GameHandler) ListLobbies(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	p := repository.NewPagination(page, pageSize)

	lobbies, err := h.games.ListLobbies(c.Request.Context(), p)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	if lobbies == nil {
		lobbies = []repository.LobbySummary{}
	}
	c.JSON(http.StatusOK, &LobbyListResponse{Lobbies: lobbies, Pagination: p, HasMore: p.HasMore()})
}

// CreateGame 创建对局并作为房主入座
// @Summary 创建对局
// @Tags Game
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body NameRequest false "昵称"
// @Success 201 {object} IntentResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /api/v1/games [post]
func (h *GameHandler) CreateGame(c *gin.Context) {
	var req NameRequest
	if !h.bindOptional(c, &req) {
		return
	}
	h.dispatch(c, http.StatusCreated, game.Intent{Kind: game.IntentCreateGame, Name: req.Name})
}

// JoinGame 加入大厅中的对局
// @Summary 加入对局
// @Tags Game
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path string true "对局ID"
// @Param request body NameRequest false "昵称"
// @Success 200 {object} IntentResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /api/v1/games/{id}/join [post]
func (h *GameHandler) JoinGame(c *gin.Context) {
	gameID, ok := h.gameID(c)
	if !ok {
		return
	}
	var req NameRequest
	if !h.bindOptional(c, &req) {
		return
	}
	h.dispatch(c, http.StatusOK, game.Intent{Kind: game.IntentJoinGame, GameID: gameID, Name: req.Name})
}

// SubmitIntent 提交任意玩家意图
// @Summary 提交意图
// @Tags Game
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body game.Intent true "意图"
// @Success 200 {object} IntentResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /api/v1/intents [post]
func (h *GameHandler) SubmitIntent(c *gin.Context) {
	var in game.Intent
	if err := c.ShouldBindJSON(&in); err != nil {
		middleware.AbortWithError(c, errors.Wrap(err, errors.ErrMessageFormat, "意图格式错误"))
		return
	}
	h.dispatch(c, http.StatusOK, in)
}

func (h *GameHandler) dispatch(c *gin.Context, status int, in game.Intent) {
	caller, _ := middleware.GetCaller(c)
	res, err := h.games.Dispatch(c.Request.Context(), caller, in)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	next := res.Caller(caller.SessionID)
	if next != caller {
		middleware.SetCaller(c, next)
		// 同一会话的 WebSocket 连接跟随入座状态
		if h.hub != nil {
			h.hub.Rebind(next, res.Game)
		}
	}
	c.JSON(status, &IntentResponse{
		Intent:   in.Kind,
		GameID:   res.GameID,
		PlayerID: res.PlayerID,
		Deleted:  res.Deleted,
		Game:     res.View(),
	})
}

// GetGame 对局视图，已入座的调用方能看到自己的手牌
// @Summary 对局视图
// @Tags Game
// @Produce json
// @Param id path string true "对局ID"
// @Success 200 {object} coup.GameView
// @Failure 404 {object} errors.ErrorResponse
// @Router /api/v1/games/{id} [get]
func (h *GameHandler) GetGame(c *gin.Context) {
	gameID, ok := h.gameID(c)
	if !ok {
		return
	}
	g, err := h.games.Snapshot(c.Request.Context(), gameID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	var viewer uint
	if caller, ok := middleware.GetCaller(c); ok && caller.GameID == gameID {
		viewer = caller.PlayerID
	}
	c.JSON(http.StatusOK, g.View(viewer))
}

// GetSummary 公开视图，优先读缓存
// @Summary 对局公开视图
// @Tags Game
// @Produce json
// @Param id path string true "对局ID"
// @Success 200 {object} coup.GameView
// @Router /api/v1/games/{id}/summary [get]
func (h *GameHandler) GetSummary(c *gin.Context) {
	gameID, ok := h.gameID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if h.cache != nil {
		view, err := h.cache.Get(ctx, gameID)
		if err != nil {
			h.logger.Warn("读取对局缓存失败，回退到存储", zap.String("game_id", gameID), zap.Error(err))
		} else if view != nil {
			c.Header("X-Cache", "HIT")
			c.JSON(http.StatusOK, view)
			return
		}
	}

	g, err := h.games.Snapshot(ctx, gameID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	view := g.View(0)
	if h.cache != nil {
		if err := h.cache.Set(ctx, &view); err != nil {
			h.logger.Warn("写入对局缓存失败", zap.String("game_id", gameID), zap.Error(err))
		}
	}
	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, &view)
}

// GetEvents 对局日志，after 之后的条目
// @Summary 对局日志
// @Tags Game
// @Produce json
// @Param id path string true "对局ID"
// @Param after query int false "起始日志ID（不含）"
// @Param limit query int false "条数上限"
// @Success 200 {array} coup.Event
// @Router /api/v1/games/{id}/events [get]
func (h *GameHandler) GetEvents(c *gin.Context) {
	gameID, ok := h.gameID(c)
	if !ok {
		return
	}
	after, err := strconv.ParseUint(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil {
		middleware.AbortWithError(c, errors.New(errors.ErrInvalidParam, "after 必须是非负整数"))
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		middleware.AbortWithError(c, errors.New(errors.ErrInvalidParam, "limit 必须是正整数"))
		return
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	ctx := c.Request.Context()
	if _, err := h.games.Snapshot(ctx, gameID); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	events, err := h.games.Events(ctx, gameID, uint(after), limit)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	if events == nil {
		events = []coup.Event{}
	}
	c.JSON(http.StatusOK, events)
}

// GetQRCode 加入链接的二维码
// @Summary 加入二维码
// @Tags Game
// @Produce png
// @Param id path string true "对局ID"
// @Param size query int false "边长像素"
// @Success 200 {file} binary
// @Router /api/v1/games/{id}/qrcode [get]
func (h *GameHandler) GetQRCode(c *gin.Context) {
	gameID, ok := h.gameID(c)
	if !ok {
		return
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(defaultQRSize)))
	if err != nil || size <= 0 || size > maxQRSize {
		middleware.AbortWithError(c, errors.Newf(errors.ErrInvalidParam, "size 取值范围 1-%d", maxQRSize))
		return
	}
	if _, err := h.games.Snapshot(c.Request.Context(), gameID); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	png, err := qrcode.Encode(h.joinURL(c, gameID), qrcode.Medium, size)
	if err != nil {
		middleware.AbortWithError(c, errors.Wrap(err, errors.ErrUnknown, "生成二维码失败"))
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "image/png", png)
}

// joinURL 未配置公开地址时使用请求的 Host
func (h *GameHandler) joinURL(c *gin.Context, gameID string) string {
	base := h.publicURL
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}
	return base + "/game/" + gameID
}

func (h *GameHandler) gameID(c *gin.Context) (string, bool) {
	id := strings.ToLower(c.Param("id"))
	if !utils.ValidGameID(id, h.idLength) {
		middleware.AbortWithError(c, errors.Newf(errors.ErrGameNotFound, "对局 %s 不存在", c.Param("id")))
		return "", false
	}
	return id, true
}

// bindOptional 请求体可以为空
func (h *GameHandler) bindOptional(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.AbortWithError(c, errors.Wrap(err, errors.ErrInvalidParam, "请求参数错误"))
		return false
	}
	return true
}
