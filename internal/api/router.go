package api

import (
	"context"
	"net/http"
	"time"

	"github.com/Taiters/coup-clone/internal/cache"
	"github.com/Taiters/coup-clone/internal/config"
	"github.com/Taiters/coup-clone/internal/coup"
	"github.com/Taiters/coup-clone/internal/game"
	"github.com/Taiters/coup-clone/internal/logger"
	"github.com/Taiters/coup-clone/internal/middleware"
	"github.com/Taiters/coup-clone/internal/repository"
	"github.com/Taiters/coup-clone/internal/service"
	ws "github.com/Taiters/coup-clone/internal/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Games 协调器提供给HTTP层的能力
type Games interface {
	Dispatch(ctx context.Context, caller game.Caller, in game.Intent) (*game.Result, error)
	Snapshot(ctx context.Context, gameID string) (*coup.Game, error)
	Events(ctx context.Context, gameID string, afterID uint, limit int) ([]coup.Event, error)
	ListLobbies(ctx context.Context, p *repository.Pagination) ([]repository.LobbySummary, error)
}

// HealthCheck 命名的健康检查项
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Options 路由依赖，Cache 与 Hub 可为空
type Options struct {
	Games    Games
	Sessions service.SessionService
	Hub      *ws.Hub
	Intents  *ws.IntentHandler
	Cache    cache.GameCache
	Checks   []HealthCheck
	Config   *config.Config
	Logger   *zap.Logger
}

// Router API路由器
type Router struct {
	engine         *gin.Engine
	checks         []HealthCheck
	sessionHandler *SessionHandler
	gameHandler    *GameHandler
	wsHandler      *WebSocketHandler
	sessionAuth    *middleware.SessionMiddleware
	wsPath         string
	log            *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(opts *Options) *Router {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetModuleLogger(logger.ModuleHTTP)
	}

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestLogger())

	wsPath := cfg.WebSocket.Path
	if wsPath == "" {
		wsPath = "/ws"
	}

	r := &Router{
		engine:         engine,
		checks:         opts.Checks,
		sessionHandler: NewSessionHandler(opts.Sessions),
		gameHandler:    NewGameHandler(opts.Games, opts.Hub, opts.Cache, cfg.Server.PublicURL, cfg.Game.IDLength, log),
		sessionAuth:    middleware.NewSessionMiddleware(opts.Sessions),
		wsPath:         wsPath,
		log:            log,
	}
	if opts.Hub != nil && opts.Intents != nil {
		r.wsHandler = NewWebSocketHandler(opts.Hub, opts.Intents, opts.Sessions, &cfg.WebSocket, log)
	}

	r.setupRoutes()
	return r
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)

	v1 := r.engine.Group("/api/v1")
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", r.sessionHandler.Create)
			sessions.POST("/resume", r.sessionHandler.Resume)
			sessions.GET("/me", r.sessionAuth.RequireSession(), r.sessionHandler.Me)
		}

		games := v1.Group("/games")
		{
			games.GET("", r.gameHandler.ListLobbies)
			games.GET("/:id", r.sessionAuth.OptionalSession(), r.gameHandler.GetGame)
			games.GET("/:id/summary", r.gameHandler.GetSummary)
			games.GET("/:id/events", r.gameHandler.GetEvents)
			games.GET("/:id/qrcode", r.gameHandler.GetQRCode)

			seated := games.Group("")
			seated.Use(r.sessionAuth.RequireSession())
			{
				seated.POST("", r.gameHandler.CreateGame)
				seated.POST("/:id/join", r.gameHandler.JoinGame)
			}
		}

		v1.POST("/intents", r.sessionAuth.RequireSession(), r.gameHandler.SubmitIntent)
	}

	if r.wsHandler != nil {
		r.engine.GET(r.wsPath, r.wsHandler.Connect)
	}

	// 静态文件服务
	r.engine.Static("/static", "./static")

	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查，逐项报告依赖状态
func (r *Router) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(r.checks))
	for _, hc := range r.checks {
		if err := hc.Check(ctx); err != nil {
			r.log.Warn("健康检查失败", zap.String("check", hc.Name), zap.Error(err))
			checks[hc.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[hc.Name] = "ok"
	}

	if status != http.StatusOK {
		c.JSON(status, gin.H{
			"status":  "unhealthy",
			"message": "依赖服务不可用",
			"checks":  checks,
		})
		return
	}
	c.JSON(status, gin.H{
		"status":  "healthy",
		"message": "服务运行正常",
		"checks":  checks,
	})
}

// Handler 用于 http.Server
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
