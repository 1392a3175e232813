package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/Taiters/coup-clone/internal/api"
	"github.com/Taiters/coup-clone/internal/broker"
	"github.com/Taiters/coup-clone/internal/cache"
	"github.com/Taiters/coup-clone/internal/config"
	"github.com/Taiters/coup-clone/internal/database"
	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/game"
	"github.com/Taiters/coup-clone/internal/logger"
	"github.com/Taiters/coup-clone/internal/repository"
	"github.com/Taiters/coup-clone/internal/service"
	ws "github.com/Taiters/coup-clone/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	db          *gorm.DB
	redis       *redis.Client
	nats        *nats.Conn
	intentSub   *nats.Subscription
	coordinator *game.Coordinator
	sessions    service.SessionService
	hub         *ws.Hub
	httpServer  *http.Server

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		envFile     = flag.String("env", ".env", "环境变量文件")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}
	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	// .env 不存在时忽略，已有的环境变量优先
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Printf("加载环境变量文件失败: %v\n", err)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	setupSystem(&cfg.System)
	printStartInfo(cfg)

	server := NewServer(cfg)
	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 初始化组件并开始监听
func (s *Server) Start() error {
	s.logger.Info("正在启动 Coup 对局服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	if err := s.initComponents(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "初始化组件失败")
	}
	s.startServices()

	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.reloadConfig(newCfg)
	})

	s.logger.Info("服务器启动成功",
		zap.String("http", s.httpServer.Addr),
		zap.String("websocket", s.cfg.WebSocket.Path),
	)
	return nil
}

// initComponents 按依赖顺序初始化：存储、缓存、总线、协调器、路由
func (s *Server) initComponents() error {
	store, sessionStore, err := s.initStore()
	if err != nil {
		return err
	}

	checks := []api.HealthCheck{}
	if s.db != nil {
		checks = append(checks, api.HealthCheck{Name: "database", Check: s.pingDatabase})
	}

	s.hub = ws.NewHub(logger.GetModuleLogger(logger.ModuleWebSocket))
	notifiers := game.Notifiers{s.hub}

	var gameCache cache.GameCache
	if s.cfg.Redis.Enabled {
		client, err := cache.NewClient(s.ctx, &s.cfg.Redis)
		if err != nil {
			// 缓存只用于读加速，不可用时降级
			s.logger.Warn("Redis不可用，已禁用对局缓存", zap.Error(err))
		} else {
			s.redis = client
			gameCache = cache.NewGameCache(client, s.cfg.Redis.TTL)
			notifiers = append(notifiers, gameCache)
			checks = append(checks, api.HealthCheck{Name: "redis", Check: gameCache.Ping})
		}
	}

	if s.cfg.NATS.Enabled {
		nc, err := broker.Connect(&s.cfg.NATS)
		if err != nil {
			s.logger.Warn("NATS不可用，已禁用事件总线", zap.Error(err))
		} else {
			s.nats = nc
			notifiers = append(notifiers, broker.NewPublisher(nc, s.cfg.NATS.SubjectPrefix))
			checks = append(checks, api.HealthCheck{Name: "nats", Check: s.pingNATS})
		}
	}

	s.coordinator = game.NewCoordinator(&game.Config{
		Store:               store,
		Notifier:            notifiers,
		Logger:              logger.GetModuleLogger(logger.ModuleGame),
		Rules:               game.RulesFrom(&s.cfg.Game),
		ForcedCoupThreshold: s.cfg.Game.ForcedCoupThreshold,
		IDLength:            s.cfg.Game.IDLength,
	})
	s.sessions = service.NewServices(sessionStore, service.ConfigFrom(s.cfg), logger.GetModuleLogger(logger.ModuleSession)).Session
	intents := ws.NewIntentHandler(s.hub, s.coordinator, s.sessions, logger.GetModuleLogger(logger.ModuleWebSocket))

	if s.nats != nil {
		responder := broker.NewIntentResponder(s.nats, broker.IntentSubject(&s.cfg.NATS), s.sessions, s.coordinator)
		sub, err := responder.Start()
		if err != nil {
			return err
		}
		s.intentSub = sub
	}

	if s.cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(&api.Options{
		Games:    s.coordinator,
		Sessions: s.sessions,
		Hub:      s.hub,
		Intents:  intents,
		Cache:    gameCache,
		Checks:   checks,
		Config:   s.cfg,
		Logger:   logger.GetModuleLogger(logger.ModuleHTTP),
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	s.logger.Info("所有组件初始化完成", zap.Int("notifiers", len(notifiers)))
	return nil
}

// initStore 选择对局存储，memory 驱动只用于开发与测试
func (s *Server) initStore() (game.Store, service.SessionStore, error) {
	if s.cfg.Database.Driver == "memory" {
		s.logger.Warn("使用内存存储，重启后对局数据将丢失")
		store := game.NewMemoryStore()
		return store, store, nil
	}

	if err := database.Init(&s.cfg.Database); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}
	s.db = database.GetDB()

	if s.cfg.Database.AutoMigrate {
		s.logger.Info("执行数据库自动迁移...")
		if err := database.AutoMigrate(); err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}
	if !database.IsConnected() {
		return nil, nil, errors.New(errors.ErrDatabaseConnect, "数据库连接检查失败")
	}
	return repository.NewGameRepository(s.db), repository.NewSessionRepository(s.db), nil
}

// startServices 启动后台任务与HTTP服务
func (s *Server) startServices() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run(s.ctx)
	}()

	s.coordinator.StartSweeper(s.ctx, s.cfg.Game.SweepInterval)
	s.sessions.StartCleanup(s.ctx, s.cfg.Session.CleanupInterval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("HTTP服务开始监听", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP服务异常退出", zap.Error(err))
		}
	}()
}

func (s *Server) pingDatabase(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Server) pingNATS(ctx context.Context) error {
	if status := s.nats.Status(); status != nats.CONNECTED {
		return errors.Newf(errors.ErrBrokerConnect, "NATS状态: %s", status)
	}
	return nil
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // kill命令
		syscall.SIGQUIT, // Ctrl+\
	)
	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
}

// Shutdown 优雅关闭：先停止接收请求，再停后台任务，最后关闭连接
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP服务关闭失败", zap.Error(err))
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("所有服务已正常关闭")
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		return errors.New(errors.ErrTimeout, "关闭超时")
	}

	s.closeComponents()

	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}
	return nil
}

// closeComponents 关闭外部连接
func (s *Server) closeComponents() {
	if s.intentSub != nil {
		if err := s.intentSub.Unsubscribe(); err != nil {
			s.logger.Warn("取消意图订阅失败", zap.Error(err))
		}
	}
	if s.nats != nil {
		if err := s.nats.Drain(); err != nil {
			s.logger.Warn("关闭NATS连接失败", zap.Error(err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("关闭Redis连接失败", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := database.Close(); err != nil {
			s.logger.Error("关闭数据库失败", zap.Error(err))
		}
	}
	s.logger.Info("所有组件已关闭")
}

// reloadConfig 热更新：规则只影响之后的意图，日志级别立即生效
func (s *Server) reloadConfig(newCfg *config.Config) {
	s.coordinator.SetRules(game.RulesFrom(&newCfg.Game), newCfg.Game.ForcedCoupThreshold)
	logger.SetLevel(newCfg.Log.Level, newCfg.Log.Modules)
	s.logger.Info("配置重新加载完成")
}

// setupSystem 设置系统参数
func setupSystem(cfg *config.SystemConfig) {
	if cfg.Timezone != "" {
		if loc, err := time.LoadLocation(cfg.Timezone); err == nil {
			time.Local = loc
		}
	}
	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("Coup 对局服务器\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("Coup 对局服务器")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  coup-server [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  COUP_SERVER_PORT            监听端口")
	fmt.Println("  COUP_DATABASE_DRIVER        sqlite | mysql | postgres | memory")
	fmt.Println("  COUP_SECURITY_JWT_SECRET    会话令牌签名密钥")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  coup-server -config=/path/to/config.yaml")
	fmt.Println("  coup-server -version")
}

// printStartInfo 打印启动信息
func printStartInfo(cfg *config.Config) {
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("  Coup 对局服务器  版本: %s | 模式: %s | PID: %d\n", Version, cfg.Server.Mode, os.Getpid())
	fmt.Printf("  数据库: %s | Redis: %t | NATS: %t\n", cfg.Database.Driver, cfg.Redis.Enabled, cfg.NATS.Enabled)
	fmt.Println("═══════════════════════════════════════════════════════════════")
}
