package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Taiters/coup-clone/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 服务内的日志模块，未配置单独级别时跟随全局级别
const (
	ModuleGame      = "game"
	ModuleWebSocket = "websocket"
	ModuleDatabase  = "database"
	ModuleBroker    = "broker"
	ModuleCache     = "cache"
	ModuleSession   = "session"
	ModuleHTTP      = "http"
)

var (
	logger   *zap.Logger
	fallback *zap.Logger
	once     sync.Once
	mu       sync.RWMutex
	level    = zap.NewAtomicLevel()

	encoder zapcore.Encoder
	output  zapcore.WriteSyncer

	// 模块日志器及其可热更新的级别
	moduleLoggers map[string]*zap.Logger
	moduleLevels  map[string]zap.AtomicLevel
)

// Init 初始化日志系统，重复调用无效
func Init(cfg *config.LogConfig) error {
	var err error
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()

		moduleLoggers = make(map[string]*zap.Logger)
		moduleLevels = make(map[string]zap.AtomicLevel)
		level.SetLevel(parseLevel(cfg.Level))

		encoderConfig := zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}
		if cfg.Format == "json" {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		} else {
			encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		}

		var sinks []zapcore.WriteSyncer
		var cores []zapcore.Core
		if cfg.Output == "stdout" || cfg.Output == "both" {
			sinks = append(sinks, zapcore.AddSync(os.Stdout))
		}
		if cfg.Output == "file" || cfg.Output == "both" {
			if err = os.MkdirAll(cfg.File.Path, 0755); err != nil {
				return
			}
			sinks = append(sinks, zapcore.AddSync(rotating(cfg.File, cfg.File.Filename)))
			// error 级别另写一份
			cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotating(cfg.File, "error.log")), zapcore.ErrorLevel))
		}
		if len(sinks) == 0 {
			sinks = append(sinks, zapcore.AddSync(os.Stdout))
		}
		output = zapcore.NewMultiWriteSyncer(sinks...)
		cores = append(cores, zapcore.NewCore(encoder, output, level))

		logger = zap.New(
			zapcore.NewTee(cores...),
			zap.AddCaller(),
			zap.AddCallerSkip(1),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
		for module, levelStr := range cfg.Modules {
			moduleLevels[module] = zap.NewAtomicLevelAt(parseLevel(levelStr))
		}
	})
	return err
}

func rotating(cfg config.LogFileConfig, filename string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Path, filename),
		MaxSize:    cfg.MaxSize, // MB
		MaxAge:     cfg.MaxAge,  // days
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
}

func parseLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// GetLogger 获取全局日志器，未初始化时退回 zap 生产配置
func GetLogger() *zap.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if fallback == nil {
		fallback, _ = zap.NewProduction(zap.AddCallerSkip(1))
	}
	return fallback
}

// GetModuleLogger 获取模块日志器，首次获取时创建并缓存
func GetModuleLogger(module string) *zap.Logger {
	mu.RLock()
	l, ok := moduleLoggers[module]
	ready := logger != nil
	mu.RUnlock()
	if ok {
		return l
	}
	if !ready {
		return GetLogger().With(zap.String("module", module))
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := moduleLoggers[module]; ok {
		return l
	}
	lvl, ok := moduleLevels[module]
	if !ok {
		lvl = level
	}
	l = zap.New(
		zapcore.NewCore(encoder, output, lvl),
		zap.AddCaller(),
	).With(zap.String("module", module))
	moduleLoggers[module] = l
	return l
}

// Sync 同步日志缓冲区
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if logger != nil {
		return logger.Sync()
	}
	return nil
}

func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Fatal 输出致命错误日志并退出程序
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// LogRequest 记录HTTP请求
func LogRequest(method, path string, statusCode int, latency time.Duration, clientIP string) {
	GetModuleLogger(ModuleHTTP).Info("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", statusCode),
		zap.Duration("latency", latency),
		zap.String("client_ip", clientIP),
	)
}

// LogPanic 记录被恢复的panic
func LogPanic(recovered interface{}, stack []byte) {
	GetLogger().Error("panic recovered",
		zap.Any("panic", recovered),
		zap.ByteString("stack", stack),
	)
}

// LogGameEvent 记录一次已提交的意图
func LogGameEvent(intent, gameID string, fields ...zap.Field) {
	GetModuleLogger(ModuleGame).Info("game_event",
		append([]zap.Field{zap.String("intent", intent), zap.String("game_id", gameID)}, fields...)...,
	)
}

// LogWebSocketMessage direction 为 send 或 receive
func LogWebSocketMessage(direction string, messageType string, payload interface{}) {
	GetModuleLogger(ModuleWebSocket).Debug("ws_message",
		zap.String("direction", direction),
		zap.String("type", messageType),
		zap.Any("payload", payload),
	)
}

// LogBrokerMessage action 为 publish 或 receive
func LogBrokerMessage(subject string, action string, size int) {
	GetModuleLogger(ModuleBroker).Debug("broker_message",
		zap.String("subject", subject),
		zap.String("action", action),
		zap.Int("size", size),
	)
}

// LogDatabaseOperation 记录一次存储写入，失败时升为 error
func LogDatabaseOperation(operation string, gameID string, duration time.Duration, err error) {
	l := GetModuleLogger(ModuleDatabase)
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("game_id", gameID),
		zap.Duration("duration", duration),
	}
	if err != nil {
		l.Error("database_operation_failed", append(fields, zap.Error(err))...)
		return
	}
	l.Debug("database_operation", fields...)
}

// SetLevel 热更新全局级别，modules 中列出的模块单独更新
func SetLevel(levelStr string, modules map[string]string) {
	level.SetLevel(parseLevel(levelStr))

	mu.Lock()
	defer mu.Unlock()
	for module, levelStr := range modules {
		if lvl, ok := moduleLevels[module]; ok {
			lvl.SetLevel(parseLevel(levelStr))
			continue
		}
		if moduleLevels == nil {
			continue
		}
		// 新增的模块级别只对之后创建的日志器生效
		moduleLevels[module] = zap.NewAtomicLevelAt(parseLevel(levelStr))
		delete(moduleLoggers, module)
	}
}

// Cleanup 退出前刷新缓冲区
func Cleanup() {
	if err := Sync(); err != nil {
		fmt.Printf("Failed to sync logger: %v\n", err)
	}
}
