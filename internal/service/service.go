package service

import (
	"time"

	"github.com/Taiters/coup-clone/internal/config"
	"github.com/Taiters/coup-clone/internal/utils"
	"go.uber.org/zap"
)

// Config 服务配置
type Config struct {
	JWTSecret     string
	TokenExpiry   time.Duration
	IdleTimeout   time.Duration
	TouchInterval time.Duration
	Now           func() time.Time
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		JWTSecret:     "change-me-in-production",
		TokenExpiry:   24 * time.Hour,
		IdleTimeout:   24 * time.Hour,
		TouchInterval: time.Minute,
	}
}

// ConfigFrom 从全局配置构建服务配置
func ConfigFrom(c *config.Config) *Config {
	cfg := DefaultConfig()
	if c.Security.JWT.Secret != "" {
		cfg.JWTSecret = c.Security.JWT.Secret
	}
	if c.Security.JWT.ExpireHours > 0 {
		cfg.TokenExpiry = time.Duration(c.Security.JWT.ExpireHours) * time.Hour
	}
	if c.Session.IdleTimeout > 0 {
		cfg.IdleTimeout = c.Session.IdleTimeout
	}
	return cfg
}

// Services 服务集合
type Services struct {
	Session SessionService
}

// NewServices 创建服务集合
func NewServices(store SessionStore, cfg *Config, log *zap.Logger) *Services {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	jwtManager := utils.NewJWTManager(cfg.JWTSecret, cfg.TokenExpiry)

	return &Services{
		Session: NewSessionService(store, jwtManager, cfg, log),
	}
}
