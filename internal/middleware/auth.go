package middleware

import (
	"context"
	"strings"

	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/game"
	"github.com/gin-gonic/gin"
)

const (
	callerKey = "caller"
	tokenKey  = "token"
)

// Authenticator 令牌到调用方身份的解析
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (game.Caller, error)
}

// SessionMiddleware 会话认证中间件
type SessionMiddleware struct {
	auth Authenticator
}

// NewSessionMiddleware 创建会话认证中间件
func NewSessionMiddleware(auth Authenticator) *SessionMiddleware {
	return &SessionMiddleware{
		auth: auth,
	}
}

// RequireSession 需要有效会话的中间件
func (m *SessionMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			AbortWithError(c, errors.New(errors.ErrAuthentication, "缺少会话令牌"))
			return
		}

		caller, err := m.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(callerKey, caller)
		c.Set(tokenKey, token)
		c.Next()
	}
}

// OptionalSession 可选会话，令牌无效时按匿名处理
func (m *SessionMiddleware) OptionalSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := ExtractToken(c); token != "" {
			if caller, err := m.auth.Authenticate(c.Request.Context(), token); err == nil {
				c.Set(callerKey, caller)
				c.Set(tokenKey, token)
			}
		}
		c.Next()
	}
}

// ExtractToken 从请求中提取令牌
func ExtractToken(c *gin.Context) string {
	// 1. Authorization: Bearer
	bearerToken := c.GetHeader("Authorization")
	if bearerToken != "" {
		parts := strings.Split(bearerToken, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
	}

	// 2. X-Session-Token
	if token := c.GetHeader("X-Session-Token"); token != "" {
		return token
	}

	// 3. Cookie
	if token, err := c.Cookie("session_token"); err == nil && token != "" {
		return token
	}

	// 4. Query参数，浏览器 WebSocket 无法设置请求头
	if token := c.Query("token"); token != "" {
		return token
	}

	return ""
}

// GetCaller 从上下文获取调用方
func GetCaller(c *gin.Context) (game.Caller, bool) {
	if v, exists := c.Get(callerKey); exists {
		if caller, ok := v.(game.Caller); ok {
			return caller, true
		}
	}
	return game.Caller{}, false
}

// SetCaller 更新上下文中的调用方，入座状态变化后使用
func SetCaller(c *gin.Context, caller game.Caller) {
	c.Set(callerKey, caller)
}

// AbortWithError 以统一的错误响应结束请求
func AbortWithError(c *gin.Context, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.Wrap(err, errors.ErrUnknown)
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus(), errors.NewErrorResponse(appErr, c.GetHeader("X-Request-ID")))
}
