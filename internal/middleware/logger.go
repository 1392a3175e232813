package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/Taiters/coup-clone/internal/errors"
	"github.com/Taiters/coup-clone/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestID 为每个请求分配ID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
			c.Request.Header.Set("X-Request-ID", id)
		}
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// RequestLogger 访问日志
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.LogRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}

// Recovery 捕获 panic 并记录堆栈
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.LogPanic(r, debug.Stack())
				appErr := errors.New(errors.ErrUnknown, "服务器内部错误")
				c.AbortWithStatusJSON(http.StatusInternalServerError, errors.NewErrorResponse(appErr, c.GetHeader("X-Request-ID")))
			}
		}()
		c.Next()
	}
}
