package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery 捕获所有未处理的 panic，防止进程崩溃
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				// 记录 panic 信息和堆栈
				logger.ErrorCtx(c.Request.Context(), "panic recovered",
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("error", err),
					zap.String("stack", string(debug.Stack())))

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   "Internal server error",
					"traceId": logger.GetTraceID(c.Request.Context()),
				})
			}
		}()
		c.Next()
	}
}
