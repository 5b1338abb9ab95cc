package middleware

import (
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-Id"

// RequestID 为每个请求注入并返回一个 X-Request-Id，并写入请求ctx供日志使用
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), id))
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
