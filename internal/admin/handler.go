package admin

import (
	"errors"
	"net/http"

	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const UserIDKey = "adminUserID"

// Middleware 要求请求携带管理员的Bearer令牌
func Middleware(a *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := a.RequireAdmin(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			status, msg := statusFor(err)
			if status == http.StatusInternalServerError {
				logger.ErrorCtx(c.Request.Context(), "管理员角色校验失败", zap.Error(err))
			} else {
				logger.DebugCtx(c.Request.Context(), "管理员鉴权未通过", zap.Error(err))
			}
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrMissingToken):
		return http.StatusUnauthorized, "Missing bearer token"
	case errors.Is(err, ErrInvalidSession):
		return http.StatusUnauthorized, "Invalid session"
	case errors.Is(err, ErrNotAdmin):
		return http.StatusForbidden, "Admin access required"
	default:
		return http.StatusInternalServerError, "Failed to verify role"
	}
}

// UserID 返回经过 Middleware 认证的用户ID
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// Me 处理 GET /api/admin/me
func Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"isAdmin": true, "userId": UserID(c)})
}
