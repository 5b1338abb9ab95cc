package wheel

import (
	"errors"
	"net/http"

	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const contextKey = "wheel"

// Handler 暴露轮盘相关的HTTP接口
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// StatusFor 把轮盘查询错误映射为HTTP状态码和对外消息
func StatusFor(err error) (int, string) {
	var ve *ValidationError
	switch {
	case errors.Is(err, ErrSlugRequired):
		return http.StatusBadRequest, "Wheel slug is required"
	case errors.Is(err, ErrWheelNotFound):
		return http.StatusNotFound, "Wheel not found"
	case errors.Is(err, ErrWheelInactive):
		return http.StatusNotFound, "Wheel is not active"
	case errors.Is(err, ErrSlugTaken):
		return http.StatusBadRequest, "Slug already exists"
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Message
	default:
		return http.StatusInternalServerError, "Failed to load wheel"
	}
}

func abortWithError(c *gin.Context, err error) {
	status, msg := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorCtx(c.Request.Context(), "轮盘请求失败", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// RequireWheel 按查询参数 ?wheel=<slug> 加载轮盘并放入gin上下文。
// activeOnly 为 true 时停用的轮盘返回404。
func RequireWheel(svc *Service, activeOnly bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		slug := c.Query("wheel")
		var (
			w   *Wheel
			err error
		)
		if activeOnly {
			w, err = svc.ActiveBySlug(c.Request.Context(), slug)
		} else {
			w, err = svc.BySlug(c.Request.Context(), slug)
		}
		if err != nil {
			abortWithError(c, err)
			return
		}
		SetContext(c, w)
		c.Next()
	}
}

// SetContext 把轮盘放入gin上下文
func SetContext(c *gin.Context, w *Wheel) {
	c.Set(contextKey, w)
}

// FromContext 取出 RequireWheel 放入的轮盘
func FromContext(c *gin.Context) *Wheel {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil
	}
	w, _ := v.(*Wheel)
	return w
}

// Lookup 处理 GET /api/wheels/lookup?slug=
func (h *Handler) Lookup(c *gin.Context) {
	w, err := h.svc.ActiveBySlug(c.Request.Context(), c.Query("slug"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wheel": w})
}

// List 处理 GET /api/admin/wheels
func (h *Handler) List(c *gin.Context) {
	wheels, err := h.svc.List(c.Request.Context())
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "查询轮盘列表失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load wheels"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"wheels": wheels})
}

type createRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Create 处理 POST /api/admin/wheels
func (h *Handler) Create(c *gin.Context) {
	var body createRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	w, err := h.svc.Create(c.Request.Context(), body.Name, body.Slug)
	if err != nil {
		status, msg := StatusFor(err)
		if status == http.StatusInternalServerError {
			logger.ErrorCtx(c.Request.Context(), "创建轮盘失败", zap.Error(err))
			msg = "Failed to create wheel"
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}
	logger.InfoCtx(c.Request.Context(), "轮盘已创建", zap.String("wheelId", w.ID), zap.String("slug", w.Slug))
	c.JSON(http.StatusCreated, gin.H{"wheel": w})
}

type updateRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

// Update 处理 PATCH /api/admin/wheels/:id，目前只支持启用/停用
func (h *Handler) Update(c *gin.Context) {
	var body updateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "isActive is required"})
		return
	}
	w, err := h.svc.SetActive(c.Request.Context(), c.Param("id"), *body.IsActive)
	if err != nil {
		abortWithError(c, err)
		return
	}
	logger.InfoCtx(c.Request.Context(), "轮盘状态已更新", zap.String("wheelId", w.ID), zap.Bool("active", w.IsActive))
	c.JSON(http.StatusOK, gin.H{"wheel": w})
}
