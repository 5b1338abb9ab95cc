package spin

import (
	"errors"
	"net/http"

	"github.com/SlpAus/sparkle-wheel-backend/internal/admin"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"github.com/SlpAus/sparkle-wheel-backend/internal/wheel"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 暴露抽奖生命周期接口
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// statusFor 把抽奖错误映射为HTTP状态码和对外消息，fallback 用于未知错误
func statusFor(err error, fallback string) (int, string) {
	switch {
	case errors.Is(err, ErrSpinIDRequired):
		return http.StatusBadRequest, "spinId is required"
	case errors.Is(err, ErrNoEligibleEntries):
		return http.StatusBadRequest, "No eligible entries to spin"
	case errors.Is(err, ErrSpinNotFound):
		return http.StatusNotFound, "Spin not found"
	case errors.Is(err, ErrLockHeld):
		return http.StatusConflict, "Another spin is currently in progress. Please wait for lock expiry or completion."
	case errors.Is(err, ErrSpinCancelled):
		return http.StatusConflict, "Spin is cancelled"
	case errors.Is(err, ErrSpinFinalized):
		return http.StatusConflict, "Cannot cancel a finalized spin"
	case errors.Is(err, ErrLockConflict):
		return http.StatusConflict, "Another spin holds the wheel lock"
	case errors.Is(err, ErrSnapshotStale):
		return http.StatusConflict, "Spin entries are no longer eligible. Cancel and spin again."
	case errors.Is(err, ErrConcurrentUpdate):
		return http.StatusConflict, "Spin was updated concurrently"
	default:
		return http.StatusInternalServerError, fallback
	}
}

func respondError(c *gin.Context, err error, fallback string) {
	status, msg := statusFor(err, fallback)
	if status == http.StatusInternalServerError {
		logger.ErrorCtx(c.Request.Context(), "抽奖请求失败", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": msg})
}

// Create 处理 POST /api/spin/create?wheel=
func (h *Handler) Create(c *gin.Context) {
	w := wheel.FromContext(c)
	created, err := h.svc.Create(c.Request.Context(), w.ID, admin.UserID(c))
	if err != nil {
		respondError(c, err, "Failed to create spin")
		return
	}
	c.JSON(http.StatusOK, created)
}

type finalizeRequest struct {
	SpinID    string `json:"spinId"`
	Confirmed *bool  `json:"confirmed"`
}

// Finalize 处理 POST /api/spin/finalize?wheel=
func (h *Handler) Finalize(c *gin.Context) {
	w := wheel.FromContext(c)
	var body finalizeRequest
	// 无法解析的请求体按缺少 spinId 处理
	_ = c.ShouldBindJSON(&body)
	confirmed := true
	if body.Confirmed != nil {
		confirmed = *body.Confirmed
	}

	res, err := h.svc.Finalize(c.Request.Context(), w.ID, body.SpinID, confirmed)
	if err != nil {
		respondError(c, err, "Failed to finalize spin")
		return
	}
	if res.AlreadyApplied {
		c.JSON(http.StatusOK, gin.H{"ok": true, "idempotent": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "result": res})
}

type cancelRequest struct {
	SpinID string `json:"spinId"`
}

// Cancel 处理 POST /api/spin/cancel?wheel=
func (h *Handler) Cancel(c *gin.Context) {
	w := wheel.FromContext(c)
	var body cancelRequest
	_ = c.ShouldBindJSON(&body)

	already, err := h.svc.Cancel(c.Request.Context(), w.ID, body.SpinID)
	if err != nil {
		respondError(c, err, "Failed to cancel spin")
		return
	}
	if already {
		c.JSON(http.StatusOK, gin.H{"ok": true, "idempotent": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Lock 处理 GET /api/spin/lock?wheel=
func (h *Handler) Lock(c *gin.Context) {
	w := wheel.FromContext(c)
	l, err := h.svc.Locks().Status(c.Request.Context(), w.ID)
	if err != nil {
		respondError(c, err, "Failed to load lock")
		return
	}
	c.JSON(http.StatusOK, gin.H{"lockHeld": l != nil, "lock": l})
}

// Animation 处理 GET /api/spin/animation?wheel=&spinId=
func (h *Handler) Animation(c *gin.Context) {
	w := wheel.FromContext(c)
	view, err := h.svc.Animation(c.Request.Context(), w.ID, c.Query("spinId"))
	if err != nil {
		respondError(c, err, "Failed to load spin")
		return
	}
	c.JSON(http.StatusOK, view)
}

// Eligible 处理 GET /api/wheel/eligible?wheel=
func (h *Handler) Eligible(c *gin.Context) {
	w := wheel.FromContext(c)
	entries, held, err := h.svc.Eligible(c.Request.Context(), w.ID)
	if err != nil {
		respondError(c, err, "Failed to load eligible entries")
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "lockHeld": held})
}

// Winners 处理 GET /api/wheel/winners?wheel=
func (h *Handler) Winners(c *gin.Context) {
	w := wheel.FromContext(c)
	winners, err := h.svc.Winners(c.Request.Context(), w.ID)
	if err != nil {
		respondError(c, err, "Failed to load winners")
		return
	}
	c.JSON(http.StatusOK, gin.H{"winners": winners})
}
