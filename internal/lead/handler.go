package lead

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"github.com/SlpAus/sparkle-wheel-backend/internal/wheel"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 暴露报名、线索列表和导出接口
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Submit 处理 POST /api/submit?wheel=
func (h *Handler) Submit(c *gin.Context) {
	w := wheel.FromContext(c)

	var body Submission
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	leadID, err := h.svc.Submit(c.Request.Context(), w.ID, body, c.ClientIP())
	if err != nil {
		var ve *ValidationError
		switch {
		case errors.As(err, &ve):
			c.JSON(http.StatusBadRequest, gin.H{"error": ve.Message})
		case errors.Is(err, ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many submissions. Please try again later."})
		default:
			logger.ErrorCtx(c.Request.Context(), "保存报名失败", zap.String("wheelId", w.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save submission"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "leadId": leadID})
}

func filterFromQuery(c *gin.Context) Filter {
	return Filter{
		Mode:   ParseFilterMode(c.DefaultQuery("filterMode", string(FilterAll))),
		Search: c.Query("search"),
	}
}

// Entries 处理 GET /api/admin/entries?wheel=&filterMode=&search=
func (h *Handler) Entries(c *gin.Context) {
	w := wheel.FromContext(c)
	rows, err := h.svc.Rows(c.Request.Context(), w.ID, filterFromQuery(c), ListLimit)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "查询线索失败", zap.String("wheelId", w.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch entries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Export 处理 GET /api/export?wheel=&format=csv|xlsx&filterMode=&search=
func (h *Handler) Export(c *gin.Context) {
	w := wheel.FromContext(c)
	f := filterFromQuery(c)
	format := c.DefaultQuery("format", "csv")

	rows, err := h.svc.Rows(c.Request.Context(), w.ID, f, ExportLimit)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "导出查询失败", zap.String("wheelId", w.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Export failed"})
		return
	}

	var (
		buf         bytes.Buffer
		contentType string
		ext         string
	)
	if format == "xlsx" {
		err = WriteXLSX(&buf, rows)
		contentType, ext = xlsxContentType, "xlsx"
	} else {
		err = WriteCSV(&buf, rows)
		contentType, ext = "text/csv; charset=utf-8", "csv"
	}
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "生成导出文件失败", zap.String("format", ext), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Export failed"})
		return
	}

	logger.InfoCtx(c.Request.Context(), "线索已导出",
		zap.String("wheelId", w.ID), zap.String("format", ext), zap.Int("rows", len(rows)))
	c.Header("Content-Disposition", `attachment; filename="`+ExportFileName(w.Slug, f.Mode, ext)+`"`)
	c.Data(http.StatusOK, contentType, buf.Bytes())
}
