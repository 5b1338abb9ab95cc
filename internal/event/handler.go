package event

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"github.com/SlpAus/sparkle-wheel-backend/internal/wheel"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultHeartbeat = 15 * time.Second

// Handler 把轮盘事件以 Server-Sent Events 推给浏览器
type Handler struct {
	bus       *Bus
	heartbeat time.Duration
	closing   chan struct{}
	closeOnce sync.Once
}

func NewHandler(bus *Bus, heartbeat time.Duration) *Handler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &Handler{bus: bus, heartbeat: heartbeat, closing: make(chan struct{})}
}

// Close 结束所有打开的事件流并拒绝新的订阅。
// http.Server.Shutdown 不会取消长连接请求，需通过 RegisterOnShutdown 注册。
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// Stream 处理 GET /api/wheel/events?wheel=
func (h *Handler) Stream(c *gin.Context) {
	w := wheel.FromContext(c)
	ctx := c.Request.Context()

	select {
	case <-h.closing:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server is shutting down"})
		return
	default:
	}

	sub, err := h.bus.Subscribe(ctx, w.ID)
	if err != nil {
		logger.WarnCtx(ctx, "无法建立事件订阅", zap.String("wheelId", w.ID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Live updates unavailable"})
		return
	}
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("ready", gin.H{"wheelId": w.ID})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-h.closing:
			return false
		case e, ok := <-sub.Events():
			if !ok {
				return false
			}
			c.SSEvent(string(e.Type), e)
			return true
		case t := <-ticker.C:
			c.SSEvent("ping", gin.H{"at": t.UTC()})
			return true
		}
	})
}
