package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	spinTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spin_operations_total",
			Help: "Spin lifecycle operations by operation and result",
		},
		[]string{"op", "result"},
	)

	spinDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spin_operation_duration_ms",
			Help:    "Spin lifecycle operation duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(2, 2, 10),
		},
		[]string{"op"},
	)

	submissionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_submissions_total",
			Help: "Public lead submissions by result",
		},
		[]string{"result"},
	)

	sweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spin_stale_cancelled_total",
			Help: "Pending spins cancelled by the stale spin sweeper",
		},
	)

	httpReqTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpReqDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "HTTP request duration in ms",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"path", "method"},
	)
)

// RecordSpin 记录抽奖操作的业务指标
// op: "create" | "finalize" | "cancel"
// result: "success" | "conflict" | "rejected" | "error"
func RecordSpin(op, result string, started time.Time) {
	spinTotal.WithLabelValues(op, result).Inc()
	spinDuration.WithLabelValues(op).Observe(float64(time.Since(started).Milliseconds()))
}

// RecordSubmission result: "success" | "invalid" | "rate_limited" | "error"
func RecordSubmission(result string) {
	submissionTotal.WithLabelValues(result).Inc()
}

// RecordSwept 记录被清理的过期抽奖数量
func RecordSwept(n int) {
	sweptTotal.Add(float64(n))
}

// GinMiddleware 记录 HTTP 请求数量与耗时，路径使用路由模板避免高基数
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		httpReqDuration.WithLabelValues(path, method).Observe(float64(time.Since(start).Milliseconds()))
		httpReqTotal.WithLabelValues(path, method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler 暴露 /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
