package health

import (
	"context"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/database"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"github.com/SlpAus/sparkle-wheel-backend/pkg/lifecycle"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	checkInterval = 5 * time.Second
	pingTimeout   = 2 * time.Second
)

var runIDPattern = regexp.MustCompile(`run_id:([a-f0-9]+)`)

// Checker 定期探测数据库与Redis，并维护全局的Redis可用标记
type Checker struct {
	db  *gorm.DB
	rdb *redis.Client

	mu        sync.RWMutex
	last      Report
	lastRunID string
}

func NewChecker(db *gorm.DB, rdb *redis.Client) *Checker {
	return &Checker{db: db, rdb: rdb}
}

func (c *Checker) pingDB(ctx context.Context) bool {
	sqlDB, err := c.db.DB()
	if err != nil {
		return false
	}
	return sqlDB.PingContext(ctx) == nil
}

func (c *Checker) pingRedis(ctx context.Context) bool {
	if c.rdb == nil {
		return false
	}
	return c.rdb.Ping(ctx).Err() == nil
}

// redisRunID 从Redis服务器信息中提取run_id，取不到时返回空串
func (c *Checker) redisRunID(ctx context.Context) string {
	info, err := c.rdb.Info(ctx, "server").Result()
	if err != nil {
		return ""
	}
	matches := runIDPattern.FindStringSubmatch(info)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// PerformCheck 执行一次完整的健康检查并更新Redis可用标记
func (c *Checker) PerformCheck(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	dbOK := c.pingDB(ctx)
	redisOK := c.pingRedis(ctx)
	database.UpdateStatus(redisOK)

	var runID string
	if redisOK {
		runID = c.redisRunID(ctx)
	}

	state := assess(dbOK, redisOK)
	report := Report{Status: state.String(), Database: dbOK, Redis: redisOK, state: state}

	c.mu.Lock()
	prev := c.last
	if runID != "" {
		if c.lastRunID != "" && c.lastRunID != runID {
			// Redis重启后限流窗口丢失，订阅由客户端自动重连
			logger.Warn("健康检查: 检测到Redis重启，提交限流窗口已重置",
				zap.String("from", c.lastRunID), zap.String("to", runID))
		}
		c.lastRunID = runID
	}
	c.last = report
	c.mu.Unlock()

	if prev.Status != "" && prev.Status != report.Status {
		logger.Warn("健康检查: 系统状态变化", zap.String("from", prev.Status), zap.String("to", report.Status))
	}
	return report
}

// Last 返回最近一次检查的结果
func (c *Checker) Last() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Start 在后台循环执行健康检查，直到 handle 被取消
func (c *Checker) Start(handle *lifecycle.Handle) {
	defer handle.Close()
	logger.Info("健康检查器已启动。")
	for {
		if err := handle.Sleep(checkInterval); err != nil {
			logger.Info("健康检查器: 休眠被中断，正在关闭...")
			return
		}
		c.PerformCheck(handle.Ctx())
	}
}

// Handler 处理 GET /healthz，数据库不可用时返回503
func (c *Checker) Handler(gc *gin.Context) {
	report := c.PerformCheck(gc.Request.Context())
	status := http.StatusOK
	if report.State() == StateUnhealthy {
		status = http.StatusServiceUnavailable
	}
	gc.JSON(status, report)
}
