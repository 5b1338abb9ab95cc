package database

import (
	"sync/atomic"

	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
)

// redisHealthy 由健康检查器维护，默认启动时是健康的
var redisHealthy atomic.Bool

func init() {
	redisHealthy.Store(true)
}

// IsRedisHealthy 返回当前Redis的健康状态。
func IsRedisHealthy() bool {
	return redisHealthy.Load()
}

// UpdateStatus 用于线程安全地更新健康状态，只有状态变化时才打印日志
func UpdateStatus(isHealthy bool) {
	if redisHealthy.Swap(isHealthy) == isHealthy {
		return
	}
	if isHealthy {
		logger.Info("健康检查: Redis服务状态已更新为 [可用]")
	} else {
		logger.Warn("健康检查警告: Redis服务状态已更新为 [不可用]")
	}
}
