package database

import (
	"context"
	"time"

	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/config"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RDB 是一个全局的Redis客户端实例，供项目其他部分使用
var RDB *redis.Client

// InitRedis 初始化与Redis数据库的连接
// Redis 只承载限流和事件广播，启动时不可用只记为降级，不阻止启动
func InitRedis(cfg config.RedisConfig) {
	RDB = redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		UpdateStatus(false)
		logger.Warn("Redis 连接失败，以降级模式启动", zap.String("addr", cfg.Address), zap.Error(err))
		return
	}

	UpdateStatus(true)
	logger.Info("Redis 连接成功！", zap.String("addr", cfg.Address))
}

// CloseRedis 关闭Redis客户端
func CloseRedis() {
	if RDB != nil {
		_ = RDB.Close()
	}
}
