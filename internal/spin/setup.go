package spin

import (
	"fmt"

	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"gorm.io/gorm"
)

// MigrateDB 负责自动迁移 spins 与 spin_locks 表结构
func MigrateDB(db *gorm.DB) error {
	if err := db.AutoMigrate(&Spin{}, &Lock{}); err != nil {
		return fmt.Errorf("无法迁移抽奖相关表: %w", err)
	}
	logger.Info("Spin数据库表迁移成功。")
	return nil
}
