package lead

import (
	"fmt"

	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"gorm.io/gorm"
)

// MigrateDB 负责自动迁移 leads 与 wheel_entries 表结构
func MigrateDB(db *gorm.DB) error {
	if err := db.AutoMigrate(&WheelEntry{}, &Lead{}); err != nil {
		return fmt.Errorf("无法迁移lead相关表: %w", err)
	}
	logger.Info("Lead数据库表迁移成功。")
	return nil
}
