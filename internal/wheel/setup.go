package wheel

import (
	"fmt"

	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"gorm.io/gorm"
)

// MigrateDB 负责自动迁移数据库表结构
func MigrateDB(db *gorm.DB) error {
	if err := db.AutoMigrate(&Wheel{}); err != nil {
		return fmt.Errorf("无法迁移wheels表: %w", err)
	}
	logger.Info("Wheel数据库表迁移成功。")
	return nil
}
