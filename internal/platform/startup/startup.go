package startup

import (
	"context"
	"fmt"

	"github.com/SlpAus/sparkle-wheel-backend/internal/admin"
	"github.com/SlpAus/sparkle-wheel-backend/internal/lead"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/config"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"github.com/SlpAus/sparkle-wheel-backend/internal/spin"
	"github.com/SlpAus/sparkle-wheel-backend/internal/wheel"
	"gorm.io/gorm"
)

// InitializeApplication 是应用启动时执行的总入口：迁移表结构并授予初始管理员
func InitializeApplication(ctx context.Context, db *gorm.DB, auth config.AuthConfig) error {
	logger.Info("开始应用初始化...")

	migrations := []func(*gorm.DB) error{
		wheel.MigrateDB,
		lead.MigrateDB,
		spin.MigrateDB,
		admin.MigrateDB,
	}
	for _, migrate := range migrations {
		if err := migrate(db); err != nil {
			return err
		}
	}

	for _, id := range auth.AdminUserIDs {
		if id == "" {
			continue
		}
		if err := admin.GrantAdmin(ctx, db, id); err != nil {
			return fmt.Errorf("初始化管理员 %s 失败: %w", id, err)
		}
	}

	logger.Info("应用初始化完成！")
	return nil
}
