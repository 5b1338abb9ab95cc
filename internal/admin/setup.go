package admin

import (
	"context"
	"fmt"

	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MigrateDB 负责自动迁移 profiles 表结构
func MigrateDB(db *gorm.DB) error {
	if err := db.AutoMigrate(&Profile{}); err != nil {
		return fmt.Errorf("无法迁移profiles表: %w", err)
	}
	logger.Info("Profile数据库表迁移成功。")
	return nil
}

// GrantAdmin 把用户标记为管理员，不存在则创建
func GrantAdmin(ctx context.Context, db *gorm.DB, userID string) error {
	p := Profile{ID: userID, IsAdmin: true}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{"is_admin": true}),
	}).Create(&p).Error
	if err != nil {
		return fmt.Errorf("授予管理员失败: %w", err)
	}
	logger.Info("已授予管理员权限", zap.String("userId", userID))
	return nil
}
