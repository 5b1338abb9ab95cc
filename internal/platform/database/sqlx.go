package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
)

// SQLX 基于gorm持有的连接池构造一个sqlx句柄，用于大批量的只读扫描。
// 占位符风格由驱动名决定，调用方写 ? 后经 Rebind 转换。
func SQLX(db *gorm.DB) (*sqlx.DB, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层连接失败: %w", err)
	}
	driver := "sqlite3"
	if db.Dialector.Name() == "postgres" {
		driver = "pgx"
	}
	return sqlx.NewDb(sqlDB, driver), nil
}
