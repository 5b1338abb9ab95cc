package wheel

import (
	"errors"
	"time"
)

// Wheel 是一个独立的抽奖轮盘，公开表单和抽奖都通过 slug 指向它
type Wheel struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Slug      string    `gorm:"uniqueIndex;size:64;not null" json:"slug"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

var (
	ErrSlugRequired  = errors.New("wheel slug is required")
	ErrWheelNotFound = errors.New("wheel not found")
	ErrWheelInactive = errors.New("wheel is not active")
	ErrSlugTaken     = errors.New("slug already exists")
)

// ValidationError 表示管理员输入不合法，消息直接返回给客户端
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
