package wheel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service 负责轮盘的查询与管理
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// BySlug 按slug查找轮盘，不检查是否启用
func (s *Service) BySlug(ctx context.Context, slug string) (*Wheel, error) {
	clean := strings.TrimSpace(slug)
	if clean == "" {
		return nil, ErrSlugRequired
	}
	var w Wheel
	err := s.db.WithContext(ctx).Where("slug = ?", clean).Take(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWheelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询轮盘失败: %w", err)
	}
	return &w, nil
}

// ActiveBySlug 与 BySlug 相同，但停用的轮盘返回 ErrWheelInactive
func (s *Service) ActiveBySlug(ctx context.Context, slug string) (*Wheel, error) {
	w, err := s.BySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !w.IsActive {
		return nil, ErrWheelInactive
	}
	return w, nil
}

// List 返回所有轮盘，最新创建的在前
func (s *Service) List(ctx context.Context) ([]Wheel, error) {
	wheels := []Wheel{}
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&wheels).Error; err != nil {
		return nil, fmt.Errorf("查询轮盘列表失败: %w", err)
	}
	return wheels, nil
}

// Create 创建一个新的启用状态的轮盘，slug 会先被规范化
func (s *Service) Create(ctx context.Context, name, rawSlug string) (*Wheel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Message: "Name is required"}
	}
	slug := NormalizeSlug(rawSlug)
	if err := validateSlug(slug); err != nil {
		return nil, err
	}

	var taken int64
	if err := s.db.WithContext(ctx).Model(&Wheel{}).Where("slug = ?", slug).Count(&taken).Error; err != nil {
		return nil, fmt.Errorf("检查slug失败: %w", err)
	}
	if taken > 0 {
		return nil, ErrSlugTaken
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成轮盘ID失败: %w", err)
	}
	w := Wheel{
		ID:        id.String(),
		Slug:      slug,
		Name:      name,
		IsActive:  true,
		CreatedAt: s.now(),
	}
	// 唯一索引兜底并发创建
	if err := s.db.WithContext(ctx).Create(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("创建轮盘失败: %w", err)
	}
	return &w, nil
}

// SetActive 启用或停用一个轮盘
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*Wheel, error) {
	res := s.db.WithContext(ctx).Model(&Wheel{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return nil, fmt.Errorf("更新轮盘状态失败: %w", res.Error)
	}
	var w Wheel
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWheelNotFound
		}
		return nil, fmt.Errorf("查询轮盘失败: %w", err)
	}
	return &w, nil
}
