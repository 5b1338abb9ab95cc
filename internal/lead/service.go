package lead

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SlpAus/sparkle-wheel-backend/internal/event"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/metrics"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Service 处理公开报名，以及管理端的线索查询
type Service struct {
	repo      *Repository
	validator *Validator
	cities    CityLookup
	limiter   *SubmitLimiter
	events    event.Publisher
	now       func() time.Time
}

// Options 是 Service 的可选依赖，未提供的项使用空实现
type Options struct {
	Cities  CityLookup
	Limiter *SubmitLimiter
	Events  event.Publisher
	Now     func() time.Time
}

func NewService(repo *Repository, opts Options) (*Service, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("注册表单校验器失败: %w", err)
	}
	s := &Service{
		repo:      repo,
		validator: v,
		cities:    opts.Cities,
		limiter:   opts.Limiter,
		events:    opts.Events,
		now:       opts.Now,
	}
	if s.events == nil {
		s.events = event.Nop{}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

// Submit 校验并保存一条报名，返回新线索的ID
func (s *Service) Submit(ctx context.Context, wheelID string, sub Submission, clientIP string) (leadID string, err error) {
	sub.Normalize()
	if err := s.validator.Validate(&sub); err != nil {
		metrics.RecordSubmission("invalid")
		return "", err
	}

	now := s.now()
	comp, err := s.limiter.Allow(ctx, clientIP, now)
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			metrics.RecordSubmission("rate_limited")
			logger.WarnCtx(ctx, "报名触发限流", zap.String("ip", clientIP))
			return "", err
		}
		// 限流器本身出错不阻断报名
		logger.WarnCtx(ctx, "报名限流检查失败", zap.Error(err))
	}
	defer comp.RollbackUnlessCommitted()

	city := sub.City
	if city == "" && s.cities != nil {
		city = s.cities.CityForZip(ctx, sub.ZipCode)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("生成线索ID失败: %w", err)
	}
	l := &Lead{
		ID:                id.String(),
		WheelID:           wheelID,
		FirstName:         sub.FirstName,
		LastName:          sub.LastName,
		Street:            lo.EmptyableToPtr(sub.Street),
		City:              lo.EmptyableToPtr(city),
		ZipCode:           sub.ZipCode,
		PhoneNumber:       sub.PhoneNumber,
		EmailAddress:      sub.EmailAddress,
		FollowUpRequested: sub.FollowUpRequested == "yes",
		Source:            SourceWebForm,
		Status:            StatusNew,
		CreatedAt:         now,
	}
	if err := s.repo.Create(ctx, l, DisplayName(sub.FirstName, sub.LastName)); err != nil {
		metrics.RecordSubmission("error")
		return "", err
	}
	comp.Commit()
	metrics.RecordSubmission("success")

	logger.InfoCtx(ctx, "新报名已保存",
		zap.String("leadId", l.ID),
		zap.String("wheelId", wheelID),
		zap.String("email", logger.MaskEmail(l.EmailAddress)),
		zap.String("phone", logger.MaskPhone(l.PhoneNumber)))
	s.events.Publish(ctx, event.Event{Type: event.PoolUpdated, WheelID: wheelID, At: now})
	return l.ID, nil
}

// Rows 返回管理端线索列表
func (s *Service) Rows(ctx context.Context, wheelID string, f Filter, limit int) ([]Row, error) {
	return s.repo.Rows(ctx, wheelID, f, limit)
}
