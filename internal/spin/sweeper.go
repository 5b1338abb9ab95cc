package spin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SlpAus/sparkle-wheel-backend/internal/event"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/metrics"
	"github.com/SlpAus/sparkle-wheel-backend/pkg/lifecycle"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const DefaultSweepInterval = 30 * time.Second

// StartSweeper 定期取消锁已失效的 pending 抽奖，直到 handle 被取消
func StartSweeper(handle *lifecycle.Handle, svc *Service, interval time.Duration) {
	defer handle.Close()
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	logger.Info("过期抽奖清理器已启动", zap.Duration("interval", interval))

	for {
		// 可中断的休眠，停机时立刻退出
		if err := handle.Sleep(interval); err != nil {
			logger.Info("过期抽奖清理器: 休眠被中断，正在关闭...")
			return
		}

		n, err := svc.SweepStale(handle.Ctx())
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				logger.Error("过期抽奖清理失败", zap.Error(err))
			}
			continue
		}
		if n > 0 {
			logger.Info("已取消过期抽奖", zap.Int("count", n))
		}
	}
}

// SweepStale 取消创建时间超过锁TTL、且锁已不属于它的 pending 抽奖，返回取消的数量
func (s *Service) SweepStale(ctx context.Context) (int, error) {
	now := s.now()
	var stale []Spin
	err := s.db.WithContext(ctx).
		Select("id, wheel_id").
		Where("status = ? AND created_at <= ?", StatusPending, now.Add(-s.ttl)).
		Order("created_at ASC").
		Find(&stale).Error
	if err != nil {
		return 0, fmt.Errorf("查询过期抽奖失败: %w", err)
	}

	swept := 0
	for _, sp := range stale {
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		cancelled, err := s.sweepOne(ctx, sp.WheelID, sp.ID, now)
		if err != nil {
			logger.Warn("取消过期抽奖失败", zap.String("spinId", sp.ID), zap.Error(err))
			continue
		}
		if !cancelled {
			continue
		}
		swept++
		s.events.Publish(ctx, event.Event{
			Type:    event.SpinCancelled,
			WheelID: sp.WheelID,
			SpinID:  sp.ID,
			Data:    map[string]any{"reason": "expired"},
			At:      now,
		})
	}
	metrics.RecordSwept(swept)
	return swept, nil
}

func (s *Service) sweepOne(ctx context.Context, wheelID, spinID string, now time.Time) (bool, error) {
	cancelled := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		live, err := s.locks.liveTx(tx, wheelID, now)
		if err != nil {
			return err
		}
		if live != nil && live.SpinID == spinID {
			return nil
		}
		upd := tx.Model(&Spin{}).
			Where("id = ? AND wheel_id = ? AND status = ?", spinID, wheelID, StatusPending).
			Updates(map[string]any{"status": StatusCancelled, "cancelled_at": now})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return nil
		}
		cancelled = true
		// 清掉可能残留的过期锁行
		return s.locks.ReleaseTx(tx, wheelID, spinID)
	})
	return cancelled, err
}
