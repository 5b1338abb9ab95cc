package spin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockManager 管理每个轮盘唯一的抽奖锁。
// 获取是一次条件写入：不存在则插入，存在但已过期则接管，否则不写。
type LockManager struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLockManager(db *gorm.DB, now func() time.Time) *LockManager {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &LockManager{db: db, now: now}
}

// Acquire 尝试为 spinID 获取轮盘锁。返回 false 表示存在未过期的锁，调用方不应重试。
func (m *LockManager) Acquire(ctx context.Context, wheelID, spinID string, heldBy *string, ttl time.Duration) (bool, error) {
	now := m.now()
	l := Lock{
		WheelID:   wheelID,
		Key:       lockKey,
		HeldBy:    heldBy,
		SpinID:    spinID,
		ExpiresAt: now.Add(ttl),
	}
	res := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wheel_id"}, {Name: "lock_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"held_by", "spin_id", "expires_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "spin_locks.expires_at <= ?", Vars: []any{now}},
		}},
	}).Create(&l)
	if res.Error != nil {
		return false, fmt.Errorf("写入抽奖锁失败: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Release 释放属于 spinID 的锁，锁不存在或属于其他抽奖时什么也不做
func (m *LockManager) Release(ctx context.Context, wheelID, spinID string) error {
	return m.ReleaseTx(m.db.WithContext(ctx), wheelID, spinID)
}

// ReleaseTx 与 Release 相同，但在给定事务中执行
func (m *LockManager) ReleaseTx(tx *gorm.DB, wheelID, spinID string) error {
	err := tx.Where("wheel_id = ? AND lock_key = ? AND spin_id = ?", wheelID, lockKey, spinID).
		Delete(&Lock{}).Error
	if err != nil {
		return fmt.Errorf("释放抽奖锁失败: %w", err)
	}
	return nil
}

// Status 返回轮盘当前有效的锁，未持有时返回 nil
func (m *LockManager) Status(ctx context.Context, wheelID string) (*Lock, error) {
	return m.liveTx(m.db.WithContext(ctx), wheelID, m.now())
}

func (m *LockManager) liveTx(tx *gorm.DB, wheelID string, now time.Time) (*Lock, error) {
	var l Lock
	err := tx.Where("wheel_id = ? AND lock_key = ? AND expires_at > ?", wheelID, lockKey, now).Take(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询抽奖锁失败: %w", err)
	}
	return &l, nil
}

// lockGuard 保证获取锁之后的每条失败路径都会释放锁
type lockGuard struct {
	m         *LockManager
	wheelID   string
	spinID    string
	committed bool
}

func (m *LockManager) guard(wheelID, spinID string) *lockGuard {
	return &lockGuard{m: m, wheelID: wheelID, spinID: spinID}
}

// Commit 表示锁的所有权已交给创建出的抽奖
func (g *lockGuard) Commit() {
	g.committed = true
}

// ReleaseUnlessCommitted 在未提交时释放锁，使用独立于请求的ctx
func (g *lockGuard) ReleaseUnlessCommitted(ctx context.Context) {
	if g.committed {
		return
	}
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := g.m.Release(relCtx, g.wheelID, g.spinID); err != nil {
		// 释放失败时锁会在TTL后自动失效
		logger.ErrorCtx(ctx, "回滚抽奖锁失败",
			zap.String("wheelId", g.wheelID), zap.String("spinId", g.spinID), zap.Error(err))
	}
}
