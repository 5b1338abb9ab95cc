package spin

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/SlpAus/sparkle-wheel-backend/internal/event"
	"github.com/SlpAus/sparkle-wheel-backend/internal/lead"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/logger"
	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/metrics"
	"github.com/SlpAus/sparkle-wheel-backend/pkg/wheelanim"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultLockTTL = 120 * time.Second
	winnersLimit   = 200
)

// Options 是 Service 的可选依赖
type Options struct {
	LockTTL time.Duration
	Events  event.Publisher
	Now     func() time.Time
	// Rand 是抽签使用的随机源，默认 crypto/rand
	Rand io.Reader
}

// Service 负责抽奖的创建、定稿与取消
type Service struct {
	db     *gorm.DB
	leads  *lead.Repository
	locks  *LockManager
	ttl    time.Duration
	events event.Publisher
	now    func() time.Time
	rand   io.Reader
}

func NewService(db *gorm.DB, leads *lead.Repository, opts Options) *Service {
	s := &Service{
		db:     db,
		leads:  leads,
		ttl:    opts.LockTTL,
		events: opts.Events,
		now:    opts.Now,
		rand:   opts.Rand,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultLockTTL
	}
	if s.events == nil {
		s.events = event.Nop{}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.rand == nil {
		s.rand = rand.Reader
	}
	s.locks = NewLockManager(db, s.now)
	return s
}

// Locks 返回服务使用的锁管理器
func (s *Service) Locks() *LockManager {
	return s.locks
}

// Created 是创建抽奖的结果
type Created struct {
	SpinID             string           `json:"spinId"`
	WinnerWheelEntryID string           `json:"winnerWheelEntryId"`
	WinnerDisplayName  string           `json:"winnerDisplayName"`
	WinnerIndex        int              `json:"winnerIndex"`
	EntriesSnapshot    []lead.PoolEntry `json:"entriesSnapshot"`
	Animation          wheelanim.Plan   `json:"animation"`
}

// drawIndex 在 [0, n) 上均匀抽取一个下标
func drawIndex(r io.Reader, n int) (int, error) {
	v, err := rand.Int(r, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// Create 获取轮盘锁，冻结奖池快照并抽出中奖者，写入一条 pending 抽奖
func (s *Service) Create(ctx context.Context, wheelID, heldBy string) (created *Created, err error) {
	started := time.Now()
	defer func() {
		switch {
		case err == nil:
			metrics.RecordSpin("create", "success", started)
		case errors.Is(err, ErrLockHeld):
			metrics.RecordSpin("create", "conflict", started)
		case errors.Is(err, ErrNoEligibleEntries):
			metrics.RecordSpin("create", "rejected", started)
		default:
			metrics.RecordSpin("create", "error", started)
		}
	}()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成抽奖ID失败: %w", err)
	}
	spinID := id.String()

	ok, err := s.locks.Acquire(ctx, wheelID, spinID, lo.EmptyableToPtr(heldBy), s.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	guard := s.locks.guard(wheelID, spinID)
	defer guard.ReleaseUnlessCommitted(ctx)

	entries, err := s.leads.ListEligible(ctx, wheelID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoEligibleEntries
	}

	idx, err := drawIndex(s.rand, len(entries))
	if err != nil {
		return nil, fmt.Errorf("抽签失败: %w", err)
	}
	winner := entries[idx]

	sp := Spin{
		ID:                 spinID,
		WheelID:            wheelID,
		Status:             StatusPending,
		EntriesSnapshot:    datatypes.JSONSlice[lead.PoolEntry](entries),
		WinnerIndex:        idx,
		WinnerWheelEntryID: winner.WheelEntryID,
		WinnerDisplayName:  winner.DisplayName,
		CreatedBy:          lo.EmptyableToPtr(heldBy),
		CreatedAt:          s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&sp).Error; err != nil {
		return nil, fmt.Errorf("写入抽奖记录失败: %w", err)
	}
	guard.Commit()

	plan, err := wheelanim.NewPlan(spinID, idx, len(entries), 0)
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "抽奖已创建",
		zap.String("wheelId", wheelID), zap.String("spinId", spinID),
		zap.Int("entries", len(entries)), zap.Int("winnerIndex", idx))
	s.events.Publish(ctx, event.Event{
		Type:    event.SpinCreated,
		WheelID: wheelID,
		SpinID:  spinID,
		Data:    map[string]any{"entryCount": len(entries)},
		At:      sp.CreatedAt,
	})

	return &Created{
		SpinID:             spinID,
		WinnerWheelEntryID: winner.WheelEntryID,
		WinnerDisplayName:  winner.DisplayName,
		WinnerIndex:        idx,
		EntriesSnapshot:    entries,
		Animation:          plan,
	}, nil
}

// FinalizeResult 是定稿的结果
type FinalizeResult struct {
	SpinID             string `json:"spinId"`
	Status             Status `json:"status"`
	WinnerConfirmed    bool   `json:"winnerConfirmed"`
	WinnerWheelEntryID string `json:"winnerWheelEntryId,omitempty"`
	WinnerDisplayName  string `json:"winnerDisplayName,omitempty"`
	UsedCount          int    `json:"usedCount"`
	AlreadyApplied     bool   `json:"-"`
}

// takeForUpdate 在事务中读取并锁定抽奖行
func takeForUpdate(tx *gorm.DB, wheelID, spinID string) (*Spin, error) {
	var sp Spin
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND wheel_id = ?", spinID, wheelID).
		Take(&sp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSpinNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询抽奖失败: %w", err)
	}
	return &sp, nil
}

// Finalize 在一个事务中把 pending 抽奖定稿：标记中奖者，其余快照条目标记为已使用，并释放锁。
// confirmed 为 false 时不记录中奖者，中奖条目与其余条目一样被消耗。
// 对已定稿的抽奖重复调用返回 AlreadyApplied，不做任何修改。
func (s *Service) Finalize(ctx context.Context, wheelID, spinID string, confirmed bool) (res *FinalizeResult, err error) {
	started := time.Now()
	defer func() {
		switch {
		case err == nil && res.AlreadyApplied:
			metrics.RecordSpin("finalize", "idempotent", started)
		case err == nil:
			metrics.RecordSpin("finalize", "success", started)
		case errors.Is(err, ErrSpinNotFound), errors.Is(err, ErrSpinIDRequired):
			metrics.RecordSpin("finalize", "rejected", started)
		case errors.Is(err, ErrSpinCancelled), errors.Is(err, ErrLockConflict),
			errors.Is(err, ErrSnapshotStale), errors.Is(err, ErrConcurrentUpdate):
			metrics.RecordSpin("finalize", "conflict", started)
		default:
			metrics.RecordSpin("finalize", "error", started)
		}
	}()

	if spinID == "" {
		return nil, ErrSpinIDRequired
	}

	var (
		sp  *Spin
		out FinalizeResult
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		sp, err = takeForUpdate(tx, wheelID, spinID)
		if err != nil {
			return err
		}
		next, changed, err := NextStatus(sp.Status, ActionFinalize)
		if err != nil {
			return err
		}
		if !changed {
			out = finalizedView(sp)
			out.AlreadyApplied = true
			return nil
		}

		now := s.now()
		live, err := s.locks.liveTx(tx.Clauses(clause.Locking{Strength: "UPDATE"}), wheelID, now)
		if err != nil {
			return err
		}
		if live != nil && live.SpinID != spinID {
			return ErrLockConflict
		}

		upd := tx.Model(&Spin{}).
			Where("id = ? AND wheel_id = ? AND status = ?", spinID, wheelID, StatusPending).
			Updates(map[string]any{"status": next, "finalized_at": now, "winner_confirmed": confirmed})
		if upd.Error != nil {
			return fmt.Errorf("更新抽奖状态失败: %w", upd.Error)
		}
		if upd.RowsAffected != 1 {
			return ErrConcurrentUpdate
		}

		snapshot := []lead.PoolEntry(sp.EntriesSnapshot)
		if sp.WinnerIndex < 0 || sp.WinnerIndex >= len(snapshot) ||
			snapshot[sp.WinnerIndex].WheelEntryID != sp.WinnerWheelEntryID {
			return fmt.Errorf("抽奖 %s 的快照与中奖者不一致", spinID)
		}
		winner := snapshot[sp.WinnerIndex]

		var (
			affected int64
			usedIDs  []string
		)
		if confirmed {
			n, err := s.leads.MarkWinner(tx, wheelID, winner.LeadID, spinID, now)
			if err != nil {
				return fmt.Errorf("标记中奖者失败: %w", err)
			}
			affected += n
			usedIDs = lo.FilterMap(snapshot, func(e lead.PoolEntry, i int) (string, bool) {
				return e.LeadID, i != sp.WinnerIndex
			})
		} else {
			usedIDs = lo.Map(snapshot, func(e lead.PoolEntry, _ int) string { return e.LeadID })
		}
		n, err := s.leads.MarkUsed(tx, wheelID, usedIDs, spinID, now)
		if err != nil {
			return fmt.Errorf("标记已使用条目失败: %w", err)
		}
		affected += n
		if affected != int64(len(snapshot)) {
			return fmt.Errorf("%w: 期望 %d 行, 实际 %d 行", ErrSnapshotStale, len(snapshot), affected)
		}

		if err := s.locks.ReleaseTx(tx, wheelID, spinID); err != nil {
			return err
		}

		sp.Status = next
		sp.FinalizedAt = &now
		sp.WinnerConfirmed = &confirmed
		out = finalizedView(sp)
		out.UsedCount = len(usedIDs)
		return nil
	})
	if err != nil {
		if !isClientError(err) {
			logger.ErrorCtx(ctx, "抽奖定稿失败", zap.String("wheelId", wheelID), zap.String("spinId", spinID), zap.Error(err))
		}
		return nil, err
	}

	if out.AlreadyApplied {
		logger.InfoCtx(ctx, "抽奖已定稿，忽略重复请求", zap.String("spinId", spinID))
		return &out, nil
	}

	logger.InfoCtx(ctx, "抽奖已定稿",
		zap.String("wheelId", wheelID), zap.String("spinId", spinID),
		zap.Bool("confirmed", confirmed), zap.Int("used", out.UsedCount))
	data := map[string]any{"confirmed": confirmed}
	if confirmed {
		data["winnerDisplayName"] = out.WinnerDisplayName
		data["winnerWheelEntryId"] = out.WinnerWheelEntryID
	}
	s.events.Publish(ctx, event.Event{
		Type:    event.SpinFinalized,
		WheelID: wheelID,
		SpinID:  spinID,
		Data:    data,
		At:      *sp.FinalizedAt,
	})
	return &out, nil
}

func finalizedView(sp *Spin) FinalizeResult {
	out := FinalizeResult{SpinID: sp.ID, Status: sp.Status}
	if sp.WinnerConfirmed == nil || *sp.WinnerConfirmed {
		out.WinnerConfirmed = true
		out.WinnerWheelEntryID = sp.WinnerWheelEntryID
		out.WinnerDisplayName = sp.WinnerDisplayName
	}
	return out
}

// Cancel 取消 pending 抽奖并释放锁，不会修改任何条目。
// 已取消的抽奖返回 alreadyApplied=true，已定稿的返回 ErrSpinFinalized。
func (s *Service) Cancel(ctx context.Context, wheelID, spinID string) (alreadyApplied bool, err error) {
	started := time.Now()
	defer func() {
		switch {
		case err == nil:
			metrics.RecordSpin("cancel", "success", started)
		case errors.Is(err, ErrSpinFinalized), errors.Is(err, ErrConcurrentUpdate):
			metrics.RecordSpin("cancel", "conflict", started)
		case isClientError(err):
			metrics.RecordSpin("cancel", "rejected", started)
		default:
			metrics.RecordSpin("cancel", "error", started)
		}
	}()

	if spinID == "" {
		return false, ErrSpinIDRequired
	}

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sp, err := takeForUpdate(tx, wheelID, spinID)
		if err != nil {
			return err
		}
		next, changed, err := NextStatus(sp.Status, ActionCancel)
		if err != nil {
			return err
		}
		if !changed {
			alreadyApplied = true
			return nil
		}
		upd := tx.Model(&Spin{}).
			Where("id = ? AND wheel_id = ? AND status = ?", spinID, wheelID, StatusPending).
			Updates(map[string]any{"status": next, "cancelled_at": now})
		if upd.Error != nil {
			return fmt.Errorf("更新抽奖状态失败: %w", upd.Error)
		}
		if upd.RowsAffected != 1 {
			return ErrConcurrentUpdate
		}
		return s.locks.ReleaseTx(tx, wheelID, spinID)
	})
	if err != nil {
		if !isClientError(err) {
			logger.ErrorCtx(ctx, "取消抽奖失败", zap.String("wheelId", wheelID), zap.String("spinId", spinID), zap.Error(err))
		}
		return false, err
	}
	if alreadyApplied {
		return true, nil
	}

	logger.InfoCtx(ctx, "抽奖已取消", zap.String("wheelId", wheelID), zap.String("spinId", spinID))
	s.events.Publish(ctx, event.Event{
		Type:    event.SpinCancelled,
		WheelID: wheelID,
		SpinID:  spinID,
		At:      now,
	})
	return false, nil
}

// Get 返回轮盘下的一次抽奖
func (s *Service) Get(ctx context.Context, wheelID, spinID string) (*Spin, error) {
	if spinID == "" {
		return nil, ErrSpinIDRequired
	}
	var sp Spin
	err := s.db.WithContext(ctx).Where("id = ? AND wheel_id = ?", spinID, wheelID).Take(&sp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSpinNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询抽奖失败: %w", err)
	}
	return &sp, nil
}

// AnimationView 让重新连接的客户端复现同一段动画
type AnimationView struct {
	SpinID      string         `json:"spinId"`
	Status      Status         `json:"status"`
	WinnerIndex int            `json:"winnerIndex"`
	Plan        wheelanim.Plan `json:"plan"`
}

func (s *Service) Animation(ctx context.Context, wheelID, spinID string) (*AnimationView, error) {
	sp, err := s.Get(ctx, wheelID, spinID)
	if err != nil {
		return nil, err
	}
	plan, err := wheelanim.NewPlan(sp.ID, sp.WinnerIndex, len(sp.EntriesSnapshot), 0)
	if err != nil {
		return nil, fmt.Errorf("抽奖 %s 无法生成动画: %w", sp.ID, err)
	}
	return &AnimationView{SpinID: sp.ID, Status: sp.Status, WinnerIndex: sp.WinnerIndex, Plan: plan}, nil
}

// Winners 返回最近定稿且确认了中奖者的抽奖，最新的在前
func (s *Service) Winners(ctx context.Context, wheelID string) ([]Winner, error) {
	winners := []Winner{}
	err := s.db.WithContext(ctx).Model(&Spin{}).
		Select("id, winner_display_name, finalized_at").
		Where("wheel_id = ? AND status = ? AND winner_confirmed = ?", wheelID, StatusFinalized, true).
		Order("finalized_at DESC").
		Limit(winnersLimit).
		Scan(&winners).Error
	if err != nil {
		return nil, fmt.Errorf("查询中奖历史失败: %w", err)
	}
	return winners, nil
}

// Eligible 返回当前奖池以及锁是否被持有
func (s *Service) Eligible(ctx context.Context, wheelID string) ([]lead.PoolEntry, bool, error) {
	entries, err := s.leads.ListEligible(ctx, wheelID)
	if err != nil {
		return nil, false, err
	}
	l, err := s.locks.Status(ctx, wheelID)
	if err != nil {
		return nil, false, err
	}
	return entries, l != nil, nil
}

func isClientError(err error) bool {
	for _, target := range []error{
		ErrSpinIDRequired, ErrLockHeld, ErrNoEligibleEntries, ErrSpinNotFound,
		ErrSpinCancelled, ErrSpinFinalized, ErrLockConflict, ErrSnapshotStale, ErrConcurrentUpdate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
