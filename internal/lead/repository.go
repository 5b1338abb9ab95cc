package lead

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/SlpAus/sparkle-wheel-backend/internal/platform/database"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// FilterMode 是管理端列表和导出的筛选方式
type FilterMode string

const (
	FilterAll      FilterMode = "ALL"
	FilterEligible FilterMode = "ELIGIBLE"
	FilterUsed     FilterMode = "USED"
	FilterWinners  FilterMode = "WINNERS"
)

// ParseFilterMode 未知值按 ALL 处理
func ParseFilterMode(s string) FilterMode {
	switch m := FilterMode(strings.ToUpper(strings.TrimSpace(s))); m {
	case FilterEligible, FilterUsed, FilterWinners:
		return m
	default:
		return FilterAll
	}
}

// Filter 描述管理端查询条件
type Filter struct {
	Mode   FilterMode
	Search string
}

// Row 是管理端列表与导出使用的扁平行
type Row struct {
	ID                string     `db:"id" json:"id"`
	WheelID           string     `db:"wheel_id" json:"wheel_id"`
	FirstName         string     `db:"first_name" json:"first_name"`
	LastName          string     `db:"last_name" json:"last_name"`
	Street            *string    `db:"street" json:"street"`
	City              *string    `db:"city" json:"city"`
	ZipCode           string     `db:"zip_code" json:"zip_code"`
	PhoneNumber       string     `db:"phone_number" json:"phone_number"`
	EmailAddress      string     `db:"email_address" json:"email_address"`
	FollowUpRequested bool       `db:"follow_up_requested" json:"follow_up_requested"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	Source            string     `db:"source" json:"source"`
	Status            string     `db:"status" json:"status"`
	WheelEntryID      *string    `db:"wheel_entry_id" json:"wheel_entry_id"`
	Used              bool       `db:"used" json:"used"`
	UsedTimestamp     *time.Time `db:"used_timestamp" json:"used_timestamp"`
	Winner            bool       `db:"winner" json:"winner"`
	WinnerTimestamp   *time.Time `db:"winner_timestamp" json:"winner_timestamp"`
	SpinID            *string    `db:"spin_id" json:"spin_id"`
	DisplayName       *string    `db:"display_name" json:"-"`
	WheelEntry        *EntryLabel `db:"-" json:"wheel_entries"`
}

type EntryLabel struct {
	DisplayName string `json:"display_name"`
}

const (
	ListLimit   = 1000
	ExportLimit = 10000
)

// Repository 封装对 leads / wheel_entries 的访问
type Repository struct {
	db *gorm.DB
	x  *sqlx.DB
}

func NewRepository(db *gorm.DB) (*Repository, error) {
	x, err := database.SQLX(db)
	if err != nil {
		return nil, err
	}
	return &Repository{db: db, x: x}, nil
}

// Create 在同一个事务中写入线索和它的轮盘标签
func (r *Repository) Create(ctx context.Context, l *Lead, displayName string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entryID, err := uuid.NewV7()
		if err != nil {
			return err
		}
		entry := WheelEntry{
			ID:          entryID.String(),
			WheelID:     l.WheelID,
			LeadID:      l.ID,
			DisplayName: displayName,
			CreatedAt:   l.CreatedAt,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("写入轮盘标签失败: %w", err)
		}
		l.WheelEntryID = lo.ToPtr(entry.ID)
		if err := tx.Create(l).Error; err != nil {
			return fmt.Errorf("写入线索失败: %w", err)
		}
		return nil
	})
}

type poolRow struct {
	LeadID       string  `gorm:"column:lead_id"`
	City         *string `gorm:"column:city"`
	WheelEntryID string  `gorm:"column:wheel_entry_id"`
	DisplayName  *string `gorm:"column:display_name"`
}

// ListEligible 返回当前奖池：未使用、未中奖且已上轮盘的线索，按报名先后排序
func (r *Repository) ListEligible(ctx context.Context, wheelID string) ([]PoolEntry, error) {
	return r.listEligible(r.db.WithContext(ctx), wheelID)
}

func (r *Repository) listEligible(db *gorm.DB, wheelID string) ([]PoolEntry, error) {
	var rows []poolRow
	err := db.Table("leads").
		Select("leads.id AS lead_id, leads.city, leads.wheel_entry_id, wheel_entries.display_name").
		Joins("LEFT JOIN wheel_entries ON wheel_entries.id = leads.wheel_entry_id").
		Where("leads.wheel_id = ? AND leads.used = ? AND leads.winner = ? AND leads.wheel_entry_id IS NOT NULL", wheelID, false, false).
		Order("leads.created_at ASC, leads.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询奖池失败: %w", err)
	}
	return lo.Map(rows, func(row poolRow, _ int) PoolEntry {
		base := "Entry"
		if row.DisplayName != nil && *row.DisplayName != "" {
			base = *row.DisplayName
		}
		return PoolEntry{
			WheelEntryID: row.WheelEntryID,
			DisplayName:  withCity(base, row.City),
			LeadID:       row.LeadID,
		}
	}), nil
}

// MarkWinner 在事务中把一条线索标记为中奖，仅当它仍在奖池中时生效。返回受影响行数。
func (r *Repository) MarkWinner(tx *gorm.DB, wheelID, leadID, spinID string, at time.Time) (int64, error) {
	res := tx.Model(&Lead{}).
		Where("wheel_id = ? AND id = ? AND used = ? AND winner = ?", wheelID, leadID, false, false).
		Updates(map[string]any{"winner": true, "winner_timestamp": at, "spin_id": spinID})
	return res.RowsAffected, res.Error
}

// MarkUsed 在事务中把一批线索标记为已使用，仅对仍在奖池中的行生效。返回受影响行数。
func (r *Repository) MarkUsed(tx *gorm.DB, wheelID string, leadIDs []string, spinID string, at time.Time) (int64, error) {
	if len(leadIDs) == 0 {
		return 0, nil
	}
	var total int64
	// 分批避免超过驱动的参数上限
	for _, chunk := range lo.Chunk(leadIDs, 500) {
		res := tx.Model(&Lead{}).
			Where("wheel_id = ? AND id IN ? AND used = ? AND winner = ?", wheelID, chunk, false, false).
			Updates(map[string]any{"used": true, "used_timestamp": at, "spin_id": spinID})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

const rowColumns = `leads.id, leads.wheel_id, leads.first_name, leads.last_name, leads.street, leads.city,
	leads.zip_code, leads.phone_number, leads.email_address, leads.follow_up_requested, leads.created_at,
	leads.source, leads.status, leads.wheel_entry_id, leads.used, leads.used_timestamp, leads.winner,
	leads.winner_timestamp, leads.spin_id, wheel_entries.display_name`

// Rows 按筛选条件查询线索，最新的在前
func (r *Repository) Rows(ctx context.Context, wheelID string, f Filter, limit int) ([]Row, error) {
	var (
		where strings.Builder
		args  = []any{wheelID}
	)
	where.WriteString("leads.wheel_id = ?")
	switch f.Mode {
	case FilterEligible:
		where.WriteString(" AND leads.used = ? AND leads.winner = ?")
		args = append(args, false, false)
	case FilterUsed:
		where.WriteString(" AND leads.used = ?")
		args = append(args, true)
	case FilterWinners:
		where.WriteString(" AND leads.winner = ?")
		args = append(args, true)
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		cols := []string{"first_name", "last_name", "email_address", "phone_number", "zip_code", "city"}
		conds := lo.Map(cols, func(c string, _ int) string { return "LOWER(leads." + c + ") LIKE ?" })
		where.WriteString(" AND (" + strings.Join(conds, " OR ") + ")")
		for range cols {
			args = append(args, pattern)
		}
	}
	args = append(args, limit)

	query := r.x.Rebind(`SELECT ` + rowColumns + `
		FROM leads LEFT JOIN wheel_entries ON wheel_entries.id = leads.wheel_entry_id
		WHERE ` + where.String() + `
		ORDER BY leads.created_at DESC, leads.id DESC
		LIMIT ?`)

	rows := []Row{}
	if err := r.x.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("查询线索失败: %w", err)
	}
	for i := range rows {
		if rows[i].DisplayName != nil {
			rows[i].WheelEntry = &EntryLabel{DisplayName: *rows[i].DisplayName}
		}
	}
	return rows, nil
}
