package spin

import (
	"time"

	"github.com/SlpAus/sparkle-wheel-backend/internal/lead"
	"gorm.io/datatypes"
)

// Status 是抽奖记录的状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusFinalized Status = "finalized"
	StatusCancelled Status = "cancelled"
)

// Spin 是一次抽奖。中奖者在创建时就已确定，快照冻结了当时的奖池。
// 状态只会从 pending 走向 finalized 或 cancelled，之后不再改变。
type Spin struct {
	ID                 string                              `gorm:"primaryKey;size:36" json:"id"`
	WheelID            string                              `gorm:"size:36;not null;index:idx_spins_wheel_status,priority:1" json:"wheel_id"`
	Status             Status                              `gorm:"size:16;not null;index:idx_spins_wheel_status,priority:2" json:"status"`
	EntriesSnapshot    datatypes.JSONSlice[lead.PoolEntry] `gorm:"not null" json:"entries_snapshot"`
	WinnerIndex        int                                 `gorm:"not null" json:"winner_index"`
	WinnerWheelEntryID string                              `gorm:"size:36;not null" json:"winner_wheel_entry_id"`
	WinnerDisplayName  string                              `gorm:"size:255;not null" json:"winner_display_name"`
	WinnerConfirmed    *bool                               `json:"winner_confirmed"`
	CreatedBy          *string                             `gorm:"size:64" json:"created_by"`
	CreatedAt          time.Time                           `gorm:"not null;index" json:"created_at"`
	FinalizedAt        *time.Time                          `json:"finalized_at"`
	CancelledAt        *time.Time                          `json:"cancelled_at"`
}

const lockKey = "spinLock"

// Lock 是轮盘的抽奖锁，(wheel_id, lock_key) 唯一。过期的行视为未持有。
type Lock struct {
	WheelID   string    `gorm:"primaryKey;size:36" json:"-"`
	Key       string    `gorm:"primaryKey;column:lock_key;size:32" json:"-"`
	HeldBy    *string   `gorm:"size:64" json:"held_by"`
	SpinID    string    `gorm:"size:36;not null" json:"spin_id"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
}

func (Lock) TableName() string {
	return "spin_locks"
}

// Winner 是中奖历史中的一行
type Winner struct {
	ID                string     `json:"id"`
	WinnerDisplayName string     `json:"winner_display_name"`
	FinalizedAt       *time.Time `json:"finalized_at"`
}
