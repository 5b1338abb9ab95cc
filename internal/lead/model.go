package lead

import (
	"strings"
	"time"
)

const (
	SourceWebForm = "web_form"
	StatusNew     = "new"
)

// Lead 是一条公开表单提交的线索，同时也是轮盘上的一个参与者
// used/winner 只会被抽奖定稿修改，一旦为真就永久退出奖池
type Lead struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	WheelID           string     `gorm:"size:36;not null;index:idx_leads_pool,priority:1" json:"wheel_id"`
	FirstName         string     `gorm:"size:100;not null" json:"first_name"`
	LastName          string     `gorm:"size:100;not null" json:"last_name"`
	Street            *string    `gorm:"size:200" json:"street"`
	City              *string    `gorm:"size:100" json:"city"`
	ZipCode           string     `gorm:"size:20;not null" json:"zip_code"`
	PhoneNumber       string     `gorm:"size:32;not null" json:"phone_number"`
	EmailAddress      string     `gorm:"size:254;not null" json:"email_address"`
	FollowUpRequested bool       `gorm:"not null" json:"follow_up_requested"`
	Source            string     `gorm:"size:32;not null" json:"source"`
	Status            string     `gorm:"size:32;not null" json:"status"`
	WheelEntryID      *string    `gorm:"size:36;uniqueIndex" json:"wheel_entry_id"`
	Used              bool       `gorm:"not null;index:idx_leads_pool,priority:2" json:"used"`
	UsedTimestamp     *time.Time `json:"used_timestamp"`
	Winner            bool       `gorm:"not null;index:idx_leads_pool,priority:3" json:"winner"`
	WinnerTimestamp   *time.Time `json:"winner_timestamp"`
	SpinID            *string    `gorm:"size:36;index" json:"spin_id"`
	CreatedAt         time.Time  `gorm:"not null;index" json:"created_at"`
}

// WheelEntry 是线索在轮盘上显示的标签
type WheelEntry struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	WheelID     string    `gorm:"size:36;not null;index" json:"wheel_id"`
	LeadID      string    `gorm:"size:36;not null;uniqueIndex" json:"lead_id"`
	DisplayName string    `gorm:"size:200;not null" json:"display_name"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

// PoolEntry 是奖池中的一项，也是抽奖快照的元素
type PoolEntry struct {
	WheelEntryID string `json:"wheel_entry_id"`
	DisplayName  string `json:"display_name"`
	LeadID       string `json:"lead_id"`
}

// DisplayName 生成 "First L." 形式的标签
func DisplayName(firstName, lastName string) string {
	initial := ""
	for _, r := range strings.TrimSpace(lastName) {
		initial = string(r)
		break
	}
	return strings.TrimSpace(firstName) + " " + initial + "."
}

// withCity 在有城市时追加 " (City)"
func withCity(base string, city *string) string {
	if city == nil {
		return base
	}
	clean := strings.TrimSpace(*city)
	if clean == "" {
		return base
	}
	return base + " (" + clean + ")"
}
