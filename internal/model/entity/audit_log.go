package entity

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog 风控、熔断、下单等操作的审计记录
type AuditLog struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID string         `gorm:"index:idx_account_created;type:varchar(36)" json:"account_id"`
	Category  string         `gorm:"type:varchar(32)" json:"category"`
	Action    string         `gorm:"type:varchar(64)" json:"action"`
	Severity  string         `gorm:"type:varchar(16)" json:"severity"`
	Message   string         `gorm:"type:varchar(512)" json:"message"`
	Details   datatypes.JSON `gorm:"type:json" json:"details"`
	CreatedAt time.Time      `gorm:"index:idx_account_created" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
