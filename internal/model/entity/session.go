package entity

import (
	"time"

	"gorm.io/datatypes"
)

// TradingSession 自动交易会话
type TradingSession struct {
	ID          string                      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AccountID   string                      `gorm:"index;type:varchar(36);not null" json:"account_id"`
	StrategyIDs datatypes.JSONSlice[string] `gorm:"type:json" json:"strategy_ids"`
	Status      string                      `gorm:"type:varchar(16)" json:"status"`
	StartedAt   time.Time                   `json:"started_at"`
	StoppedAt   *time.Time                  `json:"stopped_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

func (TradingSession) TableName() string {
	return "trading_sessions"
}
