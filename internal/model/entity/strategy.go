package entity

import "time"

type Strategy struct {
	ID                       string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AccountID                string    `gorm:"index;type:varchar(36);not null" json:"account_id"`
	Name                     string    `gorm:"type:varchar(64)" json:"name"`
	Priority                 string    `gorm:"type:varchar(8);default:MEDIUM" json:"priority"`
	Status                   string    `gorm:"type:varchar(16)" json:"status"`
	CapitalAllocationPercent float64   `gorm:"type:decimal(6,2)" json:"capital_allocation_percent"`
	TotalPnL                 float64   `gorm:"column:total_pnl;type:decimal(24,4)" json:"total_pnl"`
	TradeCount               int       `json:"trade_count"`
	WinRate                  float64   `json:"win_rate"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

func (Strategy) TableName() string {
	return "strategies"
}
