package entity

import "time"

// RiskLimit 账户级风控覆盖值，为空的字段使用默认配置
type RiskLimit struct {
	AccountID           string    `gorm:"primaryKey;type:varchar(36)" json:"account_id"`
	DailyMaxLoss        *float64  `gorm:"type:decimal(20,2)" json:"daily_max_loss"`
	DailyMaxLossPercent *float64  `gorm:"type:decimal(6,2)" json:"daily_max_loss_percent"`
	MaxPositionPercent  *float64  `gorm:"type:decimal(6,2)" json:"max_position_percent"`
	MaxDailyTrades      *int      `json:"max_daily_trades"`
	MaxOrderValue       *float64  `gorm:"type:decimal(20,2)" json:"max_order_value"`
	AutoTradeEnabled    bool      `gorm:"default:true" json:"auto_trade_enabled"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (RiskLimit) TableName() string {
	return "risk_limits"
}
