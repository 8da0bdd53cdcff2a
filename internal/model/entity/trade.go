package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade 成交记录，金额字段用 decimal 存储
type Trade struct {
	ID          string              `gorm:"primaryKey;type:varchar(32)" json:"id"`
	AccountID   string              `gorm:"index:idx_account_executed;type:varchar(36);not null" json:"account_id"`
	StrategyID  string              `gorm:"type:varchar(36)" json:"strategy_id"`
	OrderID     string              `gorm:"type:varchar(64)" json:"order_id"`
	Symbol      string              `gorm:"type:varchar(20);not null" json:"symbol"`
	Side        string              `gorm:"type:varchar(4)" json:"side"`
	OrderType   string              `gorm:"type:varchar(10)" json:"order_type"`
	Quantity    int64               `gorm:"not null" json:"quantity"`
	Price       decimal.Decimal     `gorm:"type:decimal(20,4)" json:"price"`
	Amount      decimal.Decimal     `gorm:"type:decimal(24,4)" json:"amount"`
	RealizedPnL decimal.NullDecimal `gorm:"column:realized_pnl;type:decimal(24,4)" json:"realized_pnl"`
	Source      string              `gorm:"type:varchar(16)" json:"source"`
	ExecutedAt  time.Time           `gorm:"index:idx_account_executed;not null" json:"executed_at"`
	CreatedAt   time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

func (Trade) TableName() string {
	return "trades"
}
