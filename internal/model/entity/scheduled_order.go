package entity

import "time"

// ScheduledOrder 预约单
type ScheduledOrder struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AccountID  string    `gorm:"index;type:varchar(36);not null" json:"account_id"`
	Symbol     string    `gorm:"type:varchar(20);not null" json:"symbol"`
	Side       string    `gorm:"type:varchar(4)" json:"side"`
	OrderType  string    `gorm:"type:varchar(10)" json:"order_type"`
	Quantity   int64     `json:"quantity"`
	Price      float64   `gorm:"type:decimal(20,4)" json:"price"`
	ExecuteAt  time.Time `gorm:"index:idx_status_execute" json:"execute_at"`
	ValidUntil time.Time `json:"valid_until"`
	Status     string    `gorm:"index:idx_status_execute;type:varchar(16)" json:"status"`
	OrderID    string    `gorm:"type:varchar(64)" json:"order_id"`
	Error      string    `gorm:"type:varchar(255)" json:"error"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (ScheduledOrder) TableName() string {
	return "scheduled_orders"
}
