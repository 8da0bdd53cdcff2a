package dao

import (
	"context"
	"edgetrade/internal/model/entity"
	"time"
)

// TradeStats 某时刻以来的成交统计
type TradeStats struct {
	RealizedPnL float64
	TradeCount  int
}

// TradeDAO 成交记录
type TradeDAO interface {
	Create(ctx context.Context, trade *entity.Trade) error
	// StatsSince 统计 since 之后的已实现盈亏和成交笔数
	StatsSince(ctx context.Context, accountID string, since time.Time) (TradeStats, error)
	ListByAccount(ctx context.Context, accountID string, since time.Time, limit int) ([]entity.Trade, error)
}
