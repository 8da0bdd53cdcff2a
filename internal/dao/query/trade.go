package query

import (
	"context"
	"edgetrade/internal/dao"
	"edgetrade/internal/model/entity"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TradeDAOImpl Gorm 实现
type TradeDAOImpl struct {
	db *gorm.DB
}

func NewTradeDAO(db *gorm.DB) dao.TradeDAO {
	return &TradeDAOImpl{db: db}
}

// Create 插入成交记录
func (d *TradeDAOImpl) Create(ctx context.Context, trade *entity.Trade) error {
	return d.db.WithContext(ctx).Create(trade).Error
}

func (d *TradeDAOImpl) StatsSince(ctx context.Context, accountID string, since time.Time) (dao.TradeStats, error) {
	var row struct {
		RealizedPnL decimal.Decimal `gorm:"column:realized_pnl"`
		TradeCount  int             `gorm:"column:trade_count"`
	}
	err := d.db.WithContext(ctx).Model(&entity.Trade{}).
		Select("COALESCE(SUM(realized_pnl), 0) AS realized_pnl, COUNT(*) AS trade_count").
		Where("account_id = ? AND executed_at >= ?", accountID, since).
		Scan(&row).Error
	if err != nil {
		return dao.TradeStats{}, fmt.Errorf("failed to load trade stats: %w", err)
	}
	return dao.TradeStats{RealizedPnL: row.RealizedPnL.InexactFloat64(), TradeCount: row.TradeCount}, nil
}

func (d *TradeDAOImpl) ListByAccount(ctx context.Context, accountID string, since time.Time, limit int) ([]entity.Trade, error) {
	var trades []entity.Trade
	q := d.db.WithContext(ctx).
		Where("account_id = ? AND executed_at >= ?", accountID, since).
		Order("executed_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&trades).Error
	return trades, err
}
