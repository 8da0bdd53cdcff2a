package memory

import (
	"context"
	"edgetrade/internal/dao"
	"edgetrade/internal/model/entity"
	"sort"
	"sync"
	"time"
)

// 内存实现，模拟盘和测试使用

type TradeDAO struct {
	mu     sync.RWMutex
	trades []entity.Trade
}

func NewTradeDAO() *TradeDAO {
	return &TradeDAO{}
}

func (d *TradeDAO) Create(_ context.Context, trade *entity.Trade) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = time.Now()
	}
	d.trades = append(d.trades, *trade)
	return nil
}

func (d *TradeDAO) StatsSince(_ context.Context, accountID string, since time.Time) (dao.TradeStats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var stats dao.TradeStats
	for _, t := range d.trades {
		if t.AccountID != accountID || t.ExecutedAt.Before(since) {
			continue
		}
		stats.TradeCount++
		if t.RealizedPnL.Valid {
			stats.RealizedPnL += t.RealizedPnL.Decimal.InexactFloat64()
		}
	}
	return stats, nil
}

func (d *TradeDAO) ListByAccount(_ context.Context, accountID string, since time.Time, limit int) ([]entity.Trade, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []entity.Trade
	for _, t := range d.trades {
		if t.AccountID == accountID && !t.ExecutedAt.Before(since) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExecutedAt.After(out[j].ExecutedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
