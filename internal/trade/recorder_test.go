package trade

import (
	"context"
	"edgetrade/internal/dao/memory"
	"edgetrade/internal/model"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Record(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTradeDAO()
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	r := NewRecorder(store, nil, clk)

	got, err := r.Record(ctx, model.TradeCompleted{
		AccountID:   "acc",
		Symbol:      "005930",
		Side:        model.Sell,
		Quantity:    10,
		Price:       71_000,
		RealizedPnL: RealizedPnL(model.Sell, 10, 71_000, 70_000),
		Source:      model.TradeManual,
	}, model.Market)
	require.NoError(t, err)
	assert.NotEmpty(t, got.TradeID)
	assert.Equal(t, 710_000.0, got.Amount)

	stats, err := store.StatsSince(ctx, "acc", clk.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TradeCount)
	assert.Equal(t, 10_000.0, stats.RealizedPnL)
}

func TestRealizedPnL(t *testing.T) {
	assert.Nil(t, RealizedPnL(model.Buy, 10, 100, 90))
	assert.Nil(t, RealizedPnL(model.Sell, 10, 100, 0))
	pnl := RealizedPnL(model.Sell, 3, 90, 100)
	require.NotNil(t, pnl)
	assert.Equal(t, -30.0, *pnl)
}
