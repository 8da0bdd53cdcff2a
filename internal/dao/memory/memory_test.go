package memory

import (
	"context"
	"edgetrade/internal/dao"
	"edgetrade/internal/model"
	"edgetrade/internal/model/entity"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeDAO_StatsSince(t *testing.T) {
	ctx := context.Background()
	d := NewTradeDAO()
	today := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, d.Create(ctx, &entity.Trade{ID: "1", AccountID: "acc", ExecutedAt: today.Add(-time.Hour),
		RealizedPnL: decimal.NewNullDecimal(decimal.NewFromInt(-500))}))
	require.NoError(t, d.Create(ctx, &entity.Trade{ID: "2", AccountID: "acc", ExecutedAt: today.Add(time.Hour),
		RealizedPnL: decimal.NewNullDecimal(decimal.NewFromInt(-1200))}))
	require.NoError(t, d.Create(ctx, &entity.Trade{ID: "3", AccountID: "acc", ExecutedAt: today.Add(2 * time.Hour)}))
	require.NoError(t, d.Create(ctx, &entity.Trade{ID: "4", AccountID: "other", ExecutedAt: today.Add(time.Hour)}))

	stats, err := d.StatsSince(ctx, "acc", today)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TradeCount)
	assert.Equal(t, -1200.0, stats.RealizedPnL)

	list, err := d.ListByAccount(ctx, "acc", today, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "3", list[0].ID)
}

func TestScheduledOrderDAO_ListPending(t *testing.T) {
	ctx := context.Background()
	d := NewScheduledOrderDAO()
	now := time.Now()
	require.NoError(t, d.Create(ctx, &entity.ScheduledOrder{ID: "b", ExecuteAt: now.Add(2 * time.Minute), Status: string(model.ScheduledPending)}))
	require.NoError(t, d.Create(ctx, &entity.ScheduledOrder{ID: "a", ExecuteAt: now.Add(time.Minute), Status: string(model.ScheduledPending)}))
	require.NoError(t, d.Create(ctx, &entity.ScheduledOrder{ID: "c", ExecuteAt: now, Status: string(model.ScheduledExecuted)}))

	pending, err := d.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].ID)

	err = d.Update(ctx, &entity.ScheduledOrder{ID: "missing"})
	assert.ErrorIs(t, err, dao.ErrNotFound)
}

func TestSessionDAO_FindActive(t *testing.T) {
	ctx := context.Background()
	d := NewSessionDAO()
	_, err := d.FindActive(ctx, "acc")
	assert.ErrorIs(t, err, dao.ErrNotFound)

	s := &entity.TradingSession{ID: "s1", AccountID: "acc", Status: string(model.SessionRunning)}
	require.NoError(t, d.Create(ctx, s))
	got, err := d.FindActive(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)

	s.Status = string(model.SessionStopped)
	require.NoError(t, d.Update(ctx, s))
	_, err = d.FindActive(ctx, "acc")
	assert.ErrorIs(t, err, dao.ErrNotFound)
}
