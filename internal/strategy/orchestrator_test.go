package strategy

import (
	"context"
	"edgetrade/internal/dao/memory"
	"edgetrade/internal/model"
	"edgetrade/internal/model/entity"
	"edgetrade/pkg/errors"
	"edgetrade/pkg/errors/ecode"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type intentRecorder struct {
	mu      sync.Mutex
	intents []model.OrderIntent
}

func (r *intentRecorder) sink(_ context.Context, in model.OrderIntent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, in)
}

func (r *intentRecorder) all() []model.OrderIntent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.OrderIntent(nil), r.intents...)
}

func newTestOrchestrator(capital float64) (*Orchestrator, *intentRecorder, *clock.Mock, *memory.StrategyDAO) {
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	rec := &intentRecorder{}
	d := memory.NewStrategyDAO(
		entity.Strategy{ID: "momentum", AccountID: "acc-1", Name: "momentum", Priority: "HIGH", Status: "RUNNING"},
		entity.Strategy{ID: "meanrev", AccountID: "acc-1", Name: "mean reversion", Priority: "LOW", Status: "RUNNING"},
		entity.Strategy{ID: "breakout", AccountID: "acc-1", Name: "breakout", Priority: "MEDIUM", Status: "PAUSED"},
	)
	o := NewOrchestrator(Options{
		DAO:      d,
		Capital:  func(context.Context, string) (float64, error) { return capital, nil },
		Sink:     rec.sink,
		Clock:    clk,
		Location: time.UTC,
	})
	_, err := o.Load(context.Background(), "acc-1")
	if err != nil {
		panic(err)
	}
	return o, rec, clk, d
}

func sig(id, strategyID string, side model.Side, confidence float64) *model.TradingSignal {
	return &model.TradingSignal{
		ID:         id,
		AccountID:  "acc-1",
		StrategyID: strategyID,
		Symbol:     "005930",
		Side:       side,
		Confidence: confidence,
		Price:      70_000,
		Quantity:   10,
	}
}

func TestLoad(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(0)
	list := o.Strategies("acc-1")
	require.Len(t, list, 3)
	assert.Equal(t, "momentum", list[0].ID)
	assert.Equal(t, "meanrev", list[2].ID)
}

func TestConflict_OppositeSidesWeighted(t *testing.T) {
	o, rec, _, _ := newTestOrchestrator(0)
	intents := o.HandleSignals(context.Background(),
		sig("s1", "meanrev", model.Sell, 80),
		sig("b1", "momentum", model.Buy, 80),
	)
	require.Len(t, intents, 1)
	assert.Equal(t, "b1", intents[0].Signal.ID)
	assert.Equal(t, model.Buy, intents[0].Signal.Side)
	assert.Len(t, rec.all(), 1)
	assert.Zero(t, o.Pending())
}

func TestConflict_TieCancels(t *testing.T) {
	o, rec, _, _ := newTestOrchestrator(0)
	// 3 x 60 == 2 x 90，未注册策略按 MEDIUM
	intents := o.HandleSignals(context.Background(),
		sig("b1", "momentum", model.Buy, 60),
		sig("s1", "unknown", model.Sell, 90),
	)
	assert.Empty(t, intents)
	assert.Empty(t, rec.all())
}

func TestConflict_SameSideHighestConfidence(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(0)
	intents := o.HandleSignals(context.Background(),
		sig("b1", "momentum", model.Buy, 60),
		sig("b2", "meanrev", model.Buy, 75),
	)
	require.Len(t, intents, 1)
	assert.Equal(t, "b2", intents[0].Signal.ID)
}

func TestHandleSignals_GroupsBySymbol(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(0)
	other := sig("b2", "meanrev", model.Buy, 50)
	other.Symbol = "000660"
	intents := o.HandleSignals(context.Background(), sig("b1", "momentum", model.Buy, 60), other)
	assert.Len(t, intents, 2)
}

func TestHandleSignal_PausedStrategyDropped(t *testing.T) {
	o, rec, _, _ := newTestOrchestrator(0)
	assert.Empty(t, o.HandleSignal(context.Background(), sig("b1", "breakout", model.Buy, 90)))
	assert.Empty(t, rec.all())
}

func TestInsertByPriority(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(0)
	o.mu.Lock()
	o.insertLocked(pending{signal: sig("low", "meanrev", model.Buy, 1), weight: 1})
	o.insertLocked(pending{signal: sig("med", "", model.Buy, 1), weight: 2})
	o.insertLocked(pending{signal: sig("high", "momentum", model.Buy, 1), weight: 3})
	o.insertLocked(pending{signal: sig("med2", "", model.Buy, 1), weight: 2})
	var ids []string
	for _, p := range o.queue {
		ids = append(ids, p.signal.ID)
	}
	o.queue = nil
	o.mu.Unlock()
	assert.Equal(t, []string{"high", "med", "med2", "low"}, ids)
}

func TestCheckCapitalAllocation(t *testing.T) {
	ctx := context.Background()
	o, _, _, _ := newTestOrchestrator(10_000_000)

	ok, err := o.CheckCapitalAllocation(ctx, "momentum", "acc-1", 50_000_000)
	require.NoError(t, err)
	assert.True(t, ok, "zero allocation is unconstrained")

	_, err = o.SetCapitalAllocation(ctx, "momentum", 10)
	require.NoError(t, err)
	ok, _ = o.CheckCapitalAllocation(ctx, "momentum", "acc-1", 1_000_000)
	assert.True(t, ok)
	ok, _ = o.CheckCapitalAllocation(ctx, "momentum", "acc-1", 1_000_001)
	assert.False(t, ok)

	// 10 x 70,000 = 700,000 > 10,000,000 x 5%
	_, err = o.SetCapitalAllocation(ctx, "momentum", 5)
	require.NoError(t, err)
	assert.Empty(t, o.HandleSignal(ctx, sig("b1", "momentum", model.Buy, 90)))
}

func TestSetters(t *testing.T) {
	ctx := context.Background()
	o, _, _, d := newTestOrchestrator(0)

	_, err := o.SetCapitalAllocation(ctx, "momentum", 120)
	assert.True(t, errors.IsCode(err, ecode.ValidateErr))
	_, err = o.SetPriority(ctx, "momentum", "URGENT")
	assert.True(t, errors.IsCode(err, ecode.ValidateErr))
	_, err = o.Start(ctx, "missing")
	assert.True(t, errors.IsCode(err, ecode.NotFoundErr))

	inst, err := o.SetPriority(ctx, "meanrev", model.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, model.PriorityHigh, inst.Priority)

	_, err = o.Pause(ctx, "momentum")
	require.NoError(t, err)
	row, err := d.FindByID(ctx, "momentum")
	require.NoError(t, err)
	assert.Equal(t, "PAUSED", row.Status)

	_, err = o.Start(ctx, "breakout")
	require.NoError(t, err)
	s, _ := o.Strategy("breakout")
	assert.Equal(t, model.StrategyRunning, s.Status)

	o.MarkError(ctx, "breakout", assert.AnError)
	s, _ = o.Strategy("breakout")
	assert.Equal(t, model.StrategyError, s.Status)
	assert.Equal(t, assert.AnError.Error(), s.LastError)
}

func TestOnTradeCompleted(t *testing.T) {
	ctx := context.Background()
	o, _, _, d := newTestOrchestrator(0)
	win, loss := 50_000.0, -20_000.0

	o.OnTradeCompleted(ctx, "momentum", nil)
	o.OnTradeCompleted(ctx, "momentum", &win)
	o.OnTradeCompleted(ctx, "momentum", &loss)

	s, _ := o.Strategy("momentum")
	assert.Equal(t, 3, s.TradeCount)
	assert.Equal(t, 30_000.0, s.DailyPnL)
	assert.Equal(t, 30_000.0, s.TotalPnL)
	// 0 -> 0.1 -> 0.09
	assert.InDelta(t, 0.09, s.WinRate, 1e-9)

	row, _ := d.FindByID(ctx, "momentum")
	assert.Equal(t, 30_000.0, row.TotalPnL)
}

func TestRun_ResetsDailyPnLAtMidnight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o, _, clk, _ := newTestOrchestrator(0)
	pnl := 10_000.0
	o.OnTradeCompleted(ctx, "momentum", &pnl)

	go o.Run(ctx)
	require.Eventually(t, func() bool {
		clk.Add(time.Hour)
		s, _ := o.Strategy("momentum")
		return s.DailyPnL == 0
	}, time.Second, time.Millisecond)

	s, _ := o.Strategy("momentum")
	assert.Equal(t, 10_000.0, s.TotalPnL)
}
