package engine

import (
	"context"
	"edgetrade/conf"
	"edgetrade/internal/audit"
	"edgetrade/internal/breaker"
	"edgetrade/internal/bus"
	"edgetrade/internal/dao/memory"
	"edgetrade/internal/exchange"
	"edgetrade/internal/execution"
	"edgetrade/internal/model"
	"edgetrade/internal/model/entity"
	"edgetrade/internal/position"
	"edgetrade/internal/risk"
	"edgetrade/internal/signal"
	"edgetrade/internal/strategy"
	"edgetrade/internal/trade"
	"edgetrade/pkg/errors"
	"edgetrade/pkg/errors/ecode"
	stderrors "errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	acc    = "acc-1"
	symbol = "005930"
)

type fixture struct {
	e         *Engine
	sim       *exchange.SimulatedBroker
	brk       *breaker.Breaker
	orch      *strategy.Orchestrator
	trades    *memory.TradeDAO
	sessions  *memory.SessionDAO
	scheduled *memory.ScheduledOrderDAO
	clk       *clock.Mock
}

func newFixture(t *testing.T, mutate ...func(cfg *conf.Config)) *fixture {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))

	cfg := conf.Default()
	cfg.Engine.Timezone = "UTC"
	cfg.Engine.TradingHoursOnly = false
	for _, fn := range mutate {
		fn(&cfg)
	}

	sim := exchange.NewSimulatedBroker(100_000_000)
	sim.SetPrice(symbol, 10_000)
	brokers := exchange.StaticProvider{acc: sim}

	b := bus.New(64)
	t.Cleanup(b.Close)
	trail := audit.NewDAOTrail(memory.NewAuditDAO())
	brk := breaker.New(clk, trail, b)
	trades := memory.NewTradeDAO()
	rec := trade.NewRecorder(trades, b, clk)
	orch := strategy.NewOrchestrator(strategy.Options{
		DAO: memory.NewStrategyDAO(
			entity.Strategy{ID: "s1", AccountID: acc, Name: "momentum", Priority: "HIGH", Status: "RUNNING"},
			entity.Strategy{ID: "s2", AccountID: acc, Name: "mean-revert", Priority: "LOW", Status: "STOPPED"},
		),
		Pub:      b,
		Clock:    clk,
		Location: time.UTC,
	})
	f := &fixture{
		sim:       sim,
		brk:       brk,
		orch:      orch,
		trades:    trades,
		sessions:  memory.NewSessionDAO(),
		scheduled: memory.NewScheduledOrderDAO(),
		clk:       clk,
	}
	f.e = New(Options{
		Config:  cfg,
		Brokers: brokers,
		Signals: signal.NewProcessor(clk, b),
		Breaker: brk,
		Risk: risk.NewService(risk.Options{
			Breaker:  brk,
			Brokers:  brokers,
			Trades:   trades,
			Limits:   memory.NewRiskLimitDAO(),
			Recorder: rec,
			Trail:    trail,
			Clock:    clk,
			Defaults: cfg.Risk,
			Location: time.UTC,
		}),
		Orchestrator: orch,
		Router: execution.NewRouter(execution.Options{
			Brokers:  brokers,
			Breaker:  brk,
			Recorder: rec,
			Trail:    trail,
			Clock:    clk,
		}),
		Recorder:  rec,
		Sessions:  f.sessions,
		Scheduled: f.scheduled,
		Trail:     trail,
		Bus:       b,
		Clock:     clk,
	})
	return f
}

func (f *fixture) start(t *testing.T) *model.TradingSession {
	t.Helper()
	s, err := f.e.StartAutoTrading(context.Background(), acc, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = f.e.StopAutoTrading(context.Background(), acc) })
	return s
}

func (f *fixture) held(t *testing.T) int64 {
	t.Helper()
	holdings, err := f.sim.GetHoldings(context.Background())
	require.NoError(t, err)
	for _, h := range holdings {
		if h.Symbol == symbol {
			return h.Quantity
		}
	}
	return 0
}

func intent(sig model.TradingSignal) model.OrderIntent {
	if sig.AccountID == "" {
		sig.AccountID = acc
	}
	if sig.Symbol == "" {
		sig.Symbol = symbol
	}
	if sig.Side == "" {
		sig.Side = model.Buy
	}
	if sig.Strength == "" {
		sig.Strength = model.StrengthStrong
	}
	if sig.Price == 0 {
		sig.Price = 10_000
	}
	return model.OrderIntent{Signal: &sig, StrategyID: sig.StrategyID}
}

func TestStartAutoTrading(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.start(t)
	assert.Equal(t, model.SessionRunning, s.Status)
	assert.Equal(t, []string{"s1"}, s.StrategyIDs)

	row, err := f.sessions.FindActive(ctx, acc)
	require.NoError(t, err)
	assert.Equal(t, s.ID, row.ID)

	_, err = f.e.StartAutoTrading(ctx, acc, nil)
	assert.True(t, errors.IsCode(err, ecode.ConflictErr))

	stopped, err := f.e.StopAutoTrading(ctx, acc)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStopped, stopped.Status)
	_, err = f.e.Session(acc)
	assert.True(t, errors.IsCode(err, ecode.NotFoundErr))
}

func TestStartAutoTrading_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.e.StartAutoTrading(ctx, acc, []string{"s2"})
	assert.True(t, errors.IsCode(err, ecode.ValidateErr))

	f.brk.Trip(ctx, acc, "manual", model.SeverityHigh)
	_, err = f.e.StartAutoTrading(ctx, acc, nil)
	assert.True(t, errors.IsCode(err, ecode.AdmissionRejected))
	_, err = f.e.Session(acc)
	assert.Error(t, err)
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)

	s, err := f.e.PauseAutoTrading(ctx, acc)
	require.NoError(t, err)
	assert.Equal(t, model.SessionPaused, s.Status)

	_, err = f.e.PauseAutoTrading(ctx, acc)
	assert.True(t, errors.IsCode(err, ecode.ConflictErr))

	_, err = f.e.HandleSignalReady(ctx, intent(model.TradingSignal{Quantity: 1}))
	assert.True(t, errors.IsCode(err, ecode.AdmissionRejected))

	f.brk.Trip(ctx, acc, "manual", model.SeverityHigh)
	_, err = f.e.ResumeAutoTrading(ctx, acc)
	assert.True(t, errors.IsCode(err, ecode.AdmissionRejected))

	f.brk.Reset(ctx, acc, "ok")
	s, err = f.e.ResumeAutoTrading(ctx, acc)
	require.NoError(t, err)
	assert.Equal(t, model.SessionRunning, s.Status)
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sessions.Create(ctx, &entity.TradingSession{
		ID: "sess-1", AccountID: acc, StrategyIDs: []string{"s1"}, Status: "PAUSED", StartedAt: f.clk.Now(),
	}))

	require.NoError(t, f.e.Restore(ctx))
	s, err := f.e.Session(acc)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", s.ID)
	assert.Equal(t, model.SessionPaused, s.Status)
}

func TestEvaluate_ExecutesWinningSignal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sim.SetPrice("000660", 10_000)
	f.start(t)

	_, err := f.e.SubmitSignal(model.TradingSignal{
		AccountID: acc, StrategyID: "s1", Symbol: symbol, Side: model.Buy,
		Source: model.SourceAI, Strength: model.StrengthStrong, Confidence: 80, Price: 10_000, Quantity: 10,
	})
	require.NoError(t, err)
	_, err = f.e.SubmitSignal(model.TradingSignal{
		AccountID: acc, Symbol: "000660", Side: model.Buy,
		Source: model.SourceManual, Strength: model.StrengthModerate, Confidence: 50, Price: 10_000, Quantity: 5,
	})
	require.NoError(t, err)

	intents := f.e.Evaluate(ctx, acc, []string{"s1"})
	require.Len(t, intents, 2)
	assert.Equal(t, int64(10), f.held(t))
	assert.Equal(t, 2, f.sim.Calls(exchange.OpPlace))
}

func TestHandleSignalReady(t *testing.T) {
	ctx := context.Background()

	t.Run("no session", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.e.HandleSignalReady(ctx, intent(model.TradingSignal{Quantity: 1}))
		assert.True(t, errors.IsCode(err, ecode.AdmissionRejected))
	})

	t.Run("weak signal", func(t *testing.T) {
		f := newFixture(t)
		f.start(t)
		_, err := f.e.HandleSignalReady(ctx, intent(model.TradingSignal{Quantity: 1, Strength: model.StrengthWeak}))
		assert.True(t, errors.IsCode(err, ecode.AdmissionRejected))
		assert.Zero(t, f.sim.Calls(exchange.OpPlace))
	})

	t.Run("outside trading hours", func(t *testing.T) {
		f := newFixture(t, func(cfg *conf.Config) { cfg.Engine.TradingHoursOnly = true })
		f.start(t)
		f.clk.Set(time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC))
		_, err := f.e.HandleSignalReady(ctx, intent(model.TradingSignal{Quantity: 1}))
		assert.True(t, errors.IsCode(err, ecode.AdmissionRejected))
	})

	t.Run("within trading hours", func(t *testing.T) {
		f := newFixture(t, func(cfg *conf.Config) { cfg.Engine.TradingHoursOnly = true })
		f.start(t)
		res, err := f.e.HandleSignalReady(ctx, intent(model.TradingSignal{Quantity: 3}))
		require.NoError(t, err)
		assert.True(t, res.Approved)
		assert.Equal(t, int64(3), res.FilledQuantity)
	})

	t.Run("fallback quantity from cash", func(t *testing.T) {
		f := newFixture(t)
		f.start(t)
		res, err := f.e.HandleSignalReady(ctx, intent(model.TradingSignal{}))
		require.NoError(t, err)
		require.True(t, res.Approved)
		// 100M × 10% ÷ 10,000
		assert.Equal(t, int64(1000), res.Quantity)
		assert.Equal(t, int64(1000), res.FilledQuantity)
		assert.NotEmpty(t, res.TradeID)
	})

	t.Run("stop loss sizing adjusted to suggested quantity", func(t *testing.T) {
		f := newFixture(t)
		f.start(t)
		stop := 9_800.0
		res, err := f.e.HandleSignalReady(ctx, intent(model.TradingSignal{StopLoss: &stop}))
		require.NoError(t, err)
		require.True(t, res.Approved)
		// 仓位模型给出 2000，超过单笔金额上限后按建议数量 1000 下单
		assert.Equal(t, int64(1000), res.Quantity)
		assert.Equal(t, int64(1000), f.held(t))
	})
}

func TestExecuteOrder(t *testing.T) {
	ctx := context.Background()
	req := model.ExecuteOrderRequest{AccountID: acc, Symbol: symbol, Side: model.Buy, Type: model.Market, Quantity: 10}

	t.Run("validation", func(t *testing.T) {
		f := newFixture(t)
		bad := req
		bad.Quantity = 0
		_, err := f.e.ExecuteOrder(ctx, bad)
		assert.True(t, errors.IsCode(err, ecode.ValidateErr))
		bad = req
		bad.Type = model.Limit
		_, err = f.e.ExecuteOrder(ctx, bad)
		assert.True(t, errors.IsCode(err, ecode.ValidateErr))
	})

	t.Run("rejected by breaker", func(t *testing.T) {
		f := newFixture(t)
		f.brk.Trip(ctx, acc, "manual", model.SeverityHigh)
		res, err := f.e.ExecuteOrder(ctx, req)
		require.NoError(t, err)
		assert.False(t, res.Approved)
		assert.NotEmpty(t, res.Risk.Errors)
		assert.Zero(t, f.sim.Calls(exchange.OpPlace))
	})

	t.Run("broker failure feeds breaker", func(t *testing.T) {
		f := newFixture(t)
		f.sim.Fail(exchange.OpPlace, symbol, stderrors.New("timeout"))
		res, err := f.e.ExecuteOrder(ctx, req)
		assert.True(t, errors.IsCode(err, ecode.BrokerErr))
		require.NotNil(t, res)
		assert.Empty(t, res.OrderID)
		assert.Equal(t, 1, f.brk.Status(acc).ConsecutiveFailures)
	})

	t.Run("sell records realized pnl", func(t *testing.T) {
		f := newFixture(t)
		f.sim.SetHolding(symbol, 100, 9_000)
		sell := req
		sell.Side = model.Sell
		sell.Quantity = 50
		sell.StrategyID = "s1"
		res, err := f.e.ExecuteOrder(ctx, sell)
		require.NoError(t, err)
		require.True(t, res.Approved)

		rows, err := f.trades.ListByAccount(ctx, acc, time.Time{}, 0)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.True(t, rows[0].RealizedPnL.Valid)
		assert.Equal(t, 50_000.0, rows[0].RealizedPnL.Decimal.InexactFloat64())
		assert.Equal(t, string(model.TradeManual), rows[0].Source)

		require.Eventually(t, func() bool {
			s, _ := f.orch.Strategy("s1")
			return s.TradeCount == 1
		}, time.Second, 5*time.Millisecond)
	})
}

func runSplit(t *testing.T, f *fixture, req model.SplitOrderRequest) (*model.SplitOrderResult, error) {
	t.Helper()
	var (
		res  *model.SplitOrderResult
		err  error
		done = make(chan struct{})
	)
	go func() {
		res, err = f.e.ExecuteSplitOrder(context.Background(), req)
		close(done)
	}()
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			f.clk.Add(time.Second)
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	return res, err
}

func TestExecuteSplitOrder(t *testing.T) {
	f := newFixture(t)
	res, err := runSplit(t, f, model.SplitOrderRequest{
		AccountID: acc, Symbol: symbol, Side: model.Buy, Type: model.Market, TotalQuantity: 100, Splits: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SmartCompleted, res.Status)
	require.Len(t, res.Legs, 3)
	assert.Equal(t, []int64{33, 33, 34}, []int64{res.Legs[0].Quantity, res.Legs[1].Quantity, res.Legs[2].Quantity})
	assert.Equal(t, int64(100), res.FilledQuantity)
	assert.Len(t, res.OrderIDs, 3)
	assert.Empty(t, res.Errors)
}

func TestExecuteSplitOrder_Partial(t *testing.T) {
	f := newFixture(t)
	f.sim.SetHolding(symbol, 50, 9_000)
	res, err := runSplit(t, f, model.SplitOrderRequest{
		AccountID: acc, Symbol: symbol, Side: model.Sell, Type: model.Market, TotalQuantity: 100, Splits: 2,
	})
	assert.True(t, errors.IsCode(err, ecode.PartialExecution))
	require.NotNil(t, res)
	assert.Equal(t, model.SmartCompleted, res.Status)
	assert.Equal(t, int64(50), res.FilledQuantity)
	assert.Len(t, res.Errors, 1)
}

func TestExecuteSplitOrder_AllFailed(t *testing.T) {
	f := newFixture(t)
	f.sim.Fail(exchange.OpPlace, symbol, stderrors.New("down"))
	res, err := runSplit(t, f, model.SplitOrderRequest{
		AccountID: acc, Symbol: symbol, Side: model.Buy, Type: model.Market, TotalQuantity: 10, Splits: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SmartFailed, res.Status)
	assert.Len(t, res.Errors, 2)

	_, err = f.e.ExecuteSplitOrder(context.Background(), model.SplitOrderRequest{
		AccountID: acc, Symbol: symbol, Side: model.Buy, Type: model.Market, TotalQuantity: 1, Splits: 2,
	})
	assert.True(t, errors.IsCode(err, ecode.ValidateErr))
}

func TestScheduledOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clk.Now()

	so, err := f.e.CreateScheduledOrder(ctx, model.ScheduledOrderRequest{
		AccountID: acc, Symbol: symbol, Side: model.Buy, Type: model.Market, Quantity: 5, ExecuteAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC), so.ValidUntil)
	assert.Equal(t, model.ScheduledPending, so.Status)

	n, err := f.e.CheckScheduledOrders(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clk.Add(time.Hour)
	n, err = f.e.CheckScheduledOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	row, err := f.scheduled.FindByID(ctx, so.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.ScheduledExecuted), row.Status)
	assert.NotEmpty(t, row.OrderID)
	assert.Equal(t, int64(5), f.held(t))

	pending, err := f.e.ScheduledOrders(ctx, acc)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestScheduledOrders_ExpireAndCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clk.Now()
	req := model.ScheduledOrderRequest{
		AccountID: acc, Symbol: symbol, Side: model.Buy, Type: model.Market, Quantity: 5,
		ExecuteAt: now.Add(time.Hour), ValidUntil: now.Add(2 * time.Hour),
	}

	expiring, err := f.e.CreateScheduledOrder(ctx, req)
	require.NoError(t, err)
	cancelled, err := f.e.CreateScheduledOrder(ctx, req)
	require.NoError(t, err)

	out, err := f.e.CancelScheduledOrder(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ScheduledCancelled, out.Status)
	_, err = f.e.CancelScheduledOrder(ctx, cancelled.ID)
	assert.True(t, errors.IsCode(err, ecode.ConflictErr))
	_, err = f.e.CancelScheduledOrder(ctx, "missing")
	assert.True(t, errors.IsCode(err, ecode.NotFoundErr))

	f.clk.Add(3 * time.Hour)
	n, err := f.e.CheckScheduledOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	row, err := f.scheduled.FindByID(ctx, expiring.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.ScheduledExpired), row.Status)
	assert.Zero(t, f.sim.Calls(exchange.OpPlace))

	bad := req
	bad.ValidUntil = now.Add(30 * time.Minute)
	_, err = f.e.CreateScheduledOrder(ctx, bad)
	assert.True(t, errors.IsCode(err, ecode.ValidateErr))
}

func TestExecuteSmartOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.e.ExecuteSmartOrder(ctx, model.SmartOrderRequest{
		AccountID: acc, Symbol: symbol, Side: model.Buy, TotalQuantity: 5_000, Style: model.RouteTWAP, DurationMinutes: 5,
	})
	assert.True(t, errors.IsCode(err, ecode.AdmissionRejected))

	res, err := f.e.ExecuteSmartOrder(ctx, model.SmartOrderRequest{
		AccountID: acc, Symbol: symbol, Side: model.Buy, TotalQuantity: 100, Style: model.RouteTWAP, DurationMinutes: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SmartActive, res.Status)
	assert.Len(t, f.e.ActiveOrders(acc), 1)

	out, err := f.e.CancelSmartOrder(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SmartCancelled, out.Status)
	assert.Empty(t, f.e.ActiveOrders(acc))
}

func TestExecuteSmartOrder_ChecksOrderValuePerChild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 总额 1500 万超过单笔上限，拆成 5 片后每片 300 万
	res, err := f.e.ExecuteSmartOrder(ctx, model.SmartOrderRequest{
		AccountID: acc, Symbol: symbol, Side: model.Buy, TotalQuantity: 1_500, Style: model.RouteTWAP, DurationMinutes: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SmartActive, res.Status)
	assert.Equal(t, int64(300), res.FilledQuantity)

	// Aggressive 一次性提交，仍按总量拒绝并给出建议数量
	_, err = f.e.ExecuteSmartOrder(ctx, model.SmartOrderRequest{
		AccountID: acc, Symbol: symbol, Side: model.Buy, TotalQuantity: 1_500, Style: model.RouteAggressive,
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, ecode.AdmissionRejected))
	assert.Contains(t, err.Error(), "suggested quantity 1000")
}

func TestRiskParity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	allocs, err := f.e.RiskParity(ctx, acc, 3_000_000, []position.AssetRisk{
		{Symbol: symbol, ATR: 200},
		{Symbol: "000660", Price: 50_000, ATR: 2_000},
	})
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	assert.Equal(t, symbol, allocs[0].Symbol, "lower volatility gets the larger weight")
	assert.InDelta(t, 2.0/3, allocs[0].Weight, 1e-9)
	assert.InDelta(t, 200, float64(allocs[0].Quantity), 1)
	assert.InDelta(t, 20, float64(allocs[1].Quantity), 1)

	// 未指定资金时取账户总评估额
	bal, err := f.sim.GetAccountBalance(ctx)
	require.NoError(t, err)
	allocs, err = f.e.RiskParity(ctx, acc, 0, []position.AssetRisk{{Symbol: symbol, ATR: 200}})
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.InDelta(t, bal.TotalEvaluation, allocs[0].Capital, 1)

	_, err = f.e.RiskParity(ctx, acc, 0, nil)
	assert.True(t, errors.IsCode(err, ecode.ValidateErr))
}

func TestPyramidSize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.e.PyramidSize(ctx, acc, symbol)
	require.NoError(t, err)
	assert.Zero(t, res.AddQuantity)

	f.sim.SetHolding(symbol, 100, 9_000)
	res, err = f.e.PyramidSize(ctx, acc, symbol)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Quantity)
	assert.Equal(t, 10_000.0, res.CurrentPrice)
	assert.Equal(t, int64(50), res.AddQuantity)

	f.sim.SetPrice(symbol, 8_500)
	res, err = f.e.PyramidSize(ctx, acc, symbol)
	require.NoError(t, err)
	assert.Zero(t, res.AddQuantity, "no adds while the position is under water")
}

func TestValidateOrder_UsesQuote(t *testing.T) {
	f := newFixture(t)
	res, err := f.e.ValidateOrder(context.Background(), model.OrderCheck{AccountID: acc, Symbol: symbol, Side: model.Buy, Quantity: 1_500})
	require.NoError(t, err)
	assert.False(t, res.Approved)
	require.NotNil(t, res.SuggestedQuantity)
	assert.Equal(t, int64(1000), *res.SuggestedQuantity)
	assert.Zero(t, f.sim.Calls(exchange.OpPlace))
}

func TestEmergencyLiquidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)
	f.sim.SetHolding(symbol, 100, 9_000)

	res, err := f.e.EmergencyLiquidation(ctx, acc, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, res.LiquidatedPositions)
	assert.Equal(t, int64(0), f.held(t))
	assert.Equal(t, model.BreakerOpen, f.e.CircuitBreakerStatus(acc).State)
	_, err = f.e.Session(acc)
	assert.True(t, errors.IsCode(err, ecode.NotFoundErr))

	st := f.e.ResetCircuitBreaker(ctx, acc, "")
	assert.Equal(t, model.BreakerClosed, st.State)
}
