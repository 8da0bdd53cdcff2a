package engine

import (
	"context"
	"edgetrade/conf"
	"edgetrade/internal/audit"
	"edgetrade/internal/breaker"
	"edgetrade/internal/bus"
	"edgetrade/internal/consts"
	"edgetrade/internal/dao"
	"edgetrade/internal/exchange"
	"edgetrade/internal/execution"
	"edgetrade/internal/model"
	"edgetrade/internal/position"
	"edgetrade/internal/risk"
	"edgetrade/internal/signal"
	"edgetrade/internal/strategy"
	"edgetrade/internal/trade"
	"edgetrade/pkg/logger"
	"edgetrade/pkg/utils"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type Options struct {
	Config       conf.Config
	Brokers      exchange.Provider
	Signals      *signal.Processor
	Breaker      *breaker.Breaker
	Risk         *risk.Service
	Orchestrator *strategy.Orchestrator
	Sizer        *position.Sizer
	Router       *execution.Router
	Recorder     *trade.Recorder
	Sessions     dao.SessionDAO
	Scheduled    dao.ScheduledOrderDAO
	Trail        audit.Trail
	Bus          *bus.Bus
	Clock        clock.Clock
}

// Engine 串起信号、编排、风控、熔断和下单，管理账户的自动交易会话
type Engine struct {
	cfg          conf.EngineConfig
	loc          *time.Location
	brokers      exchange.Provider
	signals      *signal.Processor
	breaker      *breaker.Breaker
	risk         *risk.Service
	orchestrator *strategy.Orchestrator
	sizer        *position.Sizer
	router       *execution.Router
	recorder     *trade.Recorder
	sessions     dao.SessionDAO
	scheduled    dao.ScheduledOrderDAO
	trail        audit.Trail
	bus          *bus.Bus
	clock        clock.Clock

	mu     sync.Mutex
	active map[string]*session // accountID -> 会话

	unsubscribe []func()
}

func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Trail == nil {
		opts.Trail = audit.NewLogTrail()
	}
	if opts.Sizer == nil {
		opts.Sizer = position.NewSizer(opts.Config.Engine.MaxRiskPercent, opts.Config.Risk.MaxPositionPercent)
	}
	e := &Engine{
		cfg:          opts.Config.Engine,
		loc:          opts.Config.Engine.Location(),
		brokers:      opts.Brokers,
		signals:      opts.Signals,
		breaker:      opts.Breaker,
		risk:         opts.Risk,
		orchestrator: opts.Orchestrator,
		sizer:        opts.Sizer,
		router:       opts.Router,
		recorder:     opts.Recorder,
		sessions:     opts.Sessions,
		scheduled:    opts.Scheduled,
		trail:        opts.Trail,
		bus:          opts.Bus,
		clock:        opts.Clock,
		active:       make(map[string]*session),
	}
	if e.cfg.EvaluationInterval <= 0 {
		e.cfg.EvaluationInterval = time.Minute
	}
	if e.cfg.ScheduledCheckInterval <= 0 {
		e.cfg.ScheduledCheckInterval = time.Minute
	}
	if e.cfg.FallbackCashRatio <= 0 {
		e.cfg.FallbackCashRatio = 0.1
	}
	e.orchestrator.SetSink(e.onIntent)
	if e.bus != nil {
		e.unsubscribe = append(e.unsubscribe,
			e.bus.Subscribe(consts.TopicTradeCompleted, "engine.strategy-pnl", e.onTradeCompleted))
	}
	return e
}

// onIntent 编排器放行的信号进入下单流程
func (e *Engine) onIntent(ctx context.Context, intent model.OrderIntent) {
	res, err := e.HandleSignalReady(ctx, intent)
	if err != nil {
		logger.Warnf("[Engine] signal %s not executed: %v", intent.Signal.ID, err)
		return
	}
	if res != nil && !res.Approved {
		logger.Infof("[Engine] signal %s rejected: %s", intent.Signal.ID, res.Message)
	}
}

// onTradeCompleted 成交回写策略盈亏
func (e *Engine) onTradeCompleted(ctx context.Context, ev bus.Event) {
	t, ok := ev.Payload.(*model.TradeCompleted)
	if !ok || t.StrategyID == "" {
		return
	}
	e.orchestrator.OnTradeCompleted(ctx, t.StrategyID, t.RealizedPnL)
}

// Run 恢复会话并启动所有后台循环，ctx 结束后停止评估（会话状态保留，重启后恢复）
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Restore(ctx); err != nil {
		logger.Errorf("[Engine] restore sessions failed: %v", err)
	}
	var wg sync.WaitGroup
	loops := []func(context.Context){
		e.signals.Run,
		e.breaker.Run,
		e.orchestrator.Run,
		e.runScheduledOrders,
	}
	for _, loop := range loops {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(loop)
	}
	logger.Infof("[Engine] running, evaluation every %s", e.cfg.EvaluationInterval)
	<-ctx.Done()

	e.mu.Lock()
	for _, s := range e.active {
		s.stopLoop()
	}
	e.mu.Unlock()
	for _, unsub := range e.unsubscribe {
		unsub()
	}
	wg.Wait()
	logger.Info("[Engine] stopped")
	return nil
}

// SubmitSignal 外部信号入口
func (e *Engine) SubmitSignal(sig model.TradingSignal) (*model.TradingSignal, error) {
	return e.signals.Submit(sig)
}

// OnTick 行情推送入口
func (e *Engine) OnTick(tick model.Tick) {
	e.signals.OnTick(tick)
}

// withinTradingHours 未开启交易时段限制时始终为 true
func (e *Engine) withinTradingHours(now time.Time) bool {
	if !e.cfg.TradingHoursOnly {
		return true
	}
	local := now.In(e.loc)
	open, err := utils.ParseClock(local, e.cfg.MarketOpen)
	if err != nil {
		return true
	}
	closeAt, err := utils.ParseClock(local, e.cfg.MarketClose)
	if err != nil {
		return true
	}
	return !local.Before(open) && local.Before(closeAt)
}
