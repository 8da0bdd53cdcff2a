package execution

import (
	"context"
	"edgetrade/conf"
	"edgetrade/internal/audit"
	"edgetrade/internal/bus"
	"edgetrade/internal/consts"
	"edgetrade/internal/exchange"
	"edgetrade/internal/model"
	"edgetrade/internal/trade"
	"edgetrade/pkg/errors"
	"edgetrade/pkg/idgen"
	"edgetrade/pkg/logger"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
)

// 价格保护连续推迟超过该次数后该片记为失败
const maxDeferrals = 30

// Gate 路由需要的熔断器能力
type Gate interface {
	CanPlaceOrder(accountID string) bool
	RecordSuccess(ctx context.Context, accountID string)
	RecordFailure(ctx context.Context, accountID, reason string)
}

type Options struct {
	Brokers  exchange.Provider
	Breaker  Gate
	Recorder *trade.Recorder
	Trail    audit.Trail
	Pub      bus.Publisher
	Clock    clock.Clock
	Config   conf.RouterConfig
}

// 子单累计成交
type fill struct {
	qty      int64
	notional float64
}

// smartOrder 单个智能订单的运行状态，mu 保证同一订单的子单串行执行
type smartOrder struct {
	mu     sync.Mutex
	req    model.SmartOrderRequest
	res    model.SmartOrderResult
	broker exchange.Broker

	ctx    context.Context
	cancel context.CancelFunc
	timers map[int]*clock.Timer

	fills    map[string]fill
	notional float64
	resting  map[string]struct{}
	observed []float64
	avgCost  float64       // 卖出时的持仓均价，用于计算已实现盈亏
	retry    time.Duration // 价格保护推迟间隔

	// BEST_LIMIT 等待成交后结束
	awaitFill bool
}

// Router 智能拆单路由
type Router struct {
	brokers  exchange.Provider
	gate     Gate
	recorder *trade.Recorder
	trail    audit.Trail
	pub      bus.Publisher
	clock    clock.Clock
	cfg      conf.RouterConfig

	mu     sync.RWMutex
	orders map[string]*smartOrder
}

func NewRouter(opts Options) *Router {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Trail == nil {
		opts.Trail = audit.NewLogTrail()
	}
	cfg := opts.Config
	def := conf.Default().Router
	if cfg.ParticipationRate <= 0 {
		cfg.ParticipationRate = def.ParticipationRate
	}
	if cfg.IcebergSettleDelay <= 0 {
		cfg.IcebergSettleDelay = def.IcebergSettleDelay
	}
	if cfg.BestLimitPollInterval <= 0 {
		cfg.BestLimitPollInterval = def.BestLimitPollInterval
	}
	if cfg.SpikeGuardPercent <= 0 {
		cfg.SpikeGuardPercent = def.SpikeGuardPercent
	}
	if cfg.MaxSlices <= 0 {
		cfg.MaxSlices = def.MaxSlices
	}
	return &Router{
		brokers:  opts.Brokers,
		gate:     opts.Breaker,
		recorder: opts.Recorder,
		trail:    opts.Trail,
		pub:      opts.Pub,
		clock:    opts.Clock,
		cfg:      cfg,
		orders:   make(map[string]*smartOrder),
	}
}

func validateRequest(req *model.SmartOrderRequest) error {
	switch {
	case req.AccountID == "":
		return errors.Validation("accountId is required")
	case req.Symbol == "":
		return errors.Validation("symbol is required")
	case !req.Side.Valid():
		return errors.Validation("invalid side %q", req.Side)
	case req.TotalQuantity <= 0:
		return errors.Validation("totalQuantity must be positive")
	case !req.Style.Valid():
		return errors.Validation("invalid routing style %q", req.Style)
	case req.LimitPrice != nil && *req.LimitPrice <= 0:
		return errors.Validation("limitPrice must be positive")
	case req.DisplayQuantity < 0:
		return errors.Validation("displayQuantity must not be negative")
	case req.PriceTolerancePercent < 0:
		return errors.Validation("priceTolerancePercent must not be negative")
	case req.ParticipationRate < 0 || req.ParticipationRate > 1:
		return errors.Validation("participationRate must be between 0 and 1")
	}
	if (req.Style == model.RouteTWAP || req.Style == model.RouteVWAP) && req.DurationMinutes <= 0 {
		return errors.Validation("durationMinutes is required for %s", req.Style)
	}
	return nil
}

// plan 按风格拆分子单，Best-Limit 和 Aggressive 不预先拆分，返回 nil
func (r *Router) plan(req model.SmartOrderRequest, start time.Time) []model.Slice {
	switch req.Style {
	case model.RouteTWAP:
		return planTWAP(req.TotalQuantity, req.DurationMinutes, start, r.cfg.MaxSlices)
	case model.RouteVWAP:
		rate := req.ParticipationRate
		if rate <= 0 {
			rate = r.cfg.ParticipationRate
		}
		return planVWAP(req.TotalQuantity, req.DurationMinutes, start, req.VolumeProfile, rate, r.cfg.MaxSlices)
	case model.RouteIceberg:
		return planIceberg(req.TotalQuantity, req.DisplayQuantity, start, r.cfg.IcebergSettleDelay)
	}
	return nil
}

// LargestChild 单个子单的最大数量，供单笔金额风控使用。
// Best-Limit 和 Aggressive 可能一次提交全部数量，返回总量
func (r *Router) LargestChild(req model.SmartOrderRequest) (int64, error) {
	if err := validateRequest(&req); err != nil {
		return 0, err
	}
	slices := r.plan(req, r.clock.Now())
	if slices == nil {
		return req.TotalQuantity, nil
	}
	var peak int64
	for _, s := range slices {
		peak = max(peak, s.Quantity)
	}
	return peak, nil
}

// Execute 校验并登记智能订单，到期的子单立即执行，其余交给定时器
func (r *Router) Execute(ctx context.Context, req model.SmartOrderRequest) (*model.SmartOrderResult, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}
	if r.gate != nil && !r.gate.CanPlaceOrder(req.AccountID) {
		return nil, errors.Rejected("circuit breaker is OPEN for account %s", req.AccountID)
	}
	broker, err := r.brokers.Broker(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	start := req.StartTime
	if start.IsZero() || start.Before(now) {
		start = now
	}
	octx, cancel := context.WithCancel(context.Background())
	o := &smartOrder{
		req:     req,
		broker:  broker,
		ctx:     octx,
		cancel:  cancel,
		timers:  make(map[int]*clock.Timer),
		fills:   make(map[string]fill),
		resting: make(map[string]struct{}),
		retry:   time.Minute,
		res: model.SmartOrderResult{
			ID:            idgen.NextID(),
			AccountID:     req.AccountID,
			StrategyID:    req.StrategyID,
			Symbol:        req.Symbol,
			Side:          req.Side,
			Style:         req.Style,
			Status:        model.SmartActive,
			TotalQuantity: req.TotalQuantity,
			ChildOrderIDs: []string{},
			Slices:        []model.Slice{},
			Errors:        []string{},
			CreatedAt:     now,
		},
	}
	if req.Side == model.Sell {
		o.avgCost = r.holdingCost(ctx, broker, req.Symbol)
	}

	if slices := r.plan(req, start); slices != nil {
		o.res.Slices = slices
		o.retry = max(spacing(req.DurationMinutes, len(slices)), time.Second)
		if req.Style == model.RouteIceberg {
			o.retry = r.cfg.IcebergSettleDelay
		}
	}

	r.mu.Lock()
	r.orders[o.res.ID] = o
	r.mu.Unlock()

	logger.Infof("[SmartRouter] order %s accepted: %s %s %s x%d, %d slices",
		o.res.ID, req.Style, req.Side, req.Symbol, req.TotalQuantity, len(o.res.Slices))
	r.trail.Record(ctx, audit.Entry{
		AccountID: req.AccountID,
		Category:  audit.CategorySmartOrder,
		Action:    "SUBMIT",
		Message:   string(req.Style) + " order accepted",
		Details: map[string]any{
			"smartOrderId":  o.res.ID,
			"symbol":        req.Symbol,
			"side":          string(req.Side),
			"totalQuantity": req.TotalQuantity,
			"slices":        len(o.res.Slices),
		},
	})

	switch req.Style {
	case model.RouteTWAP, model.RouteVWAP:
		for i, s := range o.res.Slices {
			r.scheduleSlice(o, i, s.ScheduledTime.Sub(now))
		}
	case model.RouteIceberg:
		// 后续块在上一块提交后延迟触发
		r.scheduleSlice(o, 0, start.Sub(now))
	case model.RouteBestLimit:
		r.startBestLimit(o)
	case model.RouteAggressive:
		r.executeAggressive(o)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return r.snapshot(o), nil
}

// scheduleSlice 到期立即执行，否则注册定时器
func (r *Router) scheduleSlice(o *smartOrder, i int, delay time.Duration) {
	if delay <= 0 {
		r.runSlice(o, i)
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.res.Status.Terminal() {
		return
	}
	o.timers[i] = r.clock.AfterFunc(delay, func() { r.runSlice(o, i) })
}

func (r *Router) holdingCost(ctx context.Context, broker exchange.Broker, symbol string) float64 {
	holdings, err := broker.GetHoldings(ctx)
	if err != nil {
		logger.Warnf("[SmartRouter] load holdings for %s failed: %v", symbol, err)
		return 0
	}
	for _, h := range holdings {
		if h.Symbol == symbol {
			return h.AvgPrice
		}
	}
	return 0
}

func (r *Router) lookup(id string) (*smartOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, errors.NotFound("smart order %s not found", id)
	}
	return o, nil
}

// Get 查询智能订单
func (r *Router) Get(id string) (*model.SmartOrderResult, error) {
	o, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return r.snapshot(o), nil
}

// ActiveOrders 账户下未结束的智能订单，accountID 为空返回全部
func (r *Router) ActiveOrders(accountID string) []model.SmartOrderResult {
	r.mu.RLock()
	list := make([]*smartOrder, 0, len(r.orders))
	for _, o := range r.orders {
		if accountID == "" || o.req.AccountID == accountID {
			list = append(list, o)
		}
	}
	r.mu.RUnlock()

	out := make([]model.SmartOrderResult, 0)
	for _, o := range list {
		o.mu.Lock()
		if !o.res.Status.Terminal() {
			out = append(out, *r.snapshot(o))
		}
		o.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Cancel 尽力撤销已提交未成交的子单并停止剩余子单的定时器，已成交部分不回滚。
// 持有 o.mu 期间触发的定时器会在拿到锁后看到终态直接返回
func (r *Router) Cancel(ctx context.Context, id string) (*model.SmartOrderResult, error) {
	o, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.res.Status.Terminal() {
		return r.snapshot(o), errors.Conflict("smart order %s is already %s", id, o.res.Status)
	}

	var errs error
	for childID := range o.resting {
		st, err := o.broker.GetOrderStatus(ctx, childID)
		if err == nil {
			r.applyFillLocked(o, st)
			if !st.State.Open() {
				continue
			}
		}
		remaining := int64(0)
		if st != nil {
			remaining = st.Remaining()
		}
		if err := o.broker.CancelOrder(ctx, childID, remaining); err != nil {
			errs = multierr.Append(errs, errors.Broker(err, "cancel child "+childID))
			continue
		}
		delete(o.resting, childID)
	}
	for _, e := range multierr.Errors(errs) {
		o.res.Errors = append(o.res.Errors, e.Error())
	}
	r.finishLocked(ctx, o, model.SmartCancelled)
	return r.snapshot(o), nil
}

func (o *smartOrder) stopLocked() {
	o.cancel()
	for i, t := range o.timers {
		t.Stop()
		delete(o.timers, i)
	}
}

// snapshot 调用方持有 o.mu
func (r *Router) snapshot(o *smartOrder) *model.SmartOrderResult {
	cp := o.res
	cp.ChildOrderIDs = append([]string{}, o.res.ChildOrderIDs...)
	cp.Slices = append([]model.Slice{}, o.res.Slices...)
	cp.Errors = append([]string{}, o.res.Errors...)
	return &cp
}

// observeLocked 记录当时的市场价格，作为滑点基准
func (r *Router) observeLocked(o *smartOrder) float64 {
	q, err := o.broker.GetQuote(o.ctx, o.req.Symbol)
	if err != nil || q.Price <= 0 {
		return 0
	}
	o.observed = append(o.observed, q.Price)
	return q.Price
}

// applyFillLocked 按子单累计成交计算增量，更新成交数量、均价并记录成交
func (r *Router) applyFillLocked(o *smartOrder, st *model.OrderStatus) {
	if st == nil {
		return
	}
	if !st.State.Open() {
		delete(o.resting, st.OrderID)
	}
	prev := o.fills[st.OrderID]
	if st.FilledQuantity <= prev.qty {
		return
	}
	cur := fill{qty: st.FilledQuantity, notional: st.AvgFillPrice * float64(st.FilledQuantity)}
	o.fills[st.OrderID] = cur
	dq := cur.qty - prev.qty
	dn := cur.notional - prev.notional
	o.notional += dn
	o.res.FilledQuantity += dq
	o.res.AvgFillPrice = o.notional / float64(o.res.FilledQuantity)

	if r.recorder == nil {
		return
	}
	price := dn / float64(dq)
	_, err := r.recorder.Record(o.ctx, model.TradeCompleted{
		AccountID:   o.req.AccountID,
		StrategyID:  o.req.StrategyID,
		OrderID:     st.OrderID,
		Symbol:      o.req.Symbol,
		Side:        o.req.Side,
		Quantity:    dq,
		Price:       price,
		RealizedPnL: trade.RealizedPnL(o.req.Side, dq, price, o.avgCost),
		Source:      model.TradeSmart,
	}, st.Type)
	if err != nil {
		logger.Warnf("[SmartRouter] record fill of %s failed: %v", st.OrderID, err)
	}
}

// placeLocked 提交一个子单并登记到 slice，失败计入熔断器；空分片不下单，返回 false
func (r *Router) placeLocked(o *smartOrder, s *model.Slice, typ model.OrderType, price float64) bool {
	s.Executed = true
	if s.Quantity <= 0 {
		return false
	}
	if r.gate != nil && !r.gate.CanPlaceOrder(o.req.AccountID) {
		r.sliceFailedLocked(o, s, "circuit breaker is OPEN", false)
		return false
	}
	resp, err := o.broker.PlaceOrder(o.ctx, &model.OrderRequest{
		Symbol:   o.req.Symbol,
		Side:     o.req.Side,
		Type:     typ,
		Quantity: s.Quantity,
		Price:    price,
	})
	if err != nil {
		r.sliceFailedLocked(o, s, err.Error(), true)
		return false
	}
	if !resp.OK() {
		r.sliceFailedLocked(o, s, "rejected: "+resp.Message, true)
		return false
	}
	if r.gate != nil {
		r.gate.RecordSuccess(o.ctx, o.req.AccountID)
	}
	s.ChildOrderID = resp.OrderID
	o.res.ChildOrderIDs = append(o.res.ChildOrderIDs, resp.OrderID)
	o.resting[resp.OrderID] = struct{}{}

	st, err := o.broker.GetOrderStatus(o.ctx, resp.OrderID)
	if err != nil {
		logger.Warnf("[SmartRouter] status of child %s unavailable: %v", resp.OrderID, err)
		return true
	}
	r.applyFillLocked(o, st)
	if st.FilledQuantity > 0 {
		p := st.AvgFillPrice
		s.FillPrice = &p
	}
	return true
}

func (r *Router) sliceFailedLocked(o *smartOrder, s *model.Slice, reason string, brokerFault bool) {
	s.Error = reason
	o.res.Errors = append(o.res.Errors, fmtSliceErr(s.Index, reason))
	if brokerFault && r.gate != nil {
		r.gate.RecordFailure(o.ctx, o.req.AccountID, "smart order slice: "+reason)
	}
	logger.Warnf("[SmartRouter] order %s slice %d failed: %s", o.res.ID, s.Index, reason)
}

func fmtSliceErr(i int, reason string) string {
	return fmt.Sprintf("slice %d: %s", i, reason)
}

// finishLocked 进入终态：统计滑点、广播、审计
func (r *Router) finishLocked(ctx context.Context, o *smartOrder, status model.SmartOrderStatus) {
	if o.res.Status.Terminal() {
		return
	}
	if status == model.SmartCompleted {
		for childID := range o.resting {
			if st, err := o.broker.GetOrderStatus(ctx, childID); err == nil {
				r.applyFillLocked(o, st)
			}
		}
		if o.res.FilledQuantity == 0 && len(o.res.Errors) > 0 && allFailed(o.res.Slices) {
			status = model.SmartFailed
		}
	}
	o.res.Status = status
	now := r.clock.Now()
	o.res.CompletedAt = &now
	o.res.BenchmarkPrice = mean(o.observed)
	if bps, ok := slippageBps(o.req.Side, o.res.AvgFillPrice, o.res.BenchmarkPrice); ok && o.res.FilledQuantity > 0 {
		o.res.SlippageBps = &bps
	}

	logger.Infof("[SmartRouter] order %s %s: filled %d/%d avg %.2f, %d errors",
		o.res.ID, status, o.res.FilledQuantity, o.res.TotalQuantity, o.res.AvgFillPrice, len(o.res.Errors))
	severity := model.SeverityLow
	if status == model.SmartFailed {
		severity = model.SeverityMedium
	}
	r.trail.Record(ctx, audit.Entry{
		AccountID: o.req.AccountID,
		Category:  audit.CategorySmartOrder,
		Action:    string(status),
		Severity:  severity,
		Message:   "smart order " + o.res.ID + " " + string(status),
		Details: map[string]any{
			"smartOrderId":   o.res.ID,
			"filledQuantity": o.res.FilledQuantity,
			"avgFillPrice":   o.res.AvgFillPrice,
			"errors":         o.res.Errors,
		},
	})
	if r.pub != nil {
		topic := consts.TopicSmartOrderCompleted
		if status == model.SmartCancelled {
			topic = consts.TopicSmartOrderCancelled
		}
		r.pub.Publish(topic, o.req.AccountID, r.snapshot(o))
	}
	o.stopLocked()
}

func allFailed(slices []model.Slice) bool {
	for _, s := range slices {
		if s.Error == "" {
			return false
		}
	}
	return true
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// slippageBps 正数表示比基准差：买入成交价高于基准，卖出成交价低于基准
func slippageBps(side model.Side, fillPrice, benchmark float64) (float64, bool) {
	if fillPrice <= 0 || benchmark <= 0 {
		return 0, false
	}
	bps := (fillPrice - benchmark) / benchmark * 10_000
	if side == model.Sell {
		bps = -bps
	}
	return math.Round(bps*100) / 100, true
}
