package strategy

import (
	"context"
	"edgetrade/internal/bus"
	"edgetrade/internal/consts"
	"edgetrade/internal/dao"
	"edgetrade/internal/model"
	"edgetrade/internal/model/entity"
	"edgetrade/pkg/errors"
	"edgetrade/pkg/logger"
	"edgetrade/pkg/utils"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// 胜率 EMA 系数
const winRateAlpha = 0.1

// IntentSink 接收放行的下单意图，一般是引擎
type IntentSink func(ctx context.Context, intent model.OrderIntent)

// CapitalFunc 账户当前资金，用于策略资金分配检查
type CapitalFunc func(ctx context.Context, accountID string) (float64, error)

// EstimateFunc 估算信号对应的下单金额
type EstimateFunc func(ctx context.Context, sig *model.TradingSignal) float64

type Options struct {
	DAO      dao.StrategyDAO
	Capital  CapitalFunc
	Estimate EstimateFunc
	Sink     IntentSink
	Pub      bus.Publisher
	Clock    clock.Clock
	Location *time.Location
}

type pending struct {
	signal *model.TradingSignal
	weight int
}

// Orchestrator 多策略编排：优先级队列、同标的冲突处理、资金分配和策略盈亏
type Orchestrator struct {
	dao      dao.StrategyDAO
	capital  CapitalFunc
	estimate EstimateFunc
	sink     IntentSink
	pub      bus.Publisher
	clock    clock.Clock
	loc      *time.Location

	mu         sync.Mutex
	strategies map[string]*model.StrategyInstance
	queue      []pending
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Estimate == nil {
		opts.Estimate = func(_ context.Context, sig *model.TradingSignal) float64 {
			return sig.Price * float64(sig.Quantity)
		}
	}
	return &Orchestrator{
		dao:        opts.DAO,
		capital:    opts.Capital,
		estimate:   opts.Estimate,
		sink:       opts.Sink,
		pub:        opts.Pub,
		clock:      opts.Clock,
		loc:        opts.Location,
		strategies: make(map[string]*model.StrategyInstance),
	}
}

// SetSink 引擎创建完成后再注入
func (o *Orchestrator) SetSink(sink IntentSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sink = sink
}

func fromEntity(e entity.Strategy) *model.StrategyInstance {
	p := model.StrategyPriority(e.Priority)
	if !p.Valid() {
		p = model.PriorityMedium
	}
	st := model.StrategyStatus(e.Status)
	if st == "" {
		st = model.StrategyStopped
	}
	return &model.StrategyInstance{
		ID:                       e.ID,
		AccountID:                e.AccountID,
		Name:                     e.Name,
		Priority:                 p,
		Status:                   st,
		CapitalAllocationPercent: e.CapitalAllocationPercent,
		TotalPnL:                 e.TotalPnL,
		TradeCount:               e.TradeCount,
		WinRate:                  e.WinRate,
		UpdatedAt:                e.UpdatedAt,
	}
}

// Load 从库里加载账户的策略，已加载的保留内存中的当日盈亏
func (o *Orchestrator) Load(ctx context.Context, accountID string) ([]model.StrategyInstance, error) {
	if o.dao == nil {
		return o.Strategies(accountID), nil
	}
	rows, err := o.dao.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	for _, r := range rows {
		inst := fromEntity(r)
		if old, ok := o.strategies[r.ID]; ok {
			inst.DailyPnL = old.DailyPnL
		}
		o.strategies[r.ID] = inst
	}
	o.mu.Unlock()
	logger.Infof("[Orchestrator] loaded %d strategies for account %s", len(rows), accountID)
	return o.Strategies(accountID), nil
}

// Register 直接注册策略实例
func (o *Orchestrator) Register(inst model.StrategyInstance) {
	if !inst.Priority.Valid() {
		inst.Priority = model.PriorityMedium
	}
	if inst.Status == "" {
		inst.Status = model.StrategyRunning
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	cp := inst
	o.strategies[inst.ID] = &cp
}

// Create 新建策略并落库，默认 STOPPED
func (o *Orchestrator) Create(ctx context.Context, inst model.StrategyInstance) (model.StrategyInstance, error) {
	if inst.AccountID == "" || inst.Name == "" {
		return model.StrategyInstance{}, errors.Validation("accountId and name are required")
	}
	if inst.Priority != "" && !inst.Priority.Valid() {
		return model.StrategyInstance{}, errors.Validation("invalid priority %q", inst.Priority)
	}
	if inst.CapitalAllocationPercent < 0 || inst.CapitalAllocationPercent > 100 {
		return model.StrategyInstance{}, errors.Validation("capital allocation must be within 0-100")
	}
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	if _, ok := o.Strategy(inst.ID); ok {
		return model.StrategyInstance{}, errors.Conflict("strategy %s already exists", inst.ID)
	}
	if inst.Status == "" {
		inst.Status = model.StrategyStopped
	}
	inst.UpdatedAt = o.clock.Now()
	o.Register(inst)
	out, _ := o.Strategy(inst.ID)
	o.persist(ctx, out)
	return out, nil
}

func (o *Orchestrator) Strategy(id string) (model.StrategyInstance, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.strategies[id]
	if !ok {
		return model.StrategyInstance{}, false
	}
	return *s, true
}

func (o *Orchestrator) Strategies(accountID string) []model.StrategyInstance {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.StrategyInstance, 0)
	for _, s := range o.strategies {
		if s.AccountID == accountID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if wi, wj := out[i].Priority.Weight(), out[j].Priority.Weight(); wi != wj {
			return wi > wj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// update 加锁修改策略并落库
func (o *Orchestrator) update(ctx context.Context, id string, fn func(s *model.StrategyInstance) error) (model.StrategyInstance, error) {
	o.mu.Lock()
	s, ok := o.strategies[id]
	if !ok {
		o.mu.Unlock()
		return model.StrategyInstance{}, errors.NotFound("strategy %s not found", id)
	}
	if err := fn(s); err != nil {
		o.mu.Unlock()
		return model.StrategyInstance{}, err
	}
	s.UpdatedAt = o.clock.Now()
	out := *s
	o.mu.Unlock()

	o.persist(ctx, out)
	return out, nil
}

func (o *Orchestrator) persist(ctx context.Context, s model.StrategyInstance) {
	if o.dao == nil {
		return
	}
	row, err := o.dao.FindByID(ctx, s.ID)
	if err != nil && !stderrors.Is(err, dao.ErrNotFound) {
		logger.Warnf("[Orchestrator] load strategy %s failed: %v", s.ID, err)
		return
	}
	if row == nil {
		row = &entity.Strategy{ID: s.ID, AccountID: s.AccountID, Name: s.Name}
	}
	row.Priority = string(s.Priority)
	row.Status = string(s.Status)
	row.CapitalAllocationPercent = s.CapitalAllocationPercent
	row.TotalPnL = s.TotalPnL
	row.TradeCount = s.TradeCount
	row.WinRate = s.WinRate
	row.UpdatedAt = s.UpdatedAt
	if err := o.dao.Save(ctx, row); err != nil {
		logger.Warnf("[Orchestrator] save strategy %s failed: %v", s.ID, err)
	}
}

func (o *Orchestrator) setStatus(ctx context.Context, id string, status model.StrategyStatus) (model.StrategyInstance, error) {
	out, err := o.update(ctx, id, func(s *model.StrategyInstance) error {
		s.Status = status
		if status != model.StrategyError {
			s.LastError = ""
		}
		return nil
	})
	if err == nil {
		logger.Infof("[Orchestrator] strategy %s -> %s", id, status)
	}
	return out, err
}

func (o *Orchestrator) Start(ctx context.Context, id string) (model.StrategyInstance, error) {
	return o.setStatus(ctx, id, model.StrategyRunning)
}

func (o *Orchestrator) Stop(ctx context.Context, id string) (model.StrategyInstance, error) {
	return o.setStatus(ctx, id, model.StrategyStopped)
}

func (o *Orchestrator) Pause(ctx context.Context, id string) (model.StrategyInstance, error) {
	return o.setStatus(ctx, id, model.StrategyPaused)
}

// MarkError 策略出错后不再接收信号，需要手动 Start
func (o *Orchestrator) MarkError(ctx context.Context, id string, cause error) {
	_, err := o.update(ctx, id, func(s *model.StrategyInstance) error {
		s.Status = model.StrategyError
		if cause != nil {
			s.LastError = cause.Error()
		}
		return nil
	})
	if err != nil {
		logger.Warnf("[Orchestrator] mark strategy %s error: %v", id, err)
		return
	}
	logger.Errorf("[Orchestrator] strategy %s marked ERROR: %v", id, cause)
}

func (o *Orchestrator) SetPriority(ctx context.Context, id string, p model.StrategyPriority) (model.StrategyInstance, error) {
	if !p.Valid() {
		return model.StrategyInstance{}, errors.Validation("invalid priority %q", p)
	}
	return o.update(ctx, id, func(s *model.StrategyInstance) error {
		s.Priority = p
		return nil
	})
}

func (o *Orchestrator) SetCapitalAllocation(ctx context.Context, id string, percent float64) (model.StrategyInstance, error) {
	if percent < 0 || percent > 100 {
		return model.StrategyInstance{}, errors.Validation("capital allocation must be between 0 and 100, got %v", percent)
	}
	return o.update(ctx, id, func(s *model.StrategyInstance) error {
		s.CapitalAllocationPercent = percent
		return nil
	})
}

// weightOf 未注册的策略（含无策略标签的信号）按 MEDIUM 处理
func (o *Orchestrator) weightOf(strategyID string) int {
	if s, ok := o.strategies[strategyID]; ok {
		return s.Priority.Weight()
	}
	return model.PriorityMedium.Weight()
}

// HandleSignal 入队后立即处理队列
func (o *Orchestrator) HandleSignal(ctx context.Context, sig *model.TradingSignal) []model.OrderIntent {
	return o.HandleSignals(ctx, sig)
}

// HandleSignals 一批信号一起入队再处理，同一批内的同标的信号会做冲突处理
func (o *Orchestrator) HandleSignals(ctx context.Context, signals ...*model.TradingSignal) []model.OrderIntent {
	o.mu.Lock()
	for _, sig := range signals {
		if sig == nil {
			continue
		}
		if s, ok := o.strategies[sig.StrategyID]; ok && s.Status != model.StrategyRunning {
			logger.Debugf("[Orchestrator] drop signal %s, strategy %s is %s", sig.ID, s.ID, s.Status)
			continue
		}
		o.insertLocked(pending{signal: sig, weight: o.weightOf(sig.StrategyID)})
	}
	o.mu.Unlock()
	return o.ProcessQueue(ctx)
}

// insertLocked 插在第一个权重更低的元素之前，同权重保持先来先到
func (o *Orchestrator) insertLocked(p pending) {
	i := sort.Search(len(o.queue), func(i int) bool { return o.queue[i].weight < p.weight })
	o.queue = append(o.queue, pending{})
	copy(o.queue[i+1:], o.queue[i:])
	o.queue[i] = p
}

// Pending 队列中等待处理的信号数
func (o *Orchestrator) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// ProcessQueue 取出全部待处理信号，按账户+标的分组处理冲突，再做资金检查
func (o *Orchestrator) ProcessQueue(ctx context.Context) []model.OrderIntent {
	o.mu.Lock()
	queue := o.queue
	o.queue = nil
	sink := o.sink
	o.mu.Unlock()
	if len(queue) == 0 {
		return nil
	}

	type groupKey struct{ account, symbol string }
	var order []groupKey
	groups := make(map[groupKey][]pending)
	for _, p := range queue {
		k := groupKey{p.signal.AccountID, p.signal.Symbol}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], p)
	}

	var intents []model.OrderIntent
	for _, k := range order {
		winner := resolve(groups[k])
		if winner == nil {
			logger.Infof("[Orchestrator] %s/%s conflicting signals cancelled out", k.account, k.symbol)
			continue
		}
		sig := winner.signal
		value := o.estimate(ctx, sig)
		ok, err := o.CheckCapitalAllocation(ctx, sig.StrategyID, sig.AccountID, value)
		if err != nil {
			logger.Warnf("[Orchestrator] capital check for %s failed: %v", sig.ID, err)
			continue
		}
		if !ok {
			logger.Infof("[Orchestrator] signal %s exceeds capital allocation of strategy %s (value %.0f)", sig.ID, sig.StrategyID, value)
			continue
		}
		intent := model.OrderIntent{Signal: sig, StrategyID: sig.StrategyID, EstimatedValue: value}
		intents = append(intents, intent)
		if o.pub != nil {
			o.pub.Publish(consts.TopicSignalReady, sig.AccountID, &intent)
		}
		if sink != nil {
			sink(ctx, intent)
		}
	}
	return intents
}

func resolveScore(p pending) float64 {
	return float64(p.weight) * p.signal.Confidence
}

// resolve 同标的冲突处理。
// 多空对立：比较双方最高的 权重×强度，高者胜，相等则都取消；
// 同方向：取强度最高的一个，相同时取队列中靠前的
func resolve(group []pending) *pending {
	switch len(group) {
	case 0:
		return nil
	case 1:
		return &group[0]
	}
	buy, sell := bestWeighted(group, model.Buy), bestWeighted(group, model.Sell)
	if buy != nil && sell != nil {
		bs, ss := resolveScore(*buy), resolveScore(*sell)
		switch {
		case bs > ss:
			return buy
		case ss > bs:
			return sell
		default:
			return nil
		}
	}
	best := &group[0]
	for i := 1; i < len(group); i++ {
		if group[i].signal.Confidence > best.signal.Confidence {
			best = &group[i]
		}
	}
	return best
}

func bestWeighted(group []pending, side model.Side) *pending {
	var best *pending
	for i := range group {
		p := &group[i]
		if p.signal.Side != side {
			continue
		}
		if best == nil || resolveScore(*p) > resolveScore(*best) {
			best = p
		}
	}
	return best
}

// CheckCapitalAllocation 估算金额不超过 当前资金×分配比例；未分配(0)或未注册的策略不限制
func (o *Orchestrator) CheckCapitalAllocation(ctx context.Context, strategyID, accountID string, estimatedValue float64) (bool, error) {
	o.mu.Lock()
	s, ok := o.strategies[strategyID]
	pct := 0.0
	if ok {
		pct = s.CapitalAllocationPercent
	}
	o.mu.Unlock()
	if pct <= 0 || o.capital == nil {
		return true, nil
	}
	capital, err := o.capital(ctx, accountID)
	if err != nil {
		return false, err
	}
	return estimatedValue <= capital*pct/100, nil
}

// OnTradeCompleted 更新策略盈亏；pnl 为空（买入）只计成交次数
func (o *Orchestrator) OnTradeCompleted(ctx context.Context, strategyID string, pnl *float64) {
	if strategyID == "" {
		return
	}
	_, err := o.update(ctx, strategyID, func(s *model.StrategyInstance) error {
		s.TradeCount++
		if pnl == nil {
			return nil
		}
		s.DailyPnL = utils.Round(s.DailyPnL + *pnl)
		s.TotalPnL = utils.Round(s.TotalPnL + *pnl)
		win := 0.0
		if *pnl > 0 {
			win = 1
		}
		s.WinRate = winRateAlpha*win + (1-winRateAlpha)*s.WinRate
		return nil
	})
	if err != nil {
		logger.Debugf("[Orchestrator] trade for unknown strategy %s: %v", strategyID, err)
	}
}

// ResetDailyPnL 所有策略当日盈亏清零
func (o *Orchestrator) ResetDailyPnL() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.strategies {
		s.DailyPnL = 0
	}
	logger.Infof("[Orchestrator] daily pnl reset for %d strategies", len(o.strategies))
}

// Run 每天零点(引擎时区)清零当日盈亏
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		now := o.clock.Now()
		next := utils.StartOfDay(now, o.loc).AddDate(0, 0, 1)
		timer := o.clock.Timer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			o.ResetDailyPnL()
		}
	}
}
