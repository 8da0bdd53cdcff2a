package risk

import (
	"context"
	"edgetrade/conf"
	"edgetrade/internal/audit"
	"edgetrade/internal/dao"
	"edgetrade/internal/exchange"
	"edgetrade/internal/model"
	"edgetrade/internal/trade"
	"edgetrade/pkg/errors"
	"edgetrade/pkg/logger"
	"edgetrade/pkg/utils"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// 告警阈值：达到限额的80%
const warnRatio = 0.8

// 各项检查对风险分的贡献
const (
	scoreDailyLossWarn     = 30
	scoreConcentrationWarn = 20
	scoreOrderValueWarn    = 10
	scoreAutoTrade         = 10

	scoreDailyLossReject     = 50
	scoreConcentrationReject = 40
	scoreTradeCountReject    = 30
	scoreOrderValueReject    = 30
)

// BreakerGate 风控需要的熔断器能力
type BreakerGate interface {
	Status(accountID string) model.BreakerStatus
	Trip(ctx context.Context, accountID, reason string, severity model.Severity)
}

// Service 下单前风控，每次检查都基于最新的账户快照
type Service struct {
	breaker  BreakerGate
	brokers  exchange.Provider
	trades   dao.TradeDAO
	limits   dao.RiskLimitDAO
	recorder *trade.Recorder
	trail    audit.Trail
	clock    clock.Clock
	defaults conf.RiskConfig
	loc      *time.Location
}

type Options struct {
	Breaker  BreakerGate
	Brokers  exchange.Provider
	Trades   dao.TradeDAO
	Limits   dao.RiskLimitDAO
	Recorder *trade.Recorder
	Trail    audit.Trail
	Clock    clock.Clock
	Defaults conf.RiskConfig
	Location *time.Location
}

func NewService(opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Trail == nil {
		opts.Trail = audit.NewLogTrail()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Recorder == nil {
		opts.Recorder = trade.NewRecorder(opts.Trades, nil, opts.Clock)
	}
	return &Service{
		breaker:  opts.Breaker,
		brokers:  opts.Brokers,
		trades:   opts.Trades,
		limits:   opts.Limits,
		recorder: opts.Recorder,
		trail:    opts.Trail,
		clock:    opts.Clock,
		defaults: opts.Defaults,
		loc:      opts.Location,
	}
}

// LoadLimits 账户覆盖值 + 默认值
func (s *Service) LoadLimits(ctx context.Context, accountID string) (model.RiskLimits, error) {
	limits := model.RiskLimits{
		DailyMaxLoss:        s.defaults.DailyMaxLoss,
		DailyMaxLossPercent: s.defaults.DailyMaxLossPercent,
		MaxPositionPercent:  s.defaults.MaxPositionPercent,
		MaxDailyTrades:      s.defaults.MaxDailyTrades,
		MaxOrderValue:       s.defaults.MaxOrderValue,
	}
	if s.limits == nil {
		return limits, nil
	}
	o, err := s.limits.Get(ctx, accountID)
	if stderrors.Is(err, dao.ErrNotFound) {
		return limits, nil
	}
	if err != nil {
		return limits, err
	}
	if o.DailyMaxLoss != nil {
		limits.DailyMaxLoss = *o.DailyMaxLoss
	}
	if o.DailyMaxLossPercent != nil {
		limits.DailyMaxLossPercent = *o.DailyMaxLossPercent
	}
	if o.MaxPositionPercent != nil {
		limits.MaxPositionPercent = *o.MaxPositionPercent
	}
	if o.MaxDailyTrades != nil {
		limits.MaxDailyTrades = *o.MaxDailyTrades
	}
	if o.MaxOrderValue != nil {
		limits.MaxOrderValue = *o.MaxOrderValue
	}
	return limits, nil
}

// 风控检查需要的账户快照
type snapshot struct {
	limits   model.RiskLimits
	balance  *model.Balance
	holdings []model.Holding
	stats    dao.TradeStats
}

func (s *Service) loadSnapshot(ctx context.Context, accountID string) (*snapshot, error) {
	limits, err := s.LoadLimits(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load risk limits: %w", err)
	}
	broker, err := s.brokers.Broker(ctx, accountID)
	if err != nil {
		return nil, err
	}
	balance, err := broker.GetAccountBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	holdings, err := broker.GetHoldings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}
	var stats dao.TradeStats
	if s.trades != nil {
		stats, err = s.trades.StatsSince(ctx, accountID, utils.StartOfDay(s.clock.Now(), s.loc))
		if err != nil {
			return nil, fmt.Errorf("load today's trades: %w", err)
		}
	}
	return &snapshot{limits: limits, balance: balance, holdings: holdings, stats: stats}, nil
}

// dailyLossLimit 金额上限与资产百分比上限取较小者，都未设置返回0
func dailyLossLimit(limits model.RiskLimits, equity float64) float64 {
	limit := limits.DailyMaxLoss
	if limits.DailyMaxLossPercent > 0 && equity > 0 {
		byPercent := equity * limits.DailyMaxLossPercent / 100
		if limit <= 0 || byPercent < limit {
			limit = byPercent
		}
	}
	return limit
}

func positionValue(holdings []model.Holding, symbol string) float64 {
	for _, h := range holdings {
		if h.Symbol != symbol {
			continue
		}
		if h.EvaluationAmount > 0 {
			return h.EvaluationAmount
		}
		price := h.CurrentPrice
		if price <= 0 {
			price = h.AvgPrice
		}
		return price * float64(h.Quantity)
	}
	return 0
}

// ValidateOrder 按顺序检查，遇到第一个硬性违规即拒绝，之前的告警全部保留。
// 不返回 error，快照加载失败时拒绝
func (s *Service) ValidateOrder(ctx context.Context, check model.OrderCheck) *model.RiskCheckResult {
	res := &model.RiskCheckResult{Warnings: []string{}, Errors: []string{}}
	defer func() {
		res.Approved = len(res.Errors) == 0
		if res.RiskScore > 100 {
			res.RiskScore = 100
		}
		s.audit(ctx, check, res)
	}()

	// 1. 熔断
	if st := s.breaker.Status(check.AccountID); st.State == model.BreakerOpen {
		res.Errors = append(res.Errors, fmt.Sprintf("circuit breaker is OPEN: %s", st.TripReason))
		res.RiskScore = 100
		return res
	}
	if check.Quantity <= 0 || check.Price <= 0 {
		res.Errors = append(res.Errors, "order quantity and price must be positive")
		res.RiskScore = 100
		return res
	}

	snap, err := s.loadSnapshot(ctx, check.AccountID)
	if err != nil {
		res.Errors = append(res.Errors, "risk snapshot unavailable: "+err.Error())
		res.RiskScore = 100
		return res
	}
	limits := snap.limits
	orderValue := check.OrderValue()
	equity := snap.balance.TotalEvaluation

	// 2. 当日亏损
	if limit := dailyLossLimit(limits, equity); limit > 0 {
		loss := -snap.stats.RealizedPnL
		if loss >= limit {
			res.Errors = append(res.Errors, fmt.Sprintf("daily loss %.0f reached limit %.0f", loss, limit))
			res.RiskScore += scoreDailyLossReject
			return res
		}
		if loss >= limit*warnRatio {
			res.Warnings = append(res.Warnings, fmt.Sprintf("daily loss %.0f is over 80%% of limit %.0f", loss, limit))
			res.RiskScore += scoreDailyLossWarn
		}
	}

	// 3. 持仓集中度，只对买入检查
	if check.Side == model.Buy && limits.MaxPositionPercent > 0 {
		if equity <= 0 {
			res.Errors = append(res.Errors, "portfolio value is zero")
			res.RiskScore += scoreConcentrationReject
			return res
		}
		weight := (positionValue(snap.holdings, check.Symbol) + orderValue) / equity * 100
		if weight > limits.MaxPositionPercent {
			res.Errors = append(res.Errors, fmt.Sprintf("position weight %.2f%% exceeds limit %.2f%%", weight, limits.MaxPositionPercent))
			res.RiskScore += scoreConcentrationReject
			return res
		}
		if weight >= limits.MaxPositionPercent*warnRatio {
			res.Warnings = append(res.Warnings, fmt.Sprintf("position weight %.2f%% is over 80%% of limit %.2f%%", weight, limits.MaxPositionPercent))
			res.RiskScore += scoreConcentrationWarn
		}
	}

	// 4. 当日交易次数
	if limits.MaxDailyTrades > 0 && snap.stats.TradeCount >= limits.MaxDailyTrades {
		res.Errors = append(res.Errors, fmt.Sprintf("daily trade count %d reached limit %d", snap.stats.TradeCount, limits.MaxDailyTrades))
		res.RiskScore += scoreTradeCountReject
		return res
	}

	// 5. 单笔金额
	if limits.MaxOrderValue > 0 {
		if orderValue > limits.MaxOrderValue {
			suggested := utils.FloorQty(limits.MaxOrderValue / check.Price)
			res.SuggestedQuantity = &suggested
			res.Errors = append(res.Errors, fmt.Sprintf("order value %.0f exceeds limit %.0f", orderValue, limits.MaxOrderValue))
			res.RiskScore += scoreOrderValueReject
			return res
		}
		if orderValue >= limits.MaxOrderValue*warnRatio {
			res.Warnings = append(res.Warnings, fmt.Sprintf("order value %.0f is over 80%% of limit %.0f", orderValue, limits.MaxOrderValue))
			res.RiskScore += scoreOrderValueWarn
		}
	}

	// 6. 自动交易
	if check.AutoTrade {
		res.RiskScore += scoreAutoTrade
		if limits.MaxOrderValue > 0 && orderValue > limits.MaxOrderValue*0.5 {
			res.Warnings = append(res.Warnings, "auto-trade order value exceeds 50% of max order value")
		}
	}
	return res
}

func (s *Service) audit(ctx context.Context, check model.OrderCheck, res *model.RiskCheckResult) {
	if len(res.Errors) == 0 && len(res.Warnings) == 0 {
		return
	}
	action, severity, msg := "WARN", model.SeverityLow, "order approved with warnings"
	if len(res.Errors) > 0 {
		action, severity, msg = "REJECT", model.SeverityMedium, res.Errors[0]
	}
	s.trail.Record(ctx, audit.Entry{
		AccountID: check.AccountID,
		Category:  audit.CategoryRisk,
		Action:    action,
		Severity:  severity,
		Message:   msg,
		Details: map[string]any{
			"symbol":    check.Symbol,
			"side":      string(check.Side),
			"quantity":  check.Quantity,
			"price":     check.Price,
			"autoTrade": check.AutoTrade,
			"riskScore": res.RiskScore,
			"warnings":  res.Warnings,
			"errors":    res.Errors,
		},
	})
}

// RiskStatus 账户当前风控概况
func (s *Service) RiskStatus(ctx context.Context, accountID string) (*model.RiskStatus, error) {
	snap, err := s.loadSnapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	equity := snap.balance.TotalEvaluation
	st := &model.RiskStatus{
		AccountID:       accountID,
		Limits:          snap.limits,
		DailyPnL:        snap.stats.RealizedPnL,
		DailyLossLimit:  dailyLossLimit(snap.limits, equity),
		TradeCount:      snap.stats.TradeCount,
		TotalEvaluation: equity,
		CircuitBreaker:  s.breaker.Status(accountID),
		UpdatedAt:       s.clock.Now(),
	}
	if st.DailyLossLimit > 0 && st.DailyPnL < 0 {
		st.DailyLossUsedPercent = utils.Round(-st.DailyPnL / st.DailyLossLimit * 100)
	}
	if snap.limits.MaxDailyTrades > 0 {
		st.RemainingTrades = max(snap.limits.MaxDailyTrades-st.TradeCount, 0)
	}
	if equity > 0 {
		for _, h := range snap.holdings {
			w := positionValue(snap.holdings, h.Symbol) / equity * 100
			if w > st.LargestPositionPercent {
				st.LargestPositionPercent = utils.Round(w)
				st.LargestPositionSymbol = h.Symbol
			}
		}
	}
	return st, nil
}

// EmergencyLiquidation 熔断(CRITICAL)，撤销所有挂单，市价卖出全部持仓。
// 单笔失败只记录不中断，不会自动重试
func (s *Service) EmergencyLiquidation(ctx context.Context, accountID, reason string) (*model.LiquidationResult, error) {
	s.breaker.Trip(ctx, accountID, "emergency liquidation: "+reason, model.SeverityCritical)
	res := &model.LiquidationResult{AccountID: accountID, TradeIDs: []string{}, Errors: []string{}}

	broker, err := s.brokers.Broker(ctx, accountID)
	if err != nil {
		return nil, err
	}

	open, err := broker.GetOpenOrders(ctx)
	if err != nil {
		res.Errors = append(res.Errors, "load open orders: "+err.Error())
	}
	for _, o := range open {
		if err := broker.CancelOrder(ctx, o.OrderID, o.Remaining()); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("cancel %s: %v", o.OrderID, err))
		}
	}

	holdings, err := broker.GetHoldings(ctx)
	if err != nil {
		res.Errors = append(res.Errors, "load holdings: "+err.Error())
		s.auditLiquidation(ctx, reason, res)
		return res, nil
	}
	for _, h := range holdings {
		if h.Quantity <= 0 {
			continue
		}
		resp, err := broker.PlaceOrder(ctx, &model.OrderRequest{Symbol: h.Symbol, Side: model.Sell, Type: model.Market, Quantity: h.Quantity})
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("sell %s: %v", h.Symbol, err))
			continue
		}
		if !resp.OK() {
			res.Errors = append(res.Errors, fmt.Sprintf("sell %s: %s", h.Symbol, resp.Message))
			continue
		}
		price := h.CurrentPrice
		if st, err := broker.GetOrderStatus(ctx, resp.OrderID); err == nil && st.AvgFillPrice > 0 {
			price = st.AvgFillPrice
		}
		t, err := s.recorder.Record(ctx, model.TradeCompleted{
			AccountID:   accountID,
			OrderID:     resp.OrderID,
			Symbol:      h.Symbol,
			Side:        model.Sell,
			Quantity:    h.Quantity,
			Price:       price,
			RealizedPnL: trade.RealizedPnL(model.Sell, h.Quantity, price, h.AvgPrice),
			Source:      model.TradeLiquidation,
		}, model.Market)
		if err != nil {
			logger.Warnf("[Risk] liquidation trade for %s not persisted: %v", h.Symbol, err)
		}
		res.LiquidatedPositions++
		res.TotalAmount += t.Amount
		res.TradeIDs = append(res.TradeIDs, t.TradeID)
	}
	s.auditLiquidation(ctx, reason, res)
	return res, nil
}

func (s *Service) auditLiquidation(ctx context.Context, reason string, res *model.LiquidationResult) {
	logger.Warnf("[Risk] emergency liquidation for %s: %d positions, amount %.0f, %d errors",
		res.AccountID, res.LiquidatedPositions, res.TotalAmount, len(res.Errors))
	s.trail.Record(ctx, audit.Entry{
		AccountID: res.AccountID,
		Category:  audit.CategoryLiquidation,
		Action:    "LIQUIDATE",
		Severity:  model.SeverityCritical,
		Message:   reason,
		Details: map[string]any{
			"liquidatedPositions": res.LiquidatedPositions,
			"totalAmount":         res.TotalAmount,
			"tradeIds":            res.TradeIDs,
			"errors":              res.Errors,
		},
	})
}

// ErrRejected 把拒绝结果转换成 AdmissionRejected 错误，供 HTTP 层使用
func ErrRejected(res *model.RiskCheckResult) error {
	if res == nil || res.Approved {
		return nil
	}
	msg := "order rejected"
	if len(res.Errors) > 0 {
		msg = res.Errors[0]
	}
	if res.SuggestedQuantity != nil {
		return errors.Rejected("%s, suggested quantity %d", msg, *res.SuggestedQuantity)
	}
	return errors.Rejected("%s", msg)
}
