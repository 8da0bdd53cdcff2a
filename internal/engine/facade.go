package engine

import (
	"context"
	"edgetrade/internal/model"
	"edgetrade/internal/position"
	"edgetrade/internal/risk"
	"edgetrade/pkg/errors"
	"edgetrade/pkg/errors/ecode"
	"edgetrade/pkg/logger"
)

// ExecuteSmartOrder 按总量和参考价先做一次风控，通过后交给路由器拆单。
// 单笔金额按最大子单计算，亏损和集中度仍按总量
func (e *Engine) ExecuteSmartOrder(ctx context.Context, req model.SmartOrderRequest) (*model.SmartOrderResult, error) {
	if req.AccountID == "" || req.Symbol == "" {
		return nil, errors.Validation("accountId and symbol are required")
	}
	if req.TotalQuantity <= 0 {
		return nil, errors.Validation("totalQuantity must be positive")
	}
	broker, err := e.brokers.Broker(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	price := 0.0
	if req.LimitPrice != nil {
		price = *req.LimitPrice
	} else {
		quote, err := broker.GetQuote(ctx, req.Symbol)
		if err != nil {
			return nil, errors.Broker(err, "load quote for "+req.Symbol)
		}
		price = quote.Price
	}
	order := model.OrderCheck{
		AccountID:  req.AccountID,
		StrategyID: req.StrategyID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   req.TotalQuantity,
		Price:      price,
	}
	check := e.risk.ValidateOrder(ctx, order)
	if !check.Approved && check.SuggestedQuantity != nil {
		// 只超出单笔金额时，看拆分后的子单是否都在限额内
		child, err := e.router.LargestChild(req)
		if err != nil {
			return nil, err
		}
		if child < req.TotalQuantity {
			order.Quantity = child
			check = e.risk.ValidateOrder(ctx, order)
		}
	}
	if !check.Approved {
		return nil, risk.ErrRejected(check)
	}
	return e.router.Execute(ctx, req)
}

func (e *Engine) CancelSmartOrder(ctx context.Context, id string) (*model.SmartOrderResult, error) {
	return e.router.Cancel(ctx, id)
}

func (e *Engine) SmartOrder(id string) (*model.SmartOrderResult, error) {
	return e.router.Get(id)
}

// ActiveOrders 账户下未结束的智能单
func (e *Engine) ActiveOrders(accountID string) []model.SmartOrderResult {
	return e.router.ActiveOrders(accountID)
}

// ValidateOrder 只做风控预检，不下单
func (e *Engine) ValidateOrder(ctx context.Context, check model.OrderCheck) (*model.RiskCheckResult, error) {
	if check.AccountID == "" || check.Symbol == "" {
		return nil, errors.Validation("accountId and symbol are required")
	}
	if !check.Side.Valid() {
		return nil, errors.Validation("invalid side %q", check.Side)
	}
	if check.Price <= 0 {
		broker, err := e.brokers.Broker(ctx, check.AccountID)
		if err != nil {
			return nil, err
		}
		price, err := e.checkPrice(ctx, broker, check.Symbol, model.Market, 0)
		if err != nil {
			return nil, err
		}
		check.Price = price
	}
	return e.risk.ValidateOrder(ctx, check), nil
}

func (e *Engine) RiskStatus(ctx context.Context, accountID string) (*model.RiskStatus, error) {
	return e.risk.RiskStatus(ctx, accountID)
}

func (e *Engine) CircuitBreakerStatus(accountID string) model.BreakerStatus {
	return e.breaker.Status(accountID)
}

// ResetCircuitBreaker 人工复位
func (e *Engine) ResetCircuitBreaker(ctx context.Context, accountID, reason string) model.BreakerStatus {
	if reason == "" {
		reason = "manual reset"
	}
	e.breaker.Reset(ctx, accountID, reason)
	return e.breaker.Status(accountID)
}

// EmergencyLiquidation 撤销账户的智能单、停止自动交易，然后清仓
func (e *Engine) EmergencyLiquidation(ctx context.Context, accountID, reason string) (*model.LiquidationResult, error) {
	if accountID == "" {
		return nil, errors.Validation("accountId is required")
	}
	if reason == "" {
		reason = "manual"
	}
	var cancelErrs []string
	for _, o := range e.router.ActiveOrders(accountID) {
		if _, err := e.router.Cancel(ctx, o.ID); err != nil {
			cancelErrs = append(cancelErrs, "cancel smart order "+o.ID+": "+err.Error())
		}
	}
	if _, err := e.StopAutoTrading(ctx, accountID); err != nil && !errors.IsCode(err, ecode.NotFoundErr) {
		logger.Warnf("[Engine] stop auto-trading for %s failed: %v", accountID, err)
	}
	res, err := e.risk.EmergencyLiquidation(ctx, accountID, reason)
	if err != nil {
		return nil, err
	}
	res.Errors = append(cancelErrs, res.Errors...)
	return res, nil
}

func (e *Engine) Strategies(ctx context.Context, accountID string) ([]model.StrategyInstance, error) {
	return e.orchestrator.Load(ctx, accountID)
}

func (e *Engine) CreateStrategy(ctx context.Context, inst model.StrategyInstance) (model.StrategyInstance, error) {
	return e.orchestrator.Create(ctx, inst)
}

func (e *Engine) StartStrategy(ctx context.Context, id string) (model.StrategyInstance, error) {
	return e.orchestrator.Start(ctx, id)
}

func (e *Engine) StopStrategy(ctx context.Context, id string) (model.StrategyInstance, error) {
	return e.orchestrator.Stop(ctx, id)
}

func (e *Engine) PauseStrategy(ctx context.Context, id string) (model.StrategyInstance, error) {
	return e.orchestrator.Pause(ctx, id)
}

func (e *Engine) SetStrategyPriority(ctx context.Context, id string, p model.StrategyPriority) (model.StrategyInstance, error) {
	return e.orchestrator.SetPriority(ctx, id, p)
}

func (e *Engine) SetStrategyCapitalAllocation(ctx context.Context, id string, percent float64) (model.StrategyInstance, error) {
	return e.orchestrator.SetCapitalAllocation(ctx, id, percent)
}

// RiskParity 按波动率倒数在多个标的间分配资金。
// capital 为 0 时取账户总评估额，标的未给价格时取实时行情
func (e *Engine) RiskParity(ctx context.Context, accountID string, capital float64, assets []position.AssetRisk) ([]position.Allocation, error) {
	if accountID == "" {
		return nil, errors.Validation("accountId is required")
	}
	if len(assets) == 0 {
		return nil, errors.Validation("assets are required")
	}
	if capital < 0 {
		return nil, errors.Validation("capital must not be negative")
	}
	broker, err := e.brokers.Broker(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if capital == 0 {
		bal, err := broker.GetAccountBalance(ctx)
		if err != nil {
			return nil, errors.Broker(err, "load balance")
		}
		capital = bal.TotalEvaluation
	}
	priced := make([]position.AssetRisk, len(assets))
	for i, a := range assets {
		if a.Symbol == "" {
			return nil, errors.Validation("asset symbol is required")
		}
		if a.Price <= 0 {
			q, err := broker.GetQuote(ctx, a.Symbol)
			if err != nil {
				return nil, errors.Broker(err, "load quote for "+a.Symbol)
			}
			a.Price = q.Price
		}
		priced[i] = a
	}
	return e.sizer.CalculateRiskParity(capital, priced), nil
}

// PyramidSize 持仓浮盈时可加仓的数量，没有持仓或浮亏时为 0
func (e *Engine) PyramidSize(ctx context.Context, accountID, symbol string) (*model.PyramidResult, error) {
	if accountID == "" || symbol == "" {
		return nil, errors.Validation("accountId and symbol are required")
	}
	broker, err := e.brokers.Broker(ctx, accountID)
	if err != nil {
		return nil, err
	}
	holdings, err := broker.GetHoldings(ctx)
	if err != nil {
		return nil, errors.Broker(err, "load holdings")
	}
	q, err := broker.GetQuote(ctx, symbol)
	if err != nil {
		return nil, errors.Broker(err, "load quote for "+symbol)
	}
	res := &model.PyramidResult{Symbol: symbol, CurrentPrice: q.Price}
	for _, h := range holdings {
		if h.Symbol != symbol {
			continue
		}
		res.Quantity, res.AvgPrice = h.Quantity, h.AvgPrice
		res.AddQuantity = e.sizer.CalculatePyramidSize(h, q.Price)
		break
	}
	return res, nil
}
