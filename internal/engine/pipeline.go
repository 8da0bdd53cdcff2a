package engine

import (
	"context"
	"edgetrade/internal/audit"
	"edgetrade/internal/exchange"
	"edgetrade/internal/model"
	"edgetrade/internal/position"
	"edgetrade/internal/trade"
	"edgetrade/pkg/errors"
	"edgetrade/pkg/logger"
	"edgetrade/pkg/utils"
	"fmt"

	"go.uber.org/zap"
)

// HandleSignalReady 编排器放行后的下单流程：会话、交易时段、信号强度、数量、风控、下单
func (e *Engine) HandleSignalReady(ctx context.Context, intent model.OrderIntent) (*model.ExecutionResult, error) {
	sig := intent.Signal
	if sig == nil {
		return nil, errors.Validation("signal is required")
	}
	if !e.sessionRunning(sig.AccountID) {
		return nil, errors.Rejected("auto-trading is not running for account %s", sig.AccountID)
	}
	if !e.withinTradingHours(e.clock.Now()) {
		return nil, errors.Rejected("outside trading hours")
	}
	if sig.Strength == model.StrengthWeak {
		return nil, errors.Rejected("signal %s is WEAK", sig.ID)
	}

	broker, err := e.brokers.Broker(ctx, sig.AccountID)
	if err != nil {
		return nil, err
	}
	price := sig.Price
	if quote, err := broker.GetQuote(ctx, sig.Symbol); err == nil && quote.Price > 0 {
		price = quote.Price
	}
	if price <= 0 {
		return nil, errors.Validation("no price for %s", sig.Symbol)
	}

	qty, err := e.signalQuantity(ctx, broker, sig, price)
	if err != nil {
		return nil, err
	}
	if qty <= 0 {
		return &model.ExecutionResult{
			Symbol:  sig.Symbol,
			Side:    sig.Side,
			Price:   price,
			Message: "insufficient funds",
		}, nil
	}

	logger.Info("[Engine] executing signal",
		zap.String("signal", sig.ID),
		zap.String("account", sig.AccountID),
		zap.String("strategy", intent.StrategyID),
		zap.String("symbol", sig.Symbol),
		zap.String("side", string(sig.Side)),
		zap.Int64("quantity", qty),
		zap.Float64("price", price))

	return e.execute(ctx, broker, model.OrderCheck{
		AccountID:  sig.AccountID,
		StrategyID: intent.StrategyID,
		Symbol:     sig.Symbol,
		Side:       sig.Side,
		Quantity:   qty,
		Price:      price,
		AutoTrade:  true,
	}, model.Market, model.TradeAuto)
}

// signalQuantity 信号自带数量优先；带止损时按仓位模型计算；否则取现金的固定比例
func (e *Engine) signalQuantity(ctx context.Context, broker exchange.Broker, sig *model.TradingSignal, price float64) (int64, error) {
	if sig.Quantity > 0 {
		return sig.Quantity, nil
	}
	balance, err := broker.GetAccountBalance(ctx)
	if err != nil {
		return 0, errors.Broker(err, "load account balance")
	}
	if sig.StopLoss != nil {
		req := position.SizeRequest{
			Symbol:         sig.Symbol,
			Equity:         balance.TotalEvaluation,
			AvailableCash:  balance.CashBalance,
			EntryPrice:     price,
			StopLoss:       sig.StopLoss,
			MaxRiskPercent: e.cfg.MaxRiskPercent,
		}
		if s, ok := e.orchestrator.Strategy(sig.StrategyID); ok {
			req.WinRate = s.WinRate
		}
		res := e.sizer.CalculateOptimalSize(req)
		logger.Debugf("[Engine] sized %s by %s: %d", sig.Symbol, res.Method, res.Quantity)
		return res.Quantity, nil
	}
	return utils.FloorQty(balance.CashBalance * e.cfg.FallbackCashRatio / price), nil
}

// ExecuteOrder 手动单笔下单，同样经过风控和熔断
func (e *Engine) ExecuteOrder(ctx context.Context, req model.ExecuteOrderRequest) (*model.ExecutionResult, error) {
	if err := validateOrder(req.Symbol, req.Side, req.Type, req.Quantity, req.Price); err != nil {
		return nil, err
	}
	broker, err := e.brokers.Broker(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	price, err := e.checkPrice(ctx, broker, req.Symbol, req.Type, req.Price)
	if err != nil {
		return nil, err
	}
	source := model.TradeManual
	if req.AutoTrade {
		source = model.TradeAuto
	}
	return e.execute(ctx, broker, model.OrderCheck{
		AccountID:  req.AccountID,
		StrategyID: req.StrategyID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   req.Quantity,
		Price:      price,
		AutoTrade:  req.AutoTrade,
	}, req.Type, source)
}

func validateOrder(symbol string, side model.Side, typ model.OrderType, qty int64, price float64) error {
	switch {
	case symbol == "":
		return errors.Validation("symbol is required")
	case !side.Valid():
		return errors.Validation("invalid side %q", side)
	case typ != model.Market && typ != model.Limit:
		return errors.Validation("invalid order type %q", typ)
	case qty <= 0:
		return errors.Validation("quantity must be positive")
	case typ == model.Limit && price <= 0:
		return errors.Validation("limit order requires a positive price")
	}
	return nil
}

// checkPrice 风控使用的价格：限价单用限价，市价单用最新报价
func (e *Engine) checkPrice(ctx context.Context, broker exchange.Broker, symbol string, typ model.OrderType, limit float64) (float64, error) {
	if typ == model.Limit {
		return limit, nil
	}
	quote, err := broker.GetQuote(ctx, symbol)
	if err != nil {
		return 0, errors.Broker(err, "load quote for "+symbol)
	}
	if quote.Price <= 0 {
		return 0, errors.Validation("no price for %s", symbol)
	}
	return quote.Price, nil
}

// execute 风控 -> 熔断 -> 下单 -> 记录成交。
// 风控拒绝返回 Approved=false 且 error 为 nil；券商失败计入熔断并返回 BrokerError
func (e *Engine) execute(ctx context.Context, broker exchange.Broker, check model.OrderCheck, typ model.OrderType, source model.TradeSource) (*model.ExecutionResult, error) {
	res := &model.ExecutionResult{Symbol: check.Symbol, Side: check.Side, Quantity: check.Quantity, Price: check.Price}

	risk := e.risk.ValidateOrder(ctx, check)
	if !risk.Approved && risk.SuggestedQuantity != nil && *risk.SuggestedQuantity > 0 && *risk.SuggestedQuantity < check.Quantity {
		logger.Infof("[Engine] %s %s quantity adjusted %d -> %d", check.Side, check.Symbol, check.Quantity, *risk.SuggestedQuantity)
		check.Quantity = *risk.SuggestedQuantity
		res.Quantity = check.Quantity
		risk = e.risk.ValidateOrder(ctx, check)
	}
	res.Risk = risk
	if !risk.Approved {
		res.Message = "rejected by risk control"
		if len(risk.Errors) > 0 {
			res.Message = risk.Errors[0]
		}
		return res, nil
	}
	if !e.breaker.CanPlaceOrder(check.AccountID) {
		res.Message = "circuit breaker is OPEN"
		return res, nil
	}
	res.Approved = true

	// 卖出前取持仓均价，用于计算已实现盈亏
	var avgCost float64
	if check.Side == model.Sell {
		if holdings, err := broker.GetHoldings(ctx); err == nil {
			for _, h := range holdings {
				if h.Symbol == check.Symbol {
					avgCost = h.AvgPrice
				}
			}
		}
	}

	req := &model.OrderRequest{Symbol: check.Symbol, Side: check.Side, Type: typ, Quantity: check.Quantity}
	if typ == model.Limit {
		req.Price = check.Price
	}
	resp, err := broker.PlaceOrder(ctx, req)
	if err != nil || !resp.OK() {
		reason := "order rejected by broker"
		if err != nil {
			reason = err.Error()
		} else if resp != nil && resp.Message != "" {
			reason = resp.Message
		}
		e.breaker.RecordFailure(ctx, check.AccountID, reason)
		res.Message = reason
		e.auditOrder(ctx, check, res, source, model.SeverityMedium)
		if err == nil {
			err = errors.New(reason)
		}
		return res, errors.Broker(err, fmt.Sprintf("place %s %s x%d failed", check.Side, check.Symbol, check.Quantity))
	}
	e.breaker.RecordSuccess(ctx, check.AccountID)
	res.OrderID = resp.OrderID
	res.Message = "order submitted"

	st, err := broker.GetOrderStatus(ctx, resp.OrderID)
	if err != nil {
		logger.Warnf("[Engine] order %s status unavailable: %v", resp.OrderID, err)
	} else if st.FilledQuantity > 0 {
		res.FilledQuantity = st.FilledQuantity
		res.Price = st.AvgFillPrice
		var pnl *float64
		if check.Side == model.Sell && avgCost > 0 {
			pnl = trade.RealizedPnL(model.Sell, st.FilledQuantity, st.AvgFillPrice, avgCost)
		}
		t, err := e.recorder.Record(ctx, model.TradeCompleted{
			AccountID:   check.AccountID,
			StrategyID:  check.StrategyID,
			OrderID:     resp.OrderID,
			Symbol:      check.Symbol,
			Side:        check.Side,
			Quantity:    st.FilledQuantity,
			Price:       st.AvgFillPrice,
			RealizedPnL: pnl,
			Source:      source,
		}, typ)
		if err != nil {
			logger.Warnf("[Engine] trade for order %s not persisted: %v", resp.OrderID, err)
		}
		res.TradeID = t.TradeID
		res.Message = "order filled"
	}
	e.auditOrder(ctx, check, res, source, model.SeverityLow)
	return res, nil
}

func (e *Engine) auditOrder(ctx context.Context, check model.OrderCheck, res *model.ExecutionResult, source model.TradeSource, severity model.Severity) {
	action := "PLACE"
	if res.OrderID == "" {
		action = "FAIL"
	}
	e.trail.Record(ctx, audit.Entry{
		AccountID: check.AccountID,
		Category:  audit.CategoryOrder,
		Action:    action,
		Severity:  severity,
		Message:   res.Message,
		Details: map[string]any{
			"symbol":   check.Symbol,
			"side":     check.Side,
			"quantity": res.Quantity,
			"filled":   res.FilledQuantity,
			"price":    res.Price,
			"orderId":  res.OrderID,
			"source":   source,
			"strategy": check.StrategyID,
		},
	})
}
