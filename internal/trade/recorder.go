package trade

import (
	"context"
	"edgetrade/internal/bus"
	"edgetrade/internal/consts"
	"edgetrade/internal/dao"
	"edgetrade/internal/model"
	"edgetrade/internal/model/entity"
	"edgetrade/pkg/idgen"
	"edgetrade/pkg/logger"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
)

// Recorder 成交落库并广播 trade.completed
type Recorder struct {
	dao   dao.TradeDAO
	pub   bus.Publisher
	clock clock.Clock
}

func NewRecorder(d dao.TradeDAO, pub bus.Publisher, clk clock.Clock) *Recorder {
	if clk == nil {
		clk = clock.New()
	}
	return &Recorder{dao: d, pub: pub, clock: clk}
}

// Record 补齐成交id、时间和金额；落库失败也会广播，成交已经在券商侧发生
func (r *Recorder) Record(ctx context.Context, t model.TradeCompleted, orderType model.OrderType) (*model.TradeCompleted, error) {
	if t.TradeID == "" {
		t.TradeID = idgen.NextID()
	}
	if t.At.IsZero() {
		t.At = r.clock.Now()
	}
	price := decimal.NewFromFloat(t.Price)
	amount := price.Mul(decimal.NewFromInt(t.Quantity))
	t.Amount = amount.InexactFloat64()

	rec := &entity.Trade{
		ID:         t.TradeID,
		AccountID:  t.AccountID,
		StrategyID: t.StrategyID,
		OrderID:    t.OrderID,
		Symbol:     t.Symbol,
		Side:       string(t.Side),
		OrderType:  string(orderType),
		Quantity:   t.Quantity,
		Price:      price,
		Amount:     amount,
		Source:     string(t.Source),
		ExecutedAt: t.At,
	}
	if t.RealizedPnL != nil {
		rec.RealizedPnL = decimal.NewNullDecimal(decimal.NewFromFloat(*t.RealizedPnL))
	}

	var err error
	if r.dao != nil {
		if err = r.dao.Create(ctx, rec); err != nil {
			logger.Errorf("[Trade] persist trade %s (%s %s x%d) failed: %v", t.TradeID, t.Side, t.Symbol, t.Quantity, err)
		}
	}
	if r.pub != nil {
		out := t
		r.pub.Publish(consts.TopicTradeCompleted, t.AccountID, &out)
	}
	return &t, err
}

// RealizedPnL 卖出按持仓均价计算已实现盈亏，买入返回 nil
func RealizedPnL(side model.Side, quantity int64, price, avgPrice float64) *float64 {
	if side != model.Sell || avgPrice <= 0 {
		return nil
	}
	pnl := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(avgPrice)).
		Mul(decimal.NewFromInt(quantity)).InexactFloat64()
	return &pnl
}
