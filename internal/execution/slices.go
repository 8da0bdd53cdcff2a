package execution

import (
	"edgetrade/internal/model"
	"edgetrade/pkg/logger"
	"math"

	"github.com/benbjohnson/clock"
)

// runSlice 定时器或 Execute 触发；订单已结束或该片已执行则跳过
func (r *Router) runSlice(o *smartOrder, i int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.timers, i)
	if o.res.Status.Terminal() || i >= len(o.res.Slices) || o.res.Slices[i].Executed {
		return
	}
	s := &o.res.Slices[i]

	if s.Quantity <= 0 {
		// 空分片直接视为完成，不下单也不计入熔断
		s.Executed = true
	} else if o.req.SpikeGuard && r.spikingLocked(o) {
		s.Deferred++
		if s.Deferred <= maxDeferrals {
			logger.Infof("[SmartRouter] order %s slice %d deferred by price guard (%d)", o.res.ID, i, s.Deferred)
			o.timers[i] = r.clock.AfterFunc(o.retry, func() { r.runSlice(o, i) })
			return
		}
		s.Executed = true
		r.sliceFailedLocked(o, s, "deferred too many times by price guard", false)
	} else {
		typ, price := model.Market, 0.0
		if o.req.LimitPrice != nil {
			typ, price = model.Limit, *o.req.LimitPrice
		}
		r.observeLocked(o)
		r.placeLocked(o, s, typ, price)
	}

	if o.req.Style == model.RouteIceberg && i+1 < len(o.res.Slices) {
		next := i + 1
		o.timers[next] = r.clock.AfterFunc(r.cfg.IcebergSettleDelay, func() { r.runSlice(o, next) })
		return
	}
	if allExecuted(o.res.Slices) {
		r.finishLocked(o.ctx, o, model.SmartCompleted)
	}
}

func allExecuted(slices []model.Slice) bool {
	for _, s := range slices {
		if !s.Executed {
			return false
		}
	}
	return true
}

// spikingLocked 当日涨跌幅超过阈值时暂停；行情取不到时不拦截
func (r *Router) spikingLocked(o *smartOrder) bool {
	q, err := o.broker.GetQuote(o.ctx, o.req.Symbol)
	if err != nil {
		return false
	}
	return math.Abs(q.ChangeRate) > r.cfg.SpikeGuardPercent
}

// bestPrice 买入挂买一、卖出挂卖一，并受限价约束
func bestPrice(book *model.Orderbook, side model.Side, limit *float64) float64 {
	var price float64
	if side == model.Buy {
		if p, ok := book.BestBid(); ok {
			price = p
		}
	} else if p, ok := book.BestAsk(); ok {
		price = p
	}
	if price <= 0 {
		price = book.CurrentPrice
	}
	if limit != nil && price > 0 {
		if side == model.Buy {
			price = math.Min(price, *limit)
		} else {
			price = math.Max(price, *limit)
		}
	}
	return price
}

// startBestLimit 按最优价挂单，之后定期改价直到成交或撤单
func (r *Router) startBestLimit(o *smartOrder) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.awaitFill = true
	o.res.Slices = []model.Slice{{Index: 0, Quantity: o.req.TotalQuantity, ScheduledTime: r.clock.Now()}}
	s := &o.res.Slices[0]

	book, err := o.broker.GetOrderbook(o.ctx, o.req.Symbol)
	if err != nil {
		s.Executed = true
		r.sliceFailedLocked(o, s, "orderbook unavailable: "+err.Error(), true)
		r.finishLocked(o.ctx, o, model.SmartCompleted)
		return
	}
	price := bestPrice(book, o.req.Side, o.req.LimitPrice)
	if price <= 0 {
		s.Executed = true
		r.sliceFailedLocked(o, s, "no price available", false)
		r.finishLocked(o.ctx, o, model.SmartCompleted)
		return
	}
	if book.CurrentPrice > 0 {
		o.observed = append(o.observed, book.CurrentPrice)
	}
	if !r.placeLocked(o, s, model.Limit, price) {
		r.finishLocked(o.ctx, o, model.SmartCompleted)
		return
	}
	if o.res.FilledQuantity >= o.req.TotalQuantity {
		r.finishLocked(o.ctx, o, model.SmartCompleted)
		return
	}
	go r.monitorBestLimit(o, s.ChildOrderID, r.clock.Ticker(r.cfg.BestLimitPollInterval))
}

func (r *Router) monitorBestLimit(o *smartOrder, childID string, ticker *clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			if r.repriceOnce(o, childID) {
				return
			}
		}
	}
}

// repriceOnce 检查成交，未成交且最优价变化时改价；返回 true 表示订单结束
func (r *Router) repriceOnce(o *smartOrder, childID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.res.Status.Terminal() {
		return true
	}
	st, err := o.broker.GetOrderStatus(o.ctx, childID)
	if err != nil {
		logger.Warnf("[SmartRouter] poll child %s failed: %v", childID, err)
		return false
	}
	r.applyFillLocked(o, st)
	if !st.State.Open() {
		if st.State != model.OrderFilled && o.res.FilledQuantity == 0 {
			o.res.Errors = append(o.res.Errors, fmtSliceErr(0, "child order "+string(st.State)))
		}
		r.finishLocked(o.ctx, o, model.SmartCompleted)
		return true
	}

	book, err := o.broker.GetOrderbook(o.ctx, o.req.Symbol)
	if err != nil {
		return false
	}
	if book.CurrentPrice > 0 {
		o.observed = append(o.observed, book.CurrentPrice)
	}
	price := bestPrice(book, o.req.Side, o.req.LimitPrice)
	if price <= 0 || price == st.Price {
		return false
	}
	if err := o.broker.ModifyOrder(o.ctx, childID, st.Remaining(), price); err != nil {
		o.res.Errors = append(o.res.Errors, fmtSliceErr(0, "reprice: "+err.Error()))
		if r.gate != nil {
			r.gate.RecordFailure(o.ctx, o.req.AccountID, "smart order reprice: "+err.Error())
		}
		return false
	}
	logger.Debugf("[SmartRouter] order %s repriced %s %.2f -> %.2f", o.res.ID, childID, st.Price, price)
	if st, err = o.broker.GetOrderStatus(o.ctx, childID); err == nil {
		r.applyFillLocked(o, st)
		if st.State == model.OrderFilled {
			p := st.AvgFillPrice
			o.res.Slices[0].FillPrice = &p
			r.finishLocked(o.ctx, o, model.SmartCompleted)
			return true
		}
	}
	return false
}

// executeAggressive 逐档吃单（在容忍区间内），剩余数量市价扫单
func (r *Router) executeAggressive(o *smartOrder) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := r.clock.Now()
	last := r.observeLocked(o)

	book, err := o.broker.GetOrderbook(o.ctx, o.req.Symbol)
	if err != nil {
		logger.Warnf("[SmartRouter] order %s orderbook unavailable, sweeping at market: %v", o.res.ID, err)
		book = &model.Orderbook{}
	}
	if last <= 0 {
		last = book.CurrentPrice
	}
	lo, hi := 0.0, math.Inf(1)
	if tol := o.req.PriceTolerancePercent; tol > 0 && last > 0 {
		lo, hi = last*(1-tol/100), last*(1+tol/100)
	}
	if lim := o.req.LimitPrice; lim != nil {
		if o.req.Side == model.Buy {
			hi = math.Min(hi, *lim)
		} else {
			lo = math.Max(lo, *lim)
		}
	}

	levels := book.Asks
	if o.req.Side == model.Sell {
		levels = book.Bids
	}
	remaining := o.req.TotalQuantity
	for _, lv := range levels {
		if remaining <= 0 || lv.Price < lo || lv.Price > hi {
			break
		}
		qty := min(remaining, lv.Quantity)
		if qty <= 0 {
			continue
		}
		o.res.Slices = append(o.res.Slices, model.Slice{Index: len(o.res.Slices), Quantity: qty, ScheduledTime: now})
		s := &o.res.Slices[len(o.res.Slices)-1]
		r.placeLocked(o, s, model.Limit, lv.Price)
		remaining -= qty
	}
	if remaining > 0 {
		o.res.Slices = append(o.res.Slices, model.Slice{Index: len(o.res.Slices), Quantity: remaining, ScheduledTime: now})
		s := &o.res.Slices[len(o.res.Slices)-1]
		if o.req.LimitPrice != nil {
			// 有限价时不做市价扫单，剩余数量以限价挂单
			r.placeLocked(o, s, model.Limit, *o.req.LimitPrice)
		} else {
			r.placeLocked(o, s, model.Market, 0)
		}
	}
	r.finishLocked(o.ctx, o, model.SmartCompleted)
}
