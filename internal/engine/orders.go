package engine

import (
	"context"
	"edgetrade/internal/dao"
	"edgetrade/internal/exchange"
	"edgetrade/internal/model"
	"edgetrade/internal/model/entity"
	"edgetrade/pkg/errors"
	"edgetrade/pkg/logger"
	"edgetrade/pkg/utils"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// ExecuteSplitOrder 按固定间隔顺序下 N 笔子单，余数放在最后一笔。
// 单笔失败不中断；全部失败返回 FAILED，部分失败返回 PartialExecution
func (e *Engine) ExecuteSplitOrder(ctx context.Context, req model.SplitOrderRequest) (*model.SplitOrderResult, error) {
	if err := validateOrder(req.Symbol, req.Side, req.Type, req.TotalQuantity, req.Price); err != nil {
		return nil, err
	}
	if req.Splits <= 0 {
		return nil, errors.Validation("splits must be positive")
	}
	if int64(req.Splits) > req.TotalQuantity {
		return nil, errors.Validation("splits %d exceed total quantity %d", req.Splits, req.TotalQuantity)
	}
	broker, err := e.brokers.Broker(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	delay := req.Delay
	if delay <= 0 {
		delay = e.cfg.SplitOrderDelay
	}

	base := req.TotalQuantity / int64(req.Splits)
	out := &model.SplitOrderResult{OrderIDs: []string{}, Legs: []*model.ExecutionResult{}, Errors: []string{}}
	var errs error
	for i := 0; i < req.Splits; i++ {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				errs = multierr.Append(errs, ctx.Err())
				out.Errors = append(out.Errors, fmt.Sprintf("leg %d: %v", i+1, ctx.Err()))
				return e.splitResult(out, errs)
			case <-e.clock.After(delay):
			}
		}
		qty := base
		if i == req.Splits-1 {
			qty = req.TotalQuantity - base*int64(req.Splits-1)
		}
		leg, err := e.splitLeg(ctx, broker, req, qty)
		if leg != nil {
			out.Legs = append(out.Legs, leg)
			if leg.OrderID != "" {
				out.OrderIDs = append(out.OrderIDs, leg.OrderID)
			}
			out.FilledQuantity += leg.FilledQuantity
			if err == nil && !leg.Approved {
				err = errors.Rejected("%s", leg.Message)
			}
		}
		if err != nil {
			errs = multierr.Append(errs, err)
			out.Errors = append(out.Errors, fmt.Sprintf("leg %d: %v", i+1, err))
		}
	}
	return e.splitResult(out, errs)
}

func (e *Engine) splitLeg(ctx context.Context, broker exchange.Broker, req model.SplitOrderRequest, qty int64) (*model.ExecutionResult, error) {
	price, err := e.checkPrice(ctx, broker, req.Symbol, req.Type, req.Price)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, broker, model.OrderCheck{
		AccountID: req.AccountID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  qty,
		Price:     price,
	}, req.Type, model.TradeSplit)
}

func (e *Engine) splitResult(out *model.SplitOrderResult, errs error) (*model.SplitOrderResult, error) {
	out.Status = model.SmartCompleted
	if errs == nil {
		return out, nil
	}
	if len(out.OrderIDs) == 0 {
		out.Status = model.SmartFailed
		logger.Warnf("[Engine] split order failed: %v", errs)
		return out, nil
	}
	return out, errors.Partial(errs, fmt.Sprintf("%d of %d legs failed", len(out.Errors), len(out.Errors)+len(out.OrderIDs)))
}

// CreateScheduledOrder 预约单，validUntil 为空时使用 executeAt 当天收盘时间
func (e *Engine) CreateScheduledOrder(ctx context.Context, req model.ScheduledOrderRequest) (*model.ScheduledOrder, error) {
	if e.scheduled == nil {
		return nil, errors.Config("scheduled orders are not configured")
	}
	if req.AccountID == "" {
		return nil, errors.Validation("accountId is required")
	}
	if err := validateOrder(req.Symbol, req.Side, req.Type, req.Quantity, req.Price); err != nil {
		return nil, err
	}
	if req.ExecuteAt.IsZero() {
		return nil, errors.Validation("executeAt is required")
	}
	validUntil := req.ValidUntil
	if validUntil.IsZero() {
		closeAt, err := utils.ParseClock(req.ExecuteAt.In(e.loc), e.cfg.MarketClose)
		if err != nil {
			return nil, errors.Config("invalid market close %q", e.cfg.MarketClose)
		}
		validUntil = closeAt
	}
	if !validUntil.After(req.ExecuteAt) {
		return nil, errors.Validation("validUntil must be after executeAt")
	}
	now := e.clock.Now()
	if !validUntil.After(now) {
		return nil, errors.Validation("validUntil is in the past")
	}

	row := &entity.ScheduledOrder{
		ID:         uuid.NewString(),
		AccountID:  req.AccountID,
		Symbol:     req.Symbol,
		Side:       string(req.Side),
		OrderType:  string(req.Type),
		Quantity:   req.Quantity,
		Price:      req.Price,
		ExecuteAt:  req.ExecuteAt,
		ValidUntil: validUntil,
		Status:     string(model.ScheduledPending),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.scheduled.Create(ctx, row); err != nil {
		return nil, err
	}
	logger.Infof("[Engine] scheduled %s %s x%d at %s (valid until %s)",
		req.Side, req.Symbol, req.Quantity, req.ExecuteAt.Format(time.RFC3339), validUntil.Format(time.RFC3339))
	return toScheduledOrder(row), nil
}

// CancelScheduledOrder 只能取消待执行的预约单
func (e *Engine) CancelScheduledOrder(ctx context.Context, id string) (*model.ScheduledOrder, error) {
	if e.scheduled == nil {
		return nil, errors.Config("scheduled orders are not configured")
	}
	row, err := e.scheduled.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, errors.NotFound("scheduled order %s not found", id)
		}
		return nil, err
	}
	if row.Status != string(model.ScheduledPending) {
		return nil, errors.Conflict("scheduled order %s is %s", id, row.Status)
	}
	row.Status = string(model.ScheduledCancelled)
	row.UpdatedAt = e.clock.Now()
	if err := e.scheduled.Update(ctx, row); err != nil {
		return nil, err
	}
	return toScheduledOrder(row), nil
}

// ScheduledOrders 账户下待执行的预约单
func (e *Engine) ScheduledOrders(ctx context.Context, accountID string) ([]model.ScheduledOrder, error) {
	if e.scheduled == nil {
		return []model.ScheduledOrder{}, nil
	}
	rows, err := e.scheduled.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.ScheduledOrder, 0, len(rows))
	for i := range rows {
		if accountID == "" || rows[i].AccountID == accountID {
			out = append(out, *toScheduledOrder(&rows[i]))
		}
	}
	return out, nil
}

// CheckScheduledOrders 过期的标记 EXPIRED，到时间的立即执行，返回本轮处理的数量
func (e *Engine) CheckScheduledOrders(ctx context.Context) (int, error) {
	if e.scheduled == nil {
		return 0, nil
	}
	rows, err := e.scheduled.ListPending(ctx)
	if err != nil {
		return 0, err
	}
	now := e.clock.Now()
	handled := 0
	for i := range rows {
		row := &rows[i]
		switch {
		case !now.Before(row.ValidUntil):
			row.Status = string(model.ScheduledExpired)
			logger.Infof("[Engine] scheduled order %s expired", row.ID)
		case !now.Before(row.ExecuteAt):
			e.runScheduled(ctx, row)
		default:
			continue
		}
		handled++
		row.UpdatedAt = e.clock.Now()
		if err := e.scheduled.Update(ctx, row); err != nil {
			logger.Errorf("[Engine] update scheduled order %s failed: %v", row.ID, err)
		}
	}
	return handled, nil
}

func (e *Engine) runScheduled(ctx context.Context, row *entity.ScheduledOrder) {
	res, err := e.ExecuteOrder(ctx, model.ExecuteOrderRequest{
		AccountID: row.AccountID,
		Symbol:    row.Symbol,
		Side:      model.Side(row.Side),
		Type:      model.OrderType(row.OrderType),
		Quantity:  row.Quantity,
		Price:     row.Price,
	})
	switch {
	case err != nil:
		row.Status = string(model.ScheduledFailed)
		row.Error = err.Error()
	case !res.Approved:
		row.Status = string(model.ScheduledFailed)
		row.Error = res.Message
	default:
		row.Status = string(model.ScheduledExecuted)
		row.OrderID = res.OrderID
	}
	if res != nil {
		row.OrderID = res.OrderID
	}
	logger.Infof("[Engine] scheduled order %s %s %s", row.ID, row.Status, row.Error)
}

// runScheduledOrders 按固定间隔检查预约单
func (e *Engine) runScheduledOrders(ctx context.Context) {
	ticker := e.clock.Ticker(e.cfg.ScheduledCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.CheckScheduledOrders(ctx); err != nil {
				logger.Errorf("[Engine] check scheduled orders failed: %v", err)
			}
		}
	}
}

func toScheduledOrder(row *entity.ScheduledOrder) *model.ScheduledOrder {
	return &model.ScheduledOrder{
		ID:         row.ID,
		AccountID:  row.AccountID,
		Symbol:     row.Symbol,
		Side:       model.Side(row.Side),
		Type:       model.OrderType(row.OrderType),
		Quantity:   row.Quantity,
		Price:      row.Price,
		ExecuteAt:  row.ExecuteAt,
		ValidUntil: row.ValidUntil,
		Status:     model.ScheduledOrderStatus(row.Status),
		OrderID:    row.OrderID,
		Error:      row.Error,
		CreatedAt:  row.CreatedAt,
	}
}
