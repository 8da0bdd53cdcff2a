package exchange

import (
	"context"
	"edgetrade/conf"
	"edgetrade/internal/model"
	"edgetrade/pkg/errors"
	"edgetrade/pkg/utils"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// GuardedBroker 限流 + 单次调用超时 + 只读接口重试，写接口不重试
type GuardedBroker struct {
	inner      Broker
	limiter    *rate.Limiter
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
}

func NewGuardedBroker(inner Broker, cfg conf.Broker) *GuardedBroker {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GuardedBroker{
		inner:      inner,
		limiter:    rate.NewLimiter(limit, burst),
		timeout:    timeout,
		retries:    max(cfg.Retries, 1),
		retryDelay: 200 * time.Millisecond,
	}
}

// guard 限流后在超时内执行 fn，底层调用卡住时按超时返回
func guard[T any](ctx context.Context, g *GuardedBroker, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := g.limiter.Wait(ctx); err != nil {
		return zero, errors.Broker(err, op+": rate limit")
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return zero, errors.Broker(r.err, op)
		}
		return r.v, nil
	case <-ctx.Done():
		return zero, errors.Broker(ctx.Err(), fmt.Sprintf("%s: no response within %s", op, g.timeout))
	}
}

// read 只读接口按配置次数重试，指数退避，错误链上保留 BrokerErr 错误码
func read[T any](ctx context.Context, g *GuardedBroker, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := utils.Retry(ctx, g.retries, g.retryDelay, true, func() error {
		v, err := guard(ctx, g, op, fn)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (g *GuardedBroker) GetQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	return read(ctx, g, "get quote "+symbol, func(ctx context.Context) (*model.Quote, error) {
		return g.inner.GetQuote(ctx, symbol)
	})
}

func (g *GuardedBroker) GetOrderbook(ctx context.Context, symbol string) (*model.Orderbook, error) {
	return read(ctx, g, "get orderbook "+symbol, func(ctx context.Context) (*model.Orderbook, error) {
		return g.inner.GetOrderbook(ctx, symbol)
	})
}

func (g *GuardedBroker) GetHoldings(ctx context.Context) ([]model.Holding, error) {
	return read(ctx, g, "get holdings", g.inner.GetHoldings)
}

func (g *GuardedBroker) GetAccountBalance(ctx context.Context) (*model.Balance, error) {
	return read(ctx, g, "get balance", g.inner.GetAccountBalance)
}

func (g *GuardedBroker) GetOpenOrders(ctx context.Context) ([]model.OrderStatus, error) {
	return read(ctx, g, "get open orders", g.inner.GetOpenOrders)
}

func (g *GuardedBroker) GetOrderStatus(ctx context.Context, orderID string) (*model.OrderStatus, error) {
	return read(ctx, g, "get order status "+orderID, func(ctx context.Context) (*model.OrderStatus, error) {
		return g.inner.GetOrderStatus(ctx, orderID)
	})
}

func (g *GuardedBroker) PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.OrderResponse, error) {
	return guard(ctx, g, "place order "+req.Symbol, func(ctx context.Context) (*model.OrderResponse, error) {
		return g.inner.PlaceOrder(ctx, req)
	})
}

func (g *GuardedBroker) CancelOrder(ctx context.Context, orderID string, quantity int64) error {
	_, err := guard(ctx, g, "cancel order "+orderID, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.inner.CancelOrder(ctx, orderID, quantity)
	})
	return err
}

func (g *GuardedBroker) ModifyOrder(ctx context.Context, orderID string, quantity int64, price float64) error {
	_, err := guard(ctx, g, "modify order "+orderID, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.inner.ModifyOrder(ctx, orderID, quantity, price)
	})
	return err
}

var _ Broker = (*GuardedBroker)(nil)
