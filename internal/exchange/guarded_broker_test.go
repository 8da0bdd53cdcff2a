package exchange

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"edgetrade/conf"
	"edgetrade/internal/dao/memory"
	"edgetrade/internal/model"
	"edgetrade/internal/model/entity"
	"edgetrade/pkg/errors"
	"edgetrade/pkg/errors/ecode"
	"edgetrade/pkg/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stallBroker 下单永远不返回
type stallBroker struct {
	*SimulatedBroker
	release chan struct{}
}

func (s *stallBroker) PlaceOrder(_ context.Context, _ *model.OrderRequest) (*model.OrderResponse, error) {
	<-s.release
	return &model.OrderResponse{Status: model.PlaceSuccess}, nil
}

func testBrokerConf() conf.Broker {
	return conf.Broker{RateLimit: 1000, Burst: 10, Timeout: 50 * time.Millisecond, Retries: 3}
}

func TestGuardedBroker_StalledCallSurfacesAsBrokerError(t *testing.T) {
	inner := &stallBroker{SimulatedBroker: NewSimulatedBroker(0), release: make(chan struct{})}
	defer close(inner.release)
	g := NewGuardedBroker(inner, testBrokerConf())

	start := time.Now()
	_, err := g.PlaceOrder(context.Background(), &model.OrderRequest{Symbol: "005930", Side: model.Buy, Quantity: 1})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, ecode.BrokerErr))
	assert.Less(t, time.Since(start), time.Second)
}

// flakyBroker 前 n 次查询失败
type flakyBroker struct {
	*SimulatedBroker
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *flakyBroker) GetQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return nil, stderrors.New("temporary failure")
	}
	return f.SimulatedBroker.GetQuote(ctx, symbol)
}

func (f *flakyBroker) PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.OrderResponse, error) {
	f.calls.Add(1)
	return nil, stderrors.New("gateway timeout")
}

func TestGuardedBroker_RetriesReadsOnly(t *testing.T) {
	sim := NewSimulatedBroker(0)
	sim.SetPrice("005930", 70_000)
	inner := &flakyBroker{SimulatedBroker: sim}
	inner.failures.Store(2)
	g := NewGuardedBroker(inner, testBrokerConf())
	g.retryDelay = time.Millisecond

	q, err := g.GetQuote(context.Background(), "005930")
	require.NoError(t, err)
	assert.Equal(t, 70_000.0, q.Price)
	assert.Equal(t, int32(3), inner.calls.Load())

	inner.calls.Store(0)
	_, err = g.PlaceOrder(context.Background(), &model.OrderRequest{Symbol: "005930"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, ecode.BrokerErr))
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCachedBroker_WithoutRedisDelegates(t *testing.T) {
	sim := NewSimulatedBroker(0)
	sim.SetPrice("005930", 70_000)
	c := NewCachedBroker(sim, nil)

	q, err := c.GetQuote(context.Background(), "005930")
	require.NoError(t, err)
	assert.Equal(t, 70_000.0, q.Price)
	assert.Equal(t, 1, sim.Calls(OpQuote))
}

func TestAccountProvider(t *testing.T) {
	ctx := context.Background()
	accounts := memory.NewAccountDAO(
		entity.Account{ID: "live-no-creds", Active: true},
		entity.Account{ID: "sim", Simulated: true, InitialCash: 5_000_000, Active: true},
		entity.Account{ID: "inactive", Simulated: true},
	)
	cfg := conf.Default()
	cfg.Simulated = false
	p := NewAccountProvider(accounts, cfg, nil, nil)

	_, err := p.Broker(ctx, "live-no-creds")
	assert.True(t, errors.IsCode(err, ecode.ConfigErr))

	_, err = p.Broker(ctx, "inactive")
	assert.True(t, errors.IsCode(err, ecode.ConfigErr))

	_, err = p.Broker(ctx, "missing")
	assert.True(t, errors.IsCode(err, ecode.NotFoundErr))

	b, err := p.Broker(ctx, "sim")
	require.NoError(t, err)
	bal, err := b.GetAccountBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5_000_000.0, bal.CashBalance)

	again, err := p.Broker(ctx, "sim")
	require.NoError(t, err)
	assert.Same(t, b, again)

	_, ok := p.Simulated("sim")
	assert.True(t, ok)
}

func TestAccountProvider_SealedCredentials(t *testing.T) {
	ctx := context.Background()
	sealer, err := security.NewSealer([]byte("master"), []byte("edgetrade"))
	require.NoError(t, err)
	secret, err := sealer.Seal("s3cret")
	require.NoError(t, err)

	accounts := memory.NewAccountDAO(entity.Account{
		ID: "live", AppKey: "key", AppSecret: secret, BrokerAccountNo: "5000-01", Active: true,
	})
	cfg := conf.Default()
	cfg.Simulated = false

	var seen string
	live := func(acc *entity.Account) (Broker, error) {
		seen = acc.AppSecret
		return NewSimulatedBroker(1_000_000), nil
	}

	// 没有主密钥时拒绝使用密文凭证
	_, err = NewAccountProvider(accounts, cfg, live, nil).Broker(ctx, "live")
	assert.True(t, errors.IsCode(err, ecode.ConfigErr))
	assert.Empty(t, seen)

	p := NewAccountProvider(accounts, cfg, live, nil).WithSealer(sealer)
	_, err = p.Broker(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", seen)

	stored, err := accounts.FindByID(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, secret, stored.AppSecret)
}
