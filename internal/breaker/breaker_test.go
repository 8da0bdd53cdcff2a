package breaker

import (
	"context"
	"edgetrade/internal/audit"
	"edgetrade/internal/consts"
	"edgetrade/internal/dao/memory"
	"edgetrade/internal/model"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (c *capturePublisher) Publish(topic, _ string, _ any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
}

func (c *capturePublisher) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.topics...)
}

func newTestBreaker() (*Breaker, *clock.Mock, *memory.AuditDAO, *capturePublisher) {
	clk := clock.NewMock()
	store := memory.NewAuditDAO()
	pub := &capturePublisher{}
	return New(clk, audit.NewDAOTrail(store), pub), clk, store, pub
}

const acc = "acc-1"

func TestBreaker_InitialClosed(t *testing.T) {
	b, _, _, _ := newTestBreaker()
	st := b.Status(acc)
	assert.Equal(t, model.BreakerClosed, st.State)
	assert.True(t, st.CanPlaceOrder)
	assert.True(t, b.CanPlaceOrder(acc))
}

func TestBreaker_TripsAfterFiveConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	b, _, store, pub := newTestBreaker()

	for i := 0; i < FailureThreshold-1; i++ {
		b.RecordFailure(ctx, acc, "broker timeout")
	}
	assert.Equal(t, model.BreakerClosed, b.Status(acc).State)
	assert.Equal(t, 4, b.Status(acc).ConsecutiveFailures)

	b.RecordFailure(ctx, acc, "broker timeout")
	st := b.Status(acc)
	assert.Equal(t, model.BreakerOpen, st.State)
	assert.Equal(t, model.SeverityHigh, st.Severity)
	assert.False(t, b.CanPlaceOrder(acc))
	assert.Equal(t, []string{consts.TopicBreakerTripped}, pub.all())

	logs, err := store.ListByAccount(ctx, acc, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, audit.CategoryBreaker, logs[0].Category)
	assert.Equal(t, "OPEN", logs[0].Action)
}

func TestBreaker_SuccessResetsFailureCounter(t *testing.T) {
	ctx := context.Background()
	b, _, _, _ := newTestBreaker()

	for i := 0; i < 4; i++ {
		b.RecordFailure(ctx, acc, "x")
	}
	b.RecordSuccess(ctx, acc)
	assert.Equal(t, 0, b.Status(acc).ConsecutiveFailures)

	for i := 0; i < 4; i++ {
		b.RecordFailure(ctx, acc, "x")
	}
	assert.Equal(t, model.BreakerClosed, b.Status(acc).State)
}

func TestBreaker_RecoveryRequiresTimeout(t *testing.T) {
	ctx := context.Background()
	b, clk, _, _ := newTestBreaker()

	b.Trip(ctx, acc, "manual", model.SeverityMedium)
	clk.Add(RecoveryTimeout - time.Second)
	assert.False(t, b.AttemptRecovery(ctx, acc))
	assert.Equal(t, model.BreakerOpen, b.Status(acc).State)

	clk.Add(time.Second)
	assert.True(t, b.AttemptRecovery(ctx, acc))
	assert.Equal(t, model.BreakerHalfOpen, b.Status(acc).State)
	assert.True(t, b.CanPlaceOrder(acc))
	assert.False(t, b.AttemptRecovery(ctx, acc))
}

func TestBreaker_HalfOpenClosesAfterThreeSuccesses(t *testing.T) {
	ctx := context.Background()
	b, clk, _, pub := newTestBreaker()

	b.Trip(ctx, acc, "manual", model.SeverityMedium)
	clk.Add(RecoveryTimeout)
	require.True(t, b.AttemptRecovery(ctx, acc))

	b.RecordSuccess(ctx, acc)
	b.RecordSuccess(ctx, acc)
	assert.Equal(t, model.BreakerHalfOpen, b.Status(acc).State)
	assert.Equal(t, 2, b.Status(acc).HalfOpenSuccesses)

	b.RecordSuccess(ctx, acc)
	assert.Equal(t, model.BreakerClosed, b.Status(acc).State)
	assert.Equal(t, []string{consts.TopicBreakerTripped, consts.TopicBreakerHalfOpen, consts.TopicBreakerReset}, pub.all())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	b, clk, _, _ := newTestBreaker()

	b.Trip(ctx, acc, "manual", model.SeverityMedium)
	clk.Add(RecoveryTimeout)
	require.True(t, b.AttemptRecovery(ctx, acc))
	b.RecordSuccess(ctx, acc)
	b.RecordSuccess(ctx, acc)

	b.RecordFailure(ctx, acc, "rejected")
	st := b.Status(acc)
	assert.Equal(t, model.BreakerOpen, st.State)
	assert.Equal(t, 0, st.HalfOpenSuccesses)
	assert.Equal(t, clk.Now(), *st.TrippedAt)
}

func TestBreaker_CanPlaceOrderIffNotOpen(t *testing.T) {
	ctx := context.Background()
	b, clk, _, _ := newTestBreaker()

	states := []func(){
		func() { b.Reset(ctx, acc, "reset") },
		func() { b.Trip(ctx, acc, "trip", model.SeverityCritical) },
		func() { clk.Add(RecoveryTimeout); b.AttemptRecovery(ctx, acc) },
	}
	for _, toState := range states {
		toState()
		st := b.Status(acc)
		assert.Equal(t, st.State != model.BreakerOpen, b.CanPlaceOrder(acc), "state %s", st.State)
	}
}

func TestBreaker_AccountsIsolated(t *testing.T) {
	ctx := context.Background()
	b, _, _, _ := newTestBreaker()
	b.Trip(ctx, "a", "x", model.SeverityHigh)
	assert.False(t, b.CanPlaceOrder("a"))
	assert.True(t, b.CanPlaceOrder("b"))
	assert.Equal(t, []string{"a"}, b.OpenAccounts())
}

func TestBreaker_RunRecoversOpenAccounts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b, clk, _, _ := newTestBreaker()
	b.Trip(ctx, acc, "x", model.SeverityHigh)

	go b.Run(ctx)
	require.Eventually(t, func() bool {
		clk.Add(time.Minute)
		return b.Status(acc).State == model.BreakerHalfOpen
	}, time.Second, 10*time.Millisecond)
}

func TestBreaker_ConcurrentFailuresTripOnce(t *testing.T) {
	ctx := context.Background()
	b, _, _, pub := newTestBreaker()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.RecordFailure(ctx, acc, "x")
		}()
	}
	wg.Wait()
	assert.Equal(t, model.BreakerOpen, b.Status(acc).State)
	assert.Equal(t, []string{consts.TopicBreakerTripped}, pub.all())
}
