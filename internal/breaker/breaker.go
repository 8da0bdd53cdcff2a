package breaker

import (
	"context"
	"edgetrade/internal/audit"
	"edgetrade/internal/bus"
	"edgetrade/internal/consts"
	"edgetrade/internal/model"
	"edgetrade/pkg/logger"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	FailureThreshold         = 5
	RecoveryTimeout          = 5 * time.Minute
	HalfOpenSuccessThreshold = 3
	RecoveryCheckInterval    = time.Minute
)

type accountBreaker struct {
	mu                sync.Mutex
	state             model.BreakerState
	tripReason        string
	severity          model.Severity
	trippedAt         time.Time
	failures          int
	halfOpenSuccesses int
}

func (a *accountBreaker) status(accountID string) model.BreakerStatus {
	st := model.BreakerStatus{
		AccountID:           accountID,
		State:               a.state,
		TripReason:          a.tripReason,
		Severity:            a.severity,
		ConsecutiveFailures: a.failures,
		HalfOpenSuccesses:   a.halfOpenSuccesses,
		CanPlaceOrder:       a.state != model.BreakerOpen,
	}
	if !a.trippedAt.IsZero() {
		t := a.trippedAt
		st.TrippedAt = &t
	}
	return st
}

// Breaker 按账户的熔断器，账户之间互不影响，同一账户的状态迁移串行
type Breaker struct {
	clock clock.Clock
	trail audit.Trail
	pub   bus.Publisher

	mu       sync.RWMutex
	accounts map[string]*accountBreaker
}

func New(clk clock.Clock, trail audit.Trail, pub bus.Publisher) *Breaker {
	if clk == nil {
		clk = clock.New()
	}
	if trail == nil {
		trail = audit.NewLogTrail()
	}
	return &Breaker{
		clock:    clk,
		trail:    trail,
		pub:      pub,
		accounts: make(map[string]*accountBreaker),
	}
}

func (b *Breaker) account(accountID string) *accountBreaker {
	b.mu.RLock()
	a, ok := b.accounts[accountID]
	b.mu.RUnlock()
	if ok {
		return a
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok = b.accounts[accountID]; !ok {
		a = &accountBreaker{state: model.BreakerClosed}
		b.accounts[accountID] = a
	}
	return a
}

// CanPlaceOrder OPEN 时拒绝，CLOSED 和 HALF_OPEN 放行
func (b *Breaker) CanPlaceOrder(accountID string) bool {
	a := b.account(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state != model.BreakerOpen
}

func (b *Breaker) Status(accountID string) model.BreakerStatus {
	a := b.account(accountID)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status(accountID)
}

// RecordFailure 连续失败达到阈值熔断；半开状态下任何失败都重新熔断
func (b *Breaker) RecordFailure(ctx context.Context, accountID, reason string) {
	a := b.account(accountID)
	a.mu.Lock()
	a.failures++
	var ev *model.BreakerEvent
	switch a.state {
	case model.BreakerClosed:
		if a.failures >= FailureThreshold {
			ev = b.openLocked(accountID, a, fmt.Sprintf("%d consecutive failures: %s", a.failures, reason), model.SeverityHigh)
		}
	case model.BreakerHalfOpen:
		ev = b.openLocked(accountID, a, "failure during half-open probation: "+reason, model.SeverityHigh)
	}
	a.mu.Unlock()
	b.emit(ctx, ev)
}

func (b *Breaker) RecordSuccess(ctx context.Context, accountID string) {
	a := b.account(accountID)
	a.mu.Lock()
	a.failures = 0
	var ev *model.BreakerEvent
	if a.state == model.BreakerHalfOpen {
		a.halfOpenSuccesses++
		if a.halfOpenSuccesses >= HalfOpenSuccessThreshold {
			ev = b.closeLocked(accountID, a, fmt.Sprintf("%d consecutive successes in half-open", a.halfOpenSuccesses), model.SeverityLow)
		}
	}
	a.mu.Unlock()
	b.emit(ctx, ev)
}

// Trip 手动或风控触发熔断
func (b *Breaker) Trip(ctx context.Context, accountID, reason string, severity model.Severity) {
	a := b.account(accountID)
	a.mu.Lock()
	ev := b.openLocked(accountID, a, reason, severity)
	a.mu.Unlock()
	b.emit(ctx, ev)
}

// Reset 人工恢复到 CLOSED
func (b *Breaker) Reset(ctx context.Context, accountID, reason string) {
	a := b.account(accountID)
	a.mu.Lock()
	ev := b.closeLocked(accountID, a, reason, model.SeverityLow)
	a.mu.Unlock()
	b.emit(ctx, ev)
}

// AttemptRecovery 熔断超过恢复时间后进入半开，返回是否迁移
func (b *Breaker) AttemptRecovery(ctx context.Context, accountID string) bool {
	a := b.account(accountID)
	a.mu.Lock()
	now := b.clock.Now()
	if a.state != model.BreakerOpen || now.Sub(a.trippedAt) < RecoveryTimeout {
		a.mu.Unlock()
		return false
	}
	ev := &model.BreakerEvent{AccountID: accountID, From: a.state, To: model.BreakerHalfOpen,
		Reason: "recovery timeout elapsed", Severity: model.SeverityMedium, At: now}
	a.state = model.BreakerHalfOpen
	a.halfOpenSuccesses = 0
	a.failures = 0
	a.mu.Unlock()
	b.emit(ctx, ev)
	return true
}

// OpenAccounts 当前处于 OPEN 的账户
func (b *Breaker) OpenAccounts() []string {
	b.mu.RLock()
	ids := make([]string, 0, len(b.accounts))
	list := make([]*accountBreaker, 0, len(b.accounts))
	for id, a := range b.accounts {
		ids = append(ids, id)
		list = append(list, a)
	}
	b.mu.RUnlock()

	var out []string
	for i, a := range list {
		a.mu.Lock()
		if a.state == model.BreakerOpen {
			out = append(out, ids[i])
		}
		a.mu.Unlock()
	}
	sort.Strings(out)
	return out
}

// Run 每分钟尝试恢复所有 OPEN 的账户
func (b *Breaker) Run(ctx context.Context) {
	ticker := b.clock.Ticker(RecoveryCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range b.OpenAccounts() {
				b.AttemptRecovery(ctx, id)
			}
		}
	}
}

// 以下两个方法要求持有 a.mu
func (b *Breaker) openLocked(accountID string, a *accountBreaker, reason string, severity model.Severity) *model.BreakerEvent {
	now := b.clock.Now()
	ev := &model.BreakerEvent{AccountID: accountID, From: a.state, To: model.BreakerOpen, Reason: reason, Severity: severity, At: now}
	a.state = model.BreakerOpen
	a.tripReason = reason
	a.severity = severity
	a.trippedAt = now
	a.halfOpenSuccesses = 0
	return ev
}

func (b *Breaker) closeLocked(accountID string, a *accountBreaker, reason string, severity model.Severity) *model.BreakerEvent {
	ev := &model.BreakerEvent{AccountID: accountID, From: a.state, To: model.BreakerClosed, Reason: reason, Severity: severity, At: b.clock.Now()}
	a.state = model.BreakerClosed
	a.tripReason = ""
	a.severity = ""
	a.trippedAt = time.Time{}
	a.failures = 0
	a.halfOpenSuccesses = 0
	return ev
}

func (b *Breaker) emit(ctx context.Context, ev *model.BreakerEvent) {
	if ev == nil {
		return
	}
	logger.Warnf("[CircuitBreaker] account %s %s -> %s: %s (%s)", ev.AccountID, ev.From, ev.To, ev.Reason, ev.Severity)
	b.trail.Record(ctx, audit.Entry{
		AccountID: ev.AccountID,
		Category:  audit.CategoryBreaker,
		Action:    string(ev.To),
		Severity:  ev.Severity,
		Message:   ev.Reason,
		Details:   map[string]any{"from": string(ev.From), "to": string(ev.To)},
		At:        ev.At,
	})
	if b.pub == nil {
		return
	}
	topic := consts.TopicBreakerReset
	switch ev.To {
	case model.BreakerOpen:
		topic = consts.TopicBreakerTripped
	case model.BreakerHalfOpen:
		topic = consts.TopicBreakerHalfOpen
	}
	b.pub.Publish(topic, ev.AccountID, ev)
}
