package signal

import (
	"context"
	"edgetrade/internal/bus"
	"edgetrade/internal/consts"
	"edgetrade/internal/model"
	"edgetrade/pkg/errors"
	"edgetrade/pkg/logger"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

const (
	MaxQueuePerSymbol = 10
	DefaultSignalTTL  = 30 * time.Minute

	spikeWindow           = 5 * time.Minute
	spikeLookback         = 60 * time.Second
	spikeThresholdPercent = 3.0

	volumeHistorySize = 100
	volumeWarmup      = 10
	volumeSurgeRatio  = 3.0

	maxAgePenalty = 30.0
	sweepInterval = time.Minute
)

type pricePoint struct {
	price float64
	at    time.Time
}

// 每个标的一把锁，不同标的互不阻塞
type symbolState struct {
	mu      sync.Mutex
	queue   []*model.TradingSignal // 按提交顺序，超过上限淘汰最早的
	prices  []pricePoint
	volumes []float64
	last    *model.Tick
}

// Processor 信号接收、异动检测和优先级排序
type Processor struct {
	clock clock.Clock
	pub   bus.Publisher

	mu      sync.RWMutex
	symbols map[string]*symbolState
}

func NewProcessor(clk clock.Clock, pub bus.Publisher) *Processor {
	if clk == nil {
		clk = clock.New()
	}
	return &Processor{
		clock:   clk,
		pub:     pub,
		symbols: make(map[string]*symbolState),
	}
}

func (p *Processor) state(symbol string) *symbolState {
	p.mu.RLock()
	s, ok := p.symbols[symbol]
	p.mu.RUnlock()
	if ok {
		return s
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok = p.symbols[symbol]; !ok {
		s = &symbolState{}
		p.symbols[symbol] = s
	}
	return s
}

func (p *Processor) snapshot() []*symbolState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*symbolState, 0, len(p.symbols))
	for _, s := range p.symbols {
		out = append(out, s)
	}
	return out
}

// Submit 校验并入队，补齐 id、创建时间和过期时间
func (p *Processor) Submit(in model.TradingSignal) (*model.TradingSignal, error) {
	now := p.clock.Now()
	sig := in
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = now
	}
	if sig.ExpiresAt.IsZero() {
		sig.ExpiresAt = sig.CreatedAt.Add(DefaultSignalTTL)
	}
	if sig.Strength == "" {
		sig.Strength = model.StrengthModerate
	}
	if err := validate(&sig); err != nil {
		return nil, err
	}

	s := p.state(sig.Symbol)
	s.mu.Lock()
	s.queue = append(s.queue, &sig)
	var evicted *model.TradingSignal
	if len(s.queue) > MaxQueuePerSymbol {
		evicted = s.queue[0]
		s.queue = append(s.queue[:0:0], s.queue[1:]...)
	}
	s.mu.Unlock()

	if evicted != nil {
		logger.Debugf("[SignalProcessor] queue %s full, evicted %s", sig.Symbol, evicted.ID)
	}
	if p.pub != nil {
		out := sig
		p.pub.Publish(consts.TopicSignalNew, sig.AccountID, &out)
	}
	return &sig, nil
}

func validate(sig *model.TradingSignal) error {
	switch {
	case sig.AccountID == "":
		return errors.Validation("signal accountId is required")
	case sig.Symbol == "":
		return errors.Validation("signal symbol is required")
	case !sig.Side.Valid():
		return errors.Validation("invalid signal side %q", sig.Side)
	case !sig.Source.Valid():
		return errors.Validation("invalid signal source %q", sig.Source)
	case !sig.Strength.Valid():
		return errors.Validation("invalid signal strength %q", sig.Strength)
	case sig.Confidence < 0 || sig.Confidence > 100 || math.IsNaN(sig.Confidence):
		return errors.Validation("confidence must be within 0-100, got %v", sig.Confidence)
	case sig.Price < 0:
		return errors.Validation("price must not be negative")
	case sig.Quantity < 0:
		return errors.Validation("quantity must not be negative")
	case !sig.ExpiresAt.After(sig.CreatedAt):
		return errors.Validation("expiresAt must be after createdAt")
	}
	return nil
}

// Pending 某个标的当前排队的信号
func (p *Processor) Pending(symbol string) []model.TradingSignal {
	p.mu.RLock()
	s, ok := p.symbols[symbol]
	p.mu.RUnlock()
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.TradingSignal, 0, len(s.queue))
	for _, sig := range s.queue {
		out = append(out, *sig)
	}
	return out
}

// Take 取出某账户某策略的全部信号（出队），过滤并排序后返回，
// strategyID 为空表示取未指定策略的信号
func (p *Processor) Take(accountID, strategyID string) []*model.TradingSignal {
	var taken []*model.TradingSignal
	for _, s := range p.snapshot() {
		s.mu.Lock()
		kept := s.queue[:0:0]
		for _, sig := range s.queue {
			if sig.AccountID == accountID && sig.StrategyID == strategyID {
				taken = append(taken, sig)
			} else {
				kept = append(kept, sig)
			}
		}
		s.queue = kept
		s.mu.Unlock()
	}
	return p.FilterAndPrioritize(taken)
}

// FilterAndPrioritize 去掉过期信号，按分数降序，每个 标的+方向 只保留最高分
func (p *Processor) FilterAndPrioritize(signals []*model.TradingSignal) []*model.TradingSignal {
	now := p.clock.Now()
	type scored struct {
		sig   *model.TradingSignal
		score float64
	}
	list := make([]scored, 0, len(signals))
	for _, sig := range signals {
		if sig == nil || sig.Expired(now) {
			continue
		}
		list = append(list, scored{sig: sig, score: Score(sig, now)})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].score > list[j].score })

	seen := make(map[string]bool, len(list))
	out := make([]*model.TradingSignal, 0, len(list))
	for _, it := range list {
		key := it.sig.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it.sig)
	}
	return out
}

// Score confidence + 来源权重 + 强度权重 - 信号分钟数(最多扣30)
func Score(sig *model.TradingSignal, now time.Time) float64 {
	age := now.Sub(sig.CreatedAt).Minutes()
	if age < 0 {
		age = 0
	}
	return sig.Confidence + sig.Source.Weight() + sig.Strength.Weight() - math.Min(age, maxAgePenalty)
}

// Sweep 清理过期信号，返回清理数量
func (p *Processor) Sweep() int {
	now := p.clock.Now()
	removed := 0
	for _, s := range p.snapshot() {
		s.mu.Lock()
		kept := s.queue[:0:0]
		for _, sig := range s.queue {
			if sig.Expired(now) {
				removed++
				continue
			}
			kept = append(kept, sig)
		}
		s.queue = kept
		s.mu.Unlock()
	}
	return removed
}

// Run 每分钟清理一次过期信号
func (p *Processor) Run(ctx context.Context) {
	ticker := p.clock.Ticker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.Sweep(); n > 0 {
				logger.Debugf("[SignalProcessor] swept %d expired signals", n)
			}
		}
	}
}
