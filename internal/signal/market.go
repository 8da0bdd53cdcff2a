package signal

import (
	"edgetrade/internal/consts"
	"edgetrade/internal/model"
	"math"
	"time"
)

// DetectPriceSpike 与约60秒前的价格比较，涨跌幅绝对值 >= 3% 触发；价格历史保留5分钟
func (p *Processor) DetectPriceSpike(tick model.Tick) (*model.PriceSpike, bool) {
	if tick.Price <= 0 {
		return nil, false
	}
	at := p.tickTime(tick)
	s := p.state(tick.Symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	return detectSpike(s, tick, at)
}

func detectSpike(s *symbolState, tick model.Tick, at time.Time) (*model.PriceSpike, bool) {
	cutoff := at.Add(-spikeWindow)
	i := 0
	for i < len(s.prices) && s.prices[i].at.Before(cutoff) {
		i++
	}
	s.prices = append(s.prices[:0:0], s.prices[i:]...)

	// 参考价：回看窗口内最早的一个点
	var ref *pricePoint
	lookback := at.Add(-spikeLookback)
	for j := range s.prices {
		if !s.prices[j].at.Before(lookback) {
			ref = &s.prices[j]
			break
		}
	}
	s.prices = append(s.prices, pricePoint{price: tick.Price, at: at})

	if ref == nil || ref.price <= 0 {
		return nil, false
	}
	change := (tick.Price - ref.price) / ref.price * 100
	if math.Abs(change) < spikeThresholdPercent {
		return nil, false
	}
	return &model.PriceSpike{
		Symbol:         tick.Symbol,
		ReferencePrice: ref.price,
		Price:          tick.Price,
		ChangePercent:  change,
		Timestamp:      at,
	}, true
}

// DetectLargeVolume 当前成交量 >= 最近100个样本均值的3倍触发，至少10个样本后才判断
func (p *Processor) DetectLargeVolume(tick model.Tick) (*model.VolumeSurge, bool) {
	if tick.Volume <= 0 {
		return nil, false
	}
	at := p.tickTime(tick)
	s := p.state(tick.Symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	return detectVolume(s, tick, at)
}

func detectVolume(s *symbolState, tick model.Tick, at time.Time) (*model.VolumeSurge, bool) {
	var surge *model.VolumeSurge
	if len(s.volumes) >= volumeWarmup {
		sum := 0.0
		for _, v := range s.volumes {
			sum += v
		}
		avg := sum / float64(len(s.volumes))
		if avg > 0 && tick.Volume/avg >= volumeSurgeRatio {
			surge = &model.VolumeSurge{
				Symbol:        tick.Symbol,
				Volume:        tick.Volume,
				AverageVolume: avg,
				Ratio:         tick.Volume / avg,
				Timestamp:     at,
			}
		}
	}
	s.volumes = append(s.volumes, tick.Volume)
	if len(s.volumes) > volumeHistorySize {
		s.volumes = append(s.volumes[:0:0], s.volumes[len(s.volumes)-volumeHistorySize:]...)
	}
	return surge, surge != nil
}

// OnTick 行情入口：记录最新价，检测异动并广播
func (p *Processor) OnTick(tick model.Tick) {
	if tick.Symbol == "" {
		return
	}
	at := p.tickTime(tick)
	tick.Timestamp = at
	s := p.state(tick.Symbol)

	s.mu.Lock()
	last := tick
	s.last = &last
	var spike *model.PriceSpike
	var surge *model.VolumeSurge
	if tick.Price > 0 {
		spike, _ = detectSpike(s, tick, at)
	}
	if tick.Volume > 0 {
		surge, _ = detectVolume(s, tick, at)
	}
	s.mu.Unlock()

	if p.pub == nil {
		return
	}
	if spike != nil {
		p.pub.Publish(consts.TopicPriceSpike, tick.Symbol, spike)
	}
	if surge != nil {
		p.pub.Publish(consts.TopicLargeVolume, tick.Symbol, surge)
	}
}

// LastTick 最新行情
func (p *Processor) LastTick(symbol string) (model.Tick, bool) {
	p.mu.RLock()
	s, ok := p.symbols[symbol]
	p.mu.RUnlock()
	if !ok {
		return model.Tick{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return model.Tick{}, false
	}
	return *s.last, true
}

func (p *Processor) tickTime(tick model.Tick) time.Time {
	if tick.Timestamp.IsZero() {
		return p.clock.Now()
	}
	return tick.Timestamp
}
