package signal

import (
	"edgetrade/internal/consts"
	"edgetrade/internal/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectPriceSpike(t *testing.T) {
	p, clk, _ := newTestProcessor()
	t0 := clk.Now()

	_, fired := p.DetectPriceSpike(model.Tick{Symbol: "005930", Price: 10_000, Timestamp: t0})
	assert.False(t, fired, "no reference yet")

	_, fired = p.DetectPriceSpike(model.Tick{Symbol: "005930", Price: 10_290, Timestamp: t0.Add(30 * time.Second)})
	assert.False(t, fired, "2.9% is below threshold")

	spike, fired := p.DetectPriceSpike(model.Tick{Symbol: "005930", Price: 10_310, Timestamp: t0.Add(55 * time.Second)})
	require.True(t, fired)
	assert.Equal(t, 10_000.0, spike.ReferencePrice)
	assert.InDelta(t, 3.1, spike.ChangePercent, 1e-9)

	// 超过60秒后参考价前移到 30 秒那个点
	_, fired = p.DetectPriceSpike(model.Tick{Symbol: "005930", Price: 10_500, Timestamp: t0.Add(85 * time.Second)})
	assert.False(t, fired)
}

func TestDetectPriceSpike_Drop(t *testing.T) {
	p, clk, _ := newTestProcessor()
	t0 := clk.Now()
	p.DetectPriceSpike(model.Tick{Symbol: "000660", Price: 100_000, Timestamp: t0})
	spike, fired := p.DetectPriceSpike(model.Tick{Symbol: "000660", Price: 96_000, Timestamp: t0.Add(40 * time.Second)})
	require.True(t, fired)
	assert.InDelta(t, -4.0, spike.ChangePercent, 1e-9)
}

func TestDetectLargeVolume_WarmUp(t *testing.T) {
	p, _, _ := newTestProcessor()

	for i := 0; i < volumeWarmup-1; i++ {
		_, fired := p.DetectLargeVolume(model.Tick{Symbol: "005930", Volume: 100})
		assert.False(t, fired)
	}
	_, fired := p.DetectLargeVolume(model.Tick{Symbol: "005930", Volume: 1000})
	assert.False(t, fired, "only 9 samples before this tick")

	surge, fired := p.DetectLargeVolume(model.Tick{Symbol: "005930", Volume: 600})
	require.True(t, fired)
	assert.InDelta(t, 190.0, surge.AverageVolume, 1e-9)
	assert.InDelta(t, 600.0/190.0, surge.Ratio, 1e-9)
}

func TestDetectLargeVolume_RollingWindow(t *testing.T) {
	p, _, _ := newTestProcessor()
	for i := 0; i < 150; i++ {
		p.DetectLargeVolume(model.Tick{Symbol: "005930", Volume: 100})
	}
	s := p.state("005930")
	assert.Len(t, s.volumes, volumeHistorySize)

	_, fired := p.DetectLargeVolume(model.Tick{Symbol: "005930", Volume: 299})
	assert.False(t, fired)
	_, fired = p.DetectLargeVolume(model.Tick{Symbol: "005930", Volume: 400})
	assert.True(t, fired)
}

func TestOnTick_PublishesEvents(t *testing.T) {
	p, clk, pub := newTestProcessor()
	for i := 0; i < volumeWarmup; i++ {
		p.OnTick(model.Tick{Symbol: "005930", Price: 10_000, Volume: 100})
	}
	clk.Add(30 * time.Second)
	p.OnTick(model.Tick{Symbol: "005930", Price: 10_400, Volume: 500})

	assert.Equal(t, 1, pub.count(consts.TopicPriceSpike))
	assert.Equal(t, 1, pub.count(consts.TopicLargeVolume))

	last, ok := p.LastTick("005930")
	require.True(t, ok)
	assert.Equal(t, 10_400.0, last.Price)
	assert.Equal(t, clk.Now(), last.Timestamp)
}
