package execution

import (
	"edgetrade/internal/model"
	"time"
)

const (
	DefaultMaxSlices         = 60
	DefaultParticipationRate = 0.05
	// 冰山单默认每次展示总量的 1/10
	icebergDisplayDivisor = 10
)

// PlanTWAP 按时间等分，N = min(分钟数, 60)，余数放到最后一片
func PlanTWAP(total int64, minutes int, start time.Time) []model.Slice {
	return planTWAP(total, minutes, start, DefaultMaxSlices)
}

func sliceCount(total int64, minutes, maxSlices int) int {
	if maxSlices <= 0 {
		maxSlices = DefaultMaxSlices
	}
	n := min(max(minutes, 1), maxSlices)
	// 数量少于片数时每片至少 1 股
	if int64(n) > total {
		n = int(max(total, 1))
	}
	return n
}

func spacing(minutes, n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(max(minutes, 1)) * time.Minute / time.Duration(n)
}

func planTWAP(total int64, minutes int, start time.Time, maxSlices int) []model.Slice {
	n := sliceCount(total, minutes, maxSlices)
	step := spacing(minutes, n)
	base := total / int64(n)
	slices := make([]model.Slice, n)
	for i := range slices {
		slices[i] = model.Slice{Index: i, Quantity: base, ScheduledTime: start.Add(time.Duration(i) * step)}
	}
	slices[n-1].Quantity += total - base*int64(n)
	return slices
}

// PlanVWAP 片数和间隔同 TWAP，每片数量按历史成交量分布(相对均值)加权，
// 再按参与率相对默认 5% 缩放，剩余数量全部追加到最后一片
func PlanVWAP(total int64, minutes int, start time.Time, profile []float64, participation float64) []model.Slice {
	return planVWAP(total, minutes, start, profile, participation, DefaultMaxSlices)
}

func planVWAP(total int64, minutes int, start time.Time, profile []float64, participation float64, maxSlices int) []model.Slice {
	if participation <= 0 {
		participation = DefaultParticipationRate
	}
	n := sliceCount(total, minutes, maxSlices)
	step := spacing(minutes, n)
	weights := normalizeProfile(profile, n)
	base := float64(total) / float64(n)
	scale := participation / DefaultParticipationRate

	qty := make([]int64, n)
	remaining := total
	for i := range qty {
		q := int64(base * weights[i] * scale)
		q = min(max(q, 0), remaining)
		remaining -= q
		qty[i] = q
	}
	qty[n-1] += remaining

	// 空档位和提前耗尽后的零数量分片不下发
	slices := make([]model.Slice, 0, n)
	for i, q := range qty {
		if q <= 0 {
			continue
		}
		slices = append(slices, model.Slice{Index: len(slices), Quantity: q, ScheduledTime: start.Add(time.Duration(i) * step)})
	}
	return slices
}

// normalizeProfile 把成交量分布重采样到 n 段并除以均值，没有分布时全部为 1
func normalizeProfile(profile []float64, n int) []float64 {
	weights := make([]float64, n)
	sum := 0.0
	for i := range weights {
		if len(profile) == 0 {
			weights[i] = 1
		} else {
			weights[i] = max(profile[i*len(profile)/n], 0)
		}
		sum += weights[i]
	}
	if sum <= 0 {
		for i := range weights {
			weights[i] = 1
		}
		return weights
	}
	mean := sum / float64(n)
	for i := range weights {
		weights[i] /= mean
	}
	return weights
}

// planIceberg 按展示数量切块，最后一块取余数；时间只是预估，实际由上一块提交后延迟触发
func planIceberg(total, display int64, start time.Time, settle time.Duration) []model.Slice {
	if display <= 0 {
		display = max(total/icebergDisplayDivisor, 1)
	}
	display = min(display, total)
	var slices []model.Slice
	for left, i := total, 0; left > 0; i++ {
		qty := min(display, left)
		slices = append(slices, model.Slice{Index: i, Quantity: qty, ScheduledTime: start.Add(time.Duration(i) * settle)})
		left -= qty
	}
	return slices
}
