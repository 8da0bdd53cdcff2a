package utils

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Retry 尝试执行 fn，如果失败则重试，最多 retries 次
// delay 是两次重试之间的间隔，backoff=true 表示指数退避；ctx 取消时立即返回
func Retry(ctx context.Context, retries int, delay time.Duration, backoff bool, fn func() error) error {
	if retries <= 0 {
		retries = 1
	}
	var err error
	for i := 0; i < retries; i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if i < retries-1 { // 最后一次就不用 sleep 了
			sleep := delay
			if backoff {
				sleep = delay * time.Duration(1<<i) // 1x,2x,4x,8x...
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry aborted after %d attempts: %w", i+1, ctx.Err())
			case <-time.After(sleep):
			}
		}
	}
	return fmt.Errorf("after %d attempts, last error: %w", retries, err)
}

// FloorQty 数量向下取整，负数和非法值返回0
func FloorQty(v float64) int64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int64(math.Floor(v))
}

// Round 保留两位小数
func Round(val float64) float64 {
	return math.Round(val*100) / 100
}

// StartOfDay 给定时区下当天零点
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// ParseClock 解析 "15:04" 格式，返回当天对应时刻
func ParseClock(day time.Time, hhmm string) (time.Time, error) {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, day.Location()), nil
}
