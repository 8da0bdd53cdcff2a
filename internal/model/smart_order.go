package model

import "time"

type RoutingStyle string

const (
	RouteTWAP       RoutingStyle = "TWAP"
	RouteVWAP       RoutingStyle = "VWAP"
	RouteIceberg    RoutingStyle = "ICEBERG"
	RouteBestLimit  RoutingStyle = "BEST_LIMIT"
	RouteAggressive RoutingStyle = "AGGRESSIVE"
)

func (r RoutingStyle) Valid() bool {
	switch r {
	case RouteTWAP, RouteVWAP, RouteIceberg, RouteBestLimit, RouteAggressive:
		return true
	}
	return false
}

type SmartOrderStatus string

const (
	SmartActive    SmartOrderStatus = "ACTIVE"
	SmartCompleted SmartOrderStatus = "COMPLETED"
	SmartCancelled SmartOrderStatus = "CANCELLED"
	SmartFailed    SmartOrderStatus = "FAILED"
)

func (s SmartOrderStatus) Terminal() bool {
	return s != SmartActive
}

// SmartOrderRequest 智能拆单请求，提交后不可修改
type SmartOrderRequest struct {
	AccountID     string       `json:"accountId" binding:"required"`
	StrategyID    string       `json:"strategyId,omitempty"`
	Symbol        string       `json:"symbol" binding:"required"`
	Side          Side         `json:"side" binding:"required,oneof=BUY SELL"`
	TotalQuantity int64        `json:"totalQuantity" binding:"required,gt=0"`
	Style         RoutingStyle `json:"style" binding:"required,oneof=TWAP VWAP ICEBERG BEST_LIMIT AGGRESSIVE"`

	DurationMinutes       int       `json:"durationMinutes,omitempty"` // TWAP/VWAP
	StartTime             time.Time `json:"startTime,omitempty"`       // 为空则立即开始
	LimitPrice            *float64  `json:"limitPrice,omitempty"`
	DisplayQuantity       int64     `json:"displayQuantity,omitempty"`       // Iceberg，默认 total/10
	PriceTolerancePercent float64   `json:"priceTolerancePercent,omitempty"` // Aggressive，0 表示不限制
	ParticipationRate     float64   `json:"participationRate,omitempty"`     // VWAP，默认 5%
	VolumeProfile         []float64 `json:"volumeProfile,omitempty"`         // VWAP 每个时段的历史成交量
	SpikeGuard            bool      `json:"spikeGuard,omitempty"`
}

// Slice 子单，执行一次后不再复用
type Slice struct {
	Index         int       `json:"index"`
	Quantity      int64     `json:"quantity"`
	ScheduledTime time.Time `json:"scheduledTime"`
	Executed      bool      `json:"executed"`
	Deferred      int       `json:"deferred,omitempty"` // 被价格保护推迟的次数
	ChildOrderID  string    `json:"childOrderId,omitempty"`
	FillPrice     *float64  `json:"fillPrice,omitempty"`
	Error         string    `json:"error,omitempty"`
}

type SmartOrderResult struct {
	ID             string           `json:"id"`
	AccountID      string           `json:"accountId"`
	StrategyID     string           `json:"strategyId,omitempty"`
	Symbol         string           `json:"symbol"`
	Side           Side             `json:"side"`
	Style          RoutingStyle     `json:"style"`
	Status         SmartOrderStatus `json:"status"`
	TotalQuantity  int64            `json:"totalQuantity"`
	FilledQuantity int64            `json:"filledQuantity"`
	AvgFillPrice   float64          `json:"avgFillPrice"`
	BenchmarkPrice float64          `json:"benchmarkPrice,omitempty"`
	SlippageBps    *float64         `json:"slippageBps,omitempty"`
	ChildOrderIDs  []string         `json:"childOrderIds"`
	Slices         []Slice          `json:"slices"`
	Errors         []string         `json:"errors"`
	CreatedAt      time.Time        `json:"createdAt"`
	CompletedAt    *time.Time       `json:"completedAt,omitempty"`
}
