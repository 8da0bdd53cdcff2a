package model

import "time"

type SessionStatus string

const (
	SessionRunning SessionStatus = "RUNNING"
	SessionPaused  SessionStatus = "PAUSED"
	SessionStopped SessionStatus = "STOPPED"
)

// TradingSession 账户自动交易会话
type TradingSession struct {
	ID          string        `json:"id"`
	AccountID   string        `json:"accountId"`
	StrategyIDs []string      `json:"strategyIds"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"startedAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// ExecuteOrderRequest 单笔下单
type ExecuteOrderRequest struct {
	AccountID  string    `json:"accountId" binding:"required"`
	StrategyID string    `json:"strategyId,omitempty"`
	Symbol     string    `json:"symbol" binding:"required"`
	Side       Side      `json:"side" binding:"required,oneof=BUY SELL"`
	Type       OrderType `json:"type" binding:"required,oneof=MARKET LIMIT"`
	Quantity   int64     `json:"quantity" binding:"required,gt=0"`
	Price      float64   `json:"price,omitempty" binding:"gte=0"`
	AutoTrade  bool      `json:"autoTrade,omitempty"`
}

// ExecutionResult 下单结果，拒绝时 Risk 带原因
type ExecutionResult struct {
	Approved       bool             `json:"approved"`
	Risk           *RiskCheckResult `json:"risk,omitempty"`
	OrderID        string           `json:"orderId,omitempty"`
	TradeID        string           `json:"tradeId,omitempty"`
	Symbol         string           `json:"symbol"`
	Side           Side             `json:"side"`
	Quantity       int64            `json:"quantity"`
	FilledQuantity int64            `json:"filledQuantity"`
	Price          float64          `json:"price"`
	Message        string           `json:"message,omitempty"`
}

type SplitOrderRequest struct {
	AccountID     string        `json:"accountId" binding:"required"`
	Symbol        string        `json:"symbol" binding:"required"`
	Side          Side          `json:"side" binding:"required,oneof=BUY SELL"`
	Type          OrderType     `json:"type" binding:"required,oneof=MARKET LIMIT"`
	TotalQuantity int64         `json:"totalQuantity" binding:"required,gt=0"`
	Splits        int           `json:"splits" binding:"required,gt=0"`
	Price         float64       `json:"price,omitempty" binding:"gte=0"`
	Delay         time.Duration `json:"delay,omitempty"` // 为0使用默认间隔
}

type SplitOrderResult struct {
	Status         SmartOrderStatus   `json:"status"` // COMPLETED / FAILED，部分成功也是 COMPLETED
	OrderIDs       []string           `json:"orderIds"`
	Legs           []*ExecutionResult `json:"legs"`
	FilledQuantity int64              `json:"filledQuantity"`
	Errors         []string           `json:"errors"`
}

type ScheduledOrderStatus string

const (
	ScheduledPending   ScheduledOrderStatus = "PENDING"
	ScheduledExecuted  ScheduledOrderStatus = "EXECUTED"
	ScheduledCancelled ScheduledOrderStatus = "CANCELLED"
	ScheduledExpired   ScheduledOrderStatus = "EXPIRED"
	ScheduledFailed    ScheduledOrderStatus = "FAILED"
)

type ScheduledOrderRequest struct {
	AccountID  string    `json:"accountId" binding:"required"`
	Symbol     string    `json:"symbol" binding:"required"`
	Side       Side      `json:"side" binding:"required,oneof=BUY SELL"`
	Type       OrderType `json:"type" binding:"required,oneof=MARKET LIMIT"`
	Quantity   int64     `json:"quantity" binding:"required,gt=0"`
	Price      float64   `json:"price,omitempty" binding:"gte=0"`
	ExecuteAt  time.Time `json:"executeAt" binding:"required"`
	ValidUntil time.Time `json:"validUntil,omitempty"` // 为空则 executeAt 当天收盘
}

type ScheduledOrder struct {
	ID         string               `json:"id"`
	AccountID  string               `json:"accountId"`
	Symbol     string               `json:"symbol"`
	Side       Side                 `json:"side"`
	Type       OrderType            `json:"type"`
	Quantity   int64                `json:"quantity"`
	Price      float64              `json:"price,omitempty"`
	ExecuteAt  time.Time            `json:"executeAt"`
	ValidUntil time.Time            `json:"validUntil"`
	Status     ScheduledOrderStatus `json:"status"`
	OrderID    string               `json:"orderId,omitempty"`
	Error      string               `json:"error,omitempty"`
	CreatedAt  time.Time            `json:"createdAt"`
}
