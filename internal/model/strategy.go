package model

import "time"

type StrategyPriority string

const (
	PriorityHigh   StrategyPriority = "HIGH"
	PriorityMedium StrategyPriority = "MEDIUM"
	PriorityLow    StrategyPriority = "LOW"
)

// Weight HIGH=3 MEDIUM=2 LOW=1，未知按 MEDIUM
func (p StrategyPriority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityLow:
		return 1
	default:
		return 2
	}
}

func (p StrategyPriority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

type StrategyStatus string

const (
	StrategyRunning StrategyStatus = "RUNNING"
	StrategyPaused  StrategyStatus = "PAUSED"
	StrategyStopped StrategyStatus = "STOPPED"
	StrategyError   StrategyStatus = "ERROR"
)

type StrategyInstance struct {
	ID                       string           `json:"id"`
	AccountID                string           `json:"accountId"`
	Name                     string           `json:"name"`
	Priority                 StrategyPriority `json:"priority"`
	Status                   StrategyStatus   `json:"status"`
	CapitalAllocationPercent float64          `json:"capitalAllocationPercent"` // 0 表示不限制
	DailyPnL                 float64          `json:"dailyPnl"`
	TotalPnL                 float64          `json:"totalPnl"`
	TradeCount               int              `json:"tradeCount"`
	WinRate                  float64          `json:"winRate"` // 0-1
	LastError                string           `json:"lastError,omitempty"`
	UpdatedAt                time.Time        `json:"updatedAt"`
}

// OrderIntent 编排器放行的下单意图
type OrderIntent struct {
	Signal         *TradingSignal `json:"signal"`
	StrategyID     string         `json:"strategyId"`
	EstimatedValue float64        `json:"estimatedValue"`
}

type TradeSource string

const (
	TradeAuto        TradeSource = "AUTO"
	TradeManual      TradeSource = "MANUAL"
	TradeSplit       TradeSource = "SPLIT"
	TradeScheduled   TradeSource = "SCHEDULED"
	TradeSmart       TradeSource = "SMART"
	TradeLiquidation TradeSource = "LIQUIDATION"
)

// TradeCompleted 成交事件
type TradeCompleted struct {
	TradeID     string      `json:"tradeId"`
	AccountID   string      `json:"accountId"`
	StrategyID  string      `json:"strategyId,omitempty"`
	OrderID     string      `json:"orderId"`
	Symbol      string      `json:"symbol"`
	Side        Side        `json:"side"`
	Quantity    int64       `json:"quantity"`
	Price       float64     `json:"price"`
	Amount      float64     `json:"amount"`
	RealizedPnL *float64    `json:"realizedPnl,omitempty"`
	Source      TradeSource `json:"source"`
	At          time.Time   `json:"at"`
}
