package model

import "time"

// RiskLimits 账户风控限额
type RiskLimits struct {
	DailyMaxLoss        float64 `json:"dailyMaxLoss"`
	DailyMaxLossPercent float64 `json:"dailyMaxLossPercent"` // 相对总资产
	MaxPositionPercent  float64 `json:"maxPositionPercent"`
	MaxDailyTrades      int     `json:"maxDailyTrades"`
	MaxOrderValue       float64 `json:"maxOrderValue"`
}

// OrderCheck 下单前风控检查的输入
type OrderCheck struct {
	AccountID  string  `json:"accountId"`
	StrategyID string  `json:"strategyId,omitempty"`
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Quantity   int64   `json:"quantity"`
	Price      float64 `json:"price"`
	AutoTrade  bool    `json:"autoTrade"`
}

func (c OrderCheck) OrderValue() float64 {
	return float64(c.Quantity) * c.Price
}

// RiskCheckResult 每次检查重新计算，不持久化
type RiskCheckResult struct {
	Approved          bool     `json:"approved"`
	Warnings          []string `json:"warnings"`
	Errors            []string `json:"errors"`
	RiskScore         int      `json:"riskScore"` // 0-100
	SuggestedQuantity *int64   `json:"suggestedQuantity,omitempty"`
}

type RiskStatus struct {
	AccountID              string        `json:"accountId"`
	Limits                 RiskLimits    `json:"limits"`
	DailyPnL               float64       `json:"dailyPnl"`
	DailyLossLimit         float64       `json:"dailyLossLimit"`
	DailyLossUsedPercent   float64       `json:"dailyLossUsedPercent"`
	TradeCount             int           `json:"tradeCount"`
	RemainingTrades        int           `json:"remainingTrades"`
	TotalEvaluation        float64       `json:"totalEvaluation"`
	LargestPositionSymbol  string        `json:"largestPositionSymbol,omitempty"`
	LargestPositionPercent float64       `json:"largestPositionPercent"`
	CircuitBreaker         BreakerStatus `json:"circuitBreaker"`
	UpdatedAt              time.Time     `json:"updatedAt"`
}

type LiquidationResult struct {
	AccountID           string   `json:"accountId"`
	LiquidatedPositions int      `json:"liquidatedPositions"`
	TotalAmount         float64  `json:"totalAmount"`
	TradeIDs            []string `json:"tradeIds"`
	Errors              []string `json:"errors"`
}
