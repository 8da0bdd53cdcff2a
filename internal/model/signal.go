package model

import "time"

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite 反方向
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type SignalSource string

const (
	SourceIndicator SignalSource = "INDICATOR"
	SourceAI        SignalSource = "AI"
	SourceCondition SignalSource = "CONDITION"
	SourceScheduled SignalSource = "SCHEDULED"
	SourceManual    SignalSource = "MANUAL"
)

var sourceWeights = map[SignalSource]float64{
	SourceManual:    25,
	SourceAI:        20,
	SourceIndicator: 15,
	SourceCondition: 10,
	SourceScheduled: 5,
}

// Weight 信号来源加权分，未知来源为0
func (s SignalSource) Weight() float64 {
	return sourceWeights[s]
}

func (s SignalSource) Valid() bool {
	_, ok := sourceWeights[s]
	return ok
}

type SignalStrength string

const (
	StrengthWeak     SignalStrength = "WEAK"
	StrengthModerate SignalStrength = "MODERATE"
	StrengthStrong   SignalStrength = "STRONG"
)

var strengthWeights = map[SignalStrength]float64{
	StrengthStrong:   15,
	StrengthModerate: 10,
	StrengthWeak:     5,
}

func (s SignalStrength) Weight() float64 {
	return strengthWeights[s]
}

func (s SignalStrength) Valid() bool {
	_, ok := strengthWeights[s]
	return ok
}

// TradingSignal 交易信号，创建后不再修改
type TradingSignal struct {
	ID          string         `json:"id"`
	AccountID   string         `json:"accountId"`
	StrategyID  string         `json:"strategyId,omitempty"`
	Symbol      string         `json:"symbol"`
	Side        Side           `json:"side"`
	Source      SignalSource   `json:"source"`
	Strength    SignalStrength `json:"strength"`
	Confidence  float64        `json:"confidence"` // 0-100
	Price       float64        `json:"price"`
	TargetPrice *float64       `json:"targetPrice,omitempty"`
	StopLoss    *float64       `json:"stopLoss,omitempty"`
	Quantity    int64          `json:"quantity,omitempty"` // 0 表示由仓位计算决定
	Reason      string         `json:"reason,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	ExpiresAt   time.Time      `json:"expiresAt"`
}

func (s *TradingSignal) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Key 同一标的同一方向只保留一个信号
func (s *TradingSignal) Key() string {
	return s.Symbol + ":" + string(s.Side)
}

// Tick 实时行情
type Tick struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	Volume     float64   `json:"volume"`
	ChangeRate float64   `json:"changeRate"`
	Timestamp  time.Time `json:"timestamp"`
}

// PriceSpike 短时间价格剧烈波动
type PriceSpike struct {
	Symbol         string    `json:"symbol"`
	ReferencePrice float64   `json:"referencePrice"`
	Price          float64   `json:"price"`
	ChangePercent  float64   `json:"changePercent"`
	Timestamp      time.Time `json:"timestamp"`
}

// VolumeSurge 成交量异常放大
type VolumeSurge struct {
	Symbol        string    `json:"symbol"`
	Volume        float64   `json:"volume"`
	AverageVolume float64   `json:"averageVolume"`
	Ratio         float64   `json:"ratio"`
	Timestamp     time.Time `json:"timestamp"`
}
