package position

import (
	"edgetrade/internal/model"
	"edgetrade/pkg/utils"
	"math"
	"sort"

	talib "github.com/markcheno/go-talib"
)

const (
	// Kelly 结果只取四分之一
	KellyFraction = 0.25
	// 止损距离 = ATR * 2
	ATRMultiplier = 2.0
	ATRPeriod     = 14
	// 加仓数量为当前持仓的一半
	PyramidRatio = 0.5
)

type Method string

const (
	MethodKelly       Method = "KELLY"
	MethodATR         Method = "ATR"
	MethodStopLoss    Method = "STOP_LOSS"
	MethodMaxPosition Method = "MAX_POSITION"
	MethodCash        Method = "CASH"
)

type SizeRequest struct {
	Symbol        string         `json:"symbol"`
	Equity        float64        `json:"equity"`
	AvailableCash float64        `json:"availableCash"`
	EntryPrice    float64        `json:"entryPrice"`
	StopLoss      *float64       `json:"stopLoss,omitempty"`
	ATR           float64        `json:"atr,omitempty"`
	Candles       []model.Candle `json:"candles,omitempty"`
	// 胜率 0~1，以及平均盈利/亏损金额
	WinRate float64 `json:"winRate,omitempty"`
	AvgWin  float64 `json:"avgWin,omitempty"`
	AvgLoss float64 `json:"avgLoss,omitempty"`
	// 为0时使用 Sizer 的默认值
	MaxRiskPercent     float64 `json:"maxRiskPercent,omitempty"`
	MaxPositionPercent float64 `json:"maxPositionPercent,omitempty"`
}

type Candidate struct {
	Method   Method `json:"method"`
	Quantity int64  `json:"quantity"`
}

type SizeResult struct {
	Symbol        string      `json:"symbol"`
	Quantity      int64       `json:"quantity"`
	Method        Method      `json:"method,omitempty"`
	PositionValue float64     `json:"positionValue"`
	RiskAmount    float64     `json:"riskAmount"`
	Candidates    []Candidate `json:"candidates"`
	Note          string      `json:"note,omitempty"`
}

// Sizer 无状态，所有方法都是纯计算
type Sizer struct {
	maxRiskPercent     float64
	maxPositionPercent float64
}

func NewSizer(maxRiskPercent, maxPositionPercent float64) *Sizer {
	if maxRiskPercent <= 0 {
		maxRiskPercent = 2
	}
	if maxPositionPercent <= 0 {
		maxPositionPercent = 20
	}
	return &Sizer{maxRiskPercent: maxRiskPercent, maxPositionPercent: maxPositionPercent}
}

// CalculateOptimalSize 计算各方法的候选数量，取最小的正数
func (s *Sizer) CalculateOptimalSize(req SizeRequest) SizeResult {
	res := SizeResult{Symbol: req.Symbol, Candidates: []Candidate{}}
	if req.EntryPrice <= 0 {
		res.Note = "entry price must be positive"
		return res
	}
	riskPct := req.MaxRiskPercent
	if riskPct <= 0 {
		riskPct = s.maxRiskPercent
	}
	posPct := req.MaxPositionPercent
	if posPct <= 0 {
		posPct = s.maxPositionPercent
	}
	riskBudget := req.Equity * riskPct / 100

	add := func(m Method, qty int64) {
		res.Candidates = append(res.Candidates, Candidate{Method: m, Quantity: qty})
	}

	if f := Kelly(req.WinRate, req.AvgWin, req.AvgLoss); f > 0 {
		add(MethodKelly, utils.FloorQty(req.Equity*f*KellyFraction/req.EntryPrice))
	}
	if atr := ATR(req.Candles, ATRPeriod, req.ATR); atr > 0 {
		add(MethodATR, utils.FloorQty(riskBudget/(atr*ATRMultiplier)))
	}
	if req.StopLoss != nil {
		if dist := math.Abs(req.EntryPrice - *req.StopLoss); dist > 0 {
			add(MethodStopLoss, utils.FloorQty(riskBudget/dist))
		}
	}
	add(MethodMaxPosition, utils.FloorQty(req.Equity*posPct/100/req.EntryPrice))
	add(MethodCash, utils.FloorQty(req.AvailableCash/req.EntryPrice))

	for _, c := range res.Candidates {
		if c.Quantity <= 0 {
			continue
		}
		if res.Quantity == 0 || c.Quantity < res.Quantity {
			res.Quantity = c.Quantity
			res.Method = c.Method
		}
	}
	if res.Quantity == 0 {
		res.Note = "insufficient funds"
		return res
	}
	res.PositionValue = utils.Round(float64(res.Quantity) * req.EntryPrice)
	res.RiskAmount = utils.Round(riskBudget)
	return res
}

// Kelly f* = (b*p - q) / b，截断到 [0,1]
func Kelly(winRate, avgWin, avgLoss float64) float64 {
	if winRate <= 0 || avgWin <= 0 || avgLoss <= 0 {
		return 0
	}
	b := avgWin / avgLoss
	f := (b*winRate - (1 - winRate)) / b
	return math.Max(0, math.Min(1, f))
}

// ATR K线足够时用 talib 计算最近一根的值，否则返回 fallback
func ATR(candles []model.Candle, period int, fallback float64) float64 {
	if len(candles) <= period {
		return fallback
	}
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
	}
	out := talib.Atr(highs, lows, closes, period)
	if v := out[len(out)-1]; v > 0 && !math.IsNaN(v) {
		return v
	}
	return fallback
}

type AssetRisk struct {
	Symbol  string         `json:"symbol"`
	Price   float64        `json:"price"`
	ATR     float64        `json:"atr,omitempty"`
	Candles []model.Candle `json:"candles,omitempty"`
}

type Allocation struct {
	Symbol     string  `json:"symbol"`
	Weight     float64 `json:"weight"`
	Capital    float64 `json:"capital"`
	Quantity   int64   `json:"quantity"`
	Volatility float64 `json:"volatility"`
}

// CalculateRiskParity 按波动率倒数分配资金，波动率 = ATR / 价格。
// 价格或 ATR 无效的标的不参与分配
func (s *Sizer) CalculateRiskParity(capital float64, assets []AssetRisk) []Allocation {
	type inv struct {
		asset AssetRisk
		vol   float64
	}
	var valid []inv
	total := 0.0
	for _, a := range assets {
		atr := ATR(a.Candles, ATRPeriod, a.ATR)
		if a.Price <= 0 || atr <= 0 {
			continue
		}
		vol := atr / a.Price
		valid = append(valid, inv{asset: a, vol: vol})
		total += 1 / vol
	}
	out := make([]Allocation, 0, len(valid))
	for _, v := range valid {
		w := (1 / v.vol) / total
		c := capital * w
		out = append(out, Allocation{
			Symbol:     v.asset.Symbol,
			Weight:     w,
			Capital:    utils.Round(c),
			Quantity:   utils.FloorQty(c / v.asset.Price),
			Volatility: v.vol,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out
}

// CalculatePyramidSize 只有浮盈时才允许加仓，数量为当前持仓的一半
func (s *Sizer) CalculatePyramidSize(h model.Holding, newPrice float64) int64 {
	if h.Quantity <= 0 || h.AvgPrice <= 0 || newPrice <= h.AvgPrice {
		return 0
	}
	return utils.FloorQty(float64(h.Quantity) * PyramidRatio)
}
