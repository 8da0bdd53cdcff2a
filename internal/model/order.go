package model

import "time"

type OrderType string

const (
	// 市价
	Market OrderType = "MARKET"
	// 限价
	Limit OrderType = "LIMIT"
)

// OrderRequest 发往券商的下单请求
type OrderRequest struct {
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Type     OrderType `json:"type"`
	Quantity int64     `json:"quantity"`
	Price    float64   `json:"price,omitempty"` // 市价单为0
}

type PlaceStatus string

const (
	PlaceSuccess PlaceStatus = "SUCCESS"
	PlaceFailed  PlaceStatus = "FAILED"
)

type OrderResponse struct {
	OrderID string      `json:"orderId"`
	Status  PlaceStatus `json:"status"`
	Message string      `json:"message"`
}

func (r *OrderResponse) OK() bool {
	return r != nil && r.Status == PlaceSuccess
}

type Quote struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	ChangeRate float64   `json:"changeRate"` // 当日涨跌幅(%)
	Volume     float64   `json:"volume"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Timestamp  time.Time `json:"timestamp"`
}

type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// Orderbook 买盘按价格降序，卖盘按价格升序
type Orderbook struct {
	Symbol       string       `json:"symbol"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
	CurrentPrice float64      `json:"currentPrice"`
}

func (o *Orderbook) BestBid() (float64, bool) {
	if len(o.Bids) == 0 {
		return 0, false
	}
	return o.Bids[0].Price, true
}

func (o *Orderbook) BestAsk() (float64, bool) {
	if len(o.Asks) == 0 {
		return 0, false
	}
	return o.Asks[0].Price, true
}

type Holding struct {
	Symbol           string  `json:"symbol"`
	Quantity         int64   `json:"quantity"`
	AvgPrice         float64 `json:"avgPrice"`
	CurrentPrice     float64 `json:"currentPrice"`
	EvaluationAmount float64 `json:"evaluationAmount"`
	ProfitLoss       float64 `json:"profitLoss"`
}

// PyramidResult 金字塔加仓建议
type PyramidResult struct {
	Symbol       string  `json:"symbol"`
	Quantity     int64   `json:"quantity"`
	AvgPrice     float64 `json:"avgPrice"`
	CurrentPrice float64 `json:"currentPrice"`
	AddQuantity  int64   `json:"addQuantity"`
}

type Balance struct {
	CashBalance     float64 `json:"cashBalance"`
	TotalEvaluation float64 `json:"totalEvaluation"` // 现金 + 持仓市值
	PurchaseAmount  float64 `json:"purchaseAmount"`
	ProfitLoss      float64 `json:"profitLoss"`
}

type OrderState string

const (
	OrderPending   OrderState = "PENDING"
	OrderSubmitted OrderState = "SUBMITTED"
	OrderPartial   OrderState = "PARTIAL"
	OrderFilled    OrderState = "FILLED"
	OrderCancelled OrderState = "CANCELLED"
	OrderRejected  OrderState = "REJECTED"
)

// Open 仍在券商挂着，可以撤单或改单
func (s OrderState) Open() bool {
	return s == OrderPending || s == OrderSubmitted || s == OrderPartial
}

// OrderStatus 券商侧订单状态
type OrderStatus struct {
	OrderID        string     `json:"orderId"`
	Symbol         string     `json:"symbol"`
	Side           Side       `json:"side"`
	Type           OrderType  `json:"type"`
	Quantity       int64      `json:"quantity"`
	FilledQuantity int64      `json:"filledQuantity"`
	Price          float64    `json:"price"`
	AvgFillPrice   float64    `json:"avgFillPrice"`
	State          OrderState `json:"state"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (s *OrderStatus) Remaining() int64 {
	if r := s.Quantity - s.FilledQuantity; r > 0 {
		return r
	}
	return 0
}

// Candle K线，用于 ATR 计算
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}
