package exchange

import (
	"context"
	"edgetrade/internal/model"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// 券商接口名，用于故障注入和调用计数
const (
	OpQuote     = "quote"
	OpOrderbook = "orderbook"
	OpPlace     = "place"
	OpCancel    = "cancel"
	OpModify    = "modify"
	OpHoldings  = "holdings"
	OpBalance   = "balance"
	OpOpen      = "open_orders"
	OpStatus    = "order_status"
)

// 模拟券商：市价单按当前价立即成交，限价单可成交则成交，否则挂单等待价格变化
type SimulatedBroker struct {
	mu       sync.Mutex
	cash     float64
	holdings map[string]*model.Holding
	orders   map[string]*model.OrderStatus
	quotes   map[string]*model.Quote
	books    map[string]*model.Orderbook
	failures map[string]error // op 或 op:symbol -> 注入的错误
	calls    map[string]int
	now      func() time.Time
}

func NewSimulatedBroker(cash float64) *SimulatedBroker {
	return &SimulatedBroker{
		cash:     cash,
		holdings: make(map[string]*model.Holding),
		orders:   make(map[string]*model.OrderStatus),
		quotes:   make(map[string]*model.Quote),
		books:    make(map[string]*model.Orderbook),
		failures: make(map[string]error),
		calls:    make(map[string]int),
		now:      time.Now,
	}
}

// SetPrice 设置最新价，同时撮合可成交的挂单
func (s *SimulatedBroker) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotes[symbol]
	if !ok {
		q = &model.Quote{Symbol: symbol, Open: price, High: price, Low: price}
		s.quotes[symbol] = q
	}
	q.Price = price
	if price > q.High {
		q.High = price
	}
	if price < q.Low {
		q.Low = price
	}
	if q.Open > 0 {
		q.ChangeRate = (price - q.Open) / q.Open * 100
	}
	q.Timestamp = s.now()
	for _, o := range s.orders {
		if o.Symbol == symbol && o.State.Open() {
			s.tryFill(o)
		}
	}
}

// SetChangeRate 直接设置当日涨跌幅
func (s *SimulatedBroker) SetChangeRate(symbol string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.quotes[symbol]; ok {
		q.ChangeRate = rate
	}
}

// SetOrderbook 设置盘口，未设置时按最新价生成
func (s *SimulatedBroker) SetOrderbook(book model.Orderbook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := book
	cp.Bids = append([]model.PriceLevel(nil), book.Bids...)
	cp.Asks = append([]model.PriceLevel(nil), book.Asks...)
	s.books[book.Symbol] = &cp
}

// SetHolding 直接设置持仓
func (s *SimulatedBroker) SetHolding(symbol string, quantity int64, avgPrice float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if quantity <= 0 {
		delete(s.holdings, symbol)
		return
	}
	s.holdings[symbol] = &model.Holding{Symbol: symbol, Quantity: quantity, AvgPrice: avgPrice}
}

// Fail 注入故障，symbol 为空表示对该接口所有调用生效，err 为 nil 清除
func (s *SimulatedBroker) Fail(op, symbol string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := op
	if symbol != "" {
		key = op + ":" + symbol
	}
	if err == nil {
		delete(s.failures, key)
		return
	}
	s.failures[key] = err
}

// Calls 某个接口的调用次数
func (s *SimulatedBroker) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *SimulatedBroker) enter(op, symbol string) error {
	s.calls[op]++
	if err, ok := s.failures[op+":"+symbol]; ok && symbol != "" {
		return err
	}
	if err, ok := s.failures[op]; ok {
		return err
	}
	return nil
}

func (s *SimulatedBroker) GetQuote(_ context.Context, symbol string) (*model.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpQuote, symbol); err != nil {
		return nil, err
	}
	q, ok := s.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol %s", symbol)
	}
	cp := *q
	return &cp, nil
}

func (s *SimulatedBroker) GetOrderbook(_ context.Context, symbol string) (*model.Orderbook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpOrderbook, symbol); err != nil {
		return nil, err
	}
	if b, ok := s.books[symbol]; ok {
		cp := *b
		cp.Bids = append([]model.PriceLevel(nil), b.Bids...)
		cp.Asks = append([]model.PriceLevel(nil), b.Asks...)
		return &cp, nil
	}
	q, ok := s.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol %s", symbol)
	}
	// 最新价上下各 5 档，每档 0.1%
	book := &model.Orderbook{Symbol: symbol, CurrentPrice: q.Price}
	for i := 1; i <= 5; i++ {
		step := q.Price * 0.001 * float64(i)
		book.Bids = append(book.Bids, model.PriceLevel{Price: q.Price - step, Quantity: 100})
		book.Asks = append(book.Asks, model.PriceLevel{Price: q.Price + step, Quantity: 100})
	}
	return book, nil
}

func (s *SimulatedBroker) PlaceOrder(_ context.Context, req *model.OrderRequest) (*model.OrderResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpPlace, req.Symbol); err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return &model.OrderResponse{Status: model.PlaceFailed, Message: "quantity must be positive"}, nil
	}
	q, ok := s.quotes[req.Symbol]
	if !ok {
		return &model.OrderResponse{Status: model.PlaceFailed, Message: "unknown symbol " + req.Symbol}, nil
	}
	if req.Side == model.Sell {
		held := int64(0)
		if h, ok := s.holdings[req.Symbol]; ok {
			held = h.Quantity - s.reservedSell(req.Symbol)
		}
		if req.Quantity > held {
			return &model.OrderResponse{Status: model.PlaceFailed, Message: "insufficient holdings"}, nil
		}
	} else {
		price := q.Price
		if req.Type == model.Limit && req.Price > 0 {
			price = req.Price
		}
		if float64(req.Quantity)*price > s.cash {
			return &model.OrderResponse{Status: model.PlaceFailed, Message: "insufficient cash"}, nil
		}
	}

	// 创建订单id
	orderID := uuid.NewString()
	o := &model.OrderStatus{
		OrderID:   orderID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Price:     req.Price,
		State:     model.OrderSubmitted,
		UpdatedAt: s.now(),
	}
	s.orders[orderID] = o
	s.tryFill(o)

	return &model.OrderResponse{
		OrderID: orderID,
		Status:  model.PlaceSuccess,
		Message: "Simulated order accepted",
	}, nil
}

// 卖出挂单占用的持仓
func (s *SimulatedBroker) reservedSell(symbol string) int64 {
	var n int64
	for _, o := range s.orders {
		if o.Symbol == symbol && o.Side == model.Sell && o.State.Open() {
			n += o.Remaining()
		}
	}
	return n
}

func (s *SimulatedBroker) tryFill(o *model.OrderStatus) {
	q := s.quotes[o.Symbol]
	if q == nil {
		return
	}
	price := q.Price
	if o.Type == model.Limit && o.Price > 0 {
		if o.Side == model.Buy && o.Price < q.Price {
			return
		}
		if o.Side == model.Sell && o.Price > q.Price {
			return
		}
	}
	qty := o.Remaining()
	if qty == 0 {
		return
	}
	amount := float64(qty) * price
	h := s.holdings[o.Symbol]
	if o.Side == model.Buy {
		if amount > s.cash {
			return
		}
		s.cash -= amount
		if h == nil {
			h = &model.Holding{Symbol: o.Symbol}
			s.holdings[o.Symbol] = h
		}
		total := h.AvgPrice*float64(h.Quantity) + amount
		h.Quantity += qty
		h.AvgPrice = total / float64(h.Quantity)
	} else {
		if h == nil || h.Quantity < qty {
			o.State = model.OrderRejected
			return
		}
		s.cash += amount
		h.Quantity -= qty
		if h.Quantity == 0 {
			delete(s.holdings, o.Symbol)
		}
	}
	filled := o.FilledQuantity + qty
	o.AvgFillPrice = (o.AvgFillPrice*float64(o.FilledQuantity) + amount) / float64(filled)
	o.FilledQuantity = filled
	o.State = model.OrderFilled
	o.UpdatedAt = s.now()
	q.Volume += float64(qty)
}

func (s *SimulatedBroker) CancelOrder(_ context.Context, orderID string, quantity int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	symbol := ""
	if ok {
		symbol = o.Symbol
	}
	if err := s.enter(OpCancel, symbol); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("Order not found")
	}
	if !o.State.Open() {
		return fmt.Errorf("order %s is %s", orderID, o.State)
	}
	// 部分撤单只减少剩余数量
	if quantity > 0 && quantity < o.Remaining() {
		o.Quantity -= quantity
	} else {
		o.Quantity = o.FilledQuantity
		o.State = model.OrderCancelled
	}
	o.UpdatedAt = s.now()
	return nil
}

func (s *SimulatedBroker) ModifyOrder(_ context.Context, orderID string, quantity int64, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	symbol := ""
	if ok {
		symbol = o.Symbol
	}
	if err := s.enter(OpModify, symbol); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("Order not found")
	}
	if !o.State.Open() {
		return fmt.Errorf("order %s is %s", orderID, o.State)
	}
	if quantity > 0 {
		o.Quantity = o.FilledQuantity + quantity
	}
	if price > 0 {
		o.Price = price
	}
	o.UpdatedAt = s.now()
	s.tryFill(o)
	return nil
}

func (s *SimulatedBroker) GetHoldings(_ context.Context) ([]model.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpHoldings, ""); err != nil {
		return nil, err
	}
	out := make([]model.Holding, 0, len(s.holdings))
	for _, h := range s.holdings {
		cp := *h
		cp.CurrentPrice = h.AvgPrice
		if q, ok := s.quotes[h.Symbol]; ok {
			cp.CurrentPrice = q.Price
		}
		cp.EvaluationAmount = cp.CurrentPrice * float64(cp.Quantity)
		cp.ProfitLoss = (cp.CurrentPrice - cp.AvgPrice) * float64(cp.Quantity)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *SimulatedBroker) GetAccountBalance(_ context.Context) (*model.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpBalance, ""); err != nil {
		return nil, err
	}
	b := &model.Balance{CashBalance: s.cash}
	for _, h := range s.holdings {
		price := h.AvgPrice
		if q, ok := s.quotes[h.Symbol]; ok {
			price = q.Price
		}
		b.PurchaseAmount += h.AvgPrice * float64(h.Quantity)
		b.ProfitLoss += (price - h.AvgPrice) * float64(h.Quantity)
		b.TotalEvaluation += price * float64(h.Quantity)
	}
	b.TotalEvaluation += s.cash
	return b, nil
}

func (s *SimulatedBroker) GetOpenOrders(_ context.Context) ([]model.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpOpen, ""); err != nil {
		return nil, err
	}
	var out []model.OrderStatus
	for _, o := range s.orders {
		if o.State.Open() {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (s *SimulatedBroker) GetOrderStatus(_ context.Context, orderID string) (*model.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	symbol := ""
	if ok {
		symbol = o.Symbol
	}
	if err := s.enter(OpStatus, symbol); err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("Order not found")
	}
	cp := *o
	return &cp, nil
}

var _ Broker = (*SimulatedBroker)(nil)
