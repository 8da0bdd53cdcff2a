package exchange

import (
	"context"
	"edgetrade/internal/model"
)

// Broker 券商能力接口，具体 HTTP/WebSocket 协议由实现方负责
type Broker interface {
	GetQuote(ctx context.Context, symbol string) (*model.Quote, error)
	GetOrderbook(ctx context.Context, symbol string) (*model.Orderbook, error)
	// 下单，券商拒单时返回 Status=FAILED 的响应，网络等异常返回 error
	PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.OrderResponse, error)
	CancelOrder(ctx context.Context, orderID string, quantity int64) error
	ModifyOrder(ctx context.Context, orderID string, quantity int64, price float64) error
	GetHoldings(ctx context.Context) ([]model.Holding, error)
	GetAccountBalance(ctx context.Context) (*model.Balance, error)
	GetOpenOrders(ctx context.Context) ([]model.OrderStatus, error)
	GetOrderStatus(ctx context.Context, orderID string) (*model.OrderStatus, error)
}

// Provider 按账户解析对应的券商子账户
type Provider interface {
	Broker(ctx context.Context, accountID string) (Broker, error)
}

// StaticProvider 固定映射，测试和单账户部署使用
type StaticProvider map[string]Broker

func (p StaticProvider) Broker(_ context.Context, accountID string) (Broker, error) {
	b, ok := p[accountID]
	if !ok {
		return nil, errNoBroker(accountID)
	}
	return b, nil
}
