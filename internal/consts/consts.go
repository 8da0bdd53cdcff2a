package consts

const (
	// RequestId 请求id名称
	RequestId = "request_id"
	// AccountHeader 账户标识请求头
	AccountHeader = "X-Account-Id"
	AccountID     = "account_id"
)

// 事件总线 topic
const (
	TopicSignalNew           = "signal.new"
	TopicSignalReady         = "signal.ready"
	TopicTradeCompleted      = "trade.completed"
	TopicBreakerTripped      = "circuit-breaker.tripped"
	TopicBreakerReset        = "circuit-breaker.reset"
	TopicBreakerHalfOpen     = "circuit-breaker.half-open"
	TopicPriceSpike          = "market.price-spike"
	TopicLargeVolume         = "market.large-volume"
	TopicSmartOrderCompleted = "smart-order.completed"
	TopicSmartOrderCancelled = "smart-order.cancelled"
	TopicSessionChanged      = "session.changed"
)
