package router

import (
	"edgetrade/internal/handler/ping"
	"edgetrade/internal/handler/trading"
	"edgetrade/internal/middleware"

	"github.com/gin-gonic/gin"
)

type ApiRouter struct {
	tradingHandler *trading.TradingHandler
}

func NewApiRouter(th *trading.TradingHandler) *ApiRouter {
	return &ApiRouter{tradingHandler: th}
}

func (api *ApiRouter) Load(g *gin.Engine) {
	g.GET("/ping", ping.Ping())

	base := g.Group("/api/v1")
	t := base.Group("/trading", middleware.RequireAccount())
	h := api.tradingHandler

	at := t.Group("/auto-trading")
	{
		at.POST("/start", h.StartAutoTrading())
		at.POST("/stop", h.StopAutoTrading())
		at.POST("/pause", h.PauseAutoTrading())
		at.POST("/resume", h.ResumeAutoTrading())
		at.GET("/session", h.SessionGet())
	}

	t.POST("/signals", h.SignalSubmit())

	o := t.Group("/orders")
	{
		o.POST("", middleware.AntiDuplicate(), h.OrderExecute())
		o.POST("/validate", h.OrderValidate())
		o.POST("/split", middleware.AntiDuplicate(), h.SplitOrderExecute())
		o.POST("/scheduled", h.ScheduledOrderCreate())
		o.GET("/scheduled", h.ScheduledOrderList())
		o.DELETE("/scheduled/:id", h.ScheduledOrderCancel())
	}

	so := t.Group("/smart-orders")
	{
		so.POST("", middleware.AntiDuplicate(), h.SmartOrderExecute())
		so.GET("", h.ActiveOrdersGet())
		so.GET("/:id", h.SmartOrderGet())
		so.DELETE("/:id", h.SmartOrderCancel())
	}

	sz := t.Group("/sizing")
	{
		sz.POST("/risk-parity", h.RiskParity())
		sz.GET("/pyramid/:symbol", h.PyramidSizeGet())
	}

	t.GET("/risk/status", h.RiskStatusGet())
	t.GET("/circuit-breaker", h.CircuitBreakerGet())
	t.POST("/circuit-breaker/reset", h.CircuitBreakerReset())
	// 紧急清仓
	t.POST("/emergency-liquidation", middleware.AntiDuplicate(), h.EmergencyLiquidation())

	s := t.Group("/strategies")
	{
		s.GET("", h.StrategyList())
		s.POST("", h.StrategyCreate())
		s.POST("/:id/start", h.StrategyStart())
		s.POST("/:id/stop", h.StrategyStop())
		s.POST("/:id/pause", h.StrategyPause())
		s.PUT("/:id/priority", h.StrategyPrioritySet())
		s.PUT("/:id/capital", h.StrategyCapitalSet())
	}
}
