package trading

import (
	"edgetrade/internal/consts"
	"edgetrade/internal/engine"
	"edgetrade/internal/model"
	"edgetrade/internal/position"
	"edgetrade/pkg/errors"
	"edgetrade/pkg/response"
	"edgetrade/pkg/validator"

	"github.com/gin-gonic/gin"
)

type TradingHandler struct {
	engine *engine.Engine
}

func NewTradingHandler(e *engine.Engine) *TradingHandler {
	return &TradingHandler{engine: e}
}

func bindErr(err error) error {
	return errors.Validation("%s", validator.Translate(err))
}

// bindJSON 请求体里的 accountId 缺省取请求头，两者不一致时拒绝
func bindJSON(c *gin.Context, req any, accountID *string) error {
	account := c.GetString(consts.AccountID)
	if accountID != nil {
		*accountID = account
	}
	if err := c.ShouldBindJSON(req); err != nil {
		return bindErr(err)
	}
	if accountID != nil && account != "" && *accountID != account {
		return errors.Validation("accountId does not match %s", consts.AccountHeader)
	}
	return nil
}

type accountReq struct {
	AccountID   string   `json:"accountId" binding:"required"`
	StrategyIDs []string `json:"strategyIds"`
	Reason      string   `json:"reason"`
}

func (h *TradingHandler) StartAutoTrading() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req accountReq
		if err := bindJSON(c, &req, &req.AccountID); err != nil {
			response.JSON(c, err, nil)
			return
		}
		s, err := h.engine.StartAutoTrading(c, req.AccountID, req.StrategyIDs)
		response.JSON(c, err, s)
	}
}

func (h *TradingHandler) StopAutoTrading() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := h.engine.StopAutoTrading(c, c.GetString(consts.AccountID))
		response.JSON(c, err, s)
	}
}

func (h *TradingHandler) PauseAutoTrading() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := h.engine.PauseAutoTrading(c, c.GetString(consts.AccountID))
		response.JSON(c, err, s)
	}
}

func (h *TradingHandler) ResumeAutoTrading() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := h.engine.ResumeAutoTrading(c, c.GetString(consts.AccountID))
		response.JSON(c, err, s)
	}
}

func (h *TradingHandler) SessionGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := h.engine.Session(c.GetString(consts.AccountID))
		response.JSON(c, err, s)
	}
}

func (h *TradingHandler) SignalSubmit() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.TradingSignal
		if err := bindJSON(c, &req, &req.AccountID); err != nil {
			response.JSON(c, err, nil)
			return
		}
		sig, err := h.engine.SubmitSignal(req)
		response.JSON(c, err, sig)
	}
}

func (h *TradingHandler) OrderExecute() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.ExecuteOrderRequest
		if err := bindJSON(c, &req, &req.AccountID); err != nil {
			response.JSON(c, err, nil)
			return
		}
		res, err := h.engine.ExecuteOrder(c, req)
		response.JSON(c, err, res)
	}
}

func (h *TradingHandler) OrderValidate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.OrderCheck
		if err := bindJSON(c, &req, &req.AccountID); err != nil {
			response.JSON(c, err, nil)
			return
		}
		res, err := h.engine.ValidateOrder(c, req)
		response.JSON(c, err, res)
	}
}

func (h *TradingHandler) SplitOrderExecute() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.SplitOrderRequest
		if err := bindJSON(c, &req, &req.AccountID); err != nil {
			response.JSON(c, err, nil)
			return
		}
		res, err := h.engine.ExecuteSplitOrder(c, req)
		response.JSON(c, err, res)
	}
}

func (h *TradingHandler) ScheduledOrderCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.ScheduledOrderRequest
		if err := bindJSON(c, &req, &req.AccountID); err != nil {
			response.JSON(c, err, nil)
			return
		}
		res, err := h.engine.CreateScheduledOrder(c, req)
		response.JSON(c, err, res)
	}
}

func (h *TradingHandler) ScheduledOrderList() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := h.engine.ScheduledOrders(c, c.GetString(consts.AccountID))
		response.JSON(c, err, list)
	}
}

func (h *TradingHandler) ScheduledOrderCancel() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := h.engine.CancelScheduledOrder(c, c.Param("id"))
		response.JSON(c, err, res)
	}
}

func (h *TradingHandler) SmartOrderExecute() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req model.SmartOrderRequest
		if err := bindJSON(c, &req, &req.AccountID); err != nil {
			response.JSON(c, err, nil)
			return
		}
		res, err := h.engine.ExecuteSmartOrder(c, req)
		response.JSON(c, err, res)
	}
}

func (h *TradingHandler) SmartOrderGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := h.engine.SmartOrder(c.Param("id"))
		response.JSON(c, err, res)
	}
}

func (h *TradingHandler) SmartOrderCancel() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := h.engine.CancelSmartOrder(c, c.Param("id"))
		response.JSON(c, err, res)
	}
}

func (h *TradingHandler) ActiveOrdersGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.JSON(c, nil, h.engine.ActiveOrders(c.GetString(consts.AccountID)))
	}
}

type riskParityReq struct {
	Capital float64              `json:"capital" binding:"gte=0"`
	Assets  []position.AssetRisk `json:"assets" binding:"required,min=1"`
}

func (h *TradingHandler) RiskParity() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req riskParityReq
		if err := bindJSON(c, &req, nil); err != nil {
			response.JSON(c, err, nil)
			return
		}
		res, err := h.engine.RiskParity(c, c.GetString(consts.AccountID), req.Capital, req.Assets)
		response.JSON(c, err, res)
	}
}

func (h *TradingHandler) PyramidSizeGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := h.engine.PyramidSize(c, c.GetString(consts.AccountID), c.Param("symbol"))
		response.JSON(c, err, res)
	}
}

func (h *TradingHandler) RiskStatusGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := h.engine.RiskStatus(c, c.GetString(consts.AccountID))
		response.JSON(c, err, res)
	}
}

func (h *TradingHandler) CircuitBreakerGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.JSON(c, nil, h.engine.CircuitBreakerStatus(c.GetString(consts.AccountID)))
	}
}

func (h *TradingHandler) CircuitBreakerReset() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req accountReq
		_ = c.ShouldBindJSON(&req)
		response.JSON(c, nil, h.engine.ResetCircuitBreaker(c, c.GetString(consts.AccountID), req.Reason))
	}
}

func (h *TradingHandler) EmergencyLiquidation() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req accountReq
		_ = c.ShouldBindJSON(&req)
		res, err := h.engine.EmergencyLiquidation(c, c.GetString(consts.AccountID), req.Reason)
		response.JSON(c, err, res)
	}
}

func (h *TradingHandler) StrategyList() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := h.engine.Strategies(c, c.GetString(consts.AccountID))
		response.JSON(c, err, list)
	}
}

type strategyCreateReq struct {
	AccountID                string                 `json:"accountId" binding:"required"`
	Name                     string                 `json:"name" binding:"required,max=64"`
	Priority                 model.StrategyPriority `json:"priority" binding:"omitempty,oneof=HIGH MEDIUM LOW"`
	CapitalAllocationPercent float64                `json:"capitalAllocationPercent" binding:"gte=0,lte=100"`
}

func (h *TradingHandler) StrategyCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req strategyCreateReq
		if err := bindJSON(c, &req, &req.AccountID); err != nil {
			response.JSON(c, err, nil)
			return
		}
		s, err := h.engine.CreateStrategy(c, model.StrategyInstance{
			AccountID:                req.AccountID,
			Name:                     req.Name,
			Priority:                 req.Priority,
			CapitalAllocationPercent: req.CapitalAllocationPercent,
		})
		response.JSON(c, err, s)
	}
}

func (h *TradingHandler) StrategyStart() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := h.engine.StartStrategy(c, c.Param("id"))
		response.JSON(c, err, s)
	}
}

func (h *TradingHandler) StrategyStop() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := h.engine.StopStrategy(c, c.Param("id"))
		response.JSON(c, err, s)
	}
}

func (h *TradingHandler) StrategyPause() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := h.engine.PauseStrategy(c, c.Param("id"))
		response.JSON(c, err, s)
	}
}

type priorityReq struct {
	Priority model.StrategyPriority `json:"priority" binding:"required,oneof=HIGH MEDIUM LOW"`
}

func (h *TradingHandler) StrategyPrioritySet() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req priorityReq
		if err := bindJSON(c, &req, nil); err != nil {
			response.JSON(c, err, nil)
			return
		}
		s, err := h.engine.SetStrategyPriority(c, c.Param("id"), req.Priority)
		response.JSON(c, err, s)
	}
}

type capitalReq struct {
	Percent *float64 `json:"percent" binding:"required,gte=0,lte=100"`
}

func (h *TradingHandler) StrategyCapitalSet() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req capitalReq
		if err := bindJSON(c, &req, nil); err != nil {
			response.JSON(c, err, nil)
			return
		}
		s, err := h.engine.SetStrategyCapitalAllocation(c, c.Param("id"), *req.Percent)
		response.JSON(c, err, s)
	}
}
