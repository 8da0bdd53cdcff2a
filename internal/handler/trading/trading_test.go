package trading_test

import (
	"bytes"
	"context"
	"edgetrade/conf"
	"edgetrade/internal/breaker"
	"edgetrade/internal/bus"
	"edgetrade/internal/dao/memory"
	"edgetrade/internal/engine"
	"edgetrade/internal/exchange"
	"edgetrade/internal/execution"
	"edgetrade/internal/handler/trading"
	"edgetrade/internal/middleware"
	"edgetrade/internal/model/entity"
	"edgetrade/internal/risk"
	"edgetrade/internal/router"
	"edgetrade/internal/signal"
	"edgetrade/internal/strategy"
	"edgetrade/internal/trade"
	"edgetrade/pkg/errors/ecode"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const account = "acc-http"

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newServer(t *testing.T) (*gin.Engine, *exchange.SimulatedBroker) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clk := clock.New()
	cfg := conf.Default()
	cfg.Engine.Timezone = "UTC"

	sim := exchange.NewSimulatedBroker(100_000_000)
	sim.SetPrice("005930", 10_000)
	brokers := exchange.StaticProvider{account: sim}

	b := bus.New(64)
	t.Cleanup(b.Close)
	brk := breaker.New(clk, nil, b)
	trades := memory.NewTradeDAO()
	rec := trade.NewRecorder(trades, b, clk)
	e := engine.New(engine.Options{
		Config:  cfg,
		Brokers: brokers,
		Signals: signal.NewProcessor(clk, b),
		Breaker: brk,
		Risk: risk.NewService(risk.Options{
			Breaker:  brk,
			Brokers:  brokers,
			Trades:   trades,
			Limits:   memory.NewRiskLimitDAO(),
			Recorder: rec,
			Clock:    clk,
			Defaults: cfg.Risk,
		}),
		Orchestrator: strategy.NewOrchestrator(strategy.Options{
			DAO: memory.NewStrategyDAO(
				entity.Strategy{ID: "s1", AccountID: account, Name: "momentum", Priority: "HIGH", Status: "RUNNING"},
			),
			Pub:   b,
			Clock: clk,
		}),
		Router: execution.NewRouter(execution.Options{
			Brokers:  brokers,
			Breaker:  brk,
			Recorder: rec,
			Clock:    clk,
		}),
		Recorder:  rec,
		Sessions:  memory.NewSessionDAO(),
		Scheduled: memory.NewScheduledOrderDAO(),
		Bus:       b,
		Clock:     clk,
	})
	t.Cleanup(func() { _, _ = e.StopAutoTrading(context.Background(), account) })

	g := gin.New()
	middleware.NewMiddleware().Load(g)
	router.NewApiRouter(trading.NewTradingHandler(e)).Load(g)
	return g, sim
}

func do(t *testing.T, g *gin.Engine, method, path, accountID string, body any) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if accountID != "" {
		req.Header.Set("X-Account-Id", accountID)
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)

	var res apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res), w.Body.String())
	return w.Code, res
}

func TestRequireAccountHeader(t *testing.T) {
	g, _ := newServer(t)
	code, res := do(t, g, http.MethodGet, "/api/v1/trading/risk/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, ecode.RequireAuthErr, res.Code)
}

func TestOrderExecute(t *testing.T) {
	g, sim := newServer(t)

	code, res := do(t, g, http.MethodPost, "/api/v1/trading/orders/validate", account, map[string]any{
		"accountId": "someone-else", "symbol": "005930", "side": "BUY", "quantity": 10,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, ecode.ValidateErr, res.Code)

	code, res = do(t, g, http.MethodPost, "/api/v1/trading/orders/validate", account, map[string]any{
		"symbol": "005930", "side": "SIDEWAYS", "quantity": 10,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, ecode.ValidateErr, res.Code)

	code, res = do(t, g, http.MethodPost, "/api/v1/trading/orders", account, map[string]any{
		"symbol": "005930", "side": "BUY", "type": "MARKET", "quantity": 10,
	})
	require.Equal(t, http.StatusOK, code, res.Message)
	var out struct {
		Approved       bool   `json:"approved"`
		OrderID        string `json:"orderId"`
		FilledQuantity int64  `json:"filledQuantity"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &out))
	assert.True(t, out.Approved)
	assert.NotEmpty(t, out.OrderID)
	assert.EqualValues(t, 10, out.FilledQuantity)

	holdings, err := sim.GetHoldings(t.Context())
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.EqualValues(t, 10, holdings[0].Quantity)

	// 同一账户 1 秒内重复提交
	code, _ = do(t, g, http.MethodPost, "/api/v1/trading/orders", account, map[string]any{
		"symbol": "005930", "side": "BUY", "type": "MARKET", "quantity": 10,
	})
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestAutoTradingSession(t *testing.T) {
	g, _ := newServer(t)

	code, res := do(t, g, http.MethodGet, "/api/v1/trading/auto-trading/session", account, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, ecode.NotFoundErr, res.Code)

	code, res = do(t, g, http.MethodPost, "/api/v1/trading/auto-trading/start", account, map[string]any{})
	require.Equal(t, http.StatusOK, code, res.Message)

	code, _ = do(t, g, http.MethodPost, "/api/v1/trading/auto-trading/start", account, map[string]any{})
	assert.Equal(t, http.StatusConflict, code)

	code, res = do(t, g, http.MethodGet, "/api/v1/trading/auto-trading/session", account, nil)
	require.Equal(t, http.StatusOK, code)
	var s struct {
		Status      string   `json:"status"`
		StrategyIDs []string `json:"strategyIds"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &s))
	assert.Equal(t, "RUNNING", s.Status)
	assert.Equal(t, []string{"s1"}, s.StrategyIDs)

	code, _ = do(t, g, http.MethodPost, "/api/v1/trading/auto-trading/pause", account, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, g, http.MethodPost, "/api/v1/trading/auto-trading/pause", account, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestCircuitBreakerEndpoints(t *testing.T) {
	g, _ := newServer(t)

	code, res := do(t, g, http.MethodGet, "/api/v1/trading/circuit-breaker", account, nil)
	require.Equal(t, http.StatusOK, code)
	var st struct {
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &st))
	assert.Equal(t, "CLOSED", st.State)

	code, _ = do(t, g, http.MethodPost, "/api/v1/trading/circuit-breaker/reset", account, map[string]any{"reason": "ops"})
	assert.Equal(t, http.StatusOK, code)
}

func TestSizingEndpoints(t *testing.T) {
	g, sim := newServer(t)

	code, res := do(t, g, http.MethodPost, "/api/v1/trading/sizing/risk-parity", account, map[string]any{
		"capital": 3_000_000,
		"assets": []map[string]any{
			{"symbol": "005930", "atr": 200},
			{"symbol": "000660", "price": 50_000, "atr": 2_000},
		},
	})
	require.Equal(t, http.StatusOK, code, res.Message)
	var allocs []struct {
		Symbol   string  `json:"symbol"`
		Weight   float64 `json:"weight"`
		Quantity int64   `json:"quantity"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &allocs))
	require.Len(t, allocs, 2)
	assert.Equal(t, "005930", allocs[0].Symbol)
	assert.Greater(t, allocs[0].Weight, allocs[1].Weight)

	code, res = do(t, g, http.MethodPost, "/api/v1/trading/sizing/risk-parity", account, map[string]any{"assets": []any{}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, ecode.ValidateErr, res.Code)

	sim.SetHolding("005930", 40, 9_000)
	code, res = do(t, g, http.MethodGet, "/api/v1/trading/sizing/pyramid/005930", account, nil)
	require.Equal(t, http.StatusOK, code, res.Message)
	var pyramid struct {
		AddQuantity int64 `json:"addQuantity"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &pyramid))
	assert.Equal(t, int64(20), pyramid.AddQuantity)
}
