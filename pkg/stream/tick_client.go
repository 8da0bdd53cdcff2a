package stream

import (
	"context"
	"edgetrade/pkg/logger"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// TickMessage 行情推送的单条成交数据
type TickMessage struct {
	Channel    string  `json:"channel"`
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume"`
	ChangeRate float64 `json:"changeRate"`
	Timestamp  int64   `json:"ts"` // 毫秒
}

func (m TickMessage) Time() time.Time {
	if m.Timestamp == 0 {
		return time.Now()
	}
	return time.UnixMilli(m.Timestamp)
}

type subscribeMessage struct {
	Method  string   `json:"method"`
	Symbols []string `json:"symbols"`
}

// TickClient websocket 行情客户端，断线后自动重连并重新订阅
type TickClient struct {
	rawURL       string
	symbols      []string
	pingInterval time.Duration
	backoff      time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewTickClient(rawURL string, symbols []string) (*TickClient, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, errors.New("Invalid websocket URL")
	}
	return &TickClient{
		rawURL:       rawURL,
		symbols:      symbols,
		pingInterval: 30 * time.Second,
		backoff:      3 * time.Second,
	}, nil
}

// Run 阻塞读取行情直到 ctx 结束，每条 tick 同步回调 handler
func (c *TickClient) Run(ctx context.Context, handler func(TickMessage)) error {
	for {
		err := c.session(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		logger.Warnf("[TickFeed] connection lost: %v, reconnect in %s", err, c.backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.backoff):
		}
	}
}

func (c *TickClient) session(ctx context.Context, handler func(TickMessage)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.rawURL, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer conn.Close()

	if len(c.symbols) > 0 {
		if err := c.send(subscribeMessage{Method: "subscribe", Symbols: c.symbols}); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	defer close(done)
	go c.keepAlive(ctx, done)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var tick TickMessage
		if err := json.Unmarshal(msg, &tick); err != nil {
			logger.Debugf("[TickFeed] skip message: %v", err)
			continue
		}
		if tick.Symbol == "" || tick.Price <= 0 {
			continue
		}
		handler(tick)
	}
}

func (c *TickClient) keepAlive(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// 主动关闭连接让 ReadMessage 返回
			c.mu.Lock()
			if c.conn != nil {
				_ = c.conn.Close()
			}
			c.mu.Unlock()
			return
		case <-done:
			return
		case <-ticker.C:
			if err := c.send(map[string]string{"method": "ping"}); err != nil {
				logger.Warnf("[TickFeed] ping failed: %v", err)
			}
		}
	}
}

func (c *TickClient) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
