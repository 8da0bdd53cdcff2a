package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickClient_Run(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// 先读订阅消息
		_, _, _ = conn.ReadMessage()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"symbol":"005930","price":70000,"volume":1200,"ts":1700000000000}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"symbol":"000660","price":120000,"volume":300}`))
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client, err := NewTickClient("ws"+strings.TrimPrefix(srv.URL, "http"), []string{"005930", "000660"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []TickMessage
	go func() {
		_ = client.Run(ctx, func(m TickMessage) {
			mu.Lock()
			got = append(got, m)
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "005930", got[0].Symbol)
	assert.Equal(t, 70000.0, got[0].Price)
	assert.Equal(t, time.UnixMilli(1700000000000), got[0].Time())
	assert.Equal(t, "000660", got[1].Symbol)
}

func TestNewTickClient_InvalidURL(t *testing.T) {
	_, err := NewTickClient("::bad", nil)
	assert.Error(t, err)
}
