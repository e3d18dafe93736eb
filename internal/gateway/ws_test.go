package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/swapline/swapline/internal/config"
	"github.com/swapline/swapline/internal/queue"
	"github.com/swapline/swapline/internal/relay"
	"github.com/swapline/swapline/pkg/models"
)

type testGateway struct {
	server *Server
	queue  *queue.Memory
	relay  *relay.Memory
	http   *httptest.Server
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	q := queue.NewMemory(config.QueueConfig{
		Name:        "orders-test",
		MaxAttempts: 3,
		BackoffBase: 10 * time.Millisecond,
	})
	rl := relay.NewMemory()

	s := New(config.ServerConfig{
		Host:                    "127.0.0.1",
		Port:                    0,
		ReadTimeout:             5 * time.Second,
		WriteTimeout:            5 * time.Second,
		GracefulShutdownTimeout: time.Second,
	}, q, rl, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.consumeRelay(ctx))

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		q.Close()
	})

	return &testGateway{server: s, queue: q, relay: rl, http: ts}
}

func (g *testGateway) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := strings.Replace(g.http.URL, "http", "ws", 1) + "/ws/orders" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg wireMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg json.RawMessage
	err := conn.ReadJSON(&msg)
	assert.Error(t, err, "expected connection to be closed, got %s", string(msg))
}

func TestHealthEndpoint(t *testing.T) {
	g := newTestGateway(t)

	resp, err := http.Get(g.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status string  `json:"status"`
		Uptime float64 `json:"uptime"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.GreaterOrEqual(t, body.Uptime, 0.0)
}

func TestInvalidAmountRejectedWithoutEnqueue(t *testing.T) {
	g := newTestGateway(t)
	conn := g.dial(t, "?inputToken=SOL&outputToken=USDC&amount=-5")

	msg := readMessage(t, conn)
	assert.Equal(t, models.StatusFailed, msg.Status)
	assert.Contains(t, msg.Error, "greater than zero")

	expectClosed(t, conn)
	assert.Equal(t, 0, g.queue.Len())
}

func TestNonNumericAmountRejected(t *testing.T) {
	g := newTestGateway(t)
	conn := g.dial(t, "?inputToken=SOL&outputToken=USDC&amount=ten")

	msg := readMessage(t, conn)
	assert.Equal(t, models.StatusFailed, msg.Status)
	assert.Contains(t, msg.Error, "must be a number")

	expectClosed(t, conn)
	assert.Equal(t, 0, g.queue.Len())
}

func TestMissingTokenRejected(t *testing.T) {
	g := newTestGateway(t)
	conn := g.dial(t, "?outputToken=USDC&amount=10")

	msg := readMessage(t, conn)
	assert.Equal(t, models.StatusFailed, msg.Status)
	assert.Contains(t, msg.Error, "inputToken")

	expectClosed(t, conn)
	assert.Equal(t, 0, g.queue.Len())
}

func TestValidOrderAcceptedAndEnqueued(t *testing.T) {
	g := newTestGateway(t)
	conn := g.dial(t, "?inputToken=SOL&outputToken=USDC&amount=10")

	ack := readMessage(t, conn)
	assert.Equal(t, models.StatusAccepted, ack.Status)
	assert.NotEmpty(t, ack.OrderID)

	require.Eventually(t, func() bool { return g.queue.Len() == 1 }, time.Second, 10*time.Millisecond)

	d, err := g.queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ack.OrderID, d.Job.Order.ID)
	assert.Equal(t, "SOL", d.Job.Order.InputToken)
}

func TestStatusEventsForwardedUntilTerminal(t *testing.T) {
	g := newTestGateway(t)
	conn := g.dial(t, "?inputToken=SOL&outputToken=USDC&amount=10")

	ack := readMessage(t, conn)
	require.Equal(t, models.StatusAccepted, ack.Status)
	orderID := ack.OrderID

	ctx := context.Background()
	publish := func(ev models.StatusEvent) {
		require.NoError(t, g.relay.Publish(ctx, ev))
	}

	publish(models.StatusEvent{OrderID: orderID, Status: models.StatusRouting, Message: "Comparing venue prices..."})
	msg := readMessage(t, conn)
	assert.Equal(t, models.StatusRouting, msg.Status)

	// A failed attempt with retries left keeps the connection open.
	publish(models.StatusEvent{OrderID: orderID, Status: models.StatusFailed, Message: "Order execution failed.", Error: "boom", Attempt: 1})
	msg = readMessage(t, conn)
	assert.Equal(t, models.StatusFailed, msg.Status)
	assert.Equal(t, "boom", msg.Error)

	publish(models.StatusEvent{OrderID: orderID, Status: models.StatusConfirmed, Message: "Transaction successful.", TxHash: "mock_tx_abc"})
	msg = readMessage(t, conn)
	assert.Equal(t, models.StatusConfirmed, msg.Status)
	assert.Equal(t, "mock_tx_abc", msg.TxHash)

	// Terminal status closes the connection and drops the binding.
	expectClosed(t, conn)
	require.Eventually(t, func() bool { return g.server.bindings.len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestEventsForOtherOrdersNotForwarded(t *testing.T) {
	g := newTestGateway(t)
	conn := g.dial(t, "?inputToken=SOL&outputToken=USDC&amount=10")

	ack := readMessage(t, conn)
	orderID := ack.OrderID

	ctx := context.Background()
	require.NoError(t, g.relay.Publish(ctx, models.StatusEvent{OrderID: "someone-else", Status: models.StatusConfirmed, TxHash: "mock_tx_zzz"}))
	require.NoError(t, g.relay.Publish(ctx, models.StatusEvent{OrderID: orderID, Status: models.StatusRouting, Message: "Comparing venue prices..."}))

	// The next message must be ours, not the other order's.
	msg := readMessage(t, conn)
	assert.Equal(t, orderID, msg.OrderID)
	assert.Equal(t, models.StatusRouting, msg.Status)
}

func TestClientDisconnectRemovesBinding(t *testing.T) {
	g := newTestGateway(t)
	conn := g.dial(t, "?inputToken=SOL&outputToken=USDC&amount=10")

	ack := readMessage(t, conn)
	require.Equal(t, models.StatusAccepted, ack.Status)
	require.Equal(t, 1, g.server.bindings.len())

	conn.Close()
	require.Eventually(t, func() bool { return g.server.bindings.len() == 0 }, time.Second, 10*time.Millisecond)

	// The job is still in the queue: disconnect does not cancel work.
	assert.Equal(t, 1, g.queue.Len())
}
