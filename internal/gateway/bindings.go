package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/swapline/swapline/internal/metrics"
	"github.com/swapline/swapline/pkg/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// wireMessage is the JSON shape sent to clients.
type wireMessage struct {
	OrderID string         `json:"orderId"`
	Status  models.Status  `json:"status"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	TxHash  string         `json:"txHash,omitempty"`
}

func wireFromEvent(ev models.StatusEvent) wireMessage {
	return wireMessage{
		OrderID: ev.OrderID,
		Status:  ev.Status,
		Message: ev.Message,
		Data:    ev.Data,
		Error:   ev.Error,
		TxHash:  ev.TxHash,
	}
}

// outbound pairs a message with the decision to close after writing it.
type outbound struct {
	msg      wireMessage
	terminal bool
}

// client is one live connection tracking one order.
type client struct {
	orderID string
	conn    *websocket.Conn
	send    chan outbound
	server  *Server
	logger  *zap.Logger
	once    sync.Once
}

func newClient(orderID string, conn *websocket.Conn, s *Server, logger *zap.Logger) *client {
	return &client{
		orderID: orderID,
		conn:    conn,
		send:    make(chan outbound, sendBuffer),
		server:  s,
		logger:  logger,
	}
}

// deliver hands a message to the write pump without ever blocking the
// relay consumer. A client too slow to drain its buffer is dropped.
func (c *client) deliver(msg wireMessage, terminal bool) {
	select {
	case c.send <- outbound{msg: msg, terminal: terminal}:
	default:
		c.logger.Warn("dropping slow client", zap.String("order_id", c.orderID))
		c.teardown()
	}
}

// teardown closes the connection and removes the binding. Safe to call
// from any goroutine, any number of times.
func (c *client) teardown() {
	c.once.Do(func() {
		c.server.bindings.remove(c.orderID)
		c.conn.Close()
	})
}

// writePump serializes all writes to the connection. After writing a
// terminal message it closes the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.teardown()
	}()

	for {
		select {
		case out := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(out.msg); err != nil {
				return
			}
			if out.terminal {
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump watches for client-initiated disconnects. In-flight job
// processing is not cancelled by a disconnect; its terminal event simply
// finds no binding.
func (c *client) readPump() {
	defer c.teardown()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// bindings is the order ID to live connection table for one gateway
// instance. It is mutated from both the accept path and the relay
// consumer, so all access goes through the lock.
type bindings struct {
	mu      sync.RWMutex
	byOrder map[string]*client
}

func newBindings() *bindings {
	return &bindings{byOrder: make(map[string]*client)}
}

func (b *bindings) add(orderID string, c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byOrder[orderID] = c
	metrics.ConnectionsActive.Set(float64(len(b.byOrder)))
}

func (b *bindings) remove(orderID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.byOrder[orderID]; ok {
		delete(b.byOrder, orderID)
		metrics.ConnectionsActive.Set(float64(len(b.byOrder)))
	}
}

func (b *bindings) get(orderID string) *client {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.byOrder[orderID]
}

func (b *bindings) len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byOrder)
}
