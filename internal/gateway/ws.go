package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/swapline/swapline/internal/metrics"
	"github.com/swapline/swapline/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleOrders accepts a swap order over a WebSocket connection. Order
// parameters arrive as query parameters: inputToken, outputToken,
// amount.
func (s *Server) handleOrders(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	inputToken := c.Query("inputToken")
	outputToken := c.Query("outputToken")
	rawAmount := c.Query("amount")

	amount, validationErr := validateOrderParams(inputToken, outputToken, rawAmount)
	if validationErr != "" {
		// Invalid input: one failed message, then closed. Never enqueued.
		metrics.OrdersRejected.Inc()
		s.rejectConn(conn, validationErr)
		return
	}

	order := models.Order{
		ID:          uuid.NewString(),
		InputToken:  inputToken,
		OutputToken: outputToken,
		Amount:      amount,
		CreatedAt:   time.Now().UTC(),
	}

	cl := newClient(order.ID, conn, s, s.logger)

	// The binding must exist before the job does, so no status event can
	// arrive unmatched. The accepted ack is buffered before the enqueue
	// for the same reason: nothing the worker publishes may precede it.
	s.bindings.add(order.ID, cl)
	go cl.writePump()
	go cl.readPump()
	cl.deliver(wireMessage{
		OrderID: order.ID,
		Status:  models.StatusAccepted,
		Message: "Order received and queued.",
	}, false)

	if err := s.queue.Enqueue(c.Request.Context(), order); err != nil {
		s.logger.Error("failed to enqueue order", zap.String("order_id", order.ID), zap.Error(err))
		cl.deliver(wireMessage{
			OrderID: order.ID,
			Status:  models.StatusFailed,
			Message: "Order rejected.",
			Error:   "order could not be accepted",
		}, true)
		return
	}

	metrics.OrdersAccepted.Inc()
	s.logger.Info("order accepted",
		zap.String("order_id", order.ID),
		zap.String("pair", order.Pair()),
		zap.String("amount", order.Amount.String()),
	)
}

// validateOrderParams returns the parsed amount, or a client-facing
// reason when the parameters are unusable.
func validateOrderParams(inputToken, outputToken, rawAmount string) (decimal.Decimal, string) {
	if inputToken == "" {
		return decimal.Decimal{}, "inputToken is required"
	}
	if outputToken == "" {
		return decimal.Decimal{}, "outputToken is required"
	}
	if rawAmount == "" {
		return decimal.Decimal{}, "amount is required"
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return decimal.Decimal{}, "amount must be a number"
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, "amount must be greater than zero"
	}
	return amount, ""
}

// rejectConn writes a single failed message and closes the connection.
func (s *Server) rejectConn(conn *websocket.Conn, reason string) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(wireMessage{
		Status:  models.StatusFailed,
		Message: "Order rejected.",
		Error:   reason,
	})
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(writeWait))
	conn.Close()
}
