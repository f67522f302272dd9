package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Tyrowin/echochamber/internal/hub"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Channel is one accepted, already-upgraded client connection.
type Channel interface {
	// Receive blocks until the next inbound frame arrives or the stream ends.
	Receive(ctx context.Context) (Frame, error)
	// Outbound returns the endpoint the hub delivers to.
	Outbound() hub.Endpoint
	// CloseWithCode flushes queued output, sends a close frame and releases
	// the connection. Only the first call has an effect.
	CloseWithCode(code int, reason string) error
	RemoteAddr() string
}

type connOptions struct {
	maxMessageSize int64
	sendBufferSize int
	clock          clockwork.Clock
	logger         *slog.Logger
}

// wsConn adapts a gorilla websocket connection to Channel.
type wsConn struct {
	conn       *websocket.Conn
	remoteAddr string
	out        *outbound
	logger     *slog.Logger
}

func newWSConn(conn *websocket.Conn, remoteAddr string, opts connOptions) *wsConn {
	if opts.maxMessageSize > 0 {
		conn.SetReadLimit(opts.maxMessageSize)
	}

	c := &wsConn{
		conn:       conn,
		remoteAddr: remoteAddr,
		logger:     opts.logger,
	}
	c.setupReadConnection()
	c.out = newOutbound(conn, opts)
	go c.out.writePump()
	return c
}

// setupReadConnection configures the read deadline and pong handler.
func (c *wsConn) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// Receive reads the next data frame. Cancellation is delivered by closing
// the connection, which unblocks the underlying read.
func (c *wsConn) Receive(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}

	if messageType == websocket.TextMessage {
		return Frame{Type: FrameText, Data: data}, nil
	}
	return Frame{Type: FrameBinary, Data: data}, nil
}

func (c *wsConn) Outbound() hub.Endpoint {
	return c.out
}

func (c *wsConn) CloseWithCode(code int, reason string) error {
	return c.out.closeWith(code, reason)
}

func (c *wsConn) RemoteAddr() string {
	return c.remoteAddr
}

// outbound is the hub-facing endpoint of a connection: a bounded queue
// drained by a single write pump goroutine.
type outbound struct {
	conn   *websocket.Conn
	send   chan string
	clock  clockwork.Clock
	logger *slog.Logger

	mu          sync.RWMutex
	closed      bool
	closeCode   int
	closeReason string
}

func newOutbound(conn *websocket.Conn, opts connOptions) *outbound {
	return &outbound{
		conn:      conn,
		send:      make(chan string, opts.sendBufferSize),
		clock:     opts.clock,
		logger:    opts.logger,
		closeCode: websocket.CloseNormalClosure,
	}
}

// Send enqueues text without blocking.
func (o *outbound) Send(text string) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return hub.ErrEndpointClosed
	}

	select {
	case o.send <- text:
		return nil
	default:
		return hub.ErrSlowConsumer
	}
}

// Close closes the endpoint with a normal closure status.
func (o *outbound) Close() error {
	return o.closeWith(websocket.CloseNormalClosure, "")
}

func (o *outbound) closeWith(code int, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true
	o.closeCode = code
	o.closeReason = reason
	close(o.send)
	return nil
}

// markBroken stops accepting messages after the pump has failed.
func (o *outbound) markBroken() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}

func (o *outbound) writePump() {
	ticker := o.clock.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		o.closeConnection()
	}()

	for o.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (o *outbound) processWriteEvent(ticker clockwork.Ticker) bool {
	select {
	case message, ok := <-o.send:
		if !ok {
			o.writeCloseMessage()
			return false
		}
		return o.writeTextMessage(message)
	case <-ticker.Chan():
		return o.writePing()
	}
}

// writeTextMessage writes one payload as its own text frame.
func (o *outbound) writeTextMessage(message string) bool {
	if err := o.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		o.logger.Warn("Error setting write deadline", "error", err)
		o.markBroken()
		return false
	}
	if err := o.conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
		if !isExpectedCloseError(err) {
			o.logger.Warn("Error writing message", "error", err)
		}
		o.markBroken()
		return false
	}
	return true
}

func (o *outbound) writePing() bool {
	if err := o.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		if !isExpectedCloseError(err) {
			o.logger.Warn("Error writing ping", "error", err)
		}
		o.markBroken()
		return false
	}
	return true
}

// writeCloseMessage sends the close frame recorded by closeWith.
func (o *outbound) writeCloseMessage() {
	o.mu.RLock()
	code, reason := o.closeCode, o.closeReason
	o.mu.RUnlock()

	msg := websocket.FormatCloseMessage(code, reason)
	if err := o.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		if !isExpectedCloseError(err) {
			o.logger.Debug("Error writing close message", "error", err)
		}
	}
}

// closeConnection closes the websocket connection, logging unexpected errors.
func (o *outbound) closeConnection() {
	if err := o.conn.Close(); err != nil && !isExpectedCloseError(err) {
		o.logger.Warn("Error closing connection", "error", fmt.Errorf("write pump: %w", err))
	}
}
