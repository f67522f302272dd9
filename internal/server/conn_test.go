package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/echochamber/internal/hub"
	"github.com/Tyrowin/echochamber/internal/logging"
)

func testConnOptions(clock clockwork.Clock) connOptions {
	return connOptions{
		sendBufferSize: 16,
		clock:          clock,
		logger:         logging.Discard(),
	}
}

// newTestConnPair upgrades a real connection and returns the server side
// adapter together with the dialing client.
func newTestConnPair(t *testing.T, opts connOptions) (*wsConn, *websocket.Conn) {
	t.Helper()

	accepted := make(chan *wsConn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		accepted <- newWSConn(conn, r.RemoteAddr, opts)
	}))
	t.Cleanup(srv.Close)

	client, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case c := <-accepted:
		t.Cleanup(func() { _ = c.CloseWithCode(websocket.CloseNormalClosure, "") })
		return c, client
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
		return nil, nil
	}
}

func TestOutbound_Send(t *testing.T) {
	o := newOutbound(nil, connOptions{sendBufferSize: 2, clock: clockwork.NewFakeClock(), logger: logging.Discard()})

	require.NoError(t, o.Send("a"))
	require.NoError(t, o.Send("b"))
	assert.ErrorIs(t, o.Send("c"), hub.ErrSlowConsumer)

	require.NoError(t, o.Close())
	assert.ErrorIs(t, o.Send("d"), hub.ErrEndpointClosed)
	assert.NoError(t, o.Close(), "close is idempotent")
}

func TestOutbound_FirstCloseCodeWins(t *testing.T) {
	o := newOutbound(nil, connOptions{sendBufferSize: 1, clock: clockwork.NewFakeClock(), logger: logging.Discard()})

	require.NoError(t, o.closeWith(websocket.CloseUnsupportedData, binaryFrameReason))
	require.NoError(t, o.Close())

	assert.Equal(t, websocket.CloseUnsupportedData, o.closeCode)
	assert.Equal(t, binaryFrameReason, o.closeReason)
}

func TestWSConn_Receive(t *testing.T) {
	c, client := newTestConnPair(t, testConnOptions(clockwork.NewRealClock()))

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("hi")))
	frame, err := c.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FrameText, frame.Type)
	assert.Equal(t, "hi", string(frame.Data))

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte{0xff}))
	frame, err = c.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FrameBinary, frame.Type)
}

func TestWSConn_ReceiveCancelledContext(t *testing.T) {
	c, _ := newTestConnPair(t, testConnOptions(clockwork.NewRealClock()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Receive(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWSConn_ReadLimit(t *testing.T) {
	opts := testConnOptions(clockwork.NewRealClock())
	opts.maxMessageSize = 4
	c, client := newTestConnPair(t, opts)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("far too long")))
	_, err := c.Receive(context.Background())
	assert.ErrorIs(t, err, websocket.ErrReadLimit)
}

func TestWSConn_DeliversQueuedMessagesBeforeCloseFrame(t *testing.T) {
	c, client := newTestConnPair(t, testConnOptions(clockwork.NewRealClock()))

	require.NoError(t, c.Outbound().Send("one"))
	require.NoError(t, c.Outbound().Send("two"))
	require.NoError(t, c.CloseWithCode(websocket.CloseUnsupportedData, binaryFrameReason))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	for _, want := range []string{"one", "two"} {
		messageType, data, err := client.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, messageType)
		assert.Equal(t, want, string(data))
	}

	_, _, err := client.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseUnsupportedData, closeErr.Code)
	assert.Equal(t, binaryFrameReason, closeErr.Text)

	assert.ErrorIs(t, c.Outbound().Send("late"), hub.ErrEndpointClosed)
}

func TestWSConn_SendsKeepalivePings(t *testing.T) {
	clock := clockwork.NewFakeClock()
	_, client := newTestConnPair(t, testConnOptions(clock))

	pings := make(chan struct{}, 1)
	client.SetPingHandler(func(string) error {
		select {
		case pings <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1), "write pump ticker not started")
	clock.Advance(pingPeriod)

	select {
	case <-pings:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received after ping period")
	}
}
