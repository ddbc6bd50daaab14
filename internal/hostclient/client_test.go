package hostclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrispahm/gdx-viewer/internal/protocol"
)

// startFakeServer runs a minimal protocol.Frame-speaking WebSocket
// endpoint so the demux logic can be exercised without forking a real
// gdx-viewer-server binary (the Go toolchain is never invoked to build
// one in this environment).
func startFakeServer(t *testing.T, handle func(frame protocol.Frame, conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var frame protocol.Frame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			handle(frame, conn)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + srv.URL[len("http"):] + "/"
}

func dialFake(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestClient_CallRoundTrip(t *testing.T) {
	url := startFakeServer(t, func(frame protocol.Frame, conn *websocket.Conn) {
		assert.Equal(t, protocol.MethodPing, frame.Method)
		result, _ := json.Marshal(protocol.PingResult{Pong: true})
		conn.WriteJSON(protocol.Frame{Type: protocol.FrameResponse, RequestId: frame.RequestId, Result: result})
	})
	conn := dialFake(t, url)
	c := newClientFromConn(conn, nil)

	var result protocol.PingResult
	err := c.Call(context.Background(), protocol.MethodPing, struct{}{}, &result)
	require.NoError(t, err)
	assert.True(t, result.Pong)
}

func TestClient_CallReturnsErrorPayload(t *testing.T) {
	url := startFakeServer(t, func(frame protocol.Frame, conn *websocket.Conn) {
		conn.WriteJSON(protocol.Frame{
			Type:      protocol.FrameResponse,
			RequestId: frame.RequestId,
			Error:     &protocol.ErrorPayload{Message: "no such document", Kind: "NotFound"},
		})
	})
	conn := dialFake(t, url)
	c := newClientFromConn(conn, nil)

	err := c.Call(context.Background(), protocol.MethodCloseDocument, protocol.CloseDocumentParams{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NotFound")
	assert.Contains(t, err.Error(), "no such document")
}

func TestClient_EventsRouteToHandler(t *testing.T) {
	url := startFakeServer(t, func(frame protocol.Frame, conn *websocket.Conn) {
		if frame.Method == "subscribe" {
			data, _ := json.Marshal(map[string]any{"percentage": 42})
			conn.WriteJSON(protocol.Frame{Type: protocol.FrameEvent, Event: protocol.EventMaterializationProgress, Data: data})
		}
	})
	conn := dialFake(t, url)

	received := make(chan struct {
		event string
		data  json.RawMessage
	}, 1)
	c := newClientFromConn(conn, func(event string, data json.RawMessage) {
		received <- struct {
			event string
			data  json.RawMessage
		}{event, data}
	})

	require.NoError(t, conn.WriteJSON(protocol.Frame{Type: protocol.FrameRequest, Method: "subscribe"}))

	select {
	case got := <-received:
		assert.Equal(t, protocol.EventMaterializationProgress, got.event)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(got.data, &payload))
		assert.Equal(t, float64(42), payload["percentage"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestClient_CallContextCancellation(t *testing.T) {
	// Server never responds; the call must return when the context is canceled.
	url := startFakeServer(t, func(frame protocol.Frame, conn *websocket.Conn) {})
	conn := dialFake(t, url)
	c := newClientFromConn(conn, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Call(ctx, protocol.MethodPing, struct{}{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_CloseIsIdempotentWithoutProcess(t *testing.T) {
	url := startFakeServer(t, func(frame protocol.Frame, conn *websocket.Conn) {})
	conn := dialFake(t, url)
	c := newClientFromConn(conn, nil)

	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))
}

func TestReadStdout_ParsesReadyLineAmongOtherOutput(t *testing.T) {
	c := &Client{stdout: newRingBuffer(diagnosticBufferSize)}
	r, w := io.Pipe()
	readyCh := make(chan readyMessage, 1)
	errCh := make(chan error, 1)

	go c.readStdout(r, readyCh, errCh)

	go func() {
		w.Write([]byte("some startup banner line\n"))
		w.Write([]byte(`{"type":"ready","port":54321,"pid":99}` + "\n"))
		w.Write([]byte("trailing diagnostic line\n"))
		w.Close()
	}()

	select {
	case msg := <-readyCh:
		assert.Equal(t, 54321, msg.Port)
		assert.Equal(t, 99, msg.Pid)
	case err := <-errCh:
		t.Fatalf("unexpected error before ready: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ready message")
	}
}
