package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrispahm/gdx-viewer/internal/errs"
	"github.com/chrispahm/gdx-viewer/internal/materialize"
	"github.com/chrispahm/gdx-viewer/internal/model"
	"github.com/chrispahm/gdx-viewer/internal/protocol"
)

type fakeDispatch struct {
	handle func(ctx context.Context, method string, params json.RawMessage) (any, error)
}

func (f fakeDispatch) Dispatch(ctx context.Context, method string, params json.RawMessage) (any, error) {
	return f.handle(ctx, method, params)
}

func startTestServer(t *testing.T, handle func(ctx context.Context, method string, params json.RawMessage) (any, error)) (*Server, string) {
	t.Helper()
	s := NewServer(fakeDispatch{handle: handle})
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s, fmt.Sprintf("ws://127.0.0.1:%d/", s.Port())
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServer_PingRoundTrip(t *testing.T) {
	_, url := startTestServer(t, func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		assert.Equal(t, protocol.MethodPing, method)
		return protocol.PingResult{Pong: true}, nil
	})
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(protocol.Frame{
		Type:      protocol.FrameRequest,
		RequestId: "r1",
		Method:    protocol.MethodPing,
	}))

	var resp protocol.Frame
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, protocol.FrameResponse, resp.Type)
	assert.Equal(t, "r1", resp.RequestId)
	assert.Nil(t, resp.Error)

	var result protocol.PingResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.True(t, result.Pong)
}

func TestServer_ErrorResultBecomesErrorFrame(t *testing.T) {
	_, url := startTestServer(t, func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		return nil, errs.Classify(errs.Newf("no open document with id %q", "doc1"), errs.KindNotFound)
	})
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(protocol.Frame{
		Type:      protocol.FrameRequest,
		RequestId: "r2",
		Method:    protocol.MethodCloseDocument,
		Params:    json.RawMessage(`{"documentId":"doc1"}`),
	}))

	var resp protocol.Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NotFound", resp.Error.Kind)
}

func TestServer_EventDeliveredToBoundConnection(t *testing.T) {
	s, url := startTestServer(t, func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		return protocol.OpenDocumentResult{}, nil
	})
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(protocol.Frame{
		Type:      protocol.FrameRequest,
		RequestId: "r3",
		Method:    protocol.MethodOpenDocument,
		Params:    json.RawMessage(`{"documentId":"doc1","source":"a.gdx"}`),
	}))
	var openResp protocol.Frame
	require.NoError(t, conn.ReadJSON(&openResp))

	sink := NewEventSink(s)
	sink.EmitProgress(materialize.ProgressEvent{DocumentId: model.DocumentId("doc1"), SymbolName: "demand", Percentage: 50})

	var eventFrame protocol.Frame
	require.NoError(t, conn.ReadJSON(&eventFrame))
	assert.Equal(t, protocol.FrameEvent, eventFrame.Type)
	assert.Equal(t, protocol.EventMaterializationProgress, eventFrame.Event)

	var evt materialize.ProgressEvent
	require.NoError(t, json.Unmarshal(eventFrame.Data, &evt))
	assert.Equal(t, float64(50), evt.Percentage)
}

func TestServer_RebindingMovesEventsToLatestConnection(t *testing.T) {
	s, url := startTestServer(t, func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		return protocol.OpenDocumentResult{}, nil
	})

	openDoc := func(conn *websocket.Conn, requestId string) {
		require.NoError(t, conn.WriteJSON(protocol.Frame{
			Type:      protocol.FrameRequest,
			RequestId: requestId,
			Method:    protocol.MethodOpenDocument,
			Params:    json.RawMessage(`{"documentId":"doc1","source":"a.gdx"}`),
		}))
		var resp protocol.Frame
		require.NoError(t, conn.ReadJSON(&resp))
	}

	connA := dial(t, url)
	openDoc(connA, "a1")

	connB := dial(t, url)
	openDoc(connB, "b1")

	sink := NewEventSink(s)
	sink.EmitComplete(materialize.CompleteEvent{DocumentId: model.DocumentId("doc1"), SymbolName: "demand"})

	connB.SetReadDeadline(time.Now().Add(2 * time.Second))
	var eventFrame protocol.Frame
	require.NoError(t, connB.ReadJSON(&eventFrame))
	assert.Equal(t, protocol.EventMaterializationComplete, eventFrame.Event)

	connA.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	err := connA.ReadJSON(&eventFrame)
	assert.Error(t, err)
}

func TestCheckLoopbackOrigin(t *testing.T) {
	allowed := []string{"", "http://127.0.0.1:3000", "http://localhost:8080"}
	for _, origin := range allowed {
		req, _ := http.NewRequest(http.MethodGet, "http://127.0.0.1/", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		assert.True(t, checkLoopbackOrigin(req), "expected origin %q to be allowed", origin)
	}

	req, _ := http.NewRequest(http.MethodGet, "http://127.0.0.1/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, checkLoopbackOrigin(req))
}

