package rpc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chrispahm/gdx-viewer/internal/errs"
	"github.com/chrispahm/gdx-viewer/internal/model"
	"github.com/chrispahm/gdx-viewer/internal/protocol"
)

// client is one accepted WebSocket connection. Modeled on the
// teacher's server.Client: a buffered send channel drained by
// writePump, and a readPump that enforces message-size and idle-
// connection limits via ping/pong deadlines.
type client struct {
	server *Server
	conn   *websocket.Conn
	send   chan protocol.Frame

	closeOnce sync.Once
}

func (c *client) trySend(f protocol.Frame) {
	select {
	case c.send <- f:
	default:
		log.Warnw("dropping frame, client send buffer full", "type", f.Type, "event", f.Event)
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.server.unregister(c)
		close(c.send)
		c.conn.Close()
	})
}

func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnw("websocket read error", "error", err)
			}
			return
		}

		var frame protocol.Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.trySend(errorResponse("", errs.KindInvalidInput.String(), "malformed request frame"))
			continue
		}
		if frame.Type != protocol.FrameRequest {
			continue
		}

		// Dispatched inline, not in a goroutine: the dispatcher FIFO
		// must observe requests from this connection in the order
		// readPump received them. writePump runs independently, so
		// this blocks neither pings nor frames already queued to send.
		c.handleRequest(frame)
	}
}

func (c *client) handleRequest(frame protocol.Frame) {
	if documentId := extractDocumentId(frame.Method, frame.Params); documentId != "" {
		c.server.bind(model.DocumentId(documentId), c)
	}

	result, err := c.server.dispatch(context.Background(), frame.Method, frame.Params)
	if err != nil {
		c.trySend(errorResponse(frame.RequestId, errs.GetKind(err).String(), errs.Sanitize(err.Error())))
		return
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		c.trySend(errorResponse(frame.RequestId, errs.KindInvalidInput.String(), "failed to encode response"))
		return
	}
	c.trySend(protocol.Frame{Type: protocol.FrameResponse, RequestId: frame.RequestId, Result: resultJSON})
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				log.Warnw("websocket write error", "error", err)
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

func errorResponse(requestId, kind, message string) protocol.Frame {
	return protocol.Frame{
		Type:      protocol.FrameResponse,
		RequestId: requestId,
		Error:     &protocol.ErrorPayload{Message: message, Kind: kind},
	}
}

// extractDocumentId reads the documentId field out of params for the
// methods that carry one, so the connection can be bound for later
// event delivery (spec §4.7). Methods with no documentId (ping) return
// an empty string and are never bound.
func extractDocumentId(method string, params json.RawMessage) string {
	switch method {
	case protocol.MethodOpenDocument, protocol.MethodCloseDocument,
		protocol.MethodMaterializeSymbol, protocol.MethodCancelMaterialization,
		protocol.MethodExecuteQuery, protocol.MethodGetDomainValues, protocol.MethodGetFilterOptions:
		var withID struct {
			DocumentId string `json:"documentId"`
		}
		if err := json.Unmarshal(params, &withID); err != nil {
			return ""
		}
		return withID.DocumentId
	default:
		return ""
	}
}
