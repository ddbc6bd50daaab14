// Package rpc implements the WebSocket RPC Layer (spec §4.7): a
// loopback-only listener that parses request frames, dispatches them
// to the Request Dispatcher, writes response frames, and fans out
// materialization events to whichever connection last referenced a
// document. Modeled on the teacher's server.QNTXServer hub loop and
// server/client.go read/write pumps.
package rpc

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chrispahm/gdx-viewer/internal/errs"
	"github.com/chrispahm/gdx-viewer/internal/logging"
	"github.com/chrispahm/gdx-viewer/internal/materialize"
	"github.com/chrispahm/gdx-viewer/internal/model"
	"github.com/chrispahm/gdx-viewer/internal/protocol"
)

var log = logging.Named("rpc")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024 * 1024
)

// Dispatch is the subset of dispatch.Dispatcher the Server needs.
type Dispatch interface {
	Dispatch(ctx context.Context, method string, params json.RawMessage) (any, error)
}

// Server accepts loopback WebSocket connections and speaks the request/
// response/event frame protocol over each one.
type Server struct {
	dispatcher Dispatch
	upgrader   websocket.Upgrader
	listener   net.Listener
	httpServer *http.Server

	mu       sync.RWMutex
	bindings map[model.DocumentId]*client
	clients  map[*client]struct{}
}

// NewServer creates a Server bound to 127.0.0.1 on an OS-assigned port.
// dispatcher may be nil at construction time and supplied later via
// SetDispatcher, since the RPC Server's EventSink is needed to build the
// Request Dispatcher it will itself be wired to.
func NewServer(dispatcher Dispatch) *Server {
	return &Server{
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkLoopbackOrigin,
		},
		bindings: make(map[model.DocumentId]*client),
		clients:  make(map[*client]struct{}),
	}
}

// SetDispatcher wires the dispatcher that handles request frames. Must
// be called before the first connection is accepted.
func (s *Server) SetDispatcher(dispatcher Dispatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatcher = dispatcher
}

func (s *Server) dispatch(ctx context.Context, method string, params json.RawMessage) (any, error) {
	s.mu.RLock()
	d := s.dispatcher
	s.mu.RUnlock()
	return d.Dispatch(ctx, method, params)
}

// checkLoopbackOrigin accepts requests with no Origin header (clients
// embedding this server never send one) and requests whose Origin
// contains "127.0.0.1" or "localhost", so a loopback browser-based dev
// client works unmodified. The check is a substring match; the Origin's
// host is not parsed.
func checkLoopbackOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return strings.Contains(origin, "127.0.0.1") || strings.Contains(origin, "localhost")
}

// Start binds the loopback listener and begins serving. Returns once
// the listener is bound; serving happens in a background goroutine.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return errs.Wrap(err, "failed to bind loopback listener")
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)
	s.httpServer = &http.Server{Handler: mux}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Errorw("websocket listener stopped unexpectedly", "error", err)
		}
	}()
	return nil
}

// Port returns the bound TCP port. Valid only after Start succeeds.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Shutdown closes the listener and every active connection.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.mu.RLock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.mu.RUnlock()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		server: s,
		conn:   conn,
		send:   make(chan protocol.Frame, 32),
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

// bind records that documentId's events should be delivered to c,
// rebinding over any previous connection (spec §4.7: "a later request
// from another connection rebinds").
func (s *Server) bind(documentId model.DocumentId, c *client) {
	if documentId == "" {
		return
	}
	s.mu.Lock()
	s.bindings[documentId] = c
	s.mu.Unlock()
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	for documentId, bound := range s.bindings {
		if bound == c {
			delete(s.bindings, documentId)
		}
	}
	s.mu.Unlock()
}

func (s *Server) sendEvent(documentId model.DocumentId, event string, data any) {
	s.mu.RLock()
	c, ok := s.bindings[documentId]
	s.mu.RUnlock()
	if !ok {
		return
	}

	payload, err := json.Marshal(data)
	if err != nil {
		log.Warnw("failed to encode event payload", "event", event, "error", err)
		return
	}
	c.trySend(protocol.Frame{Type: protocol.FrameEvent, Event: event, Data: payload})
}

// EventSink adapts the Server to materialize.EventSink so the
// Materialization Manager can emit directly to the bound connection.
type EventSink struct {
	server *Server
}

// NewEventSink builds the EventSink the dispatcher wires into the
// Materialization Manager.
func NewEventSink(server *Server) EventSink {
	return EventSink{server: server}
}

func (e EventSink) EmitProgress(evt materialize.ProgressEvent) {
	e.server.sendEvent(evt.DocumentId, protocol.EventMaterializationProgress, evt)
}

func (e EventSink) EmitComplete(evt materialize.CompleteEvent) {
	e.server.sendEvent(evt.DocumentId, protocol.EventMaterializationComplete, evt)
}

func (e EventSink) EmitError(evt materialize.ErrorEvent) {
	e.server.sendEvent(evt.DocumentId, protocol.EventMaterializationError, evt)
}
