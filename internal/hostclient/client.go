// Package hostclient is the Client Library (C9, spec §4.8): it forks
// the gdx-viewer-server process, waits for its readiness line on
// stdout, dials the loopback WebSocket it announces, and demultiplexes
// request/response/event frames for callers. Modeled on the teacher's
// qntx-code/langserver/gopls.StdioClient (fork-a-process, pending-map
// demux) adapted from an stdio transport to a WebSocket one, since the
// server's stdio here carries only the readiness line and diagnostics.
//
// hostclient depends only on internal/protocol and internal/model so
// embedding applications never link the engine driver.
package hostclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chrispahm/gdx-viewer/internal/protocol"
)

// diagnosticBufferSize bounds each of stdout/stderr's rolling capture
// (spec §4.8: "bounded to 8 KiB each for diagnostics").
const diagnosticBufferSize = 8 * 1024

// readyTimeout is how long Launch waits for the readiness line before
// giving up and killing the child process (spec §4.8: "waits up to
// 30 s for the ready message").
const readyTimeout = 30 * time.Second

// readyMessage mirrors supervisor.ReadyMessage without importing
// internal/supervisor, keeping hostclient's dependency surface to
// protocol and model only.
type readyMessage struct {
	Type string `json:"type"`
	Port int    `json:"port"`
	Pid  int    `json:"pid"`
}

// EventHandler receives event frames pushed by the server (spec §4.7),
// e.g. materialization progress/completion/error notifications.
type EventHandler func(event string, data json.RawMessage)

// Client forks a server process and exposes its RPC methods over the
// WebSocket connection the process announces.
type Client struct {
	cmd    *exec.Cmd
	conn   *websocket.Conn
	stdout *ringBuffer
	stderr *ringBuffer

	mu      sync.Mutex
	pending map[string]chan protocol.Frame
	closed  bool

	onEvent EventHandler
}

// Launch forks binaryPath with the legacy extension path and options
// JSON positional arguments the Process Supervisor expects (spec
// §6.1), captures its stdio into bounded ring buffers, waits for the
// readiness line, and dials the announced WebSocket port.
func Launch(ctx context.Context, binaryPath, legacyExtensionPath, optionsJSON string, onEvent EventHandler) (*Client, error) {
	cmd := exec.CommandContext(ctx, binaryPath, legacyExtensionPath, optionsJSON)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create server stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create server stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start server process: %w", err)
	}

	c := &Client{
		cmd:     cmd,
		stdout:  newRingBuffer(diagnosticBufferSize),
		stderr:  newRingBuffer(diagnosticBufferSize),
		pending: make(map[string]chan protocol.Frame),
		onEvent: onEvent,
	}

	readyCh := make(chan readyMessage, 1)
	errCh := make(chan error, 1)
	go c.readStdout(stdoutPipe, readyCh, errCh)
	go io.Copy(c.stderr, stderrPipe)

	var ready readyMessage
	select {
	case ready = <-readyCh:
	case err := <-errCh:
		c.cmd.Process.Kill()
		return nil, fmt.Errorf("server process exited before becoming ready: %w (stderr: %s)", err, c.stderr.String())
	case <-time.After(readyTimeout):
		c.cmd.Process.Kill()
		return nil, fmt.Errorf("server process did not report ready within %s (stderr: %s)", readyTimeout, c.stderr.String())
	case <-ctx.Done():
		c.cmd.Process.Kill()
		return nil, ctx.Err()
	}

	url := fmt.Sprintf("ws://127.0.0.1:%d/", ready.Port)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		c.cmd.Process.Kill()
		return nil, fmt.Errorf("failed to dial server at %s: %w", url, err)
	}
	c.conn = conn

	go c.readLoop()

	return c, nil
}

// newClientFromConn wires a Client around an already-established
// WebSocket connection, skipping the process fork. Used by tests to
// exercise the request/response demux and event delivery without
// building and launching a real server binary.
func newClientFromConn(conn *websocket.Conn, onEvent EventHandler) *Client {
	c := &Client{
		conn:    conn,
		stdout:  newRingBuffer(diagnosticBufferSize),
		stderr:  newRingBuffer(diagnosticBufferSize),
		pending: make(map[string]chan protocol.Frame),
		onEvent: onEvent,
	}
	go c.readLoop()
	return c
}

// readStdout scans the child's stdout line by line, teeing every line
// into the diagnostic ring buffer and parsing the first well-formed
// readiness line it finds.
func (c *Client) readStdout(r io.Reader, readyCh chan<- readyMessage, errCh chan<- error) {
	scanner := bufio.NewScanner(r)
	found := false
	for scanner.Scan() {
		line := scanner.Bytes()
		c.stdout.Write(line)
		c.stdout.Write([]byte("\n"))

		if found {
			continue
		}
		var msg readyMessage
		if err := json.Unmarshal(line, &msg); err == nil && msg.Type == "ready" && msg.Port > 0 {
			found = true
			readyCh <- msg
		}
	}
	if !found {
		if err := scanner.Err(); err != nil {
			errCh <- err
			return
		}
		errCh <- fmt.Errorf("server stdout closed without a readiness line")
	}
}

// readLoop demultiplexes incoming frames: responses are routed to the
// pending caller by requestId, events to the registered EventHandler.
func (c *Client) readLoop() {
	for {
		var frame protocol.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			c.failPending(err)
			return
		}

		switch frame.Type {
		case protocol.FrameResponse:
			c.mu.Lock()
			ch, ok := c.pending[frame.RequestId]
			if ok {
				delete(c.pending, frame.RequestId)
			}
			c.mu.Unlock()
			if ok {
				ch <- frame
			}
		case protocol.FrameEvent:
			if c.onEvent != nil {
				c.onEvent(frame.Event, frame.Data)
			}
		}
	}
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		ch <- protocol.Frame{
			Type:      protocol.FrameResponse,
			RequestId: id,
			Error:     &protocol.ErrorPayload{Message: fmt.Sprintf("connection closed: %v", err), Kind: "TransientEngine"},
		}
		delete(c.pending, id)
	}
}

// Call invokes method with params and unmarshals the result into out
// (which may be nil to discard a successful result).
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode params for %s: %w", method, err)
	}

	requestId := uuid.NewString()
	respCh := make(chan protocol.Frame, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client is closed")
	}
	c.pending[requestId] = respCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, requestId)
		c.mu.Unlock()
	}()

	frame := protocol.Frame{
		Type:      protocol.FrameRequest,
		RequestId: requestId,
		Method:    method,
		Params:    paramsJSON,
	}
	if err := c.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to send %s request: %w", method, err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return fmt.Errorf("%s failed (%s): %s", method, resp.Error.Kind, resp.Error.Message)
		}
		if out != nil && resp.Result != nil {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return fmt.Errorf("failed to decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stdout returns the captured tail of the server's standard output,
// for diagnostics when a call or launch fails.
func (c *Client) Stdout() string { return c.stdout.String() }

// Stderr returns the captured tail of the server's standard error.
func (c *Client) Stderr() string { return c.stderr.String() }

// Close tears the connection and the child process down: it sends the
// process SIGTERM and waits for it to exit; if the supplied context
// ends first, the process is killed via Process.Kill.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
	}

	if c.cmd == nil || c.cmd.Process == nil {
		return nil
	}

	signalErr := c.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		c.cmd.Process.Kill()
		return signalErr
	}
}
