package domain

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transport defines the interface for MCP transport mechanisms.
// Implementations handle communication between MCP clients and the server
// using either stdio or HTTP transport.
type Transport interface {
	// Start begins listening for incoming MCP messages.
	// Returns an error if the transport cannot be initialized.
	Start(ctx context.Context) error

	// Send transmits a JSON-RPC response to the client.
	// Returns an error if the response cannot be sent.
	Send(response *Response) error

	// Receive returns a channel for incoming JSON-RPC requests.
	// The channel is closed when the transport is shut down.
	Receive() <-chan *Request

	// Close gracefully shuts down the transport.
	Close() error
}

// StdioTransport implements Transport using stdin/stdout for communication.
// It reads newline-delimited JSON-RPC messages from stdin and writes
// responses to stdout.
type StdioTransport struct {
	reader  *bufio.Reader
	writer  *bufio.Writer
	reqChan chan *Request
	mu      sync.Mutex
	closed  bool
}

// NewStdioTransport creates a StdioTransport on os.Stdin and os.Stdout.
func NewStdioTransport() *StdioTransport {
	return NewStdioTransportWithIO(os.Stdin, os.Stdout)
}

// NewStdioTransportWithIO creates a new StdioTransport with custom IO streams.
func NewStdioTransportWithIO(reader io.Reader, writer io.Writer) *StdioTransport {
	return &StdioTransport{
		reader:  bufio.NewReader(reader),
		writer:  bufio.NewWriter(writer),
		reqChan: make(chan *Request, 10),
	}
}

// Start spawns the read loop.
func (t *StdioTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport is closed")
	}
	t.mu.Unlock()

	go t.readLoop(ctx)
	return nil
}

// readLoop continuously reads from stdin and parses JSON-RPC requests.
func (t *StdioTransport) readLoop(ctx context.Context) {
	defer close(t.reqChan)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := t.reader.ReadString('\n')
		if err != nil && line == "" {
			if err != io.EOF {
				slog.Error("stdio read failed", "err", err)
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			if err != nil {
				return
			}
			continue
		}

		var req Request
		if jsonErr := json.Unmarshal([]byte(line), &req); jsonErr != nil {
			t.sendError(nil, ParseError, "Parse error", jsonErr.Error())
		} else if req.JSONRPC != "2.0" {
			t.sendError(req.ID, InvalidRequest, "Invalid Request", "invalid jsonrpc version")
		} else {
			select {
			case t.reqChan <- &req:
			case <-ctx.Done():
				return
			}
		}

		// A final line without a trailing newline arrives together with EOF.
		if err != nil {
			return
		}
	}
}

// Send writes a JSON-RPC response to stdout as a single line.
func (t *StdioTransport) Send(response *Response) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport is closed")
	}

	if response.JSONRPC == "" {
		response.JSONRPC = "2.0"
	}

	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	if _, err := t.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}

	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush response: %w", err)
	}

	return nil
}

// Receive returns the channel for incoming JSON-RPC requests.
func (t *StdioTransport) Receive() <-chan *Request {
	return t.reqChan
}

// Close marks the transport closed. The request channel is closed by the
// read loop.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	return nil
}

func (t *StdioTransport) sendError(id interface{}, code int, message string, data interface{}) {
	_ = t.Send(&Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
}

// HTTPTransport implements Transport using HTTP with SSE for communication.
// It exposes two endpoints:
//  1. SSE endpoint (GET /mcp) for server-to-client messages
//  2. HTTP POST endpoint (/mcp/message) for client-to-server messages
type HTTPTransport struct {
	host    string
	port    int
	routes  map[string]http.Handler
	server  *http.Server
	reqChan chan *Request
	mu      sync.Mutex
	closed  bool

	sessions   map[string]*sseSession
	sessionsMu sync.RWMutex
}

// sseSession represents an active SSE connection
type sseSession struct {
	id          string
	messageChan chan *Response
	done        chan struct{}
	closeOnce   sync.Once
}

func (s *sseSession) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithRoute mounts an additional handler, such as a metrics endpoint.
func WithRoute(path string, handler http.Handler) HTTPOption {
	return func(t *HTTPTransport) {
		t.routes[path] = handler
	}
}

// NewHTTPTransport creates a new HTTPTransport instance.
func NewHTTPTransport(host string, port int, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		host:     host,
		port:     port,
		routes:   make(map[string]http.Handler),
		reqChan:  make(chan *Request, 10),
		sessions: make(map[string]*sseSession),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Handler returns the HTTP handler serving the MCP endpoints and any extra
// routes.
func (t *HTTPTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", t.handleSSE)
	mux.HandleFunc("/mcp/message", t.handleMessage)
	for path, handler := range t.routes {
		mux.Handle(path, handler)
	}
	return mux
}

// Start begins the HTTP server and starts listening for incoming requests.
func (t *HTTPTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport is closed")
	}
	t.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", t.host, t.port),
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := t.server
	t.mu.Unlock()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http transport stopped", "addr", server.Addr, "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		_ = t.Close()
	}()

	return nil
}

// handleSSE handles SSE connections (GET requests) for server-to-client messages.
func (t *HTTPTransport) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	session := &sseSession{
		id:          uuid.NewString(),
		messageChan: make(chan *Response, 10),
		done:        make(chan struct{}),
	}

	t.sessionsMu.Lock()
	t.sessions[session.id] = session
	t.sessionsMu.Unlock()

	// Tell the client where to post messages.
	fmt.Fprintf(w, "event: endpoint\ndata: /mcp/message?sessionId=%s\n\n", session.id)
	flusher.Flush()

	slog.Info("sse session established", "session", session.id, "remote", r.RemoteAddr)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Info("sse session disconnected", "session", session.id)
			t.sessionsMu.Lock()
			delete(t.sessions, session.id)
			t.sessionsMu.Unlock()
			session.close()
			return
		case <-session.done:
			return
		case response := <-session.messageChan:
			data, err := json.Marshal(response)
			if err != nil {
				slog.Error("failed to marshal sse response", "session", session.id, "err", err)
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

// handleMessage handles HTTP POST requests for client-to-server messages.
func (t *HTTPTransport) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "Missing sessionId parameter", http.StatusBadRequest)
		return
	}

	t.sessionsMu.RLock()
	session, exists := t.sessions[sessionID]
	t.sessionsMu.RUnlock()

	if !exists {
		http.Error(w, "Invalid session", http.StatusBadRequest)
		return
	}

	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		t.sendErrorToSession(session, nil, ParseError, "Parse error", err.Error())
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if req.JSONRPC != "2.0" {
		t.sendErrorToSession(session, req.ID, InvalidRequest, "Invalid Request", "invalid jsonrpc version")
		w.WriteHeader(http.StatusAccepted)
		return
	}
	req.SessionID = sessionID

	// Holding mu keeps Close from closing reqChan mid-send.
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}

	select {
	case t.reqChan <- &req:
		w.WriteHeader(http.StatusAccepted)
	default:
		t.sendErrorToSession(session, req.ID, InternalError, "Internal error", "request queue full")
		w.WriteHeader(http.StatusServiceUnavailable)
	}
}

// sendErrorToSession sends an error response to a specific session.
func (t *HTTPTransport) sendErrorToSession(session *sseSession, id interface{}, code int, message string, data interface{}) {
	response := &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}

	select {
	case session.messageChan <- response:
	default:
		slog.Warn("dropped error response: session channel full", "session", session.id)
	}
}

// Send delivers a response to the session that issued the request, or to
// every session when the response carries no session id.
func (t *HTTPTransport) Send(response *Response) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport is closed")
	}
	t.mu.Unlock()

	if response.JSONRPC == "" {
		response.JSONRPC = "2.0"
	}

	t.sessionsMu.RLock()
	defer t.sessionsMu.RUnlock()

	if response.SessionID != "" {
		session, ok := t.sessions[response.SessionID]
		if !ok {
			return fmt.Errorf("session %s is no longer active", response.SessionID)
		}
		select {
		case session.messageChan <- response:
			return nil
		default:
			return fmt.Errorf("session %s channel full", response.SessionID)
		}
	}

	if len(t.sessions) == 0 {
		return fmt.Errorf("no active sessions")
	}

	for _, session := range t.sessions {
		select {
		case session.messageChan <- response:
		default:
			slog.Warn("dropped response: session channel full", "session", session.id)
		}
	}

	return nil
}

// Receive returns the channel for incoming JSON-RPC requests.
func (t *HTTPTransport) Receive() <-chan *Request {
	return t.reqChan
}

// Close gracefully shuts down the HTTP server and all SSE sessions.
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	server := t.server
	t.mu.Unlock()

	t.sessionsMu.Lock()
	for _, session := range t.sessions {
		session.close()
	}
	t.sessions = make(map[string]*sseSession)
	t.sessionsMu.Unlock()

	var err error
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = server.Shutdown(ctx)
	}

	t.mu.Lock()
	close(t.reqChan)
	t.mu.Unlock()
	return err
}
