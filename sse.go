package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SSEConnection is one active event-stream client.
type SSEConnection struct {
	ID          string
	Writer      http.ResponseWriter
	Flusher     http.Flusher
	Context     context.Context
	ConnectedAt time.Time
	mu          sync.Mutex
}

// SSEHub fans agent events (captured steps, replay progress, device
// changes) out to connected clients.
type SSEHub struct {
	connections map[string]*SSEConnection
	mu          sync.RWMutex
}

func NewSSEHub() *SSEHub {
	return &SSEHub{connections: make(map[string]*SSEConnection)}
}

// Register adds a client connection. The caller keeps the handler alive
// until the request context ends.
func (h *SSEHub) Register(w http.ResponseWriter, req *http.Request) (*SSEConnection, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("SSE not supported: ResponseWriter does not implement http.Flusher")
	}

	conn := &SSEConnection{
		ID:          uuid.New().String(),
		Writer:      w,
		Flusher:     flusher,
		Context:     req.Context(),
		ConnectedAt: time.Now(),
	}

	h.mu.Lock()
	h.connections[conn.ID] = conn
	h.mu.Unlock()

	LogDebug("sse").Str("connId", conn.ID).Msg("SSE client connected")
	return conn, nil
}

// Unregister removes a client connection.
func (h *SSEHub) Unregister(id string) {
	h.mu.Lock()
	delete(h.connections, id)
	h.mu.Unlock()
	LogDebug("sse").Str("connId", id).Msg("SSE client disconnected")
}

// ClientCount reports the number of connected clients.
func (h *SSEHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Broadcast sends a named event to every connected client. A failed
// write only drops that client.
func (h *SSEHub) Broadcast(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		LogError("sse").Str("event", event).Err(err).Msg("Failed to marshal event")
		return
	}

	h.mu.RLock()
	conns := make([]*SSEConnection, 0, len(h.connections))
	for _, conn := range h.connections {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	// Write outside the registry lock.
	for _, conn := range conns {
		if err := conn.WriteEvent(event, string(data)); err != nil {
			h.Unregister(conn.ID)
		}
	}
}

// WriteEvent writes one SSE frame to the connection.
func (c *SSEConnection) WriteEvent(event, data string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.Context.Done():
		return fmt.Errorf("connection closed")
	default:
	}

	if _, err := c.Writer.Write([]byte(formatSSEEvent(event, data))); err != nil {
		return err
	}
	c.Flusher.Flush()
	return nil
}

// formatSSEEvent renders an SSE frame, splitting multi-line payloads
// across data: lines per the protocol.
func formatSSEEvent(event, data string) string {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteString("\n")
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}
