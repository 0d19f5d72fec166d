// Package chat provides the WebSocket chat transport.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ErrUserUnreachable is returned when a user has no connection that accepted the message.
var ErrUserUnreachable = errors.New("user unreachable")

const writeTimeout = 10 * time.Second

// Frame is the JSON envelope exchanged over the socket.
type Frame struct {
	Type   string    `json:"type"`
	Text   string    `json:"text,omitempty"`
	Error  string    `json:"error,omitempty"`
	SentAt time.Time `json:"sent_at,omitzero"`
}

// Hub tracks open chat connections per user and delivers outbound text.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// Register adds a connection for a user.
func (h *Hub) Register(userID, connID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[userID]; !exists {
		h.active[userID] = make(map[string]*websocket.Conn)
	}
	if existing, exists := h.active[userID][connID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "connection replaced")
	}

	h.active[userID][connID] = conn
	slog.Info("Chat connection registered", "user_id", userID, "conn_id", connID)
}

// Unregister removes a connection if it is still the registered one.
func (h *Hub) Unregister(userID, connID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.active[userID]; ok {
		if current, exists := conns[connID]; exists && current == conn {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(h.active, userID)
			}
			slog.Info("Chat connection unregistered", "user_id", userID, "conn_id", connID)
		}
	}
}

// Connections returns how many connections a user has open.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[userID])
}

// CloseAll closes every connection, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, conns := range h.active {
		for _, conn := range conns {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		delete(h.active, userID)
	}
}

// SendText delivers text to every open connection of the user. It fails with
// ErrUserUnreachable unless at least one connection accepted the message.
func (h *Hub) SendText(ctx context.Context, userID, text string) error {
	data, err := json.Marshal(Frame{Type: "message", Text: text, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.active[userID]))
	for _, conn := range h.active[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return fmt.Errorf("%w: %s has no open connection", ErrUserUnreachable, userID)
	}

	delivered := 0
	var lastErr error
	for _, conn := range conns {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := conn.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			slog.Debug("Chat write failed", "user_id", userID, "error", err)
			lastErr = err
			continue
		}
		delivered++
	}

	if delivered == 0 {
		return fmt.Errorf("%w: %s: %v", ErrUserUnreachable, userID, lastErr)
	}
	return nil
}
