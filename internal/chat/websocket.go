package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ashureev/checkin/internal/identity"
)

// TextHandler consumes inbound chat text.
type TextHandler interface {
	HandleText(ctx context.Context, userID, text string) error
}

// Handler upgrades requests to chat WebSockets.
type Handler struct {
	hub           *Hub
	inbound       TextHandler
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a chat WebSocket handler.
func NewHandler(hub *Hub, inbound TextHandler, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		hub:           hub,
		inbound:       inbound,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	slog.Info("Chat connection request", "user_id", userID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	connID := uuid.NewString()
	h.hub.Register(userID, connID, ws)
	defer h.hub.Unregister(userID, connID, ws)

	if err := h.writeFrame(r.Context(), ws, Frame{Type: "hello", Text: userID}); err != nil {
		slog.Debug("Failed to send hello", "error", err)
		return
	}

	h.readLoop(r.Context(), ws, userID)
	slog.Info("Chat connection ended", "user_id", userID, "conn_id", connID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, userID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			// Plain text frames are treated as messages.
			frame = Frame{Type: "message", Text: string(data)}
		}

		switch frame.Type {
		case "message":
			if err := h.inbound.HandleText(ctx, userID, frame.Text); err != nil {
				slog.Error("Failed to handle chat message", "user_id", userID, "error", err)
				if werr := h.writeFrame(ctx, ws, Frame{Type: "error", Error: "message could not be processed"}); werr != nil {
					slog.Debug("Failed to send error frame", "error", werr)
				}
			}
		case "ping":
			if err := h.writeFrame(ctx, ws, Frame{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		default:
			slog.Debug("Ignoring chat frame", "type", frame.Type, "user_id", userID)
		}
	}
}

func (h *Handler) writeFrame(ctx context.Context, ws *websocket.Conn, frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}
