package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/checkin/internal/checkin"
	"github.com/ashureev/checkin/internal/domain"
	"github.com/ashureev/checkin/internal/identity"
	"github.com/ashureev/checkin/internal/store"
)

const (
	defaultSessionLimit = 20
	maxSessionLimit     = 200
)

type settingsRequest struct {
	Timezone      string `json:"timezone"`
	StartHour     int    `json:"start_hour"`
	EndHour       int    `json:"end_hour"`
	IntervalHours int    `json:"interval_hours"`
}

type messageRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type outcomeResponse struct {
	UserID  string          `json:"user_id"`
	Outcome checkin.Outcome `json:"outcome"`
	Error   string          `json:"error,omitempty"`
}

// RegisterRoutes registers the API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/questions", h.ListQuestions)
		r.Post("/messages", h.PostMessage)
		r.Get("/sessions/{sessionID}/responses", h.ListResponses)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Use(h.requireUser)
			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.PutSettings)
			r.Post("/ask", h.Ask)
			r.Post("/check", h.Check)
			r.Get("/pending", h.GetPending)
			r.Get("/sessions", h.ListSessions)
		})
	})
}

// GetMe returns the caller's anonymous identity with their settings and pending question.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	settings, err := h.repo.GetUserSettings(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load settings", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	pending, err := h.svc.Pending(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load pending question", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load pending question")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":  userID,
		"settings": settings,
		"pending":  pending,
	})
}

// ListQuestions returns the question catalogue.
func (h *Handler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.repo.ListQuestions(r.Context())
	if err != nil {
		slog.Error("Failed to list questions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list questions")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"questions": questions})
}

// GetSettings returns a user's schedule settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	settings, err := h.repo.GetUserSettings(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load settings", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	if settings == nil {
		Error(w, http.StatusNotFound, "settings not found")
		return
	}
	JSON(w, http.StatusOK, settings)
}

// PutSettings validates and upserts a user's schedule settings.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req settingsRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	settings := &domain.UserSettings{
		UserID:        userID,
		Timezone:      strings.TrimSpace(req.Timezone),
		StartHour:     req.StartHour,
		EndHour:       req.EndHour,
		IntervalHours: req.IntervalHours,
	}
	if err := settings.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.UpsertUserSettings(r.Context(), settings); err != nil {
		slog.Error("Failed to save settings", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	saved, err := h.repo.GetUserSettings(r.Context(), userID)
	if err != nil || saved == nil {
		JSON(w, http.StatusOK, settings)
		return
	}
	JSON(w, http.StatusOK, saved)
}

// Ask starts a check-in now, ignoring the user's window.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	outcome, err := h.svc.TriggerManualCheck(r.Context(), userID)
	h.writeOutcome(w, userID, outcome, err)
}

// Check runs a scheduled-style check at the current server time.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	outcome, err := h.svc.TriggerScheduledCheck(r.Context(), userID, h.now())
	h.writeOutcome(w, userID, outcome, err)
}

func (h *Handler) writeOutcome(w http.ResponseWriter, userID string, outcome checkin.Outcome, err error) {
	if err != nil {
		slog.Error("Check-in trigger failed", "user_id", userID, "outcome", outcome, "error", err)
		status := http.StatusInternalServerError
		if outcome == checkin.OutcomeStarted {
			// The session opened but a question could not be delivered.
			status = http.StatusBadGateway
		}
		JSON(w, status, outcomeResponse{UserID: userID, Outcome: outcome, Error: "check-in failed"})
		return
	}
	JSON(w, http.StatusOK, outcomeResponse{UserID: userID, Outcome: outcome})
}

// GetPending returns the question the user still has to answer.
func (h *Handler) GetPending(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	pending, err := h.svc.Pending(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load pending question", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load pending question")
		return
	}
	if pending == nil {
		Error(w, http.StatusNotFound, "no pending question")
		return
	}
	JSON(w, http.StatusOK, pending)
}

// ListSessions returns the user's newest sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	limit := defaultSessionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSessionLimit)
	}

	sessions, err := h.repo.ListSessions(r.Context(), userID, limit)
	if err != nil {
		slog.Error("Failed to list sessions", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// ListResponses returns a session with its recorded answers.
func (h *Handler) ListResponses(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil || sessionID <= 0 {
		Error(w, http.StatusBadRequest, "invalid session id")
		return
	}

	session, err := h.repo.GetSession(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		slog.Error("Failed to load session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if !h.canActFor(r, session.UserID) {
		Error(w, http.StatusForbidden, "forbidden")
		return
	}

	responses, err := h.repo.ListResponses(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to list responses", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list responses")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"session":   session,
		"responses": responses,
	})
}

// PostMessage accepts inbound text from an external chat bridge.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	if !h.isBridge(r) {
		Error(w, http.StatusForbidden, "forbidden")
		return
	}

	var req messageRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		Error(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := h.inbound.HandleText(r.Context(), req.UserID, req.Text); err != nil {
		slog.Error("Failed to handle inbound message", "user_id", req.UserID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to handle message")
		return
	}
	JSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
