// Package api provides HTTP handlers for the check-in API.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/checkin/internal/checkin"
	"github.com/ashureev/checkin/internal/domain"
	"github.com/ashureev/checkin/internal/identity"
	"github.com/ashureev/checkin/internal/store"
)

// TokenHeader carries the shared secret of a trusted chat bridge.
const TokenHeader = "X-Checkin-Token"

// CheckinService is the part of checkin.Service exposed over HTTP.
type CheckinService interface {
	TriggerScheduledCheck(ctx context.Context, userID string, now time.Time) (checkin.Outcome, error)
	TriggerManualCheck(ctx context.Context, userID string) (checkin.Outcome, error)
	Pending(ctx context.Context, userID string) (*domain.PendingQuestion, error)
}

// TextHandler consumes inbound chat text.
type TextHandler interface {
	HandleText(ctx context.Context, userID, text string) error
}

// Handler serves the check-in API.
type Handler struct {
	repo         store.Repository
	svc          CheckinService
	inbound      TextHandler
	inboundToken string
	now          func() time.Time
}

// NewHandler creates a new Handler with common dependencies. Requests
// carrying inboundToken in TokenHeader may act for any user; an empty
// token disables the bridge.
func NewHandler(repo store.Repository, svc CheckinService, inbound TextHandler, inboundToken string) *Handler {
	return &Handler{
		repo:         repo,
		svc:          svc,
		inbound:      inbound,
		inboundToken: inboundToken,
		now:          time.Now,
	}
}

func (h *Handler) isBridge(r *http.Request) bool {
	if h.inboundToken == "" {
		return false
	}
	got := r.Header.Get(TokenHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.inboundToken)) == 1
}

// canActFor reports whether the caller may read or change userID's data.
func (h *Handler) canActFor(r *http.Request, userID string) bool {
	if h.isBridge(r) {
		return true
	}
	caller := identity.UserIDFromContext(r.Context())
	return caller != "" && caller == userID
}

// requireUser limits a {userID} route to that user or a trusted bridge.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.canActFor(r, chi.URLParam(r, "userID")) {
			Error(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
