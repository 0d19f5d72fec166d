// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/checkin/internal/domain"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSessionClosed is returned when closing a session that already has an end time.
	ErrSessionClosed = errors.New("session already closed")
	// ErrDuplicateResponse is returned when a question is answered twice within a session.
	ErrDuplicateResponse = errors.New("response already recorded")
)

// Repository defines the persistence contract for settings, questions,
// sessions and responses. Every mutation commits immediately.
type Repository interface {
	// GetUserSettings returns nil, nil when the user has no settings row.
	GetUserSettings(ctx context.Context, userID string) (*domain.UserSettings, error)

	// UpsertUserSettings inserts or replaces the settings row keyed by user id.
	UpsertUserSettings(ctx context.Context, settings *domain.UserSettings) error

	// ListUserSettings returns every configured user.
	ListUserSettings(ctx context.Context) ([]*domain.UserSettings, error)

	// NextActiveQuestion returns the active question with the lowest order_num
	// greater than afterOrder, or nil, nil when none is left.
	NextActiveQuestion(ctx context.Context, afterOrder int) (*domain.Question, error)

	// ListQuestions returns all questions ordered by order_num.
	ListQuestions(ctx context.Context) ([]*domain.Question, error)

	// SeedQuestions inserts questions whose order_num is not present yet.
	SeedQuestions(ctx context.Context, questions []domain.Question) (int64, error)

	// CreateSession opens a session and returns its generated id.
	CreateSession(ctx context.Context, userID string, startTime time.Time) (int64, error)

	// CloseSession sets end time, duration and status on an open session.
	// Returns ErrSessionClosed if it was already closed.
	CloseSession(ctx context.Context, sessionID int64, endTime time.Time, durationSeconds int64, status domain.SessionStatus) error

	// GetSession returns ErrNotFound for unknown ids.
	GetSession(ctx context.Context, sessionID int64) (*domain.Session, error)

	// GetOpenSession returns the most recent open session of a user, or nil, nil.
	GetOpenSession(ctx context.Context, userID string) (*domain.Session, error)

	// LastSessionStart returns the start time of the newest session of a user.
	LastSessionStart(ctx context.Context, userID string) (time.Time, bool, error)

	// ListSessions returns the newest sessions of a user first.
	ListSessions(ctx context.Context, userID string, limit int) ([]*domain.Session, error)

	// ListOpenSessionsBefore returns open sessions started before cutoff.
	ListOpenSessionsBefore(ctx context.Context, startedBefore time.Time) ([]*domain.Session, error)

	// InsertResponse stores one answer. Returns ErrDuplicateResponse when the
	// question was already answered in that session.
	InsertResponse(ctx context.Context, response *domain.Response) (int64, error)

	// ListResponses returns the answers of a session in question order.
	ListResponses(ctx context.Context, sessionID int64) ([]*domain.Response, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// PendingStore holds the per-user pending-question slot.
type PendingStore interface {
	// GetPending returns nil, nil when the user has no pending question.
	GetPending(ctx context.Context, userID string) (*domain.PendingQuestion, error)

	// SavePending creates or replaces the slot for p.UserID.
	SavePending(ctx context.Context, p *domain.PendingQuestion) error

	// DeletePending clears the slot; missing slots are not an error.
	DeletePending(ctx context.Context, userID string) error

	// ListPendingBefore returns slots whose question was sent before cutoff.
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*domain.PendingQuestion, error)
}
