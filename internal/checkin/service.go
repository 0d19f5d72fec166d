// Package checkin runs check-in sessions: it opens sessions, walks users
// through the active questions in order and records their answers.
package checkin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/checkin/internal/domain"
	"github.com/ashureev/checkin/internal/schedule"
	"github.com/ashureev/checkin/internal/store"
)

// Outcome describes what a trigger did.
type Outcome string

const (
	OutcomeStarted              Outcome = "started"
	OutcomeSkippedNoSettings    Outcome = "skipped_no_settings"
	OutcomeSkippedOutsideWindow Outcome = "skipped_outside_window"
	OutcomeSkippedActiveSession Outcome = "skipped_active_session"
)

// Sender delivers text to a user.
type Sender interface {
	SendText(ctx context.Context, userID, text string) error
}

// Dispatcher runs fn serially with every other call for the same key.
type Dispatcher interface {
	Do(ctx context.Context, key string, fn func(context.Context) error) error
}

// Config holds service tuning.
type Config struct {
	// SessionTTL bounds how long a session may wait for an answer. Zero disables expiry.
	SessionTTL time.Duration
}

// Service is the entry point for all session state transitions.
// Every transition for a user runs on that user's dispatcher queue.
type Service struct {
	repo       store.Repository
	pending    store.PendingStore
	sender     Sender
	dispatcher Dispatcher
	ledger     *Ledger
	recorder   *Recorder
	ttl        time.Duration
	now        func() time.Time
}

// NewService creates a check-in service.
func NewService(repo store.Repository, pending store.PendingStore, sender Sender, dispatcher Dispatcher, cfg Config) *Service {
	s := &Service{
		repo:       repo,
		pending:    pending,
		sender:     sender,
		dispatcher: dispatcher,
		recorder:   NewRecorder(repo),
		ttl:        cfg.SessionTTL,
		now:        time.Now,
	}
	s.ledger = NewLedger(repo, func() time.Time { return s.now() })
	return s
}

// TriggerScheduledCheck starts a session if now falls inside the user's window.
func (s *Service) TriggerScheduledCheck(ctx context.Context, userID string, now time.Time) (Outcome, error) {
	return s.trigger(ctx, userID, now, false)
}

// TriggerManualCheck starts a session regardless of the user's window.
func (s *Service) TriggerManualCheck(ctx context.Context, userID string) (Outcome, error) {
	return s.trigger(ctx, userID, s.now(), true)
}

// OnInboundText treats text as the answer to the user's pending question.
// It reports false when the user has no pending question.
func (s *Service) OnInboundText(ctx context.Context, userID, text string, receivedAt time.Time) (bool, error) {
	var handled bool
	err := s.dispatcher.Do(ctx, userID, func(ctx context.Context) error {
		var err error
		handled, err = s.answer(ctx, userID, text, receivedAt)
		return err
	})
	return handled, err
}

// Pending returns the user's pending question, or nil.
func (s *Service) Pending(ctx context.Context, userID string) (*domain.PendingQuestion, error) {
	p, err := s.pending.GetPending(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load pending question: %w", err)
	}
	return p, nil
}

func (s *Service) trigger(ctx context.Context, userID string, now time.Time, force bool) (Outcome, error) {
	var outcome Outcome
	err := s.dispatcher.Do(ctx, userID, func(ctx context.Context) error {
		var err error
		outcome, err = s.start(ctx, userID, now, force)
		return err
	})
	return outcome, err
}

func (s *Service) start(ctx context.Context, userID string, now time.Time, force bool) (Outcome, error) {
	settings, err := s.repo.GetUserSettings(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load settings: %w", err)
	}
	if settings == nil {
		slog.Info("Check skipped, user has no settings", "user_id", userID, "force", force)
		return OutcomeSkippedNoSettings, nil
	}

	run, err := schedule.ShouldRun(settings, now, force)
	if err != nil {
		return "", fmt.Errorf("evaluate schedule: %w", err)
	}
	if !run {
		hour, _ := schedule.LocalHour(settings, now)
		slog.Info("Check skipped, outside active window",
			"user_id", userID,
			"timezone", settings.Timezone,
			"local_hour", hour,
			"start_hour", settings.StartHour,
			"end_hour", settings.EndHour)
		return OutcomeSkippedOutsideWindow, nil
	}

	open, err := s.repo.GetOpenSession(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load open session: %w", err)
	}
	if open != nil {
		slog.Info("Check skipped, session already open", "user_id", userID, "session_id", open.ID)
		return OutcomeSkippedActiveSession, nil
	}

	sessionID, err := s.ledger.Open(ctx, userID, now)
	if err != nil {
		return "", err
	}
	slog.Info("Check-in session opened", "user_id", userID, "session_id", sessionID, "force", force)

	if err := s.advance(ctx, userID, sessionID, 0); err != nil {
		return OutcomeStarted, err
	}
	return OutcomeStarted, nil
}
