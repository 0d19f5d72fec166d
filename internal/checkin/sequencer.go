package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/checkin/internal/domain"
	"github.com/ashureev/checkin/internal/store"
)

// advance sends the first active question after afterOrder, or completes
// the session when none is left. The pending slot is written before the
// question goes out so a crash never leaves a sent question untracked.
// Any failure before the question is out closes the session as aborted.
func (s *Service) advance(ctx context.Context, userID string, sessionID int64, afterOrder int) error {
	question, err := s.repo.NextActiveQuestion(ctx, afterOrder)
	if err != nil {
		s.abort(ctx, userID, sessionID, false)
		return fmt.Errorf("load next question: %w", err)
	}
	if question == nil {
		return s.complete(ctx, userID, sessionID)
	}

	pending := &domain.PendingQuestion{
		UserID:     userID,
		SessionID:  sessionID,
		QuestionID: question.ID,
		OrderNum:   question.OrderNum,
		SentAt:     s.now(),
	}
	if err := s.pending.SavePending(ctx, pending); err != nil {
		s.abort(ctx, userID, sessionID, false)
		return fmt.Errorf("save pending question: %w", err)
	}

	if err := s.sender.SendText(ctx, userID, question.Text); err != nil {
		s.abort(ctx, userID, sessionID, true)
		return fmt.Errorf("deliver question %d: %w", question.ID, err)
	}

	slog.Debug("Question sent",
		"user_id", userID,
		"session_id", sessionID,
		"question_id", question.ID,
		"order_num", question.OrderNum)
	return nil
}

// answer records text against the pending question and moves on.
func (s *Service) answer(ctx context.Context, userID, text string, receivedAt time.Time) (bool, error) {
	pending, err := s.pending.GetPending(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load pending question: %w", err)
	}
	if pending == nil {
		return false, nil
	}

	session, err := s.repo.GetSession(ctx, pending.SessionID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("load session %d: %w", pending.SessionID, err)
	}
	if session == nil || !session.IsOpen() {
		slog.Warn("Discarding pending question of closed session",
			"user_id", userID,
			"session_id", pending.SessionID)
		if err := s.pending.DeletePending(ctx, userID); err != nil {
			return false, fmt.Errorf("clear pending question: %w", err)
		}
		return false, nil
	}

	_, err = s.recorder.Record(ctx, pending.SessionID, pending.QuestionID, text, pending.SentAt, receivedAt)
	switch {
	case errors.Is(err, store.ErrDuplicateResponse):
		slog.Warn("Answer already recorded, advancing",
			"user_id", userID,
			"session_id", pending.SessionID,
			"question_id", pending.QuestionID)
	case err != nil:
		return true, err
	}

	if err := s.pending.DeletePending(ctx, userID); err != nil {
		return true, fmt.Errorf("clear pending question: %w", err)
	}

	return true, s.advance(ctx, userID, pending.SessionID, pending.OrderNum)
}

// complete closes the session and thanks the user.
func (s *Service) complete(ctx context.Context, userID string, sessionID int64) error {
	session, err := s.ledger.Close(ctx, sessionID, domain.SessionCompleted)
	if err != nil {
		if errors.Is(err, store.ErrSessionClosed) {
			slog.Warn("Session already closed", "user_id", userID, "session_id", sessionID)
			return nil
		}
		return err
	}
	slog.Info("Check-in session completed",
		"user_id", userID,
		"session_id", sessionID,
		"duration", session.DurationSeconds)

	if err := s.sender.SendText(ctx, userID, CompletionText); err != nil {
		return fmt.Errorf("deliver completion notice: %w", err)
	}
	return nil
}

// abort clears the slot and closes the session as aborted. Failures are
// logged only; the caller already has an error to report.
func (s *Service) abort(ctx context.Context, userID string, sessionID int64, clearSlot bool) {
	if clearSlot {
		if err := s.pending.DeletePending(ctx, userID); err != nil {
			slog.Error("Failed to clear pending question", "user_id", userID, "session_id", sessionID, "error", err)
		}
	}
	if _, err := s.ledger.Close(ctx, sessionID, domain.SessionAborted); err != nil && !errors.Is(err, store.ErrSessionClosed) {
		slog.Error("Failed to abort session", "user_id", userID, "session_id", sessionID, "error", err)
		return
	}
	slog.Warn("Check-in session aborted", "user_id", userID, "session_id", sessionID)
}
