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

// ExpireStale closes sessions that have waited longer than the TTL.
// It returns how many sessions were closed.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-s.ttl)
	expired := 0

	stale, err := s.pending.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale pending questions: %w", err)
	}
	for _, p := range stale {
		closed, err := s.expirePending(ctx, p.UserID, p.SessionID, cutoff, now)
		if err != nil {
			slog.Error("Failed to expire session", "user_id", p.UserID, "session_id", p.SessionID, "error", err)
			continue
		}
		if closed {
			expired++
		}
	}

	orphans, err := s.repo.ListOpenSessionsBefore(ctx, cutoff)
	if err != nil {
		return expired, fmt.Errorf("list open sessions: %w", err)
	}
	for _, session := range orphans {
		closed, err := s.expireOrphan(ctx, session, now)
		if err != nil {
			slog.Error("Failed to expire session", "user_id", session.UserID, "session_id", session.ID, "error", err)
			continue
		}
		if closed {
			expired++
		}
	}

	return expired, nil
}

// StartExpiryWorker runs ExpireStale every interval until ctx is done.
func (s *Service) StartExpiryWorker(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 {
		slog.Info("Session expiry disabled")
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session expiry worker started", "interval", interval, "ttl", s.ttl)

		for {
			select {
			case <-ticker.C:
				n, err := s.ExpireStale(ctx, s.now())
				if err != nil {
					slog.Error("Session expiry sweep failed", "error", err)
				}
				if n > 0 {
					slog.Info("Expired stale sessions", "count", n)
				}
			case <-ctx.Done():
				slog.Info("Session expiry worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// expirePending closes a session whose question went unanswered. The slot is
// re-read on the user's queue since an answer may have arrived meanwhile.
func (s *Service) expirePending(ctx context.Context, userID string, sessionID int64, cutoff, now time.Time) (bool, error) {
	var closed bool
	err := s.dispatcher.Do(ctx, userID, func(ctx context.Context) error {
		p, err := s.pending.GetPending(ctx, userID)
		if err != nil {
			return fmt.Errorf("load pending question: %w", err)
		}
		if p == nil || p.SessionID != sessionID || !p.SentAt.Before(cutoff) {
			return nil
		}

		if err := s.pending.DeletePending(ctx, userID); err != nil {
			return fmt.Errorf("clear pending question: %w", err)
		}
		closed, err = s.closeExpired(ctx, userID, sessionID, now)
		if err != nil || !closed {
			return err
		}

		if err := s.sender.SendText(ctx, userID, ExpiredText); err != nil {
			slog.Warn("Failed to deliver expiry notice", "user_id", userID, "error", err)
		}
		return nil
	})
	return closed, err
}

// expireOrphan closes an old open session that has no pending question.
func (s *Service) expireOrphan(ctx context.Context, session *domain.Session, now time.Time) (bool, error) {
	var closed bool
	err := s.dispatcher.Do(ctx, session.UserID, func(ctx context.Context) error {
		p, err := s.pending.GetPending(ctx, session.UserID)
		if err != nil {
			return fmt.Errorf("load pending question: %w", err)
		}
		if p != nil && p.SessionID == session.ID {
			return nil
		}
		closed, err = s.closeExpired(ctx, session.UserID, session.ID, now)
		return err
	})
	return closed, err
}

func (s *Service) closeExpired(ctx context.Context, userID string, sessionID int64, now time.Time) (bool, error) {
	session, err := s.ledger.CloseAt(ctx, sessionID, domain.SessionExpired, now)
	if errors.Is(err, store.ErrSessionClosed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	slog.Info("Check-in session expired",
		"user_id", userID,
		"session_id", sessionID,
		"duration", session.DurationSeconds)
	return true, nil
}
