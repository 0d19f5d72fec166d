package checkin

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/checkin/internal/domain"
	"github.com/ashureev/checkin/internal/store"
)

// Ledger opens and closes sessions.
type Ledger struct {
	repo store.Repository
	now  func() time.Time
}

// NewLedger creates a ledger over repo using now as its clock.
func NewLedger(repo store.Repository, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{repo: repo, now: now}
}

// Open inserts an open session starting at startTime.
func (l *Ledger) Open(ctx context.Context, userID string, startTime time.Time) (int64, error) {
	id, err := l.repo.CreateSession(ctx, userID, startTime)
	if err != nil {
		return 0, fmt.Errorf("open session for %s: %w", userID, err)
	}
	return id, nil
}

// Close ends a session now.
func (l *Ledger) Close(ctx context.Context, sessionID int64, status domain.SessionStatus) (*domain.Session, error) {
	return l.CloseAt(ctx, sessionID, status, l.now())
}

// CloseAt ends a session at endTime with duration measured from its start.
// A session that is already closed yields store.ErrSessionClosed.
func (l *Ledger) CloseAt(ctx context.Context, sessionID int64, status domain.SessionStatus, endTime time.Time) (*domain.Session, error) {
	session, err := l.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %d: %w", sessionID, err)
	}
	if !session.IsOpen() {
		return session, store.ErrSessionClosed
	}

	duration := domain.WholeSeconds(session.StartTime, endTime)
	if err := l.repo.CloseSession(ctx, sessionID, endTime, duration, status); err != nil {
		return nil, fmt.Errorf("close session %d: %w", sessionID, err)
	}

	session.EndTime = &endTime
	session.DurationSeconds = duration
	session.Status = status
	return session, nil
}
