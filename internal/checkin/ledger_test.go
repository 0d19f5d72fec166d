package checkin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashureev/checkin/internal/domain"
	"github.com/ashureev/checkin/internal/store"
)

func TestLedgerCloseComputesWholeSeconds(t *testing.T) {
	h := newHarness(t, 0, nil)
	start := h.clock.Now()
	ledger := NewLedger(h.db, h.clock.Now)

	id, err := ledger.Open(context.Background(), "u1", start)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	h.clock.Advance(2*time.Minute + 900*time.Millisecond)

	session, err := ledger.Close(context.Background(), id, domain.SessionCompleted)
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if session.DurationSeconds != 120 {
		t.Errorf("Expected 120s, got %d", session.DurationSeconds)
	}

	h.clock.Advance(time.Hour)
	if _, err := ledger.Close(context.Background(), id, domain.SessionExpired); !errors.Is(err, store.ErrSessionClosed) {
		t.Fatalf("Expected ErrSessionClosed, got %v", err)
	}
	stored, _ := h.db.GetSession(context.Background(), id)
	if stored.DurationSeconds != 120 || stored.Status != domain.SessionCompleted {
		t.Errorf("Second close changed the session: %+v", stored)
	}
}

func TestLedgerAllowsParallelOpenSessions(t *testing.T) {
	h := newHarness(t, 0, nil)
	ledger := NewLedger(h.db, h.clock.Now)

	first, err := ledger.Open(context.Background(), "u1", h.clock.Now())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	second, err := ledger.Open(context.Background(), "u1", h.clock.Now())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if first == second {
		t.Errorf("Expected distinct ids, got %d twice", first)
	}
}

func TestRecorderFloorsDuration(t *testing.T) {
	h := newHarness(t, 0, []domain.Question{{Text: "q", Active: true, OrderNum: 1}})
	q, _ := h.db.NextActiveQuestion(context.Background(), 0)
	sessionID, _ := h.db.CreateSession(context.Background(), "u1", h.clock.Now())
	rec := NewRecorder(h.db)

	start := h.clock.Now()
	resp, err := rec.Record(context.Background(), sessionID, q.ID, "", start, start.Add(59999*time.Millisecond))
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if resp.DurationSeconds != 59 || resp.ID == 0 {
		t.Errorf("Unexpected response: %+v", resp)
	}

	_, err = rec.Record(context.Background(), sessionID, q.ID, "again", start, start)
	if !errors.Is(err, store.ErrDuplicateResponse) {
		t.Errorf("Expected ErrDuplicateResponse, got %v", err)
	}
}
