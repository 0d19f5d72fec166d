package checkin

import (
	"context"
	"testing"
	"time"

	"github.com/ashureev/checkin/internal/domain"
)

func TestExpireStaleClosesUnansweredSessions(t *testing.T) {
	h := newHarness(t, time.Hour, defaultQuestions)
	h.configure(t, "stale")
	h.configure(t, "fresh")

	if _, err := h.svc.TriggerManualCheck(context.Background(), "stale"); err != nil {
		t.Fatalf("trigger stale failed: %v", err)
	}
	h.clock.Advance(50 * time.Minute)
	if _, err := h.svc.TriggerManualCheck(context.Background(), "fresh"); err != nil {
		t.Fatalf("trigger fresh failed: %v", err)
	}

	now := h.clock.Advance(20 * time.Minute)
	n, err := h.svc.ExpireStale(context.Background(), now)
	if err != nil {
		t.Fatalf("ExpireStale failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 expired session, got %d", n)
	}

	stale := h.sessions(t, "stale")[0]
	if stale.Status != domain.SessionExpired || stale.DurationSeconds != 70*60 {
		t.Errorf("Unexpected expired session: %+v", stale)
	}
	if p, _ := h.svc.Pending(context.Background(), "stale"); p != nil {
		t.Errorf("Expected stale slot cleared, got %+v", p)
	}
	if got := h.sender.last(); got != ExpiredText {
		t.Errorf("Expected expiry notice, got %q", got)
	}

	fresh := h.sessions(t, "fresh")[0]
	if !fresh.IsOpen() {
		t.Errorf("Expected fresh session to stay open, got %+v", fresh)
	}

	if handled, _ := h.svc.OnInboundText(context.Background(), "stale", "too late", now); handled {
		t.Error("Expected answer after expiry to be unhandled")
	}
}

func TestExpireStaleClosesOrphanSessions(t *testing.T) {
	h := newHarness(t, time.Hour, defaultQuestions)
	start := h.clock.Now()
	orphanID, err := h.db.CreateSession(context.Background(), "u1", start)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	n, err := h.svc.ExpireStale(context.Background(), start.Add(30*time.Minute))
	if err != nil || n != 0 {
		t.Fatalf("Expected nothing expired before TTL, got %d (err %v)", n, err)
	}

	n, err = h.svc.ExpireStale(context.Background(), start.Add(2*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("Expected orphan expired, got %d (err %v)", n, err)
	}
	session, _ := h.db.GetSession(context.Background(), orphanID)
	if session.Status != domain.SessionExpired {
		t.Errorf("Expected expired status, got %s", session.Status)
	}
	if got := h.sender.texts(); len(got) != 0 {
		t.Errorf("Expected no notice for orphan session, got %v", got)
	}

	n, _ = h.svc.ExpireStale(context.Background(), start.Add(3*time.Hour))
	if n != 0 {
		t.Errorf("Expected second sweep to be a no-op, got %d", n)
	}
}

func TestExpireStaleKeepsLongSessionWithFreshQuestion(t *testing.T) {
	h := newHarness(t, time.Hour, defaultQuestions)
	h.configure(t, "u1")
	if _, err := h.svc.TriggerManualCheck(context.Background(), "u1"); err != nil {
		t.Fatalf("TriggerManualCheck failed: %v", err)
	}
	h.answer(t, "u1", "slow", 55*time.Minute)

	n, err := h.svc.ExpireStale(context.Background(), h.clock.Advance(30*time.Minute))
	if err != nil || n != 0 {
		t.Errorf("Expected session with fresh question kept, got %d (err %v)", n, err)
	}
}

func TestExpireStaleDisabled(t *testing.T) {
	h := newHarness(t, 0, defaultQuestions)
	if _, err := h.db.CreateSession(context.Background(), "u1", h.clock.Now()); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	n, err := h.svc.ExpireStale(context.Background(), h.clock.Now().Add(1000*time.Hour))
	if err != nil || n != 0 {
		t.Errorf("Expected disabled expiry, got %d (err %v)", n, err)
	}
}
