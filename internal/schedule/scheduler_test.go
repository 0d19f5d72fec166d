package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/checkin/internal/domain"
)

type fakeSource struct {
	mu       sync.Mutex
	settings []*domain.UserSettings
	last     map[string]time.Time
	err      error
}

func (f *fakeSource) ListUserSettings(context.Context) ([]*domain.UserSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings, f.err
}

func (f *fakeSource) LastSessionStart(_ context.Context, userID string) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.last[userID]
	return t, ok, nil
}

type recorder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recorder) trigger(_ context.Context, userID string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, userID)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestSchedulerFiresPerInterval(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	src := &fakeSource{settings: []*domain.UserSettings{
		{UserID: "every3", Timezone: "UTC", StartHour: 0, EndHour: 23, IntervalHours: 3},
		{UserID: "every1", Timezone: "UTC", StartHour: 0, EndHour: 23, IntervalHours: 1},
	}}
	rec := &recorder{}
	s := NewScheduler(src, rec.trigger, time.Minute)

	if fired := s.RunOnce(context.Background(), start); fired != 2 {
		t.Fatalf("expected both users to fire on first run, got %d", fired)
	}
	if fired := s.RunOnce(context.Background(), start.Add(30*time.Minute)); fired != 0 {
		t.Fatalf("expected nothing before interval, got %d", fired)
	}
	if fired := s.RunOnce(context.Background(), start.Add(time.Hour)); fired != 1 {
		t.Fatalf("expected hourly user only, got %d", fired)
	}
	if fired := s.RunOnce(context.Background(), start.Add(3*time.Hour)); fired != 2 {
		t.Fatalf("expected both users at 3h, got %d", fired)
	}
	if rec.count() != 5 {
		t.Errorf("expected 5 trigger calls, got %d", rec.count())
	}
}

func TestSchedulerSeedsFromLastSession(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		settings: []*domain.UserSettings{{UserID: "u1", Timezone: "UTC", IntervalHours: 3}},
		last:     map[string]time.Time{"u1": now.Add(-time.Hour)},
	}
	rec := &recorder{}
	s := NewScheduler(src, rec.trigger, time.Minute)

	if fired := s.RunOnce(context.Background(), now); fired != 0 {
		t.Fatalf("expected no fire one hour after last session, got %d", fired)
	}
	if fired := s.RunOnce(context.Background(), now.Add(2*time.Hour)); fired != 1 {
		t.Fatalf("expected fire three hours after last session, got %d", fired)
	}
}

func TestSchedulerContinuesAfterTriggerError(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{settings: []*domain.UserSettings{
		{UserID: "a", IntervalHours: 1},
		{UserID: "b", IntervalHours: 1},
	}}
	rec := &recorder{err: errors.New("store down")}
	s := NewScheduler(src, rec.trigger, time.Minute)

	if fired := s.RunOnce(context.Background(), now); fired != 2 {
		t.Fatalf("expected 2 fired, got %d", fired)
	}
	// A failed attempt still waits a full interval.
	if fired := s.RunOnce(context.Background(), now.Add(time.Minute)); fired != 0 {
		t.Fatalf("expected no retry before interval, got %d", fired)
	}
}

func TestSchedulerForgetsRemovedUsers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{settings: []*domain.UserSettings{{UserID: "a", IntervalHours: 1}}}
	s := NewScheduler(src, (&recorder{}).trigger, time.Minute)
	s.RunOnce(context.Background(), now)

	src.mu.Lock()
	src.settings = nil
	src.mu.Unlock()
	s.RunOnce(context.Background(), now.Add(time.Minute))

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lastRun) != 0 {
		t.Errorf("expected removed user to be forgotten, got %v", s.lastRun)
	}
}

func TestSchedulerStartStopsWithContext(t *testing.T) {
	src := &fakeSource{settings: []*domain.UserSettings{{UserID: "a", IntervalHours: 1}}}
	rec := &recorder{}
	s := NewScheduler(src, rec.trigger, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	deadline := time.Now().Add(time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if rec.count() != 1 {
		t.Fatalf("expected exactly one fire within the interval, got %d", rec.count())
	}
}
