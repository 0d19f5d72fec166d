package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/checkin/internal/domain"
)

const triggerTimeout = 30 * time.Second

// SettingsSource lists configured users and their last session start.
type SettingsSource interface {
	ListUserSettings(ctx context.Context) ([]*domain.UserSettings, error)
	LastSessionStart(ctx context.Context, userID string) (time.Time, bool, error)
}

// TriggerFunc runs a scheduled check for one user.
type TriggerFunc func(ctx context.Context, userID string, now time.Time) error

// Scheduler fires a check for every user once their interval has elapsed
// since the previous attempt. Whether the check opens a session is decided
// by the trigger, not here.
type Scheduler struct {
	source  SettingsSource
	trigger TriggerFunc
	tick    time.Duration
	now     func() time.Time

	mu      sync.Mutex
	lastRun map[string]time.Time
}

// NewScheduler creates a scheduler evaluating users every tick.
func NewScheduler(source SettingsSource, trigger TriggerFunc, tick time.Duration) *Scheduler {
	return &Scheduler{
		source:  source,
		trigger: trigger,
		tick:    tick,
		now:     time.Now,
		lastRun: make(map[string]time.Time),
	}
}

// Start runs the scheduler loop in a background goroutine until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	go func() {
		defer ticker.Stop()
		slog.Info("Scheduler started", "tick", s.tick)

		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx, s.now())
			case <-ctx.Done():
				slog.Info("Scheduler shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// RunOnce evaluates all users at now and returns how many checks fired.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) int {
	users, err := s.source.ListUserSettings(ctx)
	if err != nil {
		slog.Error("Scheduler failed to list user settings", "error", err)
		return 0
	}

	seen := make(map[string]struct{}, len(users))
	fired := 0
	for _, settings := range users {
		if ctx.Err() != nil {
			return fired
		}
		seen[settings.UserID] = struct{}{}
		if !s.due(ctx, settings, now) {
			continue
		}

		s.mu.Lock()
		s.lastRun[settings.UserID] = now
		s.mu.Unlock()
		fired++

		triggerCtx, cancel := context.WithTimeout(ctx, triggerTimeout)
		if err := s.trigger(triggerCtx, settings.UserID, now); err != nil {
			slog.Error("Scheduled check failed", "user_id", settings.UserID, "error", err)
		}
		cancel()
	}

	s.forget(seen)
	return fired
}

func (s *Scheduler) due(ctx context.Context, settings *domain.UserSettings, now time.Time) bool {
	if settings.IntervalHours <= 0 {
		return false
	}

	s.mu.Lock()
	last, ok := s.lastRun[settings.UserID]
	s.mu.Unlock()

	if !ok {
		start, found, err := s.source.LastSessionStart(ctx, settings.UserID)
		if err != nil {
			slog.Warn("Scheduler failed to load last session", "user_id", settings.UserID, "error", err)
			return false
		}
		if !found {
			return true
		}
		last = start
		s.mu.Lock()
		s.lastRun[settings.UserID] = last
		s.mu.Unlock()
	}

	return now.Sub(last) >= settings.Interval()
}

// forget drops users whose settings disappeared.
func (s *Scheduler) forget(seen map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID := range s.lastRun {
		if _, ok := seen[userID]; !ok {
			delete(s.lastRun, userID)
		}
	}
}
