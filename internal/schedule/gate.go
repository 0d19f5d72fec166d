// Package schedule decides when a check-in may start and fires the
// recurring per-user checks.
package schedule

import (
	"time"

	"github.com/ashureev/checkin/internal/domain"
)

// LocalHour returns the wall-clock hour of now in the user's timezone.
func LocalHour(settings *domain.UserSettings, now time.Time) (int, error) {
	loc, err := settings.Location()
	if err != nil {
		return 0, err
	}
	return now.In(loc).Hour(), nil
}

// InWindow reports whether hour falls in [start, end). Windows that wrap
// past midnight (start > end) and empty windows (start == end) never match.
func InWindow(start, end, hour int) bool {
	return start <= hour && hour < end
}

// ShouldRun reports whether a session may start at now. force bypasses
// the window and the timezone lookup entirely.
func ShouldRun(settings *domain.UserSettings, now time.Time, force bool) (bool, error) {
	if force {
		return true, nil
	}
	hour, err := LocalHour(settings, now)
	if err != nil {
		return false, err
	}
	return InWindow(settings.StartHour, settings.EndHour, hour), nil
}
