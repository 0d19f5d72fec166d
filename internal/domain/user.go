// Package domain contains core domain types for the check-in service.
package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedSettings is returned when user supplied settings cannot be parsed.
var ErrMalformedSettings = errors.New("malformed settings")

// UserSettings is the per-user schedule configuration.
type UserSettings struct {
	UserID        string    `json:"user_id"`
	Timezone      string    `json:"timezone"`
	StartHour     int       `json:"start_hour"`
	EndHour       int       `json:"end_hour"`
	IntervalHours int       `json:"interval_hours"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Location resolves the configured IANA timezone.
func (s *UserSettings) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// Interval returns the configured interval as a duration.
func (s *UserSettings) Interval() time.Duration {
	return time.Duration(s.IntervalHours) * time.Hour
}

// Validate checks field ranges and the timezone name.
func (s *UserSettings) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return fmt.Errorf("%w: user id is empty", ErrMalformedSettings)
	}
	if s.Timezone == "" {
		return fmt.Errorf("%w: timezone is empty", ErrMalformedSettings)
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrMalformedSettings, s.Timezone)
	}
	if s.StartHour < 0 || s.StartHour > 23 {
		return fmt.Errorf("%w: start hour %d out of range 0-23", ErrMalformedSettings, s.StartHour)
	}
	if s.EndHour < 0 || s.EndHour > 23 {
		return fmt.Errorf("%w: end hour %d out of range 0-23", ErrMalformedSettings, s.EndHour)
	}
	if s.IntervalHours <= 0 {
		return fmt.Errorf("%w: interval must be a positive number of hours", ErrMalformedSettings)
	}
	return nil
}

// ParseSettings parses "timezone, start_hour, end_hour, interval_hours".
// Nothing is returned unless all four fields parse and validate.
func ParseSettings(userID, input string) (*UserSettings, error) {
	parts := strings.Split(input, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: expected 4 comma-separated values, got %d", ErrMalformedSettings, len(parts))
	}

	hours := make([]int, 3)
	for i, name := range []string{"start hour", "end hour", "interval"} {
		raw := strings.TrimSpace(parts[i+1])
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q is not a number", ErrMalformedSettings, name, raw)
		}
		hours[i] = n
	}

	settings := &UserSettings{
		UserID:        userID,
		Timezone:      strings.TrimSpace(parts[0]),
		StartHour:     hours[0],
		EndHour:       hours[1],
		IntervalHours: hours[2],
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}
