// Package bot routes inbound chat text to the check-in service or to the
// command handlers.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/checkin/internal/checkin"
	"github.com/ashureev/checkin/internal/domain"
)

// Service is the part of checkin.Service the router drives.
type Service interface {
	OnInboundText(ctx context.Context, userID, text string, receivedAt time.Time) (bool, error)
	TriggerManualCheck(ctx context.Context, userID string) (checkin.Outcome, error)
}

// SettingsWriter persists parsed settings.
type SettingsWriter interface {
	UpsertUserSettings(ctx context.Context, settings *domain.UserSettings) error
}

// Router dispatches one inbound message.
type Router struct {
	svc      Service
	settings SettingsWriter
	sender   checkin.Sender
	now      func() time.Time
}

// NewRouter creates a router replying through sender.
func NewRouter(svc Service, settings SettingsWriter, sender checkin.Sender) *Router {
	return &Router{
		svc:      svc,
		settings: settings,
		sender:   sender,
		now:      time.Now,
	}
}

// HandleText routes text from userID. A pending question always takes the
// message as its answer, commands included.
func (r *Router) HandleText(ctx context.Context, userID, text string) error {
	receivedAt := r.now()

	handled, err := r.svc.OnInboundText(ctx, userID, text, receivedAt)
	if err != nil {
		return fmt.Errorf("handle answer: %w", err)
	}
	if handled {
		return nil
	}

	trimmed := strings.TrimSpace(text)
	switch command(trimmed) {
	case "/start":
		return r.reply(ctx, userID, WelcomeText)
	case "/settings":
		return r.reply(ctx, userID, SettingsHelpText)
	case "/ask":
		return r.ask(ctx, userID)
	}

	if strings.Contains(trimmed, ",") {
		return r.saveSettings(ctx, userID, trimmed)
	}
	return r.reply(ctx, userID, UnknownText)
}

func (r *Router) ask(ctx context.Context, userID string) error {
	outcome, err := r.svc.TriggerManualCheck(ctx, userID)
	if err != nil {
		return fmt.Errorf("manual check: %w", err)
	}

	switch outcome {
	case checkin.OutcomeSkippedActiveSession:
		return r.reply(ctx, userID, AlreadyRunningText)
	case checkin.OutcomeSkippedNoSettings:
		slog.Debug("Manual check skipped, no settings", "user_id", userID)
	}
	return nil
}

func (r *Router) saveSettings(ctx context.Context, userID, input string) error {
	settings, err := domain.ParseSettings(userID, input)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedSettings) {
			return r.reply(ctx, userID, fmt.Sprintf(SettingsErrorText, err))
		}
		return err
	}

	if err := r.settings.UpsertUserSettings(ctx, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	slog.Info("User settings saved",
		"user_id", userID,
		"timezone", settings.Timezone,
		"start_hour", settings.StartHour,
		"end_hour", settings.EndHour,
		"interval_hours", settings.IntervalHours)
	return r.reply(ctx, userID, SettingsSavedText)
}

func (r *Router) reply(ctx context.Context, userID, text string) error {
	if err := r.sender.SendText(ctx, userID, text); err != nil {
		return fmt.Errorf("reply to %s: %w", userID, err)
	}
	return nil
}

// command extracts "/cmd" from "/cmd@botname args", lower-cased.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	fields := strings.Fields(text)
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(cmd)
}
