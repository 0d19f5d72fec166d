package checkin

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/checkin/internal/domain"
	"github.com/ashureev/checkin/internal/store"
)

// Recorder stores answers.
type Recorder struct {
	repo store.Repository
}

// NewRecorder creates a recorder over repo.
func NewRecorder(repo store.Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Record writes one answer. Any text is accepted, including the empty string.
func (r *Recorder) Record(ctx context.Context, sessionID, questionID int64, answer string, start, end time.Time) (*domain.Response, error) {
	resp := &domain.Response{
		SessionID:       sessionID,
		QuestionID:      questionID,
		Answer:          answer,
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: domain.WholeSeconds(start, end),
	}

	id, err := r.repo.InsertResponse(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("record answer for session %d question %d: %w", sessionID, questionID, err)
	}
	resp.ID = id
	return resp, nil
}
