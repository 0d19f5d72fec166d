package domain

import (
	"time"
)

// SessionStatus records how a session ended.
type SessionStatus string

const (
	SessionOpen      SessionStatus = "open"
	SessionCompleted SessionStatus = "completed"
	SessionAborted   SessionStatus = "aborted"
	SessionExpired   SessionStatus = "expired"
)

// Session is one pass through the question sequence for a user.
type Session struct {
	ID              int64         `json:"session_id"`
	UserID          string        `json:"user_id"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         *time.Time    `json:"end_time,omitempty"`
	DurationSeconds int64         `json:"duration"`
	Status          SessionStatus `json:"status"`
}

// IsOpen reports whether the session has not been closed yet.
func (s *Session) IsOpen() bool {
	return s.EndTime == nil
}

// Response is the answer to one question within a session.
type Response struct {
	ID              int64     `json:"id"`
	SessionID       int64     `json:"session_id"`
	QuestionID      int64     `json:"question_id"`
	Answer          string    `json:"answer"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds int64     `json:"duration"`
}

// WholeSeconds returns end-start floored to whole seconds, never negative.
func WholeSeconds(start, end time.Time) int64 {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}
