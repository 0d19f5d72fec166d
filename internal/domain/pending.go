package domain

import (
	"time"
)

// PendingQuestion is the question a user has been sent but not yet answered.
// There is at most one per user.
type PendingQuestion struct {
	UserID     string    `json:"user_id"`
	SessionID  int64     `json:"session_id"`
	QuestionID int64     `json:"question_id"`
	OrderNum   int       `json:"order_num"`
	SentAt     time.Time `json:"sent_at"`
}

// Age returns how long the question has been waiting for an answer.
func (p *PendingQuestion) Age(now time.Time) time.Duration {
	return now.Sub(p.SentAt)
}
