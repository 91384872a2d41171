package models

import "time"

type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionConfirmed SessionStatus = "confirmed"
	SessionCancelled SessionStatus = "cancelled"
	SessionCompleted SessionStatus = "completed"
)

// sessionTransitions is the full lifecycle graph. Cancelled and completed
// are terminal.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionPending:   {SessionConfirmed, SessionCancelled},
	SessionConfirmed: {SessionCompleted},
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s SessionStatus) Terminal() bool {
	return s == SessionCancelled || s == SessionCompleted
}

type Session struct {
	ID              int64         `json:"id"`
	TutorID         int64         `json:"tutor_id"`
	StudentID       int64         `json:"student_id"`
	StartsAt        time.Time     `json:"starts_at"`
	DurationMinutes int           `json:"duration_minutes"`
	Subject         string        `json:"subject"`
	Notes           *string       `json:"notes"`
	Price           *int64        `json:"price"`
	Status          SessionStatus `json:"status"`
	Settled         bool          `json:"settled"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// EndsAt is the exclusive end of the session's [start, end) interval.
func (s *Session) EndsAt() time.Time {
	return s.StartsAt.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

type SessionDetail struct {
	Session
	TutorName   string `json:"tutor_name,omitempty"`
	StudentName string `json:"student_name,omitempty"`
}
