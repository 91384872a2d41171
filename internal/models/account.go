package models

import "time"

type Account struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsTutor      bool      `json:"is_tutor"`
	IsStudent    bool      `json:"is_student"`
	IsActive     bool      `json:"is_active"`
	Balance      int64     `json:"balance"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role collapses the capability flags into the string carried in JWT claims.
func (a *Account) Role() string {
	switch {
	case a.IsTutor && a.IsStudent:
		return "both"
	case a.IsTutor:
		return "tutor"
	case a.IsStudent:
		return "student"
	default:
		return ""
	}
}
