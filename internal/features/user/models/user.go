package models

import "time"

// User carries the cached balance projection. Balance always equals the
// sum of the user's ledger transactions; it is only written together
// with a ledger append.
type User struct {
	UserID           int64     `json:"user_id"`
	Username         string    `json:"username"`
	FirstName        string    `json:"first_name"`
	Balance          float64   `json:"balance"`
	ReferrerID       *int64    `json:"referrer_id,omitempty"`
	TotalEarned      float64   `json:"total_earned"`
	TotalReferred    int       `json:"total_referred"`
	RegistrationDate time.Time `json:"registration_date"`
}

type RegisterRequest struct {
	UserID     int64  `json:"user_id" binding:"required"`
	Username   string `json:"username"`
	FirstName  string `json:"first_name" binding:"required"`
	ReferrerID *int64 `json:"referrer_id"`
}

type AdjustRequest struct {
	Amount      float64 `json:"amount" binding:"required"`
	Type        string  `json:"type" binding:"required"`
	Description string  `json:"description"`
}
