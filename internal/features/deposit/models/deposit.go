package models

import "time"

type DepositStatus string

const (
	DepositStatusPending DepositStatus = "pending"
	DepositStatusPaid    DepositStatus = "paid"
	DepositStatusExpired DepositStatus = "expired"
	DepositStatusFailed  DepositStatus = "failed"
)

// Deposit is created before any balance effect; the balance is credited
// only on the transition to paid.
type Deposit struct {
	ID        int64         `json:"id"`
	UserID    int64         `json:"user_id"`
	Amount    float64       `json:"amount"`
	Currency  string        `json:"currency"`
	InvoiceID string        `json:"invoice_id"`
	Status    DepositStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

type CreateDepositRequest struct {
	UserID   int64   `json:"user_id" binding:"required"`
	Amount   float64 `json:"amount" binding:"required"`
	Currency string  `json:"currency" binding:"required"`
}

type CreateDepositResponse struct {
	InvoiceID int64   `json:"invoice_id"`
	PayURL    string  `json:"pay_url"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
}

// CallbackRequest is the provider webhook payload. Delivery is
// at-least-once and may arrive out of order.
type CallbackRequest struct {
	InvoiceID int64  `json:"invoice_id" binding:"required"`
	Status    string `json:"status" binding:"required"`
}
