package models

import "time"

type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "pending"
	WithdrawalStatusApproved  WithdrawalStatus = "approved"
	WithdrawalStatusRejected  WithdrawalStatus = "rejected"
	WithdrawalStatusCompleted WithdrawalStatus = "completed"
)

const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// Withdrawal holds funds from request time: the debit transaction is
// recorded before the row is created, and rejection refunds it.
type Withdrawal struct {
	ID                 int64            `json:"id"`
	UserID             int64            `json:"user_id"`
	Amount             float64          `json:"amount"`
	Currency           string           `json:"currency"`
	WalletAddress      string           `json:"wallet_address"`
	Status             WithdrawalStatus `json:"status"`
	DebitTransactionID int64            `json:"-"`
	CreatedAt          time.Time        `json:"created_at"`
}

type WithdrawRequest struct {
	UserID        int64   `json:"user_id" binding:"required"`
	Amount        float64 `json:"amount" binding:"required"`
	Currency      string  `json:"currency" binding:"required"`
	WalletAddress string  `json:"wallet_address" binding:"required"`
}

type ResolveRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approve reject"`
}
