package models

import (
	"math"
	"time"
)

// TransactionType tags the origin of a balance change. Every balance
// mutation in the system carries exactly one of these.
type TransactionType string

const (
	TransactionTypeBonus      TransactionType = "bonus"
	TransactionTypeReferral   TransactionType = "referral"
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeBonus, TransactionTypeReferral, TransactionTypeDeposit,
		TransactionTypeWithdrawal, TransactionTypeAdjustment:
		return true
	}
	return false
}

// Transaction is an append-only ledger entry. Entries are never updated
// or deleted; corrections are new entries.
type Transaction struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	Type           TransactionType `json:"type"`
	Amount         float64         `json:"amount"`
	Description    string          `json:"description"`
	IdempotencyKey string          `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
}

// RoundAmount normalizes a monetary value to cents.
func RoundAmount(v float64) float64 {
	return math.Round(v*100) / 100
}

// ValidAmount rejects values that cannot represent money.
func ValidAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
