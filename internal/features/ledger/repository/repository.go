package repository

import (
	"context"
	"errors"

	"crypto-balance-backend/internal/features/ledger/models"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrConflict signals a concurrent mutation lost a race with another
	// writer; callers retry the whole operation.
	ErrConflict = errors.New("concurrent mutation conflict")
)

// ApplyInput describes one balance mutation.
type ApplyInput struct {
	UserID      int64
	Type        models.TransactionType
	Amount      float64
	Description string
	// Optional. When set, a repeated call with the same key returns the
	// original result without re-applying.
	IdempotencyKey string
}

// ApplyResult reports the transaction recorded for a mutation and the
// balance after it. Applied is false when the idempotency key matched an
// existing transaction.
type ApplyResult struct {
	TransactionID int64
	Balance       float64
	Applied       bool
}

// LedgerRepository is the only mutation path to user balances.
type LedgerRepository interface {
	Apply(ctx context.Context, input ApplyInput) (*ApplyResult, error)
	GetBalance(ctx context.Context, userID int64) (float64, error)
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
	History(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error)
}
