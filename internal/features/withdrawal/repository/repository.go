package repository

import (
	"context"
	"errors"

	"crypto-balance-backend/internal/features/withdrawal/models"
)

var ErrWithdrawalNotFound = errors.New("withdrawal not found")

type WithdrawalRepository interface {
	Create(ctx context.Context, withdrawal *models.Withdrawal) error
	GetByID(ctx context.Context, id int64) (*models.Withdrawal, error)
	// GetByDebitTransaction finds the request a given ledger debit
	// belongs to; used to dedupe replayed requests.
	GetByDebitTransaction(ctx context.Context, transactionID int64) (*models.Withdrawal, error)
	// UpdateStatus transitions from one status to another and reports
	// whether the transition happened, so concurrent resolutions race
	// for a single winner.
	UpdateStatus(ctx context.Context, id int64, from, to models.WithdrawalStatus) (bool, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]*models.Withdrawal, error)
	// ListByStatus returns withdrawals in a given status, oldest first;
	// used by the startup refund reconciliation.
	ListByStatus(ctx context.Context, status models.WithdrawalStatus, limit int) ([]*models.Withdrawal, error)
}
