package repository

import (
	"context"
	"errors"

	"crypto-balance-backend/internal/features/deposit/models"
)

var ErrDepositNotFound = errors.New("deposit not found")

type DepositRepository interface {
	Create(ctx context.Context, deposit *models.Deposit) error
	GetByInvoiceID(ctx context.Context, invoiceID string) (*models.Deposit, error)
	// MarkPaid flips the deposit to paid unless it already is. Reports
	// whether this call performed the transition.
	MarkPaid(ctx context.Context, invoiceID string) (bool, error)
	// MarkClosed moves a pending deposit to expired/failed. A deposit
	// that already left pending is not touched.
	MarkClosed(ctx context.Context, invoiceID string, status models.DepositStatus) (bool, error)
}
