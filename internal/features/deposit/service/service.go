package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"crypto-balance-backend/internal/common/logger"
	"crypto-balance-backend/internal/features/deposit/models"
	"crypto-balance-backend/internal/features/deposit/repository"
	ledgermodels "crypto-balance-backend/internal/features/ledger/models"
	ledgerrepo "crypto-balance-backend/internal/features/ledger/repository"
	ledger "crypto-balance-backend/internal/features/ledger/service"
	"crypto-balance-backend/internal/platform/cryptopay"
)

const (
	MinDepositAmount = 10
	MaxDepositAmount = 50000
)

var (
	ErrAmountOutOfRange = errors.New("deposit amount out of range")
	ErrDepositNotFound  = repository.ErrDepositNotFound
	ErrUserNotFound     = ledger.ErrUserNotFound
	ErrProvider         = cryptopay.ErrProvider
)

// InvoiceCreator is the contract with the external payment provider.
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, asset string, amount float64, description string) (*cryptopay.Invoice, error)
}

type DepositService interface {
	Create(ctx context.Context, input models.CreateDepositRequest) (*models.CreateDepositResponse, error)
	// Confirm reconciles a provider status report for an invoice. Safe
	// to call any number of times in any order.
	Confirm(ctx context.Context, invoiceID int64, providerStatus string) error
}

type depositService struct {
	repo     repository.DepositRepository
	ledger   ledger.LedgerService
	provider InvoiceCreator
}

func NewDepositService(repo repository.DepositRepository, ledgerSvc ledger.LedgerService, provider InvoiceCreator) DepositService {
	return &depositService{repo: repo, ledger: ledgerSvc, provider: provider}
}

// Create validates the request, obtains an invoice from the provider and
// only then persists the pending deposit. A provider failure leaves no
// state behind; a persisted row is what makes the invoice id usable.
func (s *depositService) Create(ctx context.Context, input models.CreateDepositRequest) (*models.CreateDepositResponse, error) {
	if !ledgermodels.ValidAmount(input.Amount) ||
		input.Amount < MinDepositAmount || input.Amount > MaxDepositAmount {
		return nil, ErrAmountOutOfRange
	}
	amount := ledgermodels.RoundAmount(input.Amount)

	// Verify the user before creating anything at the provider.
	if _, err := s.ledger.GetBalance(ctx, input.UserID); err != nil {
		return nil, err
	}

	invoice, err := s.provider.CreateInvoice(ctx, input.Currency, amount,
		fmt.Sprintf("Balance top-up %.2f %s", amount, input.Currency))
	if err != nil {
		return nil, err
	}

	deposit := &models.Deposit{
		UserID:    input.UserID,
		Amount:    amount,
		Currency:  input.Currency,
		InvoiceID: strconv.FormatInt(invoice.InvoiceID, 10),
	}
	if err := s.repo.Create(ctx, deposit); err != nil {
		// The invoice exists at the provider but was never recorded, so
		// it can never be credited; it simply expires there.
		logger.Error().Err(err).Int64("invoice_id", invoice.InvoiceID).Msg("Failed to persist deposit")
		return nil, err
	}

	return &models.CreateDepositResponse{
		InvoiceID: invoice.InvoiceID,
		PayURL:    invoice.PayURL,
		Amount:    amount,
		Currency:  input.Currency,
	}, nil
}

func (s *depositService) Confirm(ctx context.Context, invoiceID int64, providerStatus string) error {
	key := strconv.FormatInt(invoiceID, 10)

	deposit, err := s.repo.GetByInvoiceID(ctx, key)
	if err != nil {
		return err
	}
	if deposit.Status == models.DepositStatusPaid {
		return nil
	}

	switch providerStatus {
	case "paid":
		// Credit first, keyed by the invoice id: replayed webhooks hit
		// the same key and never produce a second credit.
		if _, err := s.ledger.Apply(ctx, ledgerrepo.ApplyInput{
			UserID:         deposit.UserID,
			Type:           ledgermodels.TransactionTypeDeposit,
			Amount:         deposit.Amount,
			Description:    fmt.Sprintf("Deposit %.2f %s (invoice %s)", deposit.Amount, deposit.Currency, deposit.InvoiceID),
			IdempotencyKey: deposit.InvoiceID,
		}); err != nil {
			return fmt.Errorf("deposit credit: %w", err)
		}

		if _, err := s.repo.MarkPaid(ctx, deposit.InvoiceID); err != nil {
			// The credit is already recorded; the next webhook replay
			// retries the status flip behind the idempotent credit.
			return err
		}

		logger.Info().
			Int64("user_id", deposit.UserID).
			Str("invoice_id", deposit.InvoiceID).
			Float64("amount", deposit.Amount).
			Msg("Deposit confirmed")
		return nil

	case "expired":
		_, err := s.repo.MarkClosed(ctx, deposit.InvoiceID, models.DepositStatusExpired)
		return err

	case "failed":
		_, err := s.repo.MarkClosed(ctx, deposit.InvoiceID, models.DepositStatusFailed)
		return err

	default:
		// Intermediate provider states (e.g. "active") carry no effect.
		return nil
	}
}
