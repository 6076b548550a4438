package service

import (
	"context"
	"errors"
	"fmt"

	"crypto-balance-backend/internal/common/logger"
	ledgermodels "crypto-balance-backend/internal/features/ledger/models"
	ledgerrepo "crypto-balance-backend/internal/features/ledger/repository"
	ledger "crypto-balance-backend/internal/features/ledger/service"
	"crypto-balance-backend/internal/features/withdrawal/models"
	"crypto-balance-backend/internal/features/withdrawal/repository"
)

const (
	MinWithdrawalAmount = 20
	listLimit           = 20
	reconcileLimit      = 500
)

var (
	ErrMinAmount       = errors.New("withdrawal amount below minimum")
	ErrInvalidDecision = errors.New("invalid decision")
	ErrAlreadyResolved = errors.New("withdrawal already resolved")
	// ErrKeyConflict reports an idempotency key reused with different
	// request parameters.
	ErrKeyConflict        = errors.New("idempotency key conflict")
	ErrWithdrawalNotFound = repository.ErrWithdrawalNotFound
	ErrUserNotFound       = ledger.ErrUserNotFound
	ErrInsufficientFunds  = ledger.ErrInsufficientFunds
)

type WithdrawalService interface {
	// Request debits the funds immediately (hold) and records the
	// pending request. idempotencyKey is optional and dedupes retries.
	Request(ctx context.Context, input models.WithdrawRequest, idempotencyKey string) (*models.Withdrawal, error)
	Resolve(ctx context.Context, id int64, decision string) (*models.Withdrawal, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Withdrawal, error)
	// ReconcileRefunds re-applies refunds for rejected withdrawals; run
	// at startup to heal a crash between rejection and refund.
	ReconcileRefunds(ctx context.Context) error
}

type withdrawalService struct {
	repo   repository.WithdrawalRepository
	ledger ledger.LedgerService
}

func NewWithdrawalService(repo repository.WithdrawalRepository, ledgerSvc ledger.LedgerService) WithdrawalService {
	return &withdrawalService{repo: repo, ledger: ledgerSvc}
}

func (s *withdrawalService) Request(ctx context.Context, input models.WithdrawRequest, idempotencyKey string) (*models.Withdrawal, error) {
	if !ledgermodels.ValidAmount(input.Amount) || input.Amount < MinWithdrawalAmount {
		return nil, ErrMinAmount
	}
	amount := ledgermodels.RoundAmount(input.Amount)

	// Client keys get their own namespace so they can never collide
	// with deposit or bonus keys in the shared ledger key space.
	key := idempotencyKey
	if key != "" {
		key = "withdrawal:" + key
	}

	// Hold first: the debit enforces sufficient balance, and the request
	// row is only created once the funds are locked away.
	res, err := s.ledger.Apply(ctx, ledgerrepo.ApplyInput{
		UserID:         input.UserID,
		Type:           ledgermodels.TransactionTypeWithdrawal,
		Amount:         -amount,
		Description:    fmt.Sprintf("Withdrawal request (%s) to %s", input.Currency, input.WalletAddress),
		IdempotencyKey: key,
	})
	if err != nil {
		return nil, err
	}

	if !res.Applied {
		// The key matched an earlier transaction. Only a withdrawal
		// debit of this exact amount for this user counts as a replay;
		// anything else is the key reused with different parameters.
		tx, err := s.ledger.GetTransaction(ctx, res.TransactionID)
		if err != nil {
			return nil, err
		}
		if tx.UserID != input.UserID ||
			tx.Type != ledgermodels.TransactionTypeWithdrawal ||
			tx.Amount != -amount {
			return nil, ErrKeyConflict
		}

		existing, err := s.repo.GetByDebitTransaction(ctx, res.TransactionID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, repository.ErrWithdrawalNotFound) {
			return nil, err
		}
		// The hold was recorded but the row never was (crash between the
		// two); fall through and recreate it for the existing debit.
	}

	withdrawal := &models.Withdrawal{
		UserID:             input.UserID,
		Amount:             amount,
		Currency:           input.Currency,
		WalletAddress:      input.WalletAddress,
		DebitTransactionID: res.TransactionID,
	}
	if err := s.repo.Create(ctx, withdrawal); err != nil {
		return nil, err
	}

	logger.Info().
		Int64("user_id", input.UserID).
		Int64("withdrawal_id", withdrawal.ID).
		Float64("amount", amount).
		Msg("Withdrawal requested")

	return withdrawal, nil
}

// Resolve finalizes a pending request. Approval completes it with no
// balance effect; rejection releases the hold with a compensating credit.
func (s *withdrawalService) Resolve(ctx context.Context, id int64, decision string) (*models.Withdrawal, error) {
	withdrawal, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch decision {
	case models.DecisionApprove:
		ok, err := s.repo.UpdateStatus(ctx, id, models.WithdrawalStatusPending, models.WithdrawalStatusCompleted)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrAlreadyResolved
		}
		withdrawal.Status = models.WithdrawalStatusCompleted

	case models.DecisionReject:
		ok, err := s.repo.UpdateStatus(ctx, id, models.WithdrawalStatusPending, models.WithdrawalStatusRejected)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrAlreadyResolved
		}

		_, err = s.ledger.Apply(ctx, refundInput(withdrawal))
		if err != nil {
			// Roll the row back to pending so the caller can retry the
			// rejection; the refund key keeps a later retry single-shot.
			if _, revertErr := s.repo.UpdateStatus(ctx, id, models.WithdrawalStatusRejected, models.WithdrawalStatusPending); revertErr != nil {
				logger.Error().Err(revertErr).Int64("withdrawal_id", id).Msg("Failed to revert withdrawal status")
			}
			return nil, fmt.Errorf("withdrawal refund: %w", err)
		}
		withdrawal.Status = models.WithdrawalStatusRejected

	default:
		return nil, ErrInvalidDecision
	}

	logger.Info().
		Int64("withdrawal_id", id).
		Str("decision", decision).
		Msg("Withdrawal resolved")

	return withdrawal, nil
}

func (s *withdrawalService) ListByUser(ctx context.Context, userID int64) ([]*models.Withdrawal, error) {
	return s.repo.ListByUser(ctx, userID, listLimit)
}

// ReconcileRefunds re-issues the compensating credit for every rejected
// withdrawal. The refund key makes each credit at-most-once, so the pass
// is safe to run on every start; a credit that actually applies means a
// previous process died between the rejection and its refund.
func (s *withdrawalService) ReconcileRefunds(ctx context.Context) error {
	rejected, err := s.repo.ListByStatus(ctx, models.WithdrawalStatusRejected, reconcileLimit)
	if err != nil {
		return err
	}

	for _, w := range rejected {
		res, err := s.ledger.Apply(ctx, refundInput(w))
		if err != nil {
			return fmt.Errorf("reconcile withdrawal %d: %w", w.ID, err)
		}
		if res.Applied {
			logger.Warn().
				Int64("withdrawal_id", w.ID).
				Float64("amount", w.Amount).
				Msg("Recovered missing withdrawal refund")
		}
	}
	return nil
}

func refundInput(w *models.Withdrawal) ledgerrepo.ApplyInput {
	return ledgerrepo.ApplyInput{
		UserID:         w.UserID,
		Type:           ledgermodels.TransactionTypeAdjustment,
		Amount:         w.Amount,
		Description:    fmt.Sprintf("Refund for rejected withdrawal #%d", w.ID),
		IdempotencyKey: fmt.Sprintf("withdrawal-refund:%d", w.ID),
	}
}
