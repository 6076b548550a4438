package service

import (
	"context"
	"errors"
	"time"

	"crypto-balance-backend/internal/common/logger"
	"crypto-balance-backend/internal/features/ledger/models"
	"crypto-balance-backend/internal/features/ledger/repository"
)

var (
	ErrUserNotFound      = repository.ErrUserNotFound
	ErrInsufficientFunds = repository.ErrInsufficientFunds
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidType       = errors.New("invalid transaction type")
)

const (
	conflictRetries = 3
	retryBackoff    = 25 * time.Millisecond
)

type LedgerService interface {
	Apply(ctx context.Context, input repository.ApplyInput) (*repository.ApplyResult, error)
	GetBalance(ctx context.Context, userID int64) (float64, error)
	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
	History(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error)
}

type ledgerService struct {
	repo repository.LedgerRepository
}

func NewLedgerService(repo repository.LedgerRepository) LedgerService {
	return &ledgerService{repo: repo}
}

// Apply validates and records a balance mutation. Conflicts between
// concurrent writers are retried transparently; once the retries are
// exhausted the conflict surfaces to the caller as an internal error.
func (s *ledgerService) Apply(ctx context.Context, input repository.ApplyInput) (*repository.ApplyResult, error) {
	if !models.ValidAmount(input.Amount) || input.Amount == 0 {
		return nil, ErrInvalidAmount
	}
	if !input.Type.Valid() {
		return nil, ErrInvalidType
	}
	input.Amount = models.RoundAmount(input.Amount)

	var lastErr error
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}

		res, err := s.repo.Apply(ctx, input)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, err
		}
		lastErr = err

		logger.Warn().
			Int64("user_id", input.UserID).
			Str("type", string(input.Type)).
			Int("attempt", attempt+1).
			Msg("Ledger conflict, retrying")
	}

	return nil, lastErr
}

func (s *ledgerService) GetBalance(ctx context.Context, userID int64) (float64, error) {
	return s.repo.GetBalance(ctx, userID)
}

func (s *ledgerService) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

func (s *ledgerService) History(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.History(ctx, userID, limit)
}
