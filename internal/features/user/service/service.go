package service

import (
	"context"
	"errors"
	"fmt"

	"crypto-balance-backend/internal/common/logger"
	ledgermodels "crypto-balance-backend/internal/features/ledger/models"
	ledgerrepo "crypto-balance-backend/internal/features/ledger/repository"
	ledger "crypto-balance-backend/internal/features/ledger/service"
	"crypto-balance-backend/internal/features/user/models"
	"crypto-balance-backend/internal/features/user/repository"
)

var ErrUserNotFound = repository.ErrUserNotFound

type UserService interface {
	// Register returns the user record and whether it was just created.
	Register(ctx context.Context, input models.RegisterRequest) (*models.User, bool, error)
	Get(ctx context.Context, id int64) (*models.User, error)
	Adjust(ctx context.Context, id int64, amount float64, kind, description string) (*models.User, error)
	Transactions(ctx context.Context, id int64, limit int) ([]*ledgermodels.Transaction, error)
}

// UserCache is satisfied by the Redis cache; a nil cache disables caching.
type UserCache interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	Set(ctx context.Context, u *models.User) error
	Invalidate(ctx context.Context, id int64) error
}

type userService struct {
	repo          repository.UserRepository
	ledger        ledger.LedgerService
	cache         UserCache
	welcomeBonus  float64
	referralBonus float64
}

func NewUserService(repo repository.UserRepository, ledgerSvc ledger.LedgerService, cache UserCache, welcomeBonus, referralBonus float64) UserService {
	return &userService{
		repo:          repo,
		ledger:        ledgerSvc,
		cache:         cache,
		welcomeBonus:  welcomeBonus,
		referralBonus: referralBonus,
	}
}

// Register creates the account and pays the one-time bonuses. The ledger
// idempotency keys guarantee at-most-once crediting even when the whole
// call is retried after a partial failure.
func (s *userService) Register(ctx context.Context, input models.RegisterRequest) (*models.User, bool, error) {
	created, err := s.repo.Create(ctx, &models.User{
		UserID:     input.UserID,
		Username:   input.Username,
		FirstName:  input.FirstName,
		ReferrerID: input.ReferrerID,
	})
	if err != nil {
		return nil, false, err
	}

	// The bonuses run on every call, not only when the row was just
	// created: the keyed credits are no-ops once paid, and re-issuing
	// them heals a retry whose first attempt died between the row
	// insert and the credits.
	if _, err := s.ledger.Apply(ctx, ledgerrepo.ApplyInput{
		UserID:         input.UserID,
		Type:           ledgermodels.TransactionTypeBonus,
		Amount:         s.welcomeBonus,
		Description:    "Welcome bonus",
		IdempotencyKey: fmt.Sprintf("welcome:%d", input.UserID),
	}); err != nil {
		return nil, false, fmt.Errorf("welcome bonus: %w", err)
	}

	user, err := s.repo.GetByID(ctx, input.UserID)
	if err != nil {
		return nil, false, err
	}

	// The stored row, not the request, decides the referrer: a retry
	// may not carry the same referrer_id the first attempt recorded.
	s.payReferralBonus(ctx, user)

	s.invalidateCache(ctx, input.UserID)

	return user, created, nil
}

// payReferralBonus credits the referrer once per referred user. A missing
// referrer is not an error; the new account keeps its welcome bonus.
func (s *userService) payReferralBonus(ctx context.Context, user *models.User) {
	if user.ReferrerID == nil || *user.ReferrerID == user.UserID {
		return
	}

	exists, err := s.repo.Exists(ctx, *user.ReferrerID)
	if err != nil {
		logger.Error().Err(err).Int64("referrer_id", *user.ReferrerID).Msg("Referrer lookup failed")
		return
	}
	if !exists {
		logger.Debug().Int64("referrer_id", *user.ReferrerID).Msg("Referrer not found, skipping bonus")
		return
	}

	// The ledger bumps total_referred together with the referral credit.
	_, err = s.ledger.Apply(ctx, ledgerrepo.ApplyInput{
		UserID:         *user.ReferrerID,
		Type:           ledgermodels.TransactionTypeReferral,
		Amount:         s.referralBonus,
		Description:    fmt.Sprintf("Referral bonus for %s", user.FirstName),
		IdempotencyKey: fmt.Sprintf("referral:%d", user.UserID),
	})
	if err != nil {
		logger.Error().Err(err).Int64("referrer_id", *user.ReferrerID).Msg("Referral bonus failed")
		return
	}

	s.invalidateCache(ctx, *user.ReferrerID)
}

func (s *userService) Get(ctx context.Context, id int64) (*models.User, error) {
	if s.cache != nil {
		if user, err := s.cache.GetByID(ctx, id); err == nil {
			return user, nil
		}
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, user); err != nil {
			logger.Debug().Err(err).Int64("user_id", id).Msg("User cache set failed")
		}
	}

	return user, nil
}

func (s *userService) Adjust(ctx context.Context, id int64, amount float64, kind, description string) (*models.User, error) {
	if _, err := s.ledger.Apply(ctx, ledgerrepo.ApplyInput{
		UserID:      id,
		Type:        ledgermodels.TransactionType(kind),
		Amount:      amount,
		Description: description,
	}); err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	s.invalidateCache(ctx, id)

	return s.repo.GetByID(ctx, id)
}

func (s *userService) Transactions(ctx context.Context, id int64, limit int) ([]*ledgermodels.Transaction, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.ledger.History(ctx, id, limit)
}

func (s *userService) invalidateCache(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		logger.Debug().Err(err).Int64("user_id", id).Msg("User cache invalidation failed")
	}
}
