package service_test

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-balance-backend/internal/features/ledger/models"
	"crypto-balance-backend/internal/features/ledger/repository"
	"crypto-balance-backend/internal/features/ledger/repository/memory"
	"crypto-balance-backend/internal/features/ledger/service"
)

func newLedger(t *testing.T, userIDs ...int64) (service.LedgerService, *memory.Repository) {
	t.Helper()
	repo := memory.NewRepository()
	for _, id := range userIDs {
		repo.CreateAccount(id)
	}
	return service.NewLedgerService(repo), repo
}

func TestApplyCreditAndDebit(t *testing.T) {
	svc, _ := newLedger(t, 1)
	ctx := context.Background()

	res, err := svc.Apply(ctx, repository.ApplyInput{
		UserID: 1, Type: models.TransactionTypeDeposit, Amount: 100, Description: "deposit",
	})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, 100.0, res.Balance)

	res, err = svc.Apply(ctx, repository.ApplyInput{
		UserID: 1, Type: models.TransactionTypeWithdrawal, Amount: -30, Description: "withdrawal",
	})
	require.NoError(t, err)
	assert.Equal(t, 70.0, res.Balance)
}

func TestApplyInsufficientFunds(t *testing.T) {
	svc, _ := newLedger(t, 1)
	ctx := context.Background()

	_, err := svc.Apply(ctx, repository.ApplyInput{
		UserID: 1, Type: models.TransactionTypeDeposit, Amount: 50,
	})
	require.NoError(t, err)

	_, err = svc.Apply(ctx, repository.ApplyInput{
		UserID: 1, Type: models.TransactionTypeWithdrawal, Amount: -80,
	})
	assert.ErrorIs(t, err, service.ErrInsufficientFunds)

	balance, err := svc.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 50.0, balance)

	history, err := svc.History(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestApplyUnknownUser(t *testing.T) {
	svc, _ := newLedger(t)

	_, err := svc.Apply(context.Background(), repository.ApplyInput{
		UserID: 42, Type: models.TransactionTypeBonus, Amount: 10,
	})
	assert.ErrorIs(t, err, service.ErrUserNotFound)
}

func TestApplyValidation(t *testing.T) {
	svc, _ := newLedger(t, 1)
	ctx := context.Background()

	_, err := svc.Apply(ctx, repository.ApplyInput{
		UserID: 1, Type: models.TransactionTypeBonus, Amount: math.NaN(),
	})
	assert.ErrorIs(t, err, service.ErrInvalidAmount)

	_, err = svc.Apply(ctx, repository.ApplyInput{
		UserID: 1, Type: models.TransactionTypeBonus, Amount: 0,
	})
	assert.ErrorIs(t, err, service.ErrInvalidAmount)

	_, err = svc.Apply(ctx, repository.ApplyInput{
		UserID: 1, Type: "jackpot", Amount: 10,
	})
	assert.ErrorIs(t, err, service.ErrInvalidType)
}

func TestApplyIdempotency(t *testing.T) {
	svc, _ := newLedger(t, 1)
	ctx := context.Background()

	first, err := svc.Apply(ctx, repository.ApplyInput{
		UserID: 1, Type: models.TransactionTypeDeposit, Amount: 100, IdempotencyKey: "invoice-7",
	})
	require.NoError(t, err)
	assert.True(t, first.Applied)

	second, err := svc.Apply(ctx, repository.ApplyInput{
		UserID: 1, Type: models.TransactionTypeDeposit, Amount: 100, IdempotencyKey: "invoice-7",
	})
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, 100.0, second.Balance)

	history, err := svc.History(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

// flakyRepo fails the first n Apply calls with a conflict.
type flakyRepo struct {
	repository.LedgerRepository
	mu        sync.Mutex
	conflicts int
}

func (f *flakyRepo) Apply(ctx context.Context, input repository.ApplyInput) (*repository.ApplyResult, error) {
	f.mu.Lock()
	if f.conflicts > 0 {
		f.conflicts--
		f.mu.Unlock()
		return nil, repository.ErrConflict
	}
	f.mu.Unlock()
	return f.LedgerRepository.Apply(ctx, input)
}

func TestApplyRetriesConflicts(t *testing.T) {
	mem := memory.NewRepository()
	mem.CreateAccount(1)
	svc := service.NewLedgerService(&flakyRepo{LedgerRepository: mem, conflicts: 2})

	res, err := svc.Apply(context.Background(), repository.ApplyInput{
		UserID: 1, Type: models.TransactionTypeBonus, Amount: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 10.0, res.Balance)
}

func TestApplyConflictExhaustion(t *testing.T) {
	mem := memory.NewRepository()
	mem.CreateAccount(1)
	svc := service.NewLedgerService(&flakyRepo{LedgerRepository: mem, conflicts: 100})

	_, err := svc.Apply(context.Background(), repository.ApplyInput{
		UserID: 1, Type: models.TransactionTypeBonus, Amount: 10,
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestBalanceEqualsTransactionSum(t *testing.T) {
	svc, _ := newLedger(t, 1)
	ctx := context.Background()

	ops := []float64{100, -20, 35.5, -15.25, 0.75, -100}
	for _, amount := range ops {
		kind := models.TransactionTypeDeposit
		if amount < 0 {
			kind = models.TransactionTypeWithdrawal
		}
		if _, err := svc.Apply(ctx, repository.ApplyInput{UserID: 1, Type: kind, Amount: amount}); err != nil {
			assert.ErrorIs(t, err, service.ErrInsufficientFunds)
		}
	}

	history, err := svc.History(ctx, 1, 100)
	require.NoError(t, err)

	var sum float64
	for _, tx := range history {
		sum += tx.Amount
	}

	balance, err := svc.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, sum, balance, 0.001)
}

func TestConcurrentDebitsSerialize(t *testing.T) {
	svc, _ := newLedger(t, 1)
	ctx := context.Background()

	_, err := svc.Apply(ctx, repository.ApplyInput{
		UserID: 1, Type: models.TransactionTypeDeposit, Amount: 50,
	})
	require.NoError(t, err)

	const workers = 2
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Apply(ctx, repository.ApplyInput{
				UserID: 1, Type: models.TransactionTypeWithdrawal, Amount: -40,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, failed int
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, service.ErrInsufficientFunds)
			failed++
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)

	balance, err := svc.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 10.0, balance)
}
