package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledgerrepo "crypto-balance-backend/internal/features/ledger/repository"
	"crypto-balance-backend/internal/features/ledger/repository/memory"
	ledger "crypto-balance-backend/internal/features/ledger/service"
	"crypto-balance-backend/internal/features/user/models"
	"crypto-balance-backend/internal/features/user/repository"
	"crypto-balance-backend/internal/features/user/service"
)

// fakeUserRepo keeps users in a map and opens a ledger account for every
// created user, mirroring what the shared users table provides in
// production.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[int64]*models.User
	ledger *memory.Repository
}

func newFakeUserRepo(ledgerRepo *memory.Repository) *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*models.User), ledger: ledgerRepo}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.UserID]; ok {
		return false, nil
	}
	u := *user
	f.users[user.UserID] = &u
	f.ledger.CreateAccount(user.UserID)
	return true, nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	u := *user
	u.Balance, _ = f.ledger.GetBalance(ctx, id)
	return &u, nil
}

func (f *fakeUserRepo) Exists(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.users[id]
	return ok, nil
}

func newUserService(t *testing.T) (service.UserService, ledger.LedgerService, *fakeUserRepo) {
	t.Helper()
	mem := memory.NewRepository()
	ledgerSvc := ledger.NewLedgerService(mem)
	repo := newFakeUserRepo(mem)
	return service.NewUserService(repo, ledgerSvc, nil, 10, 25), ledgerSvc, repo
}

func ref(id int64) *int64 { return &id }

func TestRegisterPaysWelcomeBonus(t *testing.T) {
	svc, ledgerSvc, _ := newUserService(t)
	ctx := context.Background()

	user, created, err := svc.Register(ctx, models.RegisterRequest{UserID: 1, FirstName: "Alice"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 10.0, user.Balance)

	history, err := ledgerSvc.History(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "bonus", string(history[0].Type))
}

func TestRegisterWithReferrer(t *testing.T) {
	svc, ledgerSvc, _ := newUserService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, models.RegisterRequest{UserID: 100, FirstName: "Referrer"})
	require.NoError(t, err)

	user, created, err := svc.Register(ctx, models.RegisterRequest{
		UserID: 200, FirstName: "Newcomer", ReferrerID: ref(100),
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 10.0, user.Balance)

	referrerBalance, err := ledgerSvc.GetBalance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 35.0, referrerBalance) // 10 welcome + 25 referral

	history, err := ledgerSvc.History(ctx, 100, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "referral", string(history[0].Type))
}

func TestRegisterUnknownReferrerSkipsBonus(t *testing.T) {
	svc, ledgerSvc, _ := newUserService(t)
	ctx := context.Background()

	user, created, err := svc.Register(ctx, models.RegisterRequest{
		UserID: 1, FirstName: "Alice", ReferrerID: ref(999),
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 10.0, user.Balance)

	history, err := ledgerSvc.History(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRegisterIdempotent(t *testing.T) {
	svc, ledgerSvc, _ := newUserService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, models.RegisterRequest{UserID: 100, FirstName: "Referrer"})
	require.NoError(t, err)

	_, created, err := svc.Register(ctx, models.RegisterRequest{
		UserID: 200, FirstName: "Newcomer", ReferrerID: ref(100),
	})
	require.NoError(t, err)
	assert.True(t, created)

	user, created, err := svc.Register(ctx, models.RegisterRequest{
		UserID: 200, FirstName: "Newcomer", ReferrerID: ref(100),
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 10.0, user.Balance)

	referrerBalance, err := ledgerSvc.GetBalance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 35.0, referrerBalance)
}

func TestRegisterSelfReferralSkipped(t *testing.T) {
	svc, ledgerSvc, _ := newUserService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, models.RegisterRequest{
		UserID: 1, FirstName: "Alice", ReferrerID: ref(1),
	})
	require.NoError(t, err)

	history, err := ledgerSvc.History(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

// failingLedger fails the next n Apply calls with a transient error.
type failingLedger struct {
	ledgerrepo.LedgerRepository
	mu       sync.Mutex
	failures int
}

func (f *failingLedger) Apply(ctx context.Context, input ledgerrepo.ApplyInput) (*ledgerrepo.ApplyResult, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, errors.New("connection reset")
	}
	f.mu.Unlock()
	return f.LedgerRepository.Apply(ctx, input)
}

func TestRegisterRetryHealsBonuses(t *testing.T) {
	mem := memory.NewRepository()
	flaky := &failingLedger{LedgerRepository: mem}
	ledgerSvc := ledger.NewLedgerService(flaky)
	repo := newFakeUserRepo(mem)
	svc := service.NewUserService(repo, ledgerSvc, nil, 10, 25)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, models.RegisterRequest{UserID: 100, FirstName: "Referrer"})
	require.NoError(t, err)

	// First attempt dies after the row insert, before the welcome bonus.
	flaky.failures = 1
	_, _, err = svc.Register(ctx, models.RegisterRequest{
		UserID: 200, FirstName: "Newcomer", ReferrerID: ref(100),
	})
	require.Error(t, err)

	// The retry must pay both bonuses exactly once.
	user, created, err := svc.Register(ctx, models.RegisterRequest{
		UserID: 200, FirstName: "Newcomer", ReferrerID: ref(100),
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 10.0, user.Balance)

	referrerBalance, err := ledgerSvc.GetBalance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 35.0, referrerBalance)

	history, err := ledgerSvc.History(ctx, 200, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestAdjustBalance(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, models.RegisterRequest{UserID: 1, FirstName: "Alice"})
	require.NoError(t, err)

	user, err := svc.Adjust(ctx, 1, 40, "adjustment", "manual correction")
	require.NoError(t, err)
	assert.Equal(t, 50.0, user.Balance)

	_, err = svc.Adjust(ctx, 999, 40, "adjustment", "")
	assert.ErrorIs(t, err, service.ErrUserNotFound)
}

func TestAdjustRejectsOverdraft(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, models.RegisterRequest{UserID: 1, FirstName: "Alice"})
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, 1, -500, "adjustment", "")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
}
