package memory

import (
	"context"
	"sync"
	"time"

	"crypto-balance-backend/internal/features/ledger/models"
	"crypto-balance-backend/internal/features/ledger/repository"
)

// Repository is an in-memory ledger with the same contract as the
// Postgres implementation. One mutex serializes all mutations, which
// trivially satisfies the per-user serializability requirement. Used in
// tests and available for single-process setups.
type Repository struct {
	mu           sync.Mutex
	balances     map[int64]float64
	byKey        map[string]int64
	transactions []*models.Transaction
	nextID       int64
}

func NewRepository() *Repository {
	return &Repository{
		balances: make(map[int64]float64),
		byKey:    make(map[string]int64),
	}
}

// CreateAccount registers a user with a zero balance.
func (r *Repository) CreateAccount(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.balances[userID]; !ok {
		r.balances[userID] = 0
	}
}

func (r *Repository) Apply(ctx context.Context, input repository.ApplyInput) (*repository.ApplyResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if input.IdempotencyKey != "" {
		if txID, ok := r.byKey[input.IdempotencyKey]; ok {
			owner := r.ownerOf(txID)
			return &repository.ApplyResult{
				TransactionID: txID,
				Balance:       r.balances[owner],
				Applied:       false,
			}, nil
		}
	}

	balance, ok := r.balances[input.UserID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	if balance+input.Amount < 0 {
		return nil, repository.ErrInsufficientFunds
	}

	r.nextID++
	tx := &models.Transaction{
		ID:             r.nextID,
		UserID:         input.UserID,
		Type:           input.Type,
		Amount:         input.Amount,
		Description:    input.Description,
		IdempotencyKey: input.IdempotencyKey,
		CreatedAt:      time.Now(),
	}
	r.transactions = append(r.transactions, tx)
	if input.IdempotencyKey != "" {
		r.byKey[input.IdempotencyKey] = tx.ID
	}

	newBalance := models.RoundAmount(balance + input.Amount)
	r.balances[input.UserID] = newBalance

	return &repository.ApplyResult{TransactionID: tx.ID, Balance: newBalance, Applied: true}, nil
}

func (r *Repository) GetBalance(ctx context.Context, userID int64) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	balance, ok := r.balances[userID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	return balance, nil
}

func (r *Repository) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, tx := range r.transactions {
		if tx.ID == id {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, repository.ErrTransactionNotFound
}

func (r *Repository) History(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Transaction
	for i := len(r.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		if r.transactions[i].UserID == userID {
			out = append(out, r.transactions[i])
		}
	}
	return out, nil
}

func (r *Repository) ownerOf(txID int64) int64 {
	for _, tx := range r.transactions {
		if tx.ID == txID {
			return tx.UserID
		}
	}
	return 0
}
