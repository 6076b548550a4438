package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"crypto-balance-backend/internal/features/ledger/models"
	"crypto-balance-backend/internal/features/ledger/repository"
)

type postgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) repository.LedgerRepository {
	return &postgresRepository{db: db}
}

// Apply performs one balance mutation atomically: idempotency lookup,
// guarded balance update and ledger append all happen in a single SQL
// transaction. The conditional UPDATE takes the user's row lock, which
// serializes concurrent mutations for the same user.
func (r *postgresRepository) Apply(ctx context.Context, input repository.ApplyInput) (*repository.ApplyResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if input.IdempotencyKey != "" {
		existing, err := findByIdempotencyKey(ctx, tx, input.IdempotencyKey)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, translateError(err)
		}
		if err == nil {
			return existing, nil
		}
	}

	var balance float64
	err = tx.QueryRowContext(ctx, `
		UPDATE users
		SET balance = ROUND(balance + $2, 2),
			total_earned = total_earned + CASE
				WHEN $3 IN ('bonus', 'referral') AND $2 > 0 THEN $2 ELSE 0 END,
			total_referred = total_referred + CASE
				WHEN $3 = 'referral' THEN 1 ELSE 0 END
		WHERE user_id = $1 AND balance + $2 >= 0
		RETURNING balance
	`, input.UserID, input.Amount, string(input.Type)).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, classifyRejectedUpdate(ctx, tx, input.UserID)
		}
		return nil, translateError(err)
	}

	var txID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO transactions (user_id, type, amount, description, idempotency_key)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING id
	`, input.UserID, string(input.Type), input.Amount, input.Description, input.IdempotencyKey).Scan(&txID)
	if err != nil {
		return nil, translateError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, translateError(err)
	}

	return &repository.ApplyResult{TransactionID: txID, Balance: balance, Applied: true}, nil
}

func (r *postgresRepository) GetBalance(ctx context.Context, userID int64) (float64, error) {
	var balance float64
	err := r.db.QueryRowContext(ctx,
		"SELECT balance FROM users WHERE user_id = $1", userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, repository.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

func (r *postgresRepository) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	var t models.Transaction
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, amount, description, created_at
		FROM transactions
		WHERE id = $1
	`, id).Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Description, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &t, nil
}

func (r *postgresRepository) History(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, type, amount, description, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, &t)
	}

	return transactions, rows.Err()
}

func findByIdempotencyKey(ctx context.Context, tx *sql.Tx, key string) (*repository.ApplyResult, error) {
	var res repository.ApplyResult
	err := tx.QueryRowContext(ctx, `
		SELECT t.id, u.balance
		FROM transactions t
		JOIN users u ON u.user_id = t.user_id
		WHERE t.idempotency_key = $1
	`, key).Scan(&res.TransactionID, &res.Balance)
	if err != nil {
		return nil, err
	}
	res.Applied = false
	return &res, nil
}

// classifyRejectedUpdate decides why the guarded UPDATE matched nothing:
// the user does not exist, or the debit would drive the balance negative.
func classifyRejectedUpdate(ctx context.Context, tx *sql.Tx, userID int64) error {
	var exists bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1)", userID).Scan(&exists); err != nil {
		return translateError(err)
	}
	if !exists {
		return repository.ErrUserNotFound
	}
	return repository.ErrInsufficientFunds
}

func translateError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation: concurrent insert of the same idempotency key
			return repository.ErrConflict
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return repository.ErrConflict
		}
	}
	return fmt.Errorf("ledger operation failed: %w", err)
}
