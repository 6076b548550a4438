package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crypto-balance-backend/internal/features/withdrawal/models"
	"crypto-balance-backend/internal/features/withdrawal/repository"
)

type postgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) repository.WithdrawalRepository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, w *models.Withdrawal) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO withdrawals (user_id, amount, currency, wallet_address, status, debit_transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, w.UserID, w.Amount, w.Currency, w.WalletAddress,
		string(models.WithdrawalStatusPending), w.DebitTransactionID).Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create withdrawal: %w", err)
	}
	w.Status = models.WithdrawalStatusPending
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id int64) (*models.Withdrawal, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *postgresRepository) GetByDebitTransaction(ctx context.Context, transactionID int64) (*models.Withdrawal, error) {
	return r.getOne(ctx, "debit_transaction_id = $1", transactionID)
}

func (r *postgresRepository) getOne(ctx context.Context, where string, arg interface{}) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, amount, currency, wallet_address, status, debit_transaction_id, created_at
		FROM withdrawals
		WHERE `+where, arg).Scan(
		&w.ID, &w.UserID, &w.Amount, &w.Currency, &w.WalletAddress,
		&w.Status, &w.DebitTransactionID, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	return &w, nil
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, id int64, from, to models.WithdrawalStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE withdrawals SET status = $3 WHERE id = $1 AND status = $2
	`, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("failed to update withdrawal status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.Withdrawal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, amount, currency, wallet_address, status, debit_transaction_id, created_at
		FROM withdrawals
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	return scanWithdrawals(rows)
}

func (r *postgresRepository) ListByStatus(ctx context.Context, status models.WithdrawalStatus, limit int) ([]*models.Withdrawal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, amount, currency, wallet_address, status, debit_transaction_id, created_at
		FROM withdrawals
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	return scanWithdrawals(rows)
}

func scanWithdrawals(rows *sql.Rows) ([]*models.Withdrawal, error) {
	defer rows.Close()

	var withdrawals []*models.Withdrawal
	for rows.Next() {
		var w models.Withdrawal
		if err := rows.Scan(&w.ID, &w.UserID, &w.Amount, &w.Currency, &w.WalletAddress,
			&w.Status, &w.DebitTransactionID, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		withdrawals = append(withdrawals, &w)
	}

	return withdrawals, rows.Err()
}
