package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crypto-balance-backend/internal/features/deposit/models"
	"crypto-balance-backend/internal/features/deposit/repository"
)

type postgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) repository.DepositRepository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, deposit *models.Deposit) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO deposits (user_id, amount, currency, invoice_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, deposit.UserID, deposit.Amount, deposit.Currency, deposit.InvoiceID,
		string(models.DepositStatusPending)).Scan(&deposit.ID, &deposit.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create deposit: %w", err)
	}
	deposit.Status = models.DepositStatusPending
	return nil
}

func (r *postgresRepository) GetByInvoiceID(ctx context.Context, invoiceID string) (*models.Deposit, error) {
	var d models.Deposit
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, amount, currency, invoice_id, status, created_at
		FROM deposits
		WHERE invoice_id = $1
	`, invoiceID).Scan(&d.ID, &d.UserID, &d.Amount, &d.Currency, &d.InvoiceID, &d.Status, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrDepositNotFound
		}
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	return &d, nil
}

func (r *postgresRepository) MarkPaid(ctx context.Context, invoiceID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE deposits SET status = $2 WHERE invoice_id = $1 AND status <> $2
	`, invoiceID, string(models.DepositStatusPaid))
	if err != nil {
		return false, fmt.Errorf("failed to mark deposit paid: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func (r *postgresRepository) MarkClosed(ctx context.Context, invoiceID string, status models.DepositStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE deposits SET status = $2 WHERE invoice_id = $1 AND status = $3
	`, invoiceID, string(status), string(models.DepositStatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to close deposit: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}
