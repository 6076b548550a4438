package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crypto-balance-backend/internal/features/user/models"
	"crypto-balance-backend/internal/features/user/repository"
)

type postgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) repository.UserRepository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, user *models.User) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO users (user_id, username, first_name, referrer_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING
	`, user.UserID, user.Username, user.FirstName, user.ReferrerID)
	if err != nil {
		return false, fmt.Errorf("failed to create user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, username, first_name, balance, referrer_id,
			total_earned, total_referred, registration_date
		FROM users
		WHERE user_id = $1
	`, id).Scan(
		&user.UserID, &user.Username, &user.FirstName, &user.Balance,
		&user.ReferrerID, &user.TotalEarned, &user.TotalReferred, &user.RegistrationDate)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

func (r *postgresRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}
