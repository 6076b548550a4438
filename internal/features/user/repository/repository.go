package repository

import (
	"context"
	"errors"

	"crypto-balance-backend/internal/features/user/models"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	// Create inserts the user unless the id is already taken. Reports
	// whether a row was actually inserted, which makes concurrent
	// duplicate registrations converge on a single winner.
	Create(ctx context.Context, user *models.User) (bool, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	Exists(ctx context.Context, id int64) (bool, error)
}
