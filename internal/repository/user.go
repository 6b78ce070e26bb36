package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/gymvietai/payment/internal/domain"
	"github.com/jackc/pgx/v5"
)

// UserRepository reads and updates users in the auth service's database.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID returns a user by ID, or nil when absent.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT id, email, role FROM users WHERE id = $1`, id)

	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.Role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &u, nil
}

// ExtendSubscription records the purchased plan on the user row, starting now
// and lasting the given number of months.
func (r *UserRepository) ExtendSubscription(ctx context.Context, userID, planID string, months int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET subscription_plan = $1,
		    subscription_start = NOW(),
		    subscription_end = NOW() + make_interval(months => $2)
		WHERE id = $3
	`, planID, months, userID)
	if err != nil {
		return fmt.Errorf("failed to extend subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to extend subscription: user %s not found", userID)
	}
	return nil
}
