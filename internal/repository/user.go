package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couponlab/waitroom/internal/domain/user"
)

const getUserSQL = `SELECT user_name FROM users WHERE user_name = $1`

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByName looks up a user by name. Returns user.ErrNotFound when absent.
func (r *UserRepository) GetByName(ctx context.Context, name string) (*user.User, error) {
	var u user.User
	err := from(ctx, r.pool).QueryRow(ctx, getUserSQL, name).Scan(&u.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("finding user %q: %w", name, err)
	}
	return &u, nil
}
