package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/educatory/backend/internal/models"
)

// Repository handles operator accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByEmail returns a user by email, or nil when there is none.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `SELECT id, email, password_hash, full_name, role, created_at, updated_at
		FROM users WHERE email = $1`
	var u models.User
	err := r.pool.QueryRow(ctx, q, strings.ToLower(email)).Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// EnsureAdmin creates the admin account unless the email already exists.
// It reports whether a row was inserted.
func (r *Repository) EnsureAdmin(ctx context.Context, email, password, fullName string) (bool, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx, `INSERT INTO users (email, password_hash, full_name, role)
		VALUES ($1, $2, $3, $4) ON CONFLICT (email) DO NOTHING`,
		strings.ToLower(email), hash, fullName, string(models.RoleAdmin))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
