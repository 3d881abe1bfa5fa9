package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberworks/hongbao/internal/domain"
)

type Users struct {
	pool *pgxpool.Pool
}

func NewUsers(pool *pgxpool.Pool) *Users {
	return &Users{pool: pool}
}

const userColumns = `id, first_name, username, is_admin, balance, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.FirstName, &u.Username, &u.IsAdmin, &u.Balance, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (r *Users) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *Users) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return scanUser(row)
}

// UpsertUser creates the user on first contact or refreshes the profile
// fields on later ones. Returns the stored row and whether it was created
// just now.
func (r *Users) UpsertUser(ctx context.Context, id int64, firstName, username string, isAdmin bool) (*domain.User, bool, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, first_name, username, is_admin)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET first_name = EXCLUDED.first_name,
			username = EXCLUDED.username,
			is_admin = EXCLUDED.is_admin,
			updated_at = now()
		RETURNING `+userColumns+`, (created_at = updated_at)`,
		id, firstName, username, isAdmin)

	var u domain.User
	var created bool
	err := row.Scan(&u.ID, &u.FirstName, &u.Username, &u.IsAdmin, &u.Balance, &u.CreatedAt, &u.UpdatedAt, &created)
	if err != nil {
		return nil, false, fmt.Errorf("upsert user: %w", err)
	}
	return &u, created, nil
}
