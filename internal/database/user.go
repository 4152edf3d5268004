package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grooveguessr/grooveguessr/internal/auth"
	"github.com/grooveguessr/grooveguessr/internal/models"
)

const userColumns = `id, COALESCE(email, ''), password, name, is_ephemeral, created_at`

// UserStore is the local user directory standing in for the identity provider.
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.Password, &u.Name, &u.IsEphemeral, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser assigns an id if missing, hashes the password if one is set and
// inserts the row. A duplicate email yields ErrConflict.
func (s *UserStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		user.ID = id.String()
	}

	if user.Password != "" {
		hash, err := auth.HashPassword(user.Password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		user.Password = hash
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, password, name, is_ephemeral)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5)
		RETURNING created_at
	`, user.ID, user.Email, user.Password, user.Name, user.IsEphemeral).Scan(&user.CreatedAt)
	return wrapErr("create user", err)
}

func (s *UserStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, wrapErr("get user", err)
	}
	return u, nil
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, wrapErr("get user by email", err)
	}
	return u, nil
}

// RenameUser changes the display name shown in player lists.
func (s *UserStore) RenameUser(ctx context.Context, id, name string) error {
	ct, err := s.pool.Exec(ctx, `UPDATE users SET name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return wrapErr("rename user", err)
	}
	if ct.RowsAffected() == 0 {
		return wrapErr("rename user", models.ErrNotFound)
	}
	return nil
}

// AuthenticateUser checks credentials and returns the user on success.
func (s *UserStore) AuthenticateUser(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.Password == "" {
		return nil, fmt.Errorf("authenticate: %w", models.ErrUnauthorized)
	}
	match, err := auth.VerifyPassword(password, user.Password)
	if err != nil || !match {
		return nil, fmt.Errorf("authenticate: invalid credentials: %w", models.ErrUnauthorized)
	}
	return user, nil
}
