package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/custody-guard/internal/domain"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// GetUserByUsername возвращает (nil, nil), если пользователя нет:
// слой аутентификации сам решает, как маскировать отсутствие.
func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `
		SELECT id, email, username, password_hash, role, scopes, created_at, updated_at
		FROM users WHERE username = $1`

	u := &domain.User{}
	var scopes []byte
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &scopes, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(scopes, &u.Scopes); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal user scopes: %w", err)
	}
	return u, nil
}

// SeedAdmin создает стартового оператора, если пользователей еще нет.
// Хэш пароля считает вызывающая сторона.
func (r *UserRepo) SeedAdmin(ctx context.Context, username, passwordHash string) error {
	scopes, _ := json.Marshal(map[string]bool{"admin": true})
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, role, scopes)
		SELECT $1, $2, $3, 'admin', $4
		WHERE NOT EXISTS (SELECT 1 FROM users)`,
		uuid.New().String(), username, passwordHash, scopes)
	if err != nil {
		return fmt.Errorf("postgres: failed to seed admin user: %w", err)
	}
	return nil
}
