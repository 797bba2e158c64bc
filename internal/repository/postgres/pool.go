package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool создает пул соединений и сразу проверяет доступность базы.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid connection string: %w", err)
	}
	cfg.MaxConns = 25
	cfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping failed: %w", err)
	}
	return pool, nil
}

// EnsureSchema создает таблицы, если их еще нет. Для прототипа этого
// достаточно; в бою схему ведут миграции.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS audit_records (
			id              TEXT PRIMARY KEY,
			trace_id        TEXT NOT NULL DEFAULT '',
			timestamp       TIMESTAMPTZ NOT NULL,
			category        TEXT NOT NULL,
			action_type     TEXT NOT NULL,
			account_id      TEXT NOT NULL DEFAULT '',
			account_name    TEXT NOT NULL DEFAULT '',
			account_address TEXT NOT NULL DEFAULT '',
			payload         JSONB,
			status          TEXT NOT NULL,
			passed          BOOLEAN NOT NULL DEFAULT FALSE,
			denials         JSONB,
			tx_hash         TEXT NOT NULL DEFAULT '',
			order_id        TEXT NOT NULL DEFAULT '',
			fill_price      DOUBLE PRECISION NOT NULL DEFAULT 0,
			fill_amount     DOUBLE PRECISION NOT NULL DEFAULT 0,
			gas_used        BIGINT NOT NULL DEFAULT 0,
			source          TEXT NOT NULL DEFAULT 'user',
			error           TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_records (timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_status ON audit_records (status)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_action_type ON audit_records (action_type)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_account_id ON audit_records (account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_tx_hash ON audit_records (tx_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_order_id ON audit_records (order_id)`,
		`CREATE TABLE IF NOT EXISTS approvals (
			id           TEXT PRIMARY KEY,
			action_type  TEXT NOT NULL,
			intent       JSONB NOT NULL,
			proposed_by  TEXT NOT NULL DEFAULT '',
			policy_check JSONB NOT NULL,
			status       TEXT NOT NULL DEFAULT 'PENDING',
			reviewer_id  TEXT,
			comment      TEXT,
			receipt      JSONB,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS guardian_configs (
			org_id     TEXT NOT NULL,
			account_id TEXT NOT NULL,
			config     JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (org_id, account_id)
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL DEFAULT '',
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL DEFAULT 'operator',
			scopes        JSONB NOT NULL DEFAULT '{}',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, q := range ddl {
		if _, err := pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("postgres: schema bootstrap failed: %w", err)
		}
	}
	return nil
}
