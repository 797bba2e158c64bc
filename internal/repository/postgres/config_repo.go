package postgres

/*
Файл config_repo.go — персистентность конфигураций guardian-ов.

Конфигурация хранится цельным JSONB-блобом на пару (организация,
аккаунт): частичные изменения накладываются в приложении через Merge,
база всегда видит полный консистентный документ.
*/

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/custody-guard/internal/domain"
)

type ConfigRepo struct {
	pool *pgxpool.Pool
}

func NewConfigRepo(pool *pgxpool.Pool) *ConfigRepo {
	return &ConfigRepo{pool: pool}
}

// GetAllConfigs возвращает все сохраненные конфигурации. Используется
// для инициализации RAM-кэша при старте шлюза.
func (r *ConfigRepo) GetAllConfigs(ctx context.Context) ([]domain.StoredGuardiansConfig, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT org_id, account_id, config, updated_at FROM guardian_configs`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch guardian configs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.StoredGuardiansConfig, 0)
	for rows.Next() {
		var sc domain.StoredGuardiansConfig
		var raw []byte
		if err := rows.Scan(&sc.OrgID, &sc.AccountID, &raw, &sc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: config scan failed: %w", err)
		}
		if err := json.Unmarshal(raw, &sc.Config); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal config %s/%s: %w", sc.OrgID, sc.AccountID, err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return out, nil
}

// Get возвращает конфигурацию пары или NotFoundError.
func (r *ConfigRepo) Get(ctx context.Context, orgID, accountID string) (*domain.StoredGuardiansConfig, error) {
	sc := &domain.StoredGuardiansConfig{OrgID: orgID, AccountID: accountID}
	var raw []byte

	err := r.pool.QueryRow(ctx,
		`SELECT config, updated_at FROM guardian_configs WHERE org_id = $1 AND account_id = $2`,
		orgID, accountID).Scan(&raw, &sc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Resource: "guardian config", ID: orgID + "/" + accountID}
		}
		return nil, fmt.Errorf("postgres: failed to get guardian config: %w", err)
	}
	if err := json.Unmarshal(raw, &sc.Config); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal config: %w", err)
	}
	return sc, nil
}

// Upsert сохраняет конфигурацию целиком, заменяя предыдущую версию.
func (r *ConfigRepo) Upsert(ctx context.Context, sc domain.StoredGuardiansConfig) error {
	raw, err := json.Marshal(sc.Config)
	if err != nil {
		return fmt.Errorf("postgres: marshal config: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO guardian_configs (org_id, account_id, config, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (org_id, account_id)
		DO UPDATE SET config = EXCLUDED.config, updated_at = NOW()`,
		sc.OrgID, sc.AccountID, raw)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert guardian config: %w", err)
	}
	return nil
}
