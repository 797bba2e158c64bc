package service

/*
Файл guardian_service.go — операторское управление конфигурациями
guardian-ов. Запись идет в PostgreSQL, затем публикуется сигнал в
Redis: все инстансы шлюза перечитывают кэш. Частичное изменение
накладывается на базу через Merge, в хранилище всегда уходит полный
консистентный документ.
*/

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/custody-guard/internal/domain"
	"github.com/xela07ax/custody-guard/internal/guardian"
	"github.com/xela07ax/custody-guard/internal/infra"
	"go.uber.org/zap"
)

type ConfigStore interface {
	Get(ctx context.Context, orgID, accountID string) (*domain.StoredGuardiansConfig, error)
	Upsert(ctx context.Context, sc domain.StoredGuardiansConfig) error
}

type GuardianService struct {
	repo   ConfigStore
	cache  *guardian.ConfigCache
	rdb    *redis.Client
	logger *zap.Logger
}

func NewGuardianService(repo ConfigStore, cache *guardian.ConfigCache, rdb *redis.Client, logger *zap.Logger) *GuardianService {
	return &GuardianService{
		repo:   repo,
		cache:  cache,
		rdb:    rdb,
		logger: logger.Named("guardian-service"),
	}
}

// GetConfig возвращает действующую конфигурацию пары. Если персональной
// записи нет, отдается эффективная (дефолтная) с нулевым UpdatedAt.
func (s *GuardianService) GetConfig(ctx context.Context, orgID, accountID string) (*domain.StoredGuardiansConfig, error) {
	stored, err := s.repo.Get(ctx, orgID, accountID)
	if err == nil {
		return stored, nil
	}
	if domain.IsNotFound(err) {
		return &domain.StoredGuardiansConfig{
			OrgID:     orgID,
			AccountID: accountID,
			Config:    s.cache.GetConfig(orgID, accountID),
		}, nil
	}
	return nil, err
}

// ConfigUpdate — запрос изменения: пресет как база и/или частичное
// наложение. Пустой пресет означает "накладывай на текущую конфигурацию".
type ConfigUpdate struct {
	Preset   string                   `json:"preset,omitempty"`
	Override domain.GuardiansOverride `json:"override"`
}

// UpdateConfig применяет изменение и рассылает сигнал обновления.
func (s *GuardianService) UpdateConfig(ctx context.Context, orgID, accountID string, upd ConfigUpdate) (*domain.StoredGuardiansConfig, error) {
	var base domain.GuardiansConfig
	if upd.Preset != "" {
		preset, err := domain.ResolvePreset(upd.Preset)
		if err != nil {
			return nil, err
		}
		base = preset
	} else {
		base = s.cache.GetConfig(orgID, accountID)
	}

	merged := domain.Merge(base, upd.Override)
	stored := domain.StoredGuardiansConfig{
		OrgID:     orgID,
		AccountID: accountID,
		Config:    merged,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.repo.Upsert(ctx, stored); err != nil {
		return nil, err
	}

	// Свой кэш обновляем сразу, остальные инстансы — по сигналу
	if err := s.cache.Refresh(ctx); err != nil {
		s.logger.Error("local config cache refresh failed", zap.Error(err))
	}
	if err := s.rdb.Publish(ctx, infra.RedisChanConfigUpdate, configSignal(orgID, accountID)).Err(); err != nil {
		s.logger.Error("config update signal delivery failed", zap.Error(err))
	}

	s.logger.Info("guardian config updated",
		zap.String("org_id", orgID),
		zap.String("account_id", accountID),
		zap.String("preset", upd.Preset),
	)
	return &stored, nil
}

func configSignal(orgID, accountID string) string {
	return orgID + ":" + accountID
}
