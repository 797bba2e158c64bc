package guardian

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/custody-guard/internal/domain"
	"github.com/xela07ax/custody-guard/internal/infra"
	"go.uber.org/zap"
)

type ConfigRepository interface {
	GetAllConfigs(ctx context.Context) ([]domain.StoredGuardiansConfig, error)
}

// ConfigCache — in-memory кэш конфигураций guardian-ов. Долговременное
// хранение живет в PostgreSQL, но Hot Path гейтинга обращается только
// к памяти. Синхронизация с БД — через Refresh по сигналу из Redis
// (консоль публикует его после каждого upsert-а).
type ConfigCache struct {
	mu sync.RWMutex
	// Кэш: "org_id:account_id" -> GuardiansConfig
	configs map[string]domain.GuardiansConfig

	defaults domain.GuardiansConfig // Применяется, когда для аккаунта ничего не настроено

	repo   ConfigRepository // Используется только для Refresh()
	rdb    *redis.Client
	logger *zap.Logger
}

func NewConfigCache(repo ConfigRepository, rdb *redis.Client, defaults domain.GuardiansConfig, logger *zap.Logger) *ConfigCache {
	return &ConfigCache{
		configs:  make(map[string]domain.GuardiansConfig),
		defaults: defaults,
		repo:     repo,
		rdb:      rdb,
		logger:   logger.Named("config-cache"),
	}
}

func configKey(orgID, accountID string) string {
	return orgID + ":" + accountID
}

// GetConfig возвращает конфигурацию для пары организация/аккаунт.
// Порядок поиска: точный ключ -> организация целиком ("org:*") -> дефолт.
func (c *ConfigCache) GetConfig(orgID, accountID string) domain.GuardiansConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if cfg, ok := c.configs[configKey(orgID, accountID)]; ok {
		return cfg
	}
	if cfg, ok := c.configs[configKey(orgID, "*")]; ok {
		return cfg
	}
	return c.defaults
}

// Refresh выполняет холодную загрузку всех конфигураций из PostgreSQL
// в память (при старте и по сигналу об обновлении).
func (c *ConfigCache) Refresh(ctx context.Context) error {
	stored, err := c.repo.GetAllConfigs(ctx)
	if err != nil {
		return err
	}

	fresh := make(map[string]domain.GuardiansConfig, len(stored))
	for _, s := range stored {
		fresh[configKey(s.OrgID, s.AccountID)] = s.Config
	}

	c.mu.Lock()
	c.configs = fresh
	c.mu.Unlock()

	c.logger.Info("guardian config cache refreshed", zap.Int("count", len(fresh)))
	return nil
}

// StartListener держит кэш в актуальном состоянии: подписка на канал
// обновлений с переподключением и повторной загрузкой при реконнекте.
func (c *ConfigCache) StartListener(ctx context.Context) {
	listenResilient(ctx, c.rdb, c.logger, infra.RedisChanConfigUpdate,
		func() error { return c.Refresh(ctx) },
		func(string) {
			// Сигнал прост: консоль говорит "перечитай", кэш перечитывает всё
			if err := c.Refresh(ctx); err != nil {
				c.logger.Error("config refresh failed", zap.Error(err))
			}
		},
	)
}
