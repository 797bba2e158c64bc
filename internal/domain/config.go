package domain

import (
	"strings"
	"time"
)

// GuardrailsConfig — простая форма конфигурации для локального фильтра.
// Используется на самом дешевом пути проверки, до композитного движка.
type GuardrailsConfig struct {
	AllowedMarkets  []string `json:"allowed_markets" mapstructure:"allowed_markets"`
	MaxPerTxUsd     float64  `json:"max_per_tx_usd" mapstructure:"max_per_tx_usd"`
	CooldownSeconds int      `json:"cooldown_seconds" mapstructure:"cooldown_seconds"`
	MaxSlippageBps  int      `json:"max_slippage_bps" mapstructure:"max_slippage_bps"`
}

// AllowsMarket проверяет базовый символ без учета регистра.
func (c GuardrailsConfig) AllowsMarket(root string) bool {
	for _, m := range c.AllowedMarkets {
		if strings.EqualFold(m, root) {
			return true
		}
	}
	return false
}

// AccountStatus — статус аккаунта для Loss-guardian.
type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountPaused AccountStatus = "paused"
)

// GuardiansConfig — композитная конфигурация Risk Engine.
// Каждый guardian включается независимо. Конфигурация целиком — единица
// персистентности (один блоб на пару организация/аккаунт) и подстановки пресетов.
type GuardiansConfig struct {
	Spend      SpendConfig      `json:"spend"`
	Venue      VenueConfig      `json:"venue"`
	Rate       RateConfig       `json:"rate"`
	TimeWindow TimeWindowConfig `json:"timewindow"`
	Loss       LossConfig       `json:"loss"`
	Exposure   ExposureConfig   `json:"exposure"`
	Leverage   LeverageConfig   `json:"leverage"`
}

type SpendConfig struct {
	Enabled        bool    `json:"enabled"`
	MaxPerTradeUsd float64 `json:"max_per_trade_usd"`
	MaxDailyUsd    float64 `json:"max_daily_usd"`
}

type VenueConfig struct {
	Enabled bool `json:"enabled"`
	// Разрешенные цели: адреса контрактов и/или символы рынков.
	// Сравнение без учета регистра (hex-адреса приходят в разном виде).
	AllowedContracts []string `json:"allowed_contracts"`
}

func (c VenueConfig) Allows(target string) bool {
	for _, a := range c.AllowedContracts {
		if strings.EqualFold(a, target) {
			return true
		}
	}
	return false
}

type RateConfig struct {
	Enabled         bool `json:"enabled"`
	MaxPerDay       int  `json:"max_per_day"`
	CooldownSeconds int  `json:"cooldown_seconds"`
}

func (c RateConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// TimeWindowConfig — торговое окно в часах UTC, [StartHour, EndHour).
// StartHour > EndHour выражает окно через полночь (22 -> 6).
// StartHour == EndHour трактуется как круглосуточное окно: нулевое окно
// превратило бы guardian в безусловный запрет, что не имеет смысла.
type TimeWindowConfig struct {
	Enabled   bool `json:"enabled"`
	StartHour int  `json:"start_hour"`
	EndHour   int  `json:"end_hour"`
}

// Contains проверяет попадание часа UTC в окно.
func (c TimeWindowConfig) Contains(hour int) bool {
	switch {
	case c.StartHour == c.EndHour:
		return true
	case c.StartHour < c.EndHour:
		return hour >= c.StartHour && hour < c.EndHour
	default: // окно через полночь
		return hour >= c.StartHour || hour < c.EndHour
	}
}

type LossConfig struct {
	Enabled        bool          `json:"enabled"`
	MaxDrawdownUsd float64       `json:"max_drawdown_usd"`
	AccountStatus  AccountStatus `json:"account_status"`
}

// ExposureConfig ограничивает экспозицию позиции: notional * leverage.
type ExposureConfig struct {
	Enabled        bool    `json:"enabled"`
	MaxExposureUsd float64 `json:"max_exposure_usd"`
}

type LeverageConfig struct {
	Enabled     bool    `json:"enabled"`
	MaxLeverage float64 `json:"max_leverage"`
}

// GuardiansOverride — частичная конфигурация для наложения на пресет.
// nil-поле означает "оставить значение из базы". Замена идет целыми
// секциями guardian-ов: так неизвестный ключ ломается на этапе
// компиляции/декодирования, а не молча игнорируется в рантайме.
type GuardiansOverride struct {
	Spend      *SpendConfig      `json:"spend,omitempty"`
	Venue      *VenueConfig      `json:"venue,omitempty"`
	Rate       *RateConfig       `json:"rate,omitempty"`
	TimeWindow *TimeWindowConfig `json:"timewindow,omitempty"`
	Loss       *LossConfig       `json:"loss,omitempty"`
	Exposure   *ExposureConfig   `json:"exposure,omitempty"`
	Leverage   *LeverageConfig   `json:"leverage,omitempty"`
}

// Merge — тотальная функция наложения: каждая секция обработана явно.
// При добавлении нового guardian-а компилятор заставит дописать и сюда.
func Merge(base GuardiansConfig, o GuardiansOverride) GuardiansConfig {
	out := base
	if o.Spend != nil {
		out.Spend = *o.Spend
	}
	if o.Venue != nil {
		out.Venue = *o.Venue
	}
	if o.Rate != nil {
		out.Rate = *o.Rate
	}
	if o.TimeWindow != nil {
		out.TimeWindow = *o.TimeWindow
	}
	if o.Loss != nil {
		out.Loss = *o.Loss
	}
	if o.Exposure != nil {
		out.Exposure = *o.Exposure
	}
	if o.Leverage != nil {
		out.Leverage = *o.Leverage
	}
	return out
}

// StoredGuardiansConfig — единица персистентности: блоб конфигурации
// с ключом (организация, аккаунт) и временем последнего обновления.
type StoredGuardiansConfig struct {
	OrgID     string          `json:"org_id"`
	AccountID string          `json:"account_id"`
	Config    GuardiansConfig `json:"config"`
	UpdatedAt time.Time       `json:"updated_at"`
}
