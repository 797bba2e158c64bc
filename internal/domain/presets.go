package domain

// Пресеты — именованные готовые конфигурации Risk Engine.
// Стратегии резолвятся в пресет по имени, операторские пресеты
// задают общий риск-профиль.

const (
	PresetConservative = "conservative"
	PresetStandard     = "standard"
	PresetAggressive   = "aggressive"

	// Пресеты, привязанные к стратегиям
	PresetBasisArb     = "basisArb"
	PresetHedging      = "hedging"
	PresetDrawdownStop = "drawdownStop"
)

var presets = map[string]GuardiansConfig{
	PresetConservative: {
		Spend:      SpendConfig{Enabled: true, MaxPerTradeUsd: 1_000, MaxDailyUsd: 5_000},
		// Пустой whitelist: любые цели запрещены, пока оператор не настроит список
		Venue:      VenueConfig{Enabled: true},
		Rate:       RateConfig{Enabled: true, MaxPerDay: 10, CooldownSeconds: 300},
		TimeWindow: TimeWindowConfig{Enabled: true, StartHour: 8, EndHour: 20},
		Loss:       LossConfig{Enabled: true, MaxDrawdownUsd: 500, AccountStatus: AccountActive},
		Exposure:   ExposureConfig{Enabled: true, MaxExposureUsd: 10_000},
		Leverage:   LeverageConfig{Enabled: true, MaxLeverage: 1},
	},
	PresetStandard: {
		Spend:    SpendConfig{Enabled: true, MaxPerTradeUsd: 10_000, MaxDailyUsd: 50_000},
		Rate:     RateConfig{Enabled: true, MaxPerDay: 50, CooldownSeconds: 60},
		Loss:     LossConfig{Enabled: true, MaxDrawdownUsd: 5_000, AccountStatus: AccountActive},
		Exposure: ExposureConfig{Enabled: true, MaxExposureUsd: 100_000},
		Leverage: LeverageConfig{Enabled: true, MaxLeverage: 3},
	},
	PresetAggressive: {
		Spend:    SpendConfig{Enabled: true, MaxPerTradeUsd: 100_000, MaxDailyUsd: 1_000_000},
		Rate:     RateConfig{Enabled: true, MaxPerDay: 500, CooldownSeconds: 5},
		Loss:     LossConfig{Enabled: true, MaxDrawdownUsd: 50_000, AccountStatus: AccountActive},
		Exposure: ExposureConfig{Enabled: true, MaxExposureUsd: 2_000_000},
		Leverage: LeverageConfig{Enabled: true, MaxLeverage: 10},
	},
	PresetBasisArb: {
		Spend:    SpendConfig{Enabled: true, MaxPerTradeUsd: 25_000, MaxDailyUsd: 250_000},
		Rate:     RateConfig{Enabled: true, MaxPerDay: 100, CooldownSeconds: 30},
		Loss:     LossConfig{Enabled: true, MaxDrawdownUsd: 10_000, AccountStatus: AccountActive},
		Exposure: ExposureConfig{Enabled: true, MaxExposureUsd: 500_000},
		Leverage: LeverageConfig{Enabled: true, MaxLeverage: 5},
	},
	PresetHedging: {
		Spend:    SpendConfig{Enabled: true, MaxPerTradeUsd: 50_000, MaxDailyUsd: 500_000},
		Rate:     RateConfig{Enabled: true, MaxPerDay: 200, CooldownSeconds: 10},
		Loss:     LossConfig{Enabled: true, MaxDrawdownUsd: 20_000, AccountStatus: AccountActive},
		Leverage: LeverageConfig{Enabled: true, MaxLeverage: 5},
	},
	PresetDrawdownStop: {
		Spend: SpendConfig{Enabled: true, MaxPerTradeUsd: 10_000, MaxDailyUsd: 100_000},
		Loss:  LossConfig{Enabled: true, MaxDrawdownUsd: 2_500, AccountStatus: AccountActive},
	},
}

// ResolvePreset возвращает копию именованного пресета.
// Неизвестное имя — ошибка конфигурации, а не тихий дефолт.
func ResolvePreset(name string) (GuardiansConfig, error) {
	cfg, ok := presets[name]
	if !ok {
		return GuardiansConfig{}, &ConfigurationError{Msg: "unknown preset: " + name}
	}
	return cfg, nil
}

// PresetNames перечисляет доступные пресеты (для операторского API).
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	return names
}
