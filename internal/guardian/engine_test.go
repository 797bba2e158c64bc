package guardian

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/custody-guard/internal/domain"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T, start time.Time) (*Engine, *time.Time) {
	t.Helper()
	store, now := newTestStore(t, start)
	return NewEngine(store, nil, zap.NewNop()), now
}

func testConfig() domain.GuardiansConfig {
	return domain.GuardiansConfig{
		Spend: domain.SpendConfig{Enabled: true, MaxPerTradeUsd: 1_000, MaxDailyUsd: 2_000},
		Rate:  domain.RateConfig{Enabled: true, MaxPerDay: 10, CooldownSeconds: 60},
		Loss:  domain.LossConfig{Enabled: true, MaxDrawdownUsd: 500, AccountStatus: domain.AccountActive},
	}
}

func testIntent(notional float64) domain.ActionIntent {
	return domain.ActionIntent{
		Type:            domain.ActionSpotMarketOrder,
		Market:          "ETH/USD",
		Side:            domain.SideBuy,
		NotionalUsd:     notional,
		Leverage:        1,
		ValidForSeconds: 60,
	}
}

func TestEngineCollectsAllDenials(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t, time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC))
	cfg := testConfig()
	cfg.TimeWindow = domain.TimeWindowConfig{Enabled: true, StartHour: 8, EndHour: 20}
	cfg.Leverage = domain.LeverageConfig{Enabled: true, MaxLeverage: 2}

	intent := testIntent(5_000) // пробивает и per-trade, и daily
	intent.Leverage = 10

	res := engine.CheckAll(intent, cfg)
	require.False(t, res.Passed)

	// Движок без short-circuit: все причины собраны за один проход
	guardians := make(map[string]int)
	for _, d := range res.Denials {
		guardians[d.Guardian]++
	}
	assert.Equal(t, 2, guardians[domain.GuardianSpend], "per-trade and daily breaches are separate denials")
	assert.Equal(t, 1, guardians[domain.GuardianTimeWindow])
	assert.Equal(t, 1, guardians[domain.GuardianLeverage])
}

func TestEngineSpendWarning(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	cfg := testConfig()
	cfg.Rate.CooldownSeconds = 0

	// 1700 из 2000 — выше мягкого порога 80%, но ниже лимита
	engine.State().RecordTrade("ETH/USD", 1_000)
	res := engine.CheckAll(testIntent(700), cfg)

	assert.True(t, res.Passed)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, domain.GuardianSpend, res.Warnings[0].Guardian)
	assert.Equal(t, domain.SeverityWarn, res.Warnings[0].Severity)
}

func TestHaltLatchBlocksEverything(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	engine.State().TriggerHalt("manual stop")

	// Пустая конфигурация: ни один guardian не включен,
	// но защелка блокирует все равно
	res := engine.CheckAll(testIntent(1), domain.GuardiansConfig{})
	require.False(t, res.Passed)
	require.Len(t, res.Denials, 1)
	assert.Equal(t, domain.GuardianLoss, res.Denials[0].Guardian)
	assert.Contains(t, res.Denials[0].Reason, "manual stop")

	// Защелка липкая: N последовательных проверок дают N отказов
	for i := 0; i < 5; i++ {
		res := engine.CheckAll(testIntent(1), domain.GuardiansConfig{})
		assert.False(t, res.Passed)
	}

	engine.State().ResumeTrading()
	res = engine.CheckAll(testIntent(1), domain.GuardiansConfig{})
	assert.True(t, res.Passed)
}

func TestCheckAndReserveClosesBudgetRace(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	cfg := domain.GuardiansConfig{
		Spend: domain.SpendConfig{Enabled: true, MaxDailyUsd: 2_000_000},
	}

	// Десять сделок по 10k при лимите 2M: бюджет резервируется сразу,
	// второй запрос не может пройти по устаревшему остатку
	for i := 0; i < 10; i++ {
		res, reservation := engine.CheckAndReserve(testIntent(10_000), cfg)
		require.True(t, res.Passed)
		require.NotNil(t, reservation)
		reservation.Commit()
	}
	assert.Equal(t, 100_000.0, engine.State().Snapshot().DailySpendUsd)

	// Впритык к лимиту: следующая сделка уже не влезает
	tight := domain.GuardiansConfig{
		Spend: domain.SpendConfig{Enabled: true, MaxDailyUsd: 110_000},
	}
	res, reservation := engine.CheckAndReserve(testIntent(10_000), tight)
	require.True(t, res.Passed)
	reservation.Commit()

	res, reservation = engine.CheckAndReserve(testIntent(10_000), tight)
	assert.False(t, res.Passed)
	assert.Nil(t, reservation)
}

func TestReservationRelease(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	cfg := testConfig()

	res, reservation := engine.CheckAndReserve(testIntent(500), cfg)
	require.True(t, res.Passed)
	assert.Equal(t, 500.0, engine.State().Snapshot().DailySpendUsd)

	// Кастоди отказал: бюджет возвращается, кулдаун не двигается
	reservation.Release()
	snap := engine.State().Snapshot()
	assert.Zero(t, snap.DailySpendUsd)
	assert.Zero(t, snap.TradeCountToday)
	assert.True(t, snap.LastExecutionAt.IsZero())

	// Release идемпотентен
	reservation.Release()
	assert.Zero(t, engine.State().Snapshot().DailySpendUsd)
}

func TestReservationCommitMovesCooldown(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	cfg := testConfig()

	res, reservation := engine.CheckAndReserve(testIntent(100), cfg)
	require.True(t, res.Passed)
	reservation.Commit()

	// Commit после Commit — no-op
	reservation.Commit()
	reservation.Release()

	snap := engine.State().Snapshot()
	assert.Equal(t, 100.0, snap.DailySpendUsd)
	assert.False(t, snap.LastExecutionAt.IsZero())

	// Кулдаун действует на следующую проверку
	next := engine.CheckAll(testIntent(100), cfg)
	require.False(t, next.Passed)
	assert.Equal(t, domain.GuardianRate, next.Denials[0].Guardian)
}

func TestDailyBudgetRollsOverAtMidnight(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	engine, now := newTestEngine(t, start)
	cfg := domain.GuardiansConfig{
		Spend: domain.SpendConfig{Enabled: true, MaxDailyUsd: 100},
	}

	res, reservation := engine.CheckAndReserve(testIntent(80), cfg)
	require.True(t, res.Passed)
	reservation.Commit()

	// В тех же сутках еще 80 не влезает
	res, _ = engine.CheckAndReserve(testIntent(80), cfg)
	require.False(t, res.Passed)

	// После полуночи UTC бюджет свежий
	*now = start.Add(time.Hour)
	res, reservation = engine.CheckAndReserve(testIntent(80), cfg)
	require.True(t, res.Passed)
	reservation.Commit()
}

func TestReleaseAfterMidnightKeepsFreshCounters(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	engine, now := newTestEngine(t, start)
	cfg := domain.GuardiansConfig{
		Spend: domain.SpendConfig{Enabled: true, MaxDailyUsd: 100_000},
	}

	// Резерв взят до полуночи и завис на время вызова кастоди
	res, stale := engine.CheckAndReserve(testIntent(10_000), cfg)
	require.True(t, res.Passed)

	// Сутки перевернулись, новый день уже накопил свою сделку
	*now = start.Add(5 * time.Minute)
	res, fresh := engine.CheckAndReserve(testIntent(3_000), cfg)
	require.True(t, res.Passed)
	fresh.Commit()

	// Поздний Release вчерашнего резерва не трогает счетчики нового дня
	stale.Release()
	snap := engine.State().Snapshot()
	assert.Equal(t, 3_000.0, snap.DailySpendUsd)
	assert.Equal(t, 1, snap.TradeCountToday)
}

func TestRecordDrawdownTripsLatch(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	lossCfg := domain.LossConfig{Enabled: true, MaxDrawdownUsd: 500}

	engine.RecordDrawdown(-499, lossCfg)
	halted, _ := engine.State().Halted()
	assert.False(t, halted)

	engine.RecordDrawdown(-500, lossCfg)
	halted, reason := engine.State().Halted()
	assert.True(t, halted)
	assert.Contains(t, reason, "drawdown breach")

	// Восстановившийся PnL защелку НЕ снимает
	engine.RecordDrawdown(100, lossCfg)
	halted, _ = engine.State().Halted()
	assert.True(t, halted)
}
