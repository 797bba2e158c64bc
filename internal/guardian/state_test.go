package guardian

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T, start time.Time) (*Store, *time.Time) {
	t.Helper()
	now := start
	store := NewStoreWithClock(zap.NewNop(), func() time.Time { return now })
	return store, &now
}

func TestDailyRolloverResetsCounters(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	store, now := newTestStore(t, start)

	store.RecordTrade("ETH/USD", 80)
	store.RecordTrade("BTC/USD", 20)

	snap := store.Snapshot()
	assert.Equal(t, 100.0, snap.DailySpendUsd)
	assert.Equal(t, 2, snap.TradeCountToday)
	assert.Equal(t, "2026-03-10", snap.SpendDayKey)

	// Пересекаем границу суток UTC
	*now = start.Add(3 * time.Hour)

	snap = store.Snapshot()
	assert.Equal(t, 0.0, snap.DailySpendUsd)
	assert.Equal(t, 0, snap.TradeCountToday)
	assert.Equal(t, "2026-03-11", snap.SpendDayKey)

	// Кулдаун границу суток переживает
	assert.False(t, snap.LastExecutionAt.IsZero())
}

func TestHaltLatch(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))

	halted, _ := store.Halted()
	require.False(t, halted)

	store.TriggerHalt("drawdown breach")
	halted, reason := store.Halted()
	assert.True(t, halted)
	assert.Equal(t, "drawdown breach", reason)

	// Повторный halt не перетирает первоначальную причину
	store.TriggerHalt("second opinion")
	_, reason = store.Halted()
	assert.Equal(t, "drawdown breach", reason)

	// Единственный путь обратно — явный resume
	store.ResumeTrading()
	halted, reason = store.Halted()
	assert.False(t, halted)
	assert.Empty(t, reason)

	// Resume без защелки — no-op
	store.ResumeTrading()
	halted, _ = store.Halted()
	assert.False(t, halted)
}

func TestCooldownRemaining(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store, now := newTestStore(t, start)

	// Исполнений еще не было — кулдаун не действует
	assert.Zero(t, store.CooldownRemaining(time.Minute))

	store.RecordExecution()
	assert.Equal(t, time.Minute, store.CooldownRemaining(time.Minute))

	*now = start.Add(40 * time.Second)
	assert.Equal(t, 20*time.Second, store.CooldownRemaining(time.Minute))

	*now = start.Add(2 * time.Minute)
	assert.Zero(t, store.CooldownRemaining(time.Minute))
}

func TestRemainingLimits(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	store.RecordTrade("ETH/USD", 600)

	assert.Equal(t, 4, store.TradesRemaining(5))
	assert.Equal(t, 400.0, store.DailySpendRemaining(1_000))

	// Остатки не уходят в минус
	assert.Equal(t, 0, store.TradesRemaining(1))
	assert.Equal(t, 0.0, store.DailySpendRemaining(500))
}

func TestResetState(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	store.RecordTrade("ETH/USD", 100)
	store.TriggerHalt("manual")

	store.ResetState()

	snap := store.Snapshot()
	assert.Zero(t, snap.DailySpendUsd)
	assert.Zero(t, snap.TradeCountToday)
	assert.True(t, snap.LastExecutionAt.IsZero())
	assert.False(t, snap.Halted)
}
