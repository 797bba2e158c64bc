package guardian

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/custody-guard/internal/domain"
)

func guardrailsConfig() domain.GuardrailsConfig {
	return domain.GuardrailsConfig{
		AllowedMarkets:  []string{"ETH", "BTC"},
		MaxPerTxUsd:     5_000,
		CooldownSeconds: 30,
		MaxSlippageBps:  100,
	}
}

func TestGuardrailsPass(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	g := NewGuardrails(store)

	intent := testIntent(1_000)
	intent.MaxSlippageBps = 50

	res := g.Evaluate(intent, guardrailsConfig())
	assert.True(t, res.Passed)
	assert.Empty(t, res.Issues)
}

func TestGuardrailsCollectAllIssues(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store, _ := newTestStore(t, start)
	store.RecordExecution() // кулдаун только что начался
	g := NewGuardrails(store)

	intent := domain.ActionIntent{
		Type:            domain.ActionSpotMarketOrder,
		Market:          "DOGE/USD",
		Side:            domain.SideBuy,
		NotionalUsd:     9_000,
		MaxSlippageBps:  500,
		Leverage:        1,
		ValidForSeconds: 60,
	}

	res := g.Evaluate(intent, guardrailsConfig())
	require.False(t, res.Passed)
	require.Len(t, res.Issues, 4, "all four checks report, no short-circuit")
	assert.Contains(t, res.Issues[0], `market "DOGE" is not allowed`)
	assert.Contains(t, res.Issues[1], "per-tx limit")
	assert.Contains(t, res.Issues[2], "cooldown")
	assert.Contains(t, res.Issues[3], "slippage tolerance")
}

func TestGuardrailsCooldown(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store, now := newTestStore(t, start)
	g := NewGuardrails(store)
	cfg := guardrailsConfig()

	// Исполнений не было — кулдаун не действует
	res := g.Evaluate(testIntent(100), cfg)
	assert.True(t, res.Passed)

	store.RecordExecution()
	res = g.Evaluate(testIntent(100), cfg)
	require.False(t, res.Passed)
	assert.Contains(t, res.Issues[0], "cooldown: 30s remaining")

	*now = start.Add(31 * time.Second)
	res = g.Evaluate(testIntent(100), cfg)
	assert.True(t, res.Passed)
}

func TestGuardrailsMarketCaseInsensitive(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	g := NewGuardrails(store)

	intent := testIntent(100)
	intent.Market = "eth-PERP"
	res := g.Evaluate(intent, guardrailsConfig())
	assert.True(t, res.Passed)
}

func TestGuardrailsZeroLimitsAreInert(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	store.RecordExecution()
	g := NewGuardrails(store)

	// Нулевые per-tx лимит, кулдаун и слиппедж выключены, а не "запрещено все"
	cfg := domain.GuardrailsConfig{
		AllowedMarkets: []string{"ETH"},
	}
	intent := testIntent(1_000_000)
	intent.MaxSlippageBps = 500
	res := g.Evaluate(intent, cfg)
	assert.True(t, res.Passed)
}
