package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeWindowContains(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  TimeWindowConfig
		hour int
		want bool
	}{
		{"inside plain window", TimeWindowConfig{StartHour: 8, EndHour: 20}, 12, true},
		{"start is inclusive", TimeWindowConfig{StartHour: 8, EndHour: 20}, 8, true},
		{"end is exclusive", TimeWindowConfig{StartHour: 8, EndHour: 20}, 20, false},
		{"before window", TimeWindowConfig{StartHour: 8, EndHour: 20}, 3, false},
		{"wraps midnight, late evening", TimeWindowConfig{StartHour: 22, EndHour: 6}, 23, true},
		{"wraps midnight, early morning", TimeWindowConfig{StartHour: 22, EndHour: 6}, 3, true},
		{"wraps midnight, daytime", TimeWindowConfig{StartHour: 22, EndHour: 6}, 12, false},
		{"equal hours means always open", TimeWindowConfig{StartHour: 9, EndHour: 9}, 2, true},
		{"zero config is always open", TimeWindowConfig{}, 15, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.cfg.Contains(tc.hour))
		})
	}
}

func TestMergeOverridesWholeSections(t *testing.T) {
	t.Parallel()

	base, err := ResolvePreset(PresetStandard)
	require.NoError(t, err)

	merged := Merge(base, GuardiansOverride{
		Spend: &SpendConfig{Enabled: true, MaxPerTradeUsd: 777, MaxDailyUsd: 7_777},
	})

	// Секция заменяется целиком
	assert.Equal(t, 777.0, merged.Spend.MaxPerTradeUsd)
	assert.Equal(t, 7_777.0, merged.Spend.MaxDailyUsd)

	// Незатронутые секции остаются из базы
	assert.Equal(t, base.Rate, merged.Rate)
	assert.Equal(t, base.Loss, merged.Loss)
	assert.Equal(t, base.Leverage, merged.Leverage)
}

func TestMergeEmptyOverrideKeepsBase(t *testing.T) {
	t.Parallel()

	base, err := ResolvePreset(PresetConservative)
	require.NoError(t, err)

	assert.Equal(t, base, Merge(base, GuardiansOverride{}))
}

func TestResolvePreset(t *testing.T) {
	t.Parallel()

	for _, name := range PresetNames() {
		cfg, err := ResolvePreset(name)
		require.NoError(t, err, name)
		assert.True(t, cfg.Spend.Enabled, "every preset constrains spend: %s", name)
	}

	_, err := ResolvePreset("yolo")
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
}

func TestVenueAllowsIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	cfg := VenueConfig{AllowedContracts: []string{"0xAbCd", "ETH/USD"}}
	assert.True(t, cfg.Allows("0xabcd"))
	assert.True(t, cfg.Allows("eth/usd"))
	assert.False(t, cfg.Allows("0xdead"))
}
