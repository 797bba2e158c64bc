package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOrder() ActionIntent {
	return ActionIntent{
		Type:            ActionSpotMarketOrder,
		Market:          "ETH/USD",
		Side:            SideBuy,
		NotionalUsd:     1_000,
		MaxSlippageBps:  50,
		Leverage:        1,
		ValidForSeconds: 60,
	}
}

func TestIntentValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid order passes", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, validOrder().Validate())
	})

	t.Run("collects all field errors at once", func(t *testing.T) {
		t.Parallel()
		i := ActionIntent{Type: "teleport", NotionalUsd: -5}
		err := i.Validate()
		require.Error(t, err)

		var v *ValidationError
		require.ErrorAs(t, err, &v)
		assert.Contains(t, v.Fields, "type")
		assert.Contains(t, v.Fields, "notional_usd")
		assert.Contains(t, v.Fields, "leverage")
		assert.Contains(t, v.Fields, "valid_for_seconds")
	})

	t.Run("order requires market and side", func(t *testing.T) {
		t.Parallel()
		i := validOrder()
		i.Market = ""
		i.Side = "SIDEWAYS"
		err := i.Validate()

		var v *ValidationError
		require.ErrorAs(t, err, &v)
		assert.Contains(t, v.Fields, "market")
		assert.Contains(t, v.Fields, "side")
	})

	t.Run("transfer requires target address", func(t *testing.T) {
		t.Parallel()
		i := ActionIntent{
			Type:            ActionTransfer,
			NotionalUsd:     100,
			Leverage:        1,
			ValidForSeconds: 30,
		}
		err := i.Validate()

		var v *ValidationError
		require.ErrorAs(t, err, &v)
		assert.Contains(t, v.Fields, "target")
	})
}

func TestRootSymbol(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"ETH/USD":  "ETH",
		"BTC-PERP": "BTC",
		"SOL_USDC": "SOL",
		"DOGE":     "DOGE",
		"":         "",
	}
	for market, want := range tests {
		i := ActionIntent{Market: market}
		assert.Equal(t, want, i.RootSymbol(), market)
	}
}

func TestVenueTarget(t *testing.T) {
	t.Parallel()

	transfer := ActionIntent{Type: ActionTransfer, Target: "0xabc", Market: "ETH/USD"}
	assert.Equal(t, "0xabc", transfer.VenueTarget())

	order := ActionIntent{Type: ActionSpotMarketOrder, Market: "ETH/USD"}
	assert.Equal(t, "ETH/USD", order.VenueTarget())

	orderWithTarget := ActionIntent{Type: ActionSpotLimitOrder, Market: "ETH/USD", Target: "0xpool"}
	assert.Equal(t, "0xpool", orderWithTarget.VenueTarget())
}
