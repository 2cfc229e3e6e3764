package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSide(t *testing.T) {
	assert.Equal(t, SideLong, NormalizeSide("long"))
	assert.Equal(t, SideLong, NormalizeSide(" BUY "))
	assert.Equal(t, SideShort, NormalizeSide("short"))
	assert.Equal(t, SideShort, NormalizeSide("Sell"))
	assert.Empty(t, NormalizeSide("hold"))
	assert.Empty(t, NormalizeSide(""))
}

func TestPositionSnapshotCoercesWireNumerics(t *testing.T) {
	// Feeds deliver sizes as strings, numbers or null depending on
	// revision; all three decode into the same snapshot.
	raw := `{
		"product": {"symbol": "BTC-USD"},
		"size": "0.5",
		"entry_price": 45000,
		"mark_price": null,
		"unrealized_pnl": "250.75"
	}`
	var pos PositionSnapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &pos))

	assert.Equal(t, "BTC-USD", pos.ProductSymbol())
	assert.Equal(t, 0.5, pos.SizeValue())
	assert.Equal(t, 45000.0, pos.EntryPriceValue())
	assert.Zero(t, pos.MarkPriceValue())
	assert.Equal(t, 250.75, pos.UnrealizedPnLValue())
}

func TestPositionSnapshotSymbolFallback(t *testing.T) {
	pos := PositionSnapshot{Symbol: "ETH-USD"}
	assert.Equal(t, "ETH-USD", pos.ProductSymbol())

	pos.Product = &ProductRef{Symbol: "BTC-USD"}
	assert.Equal(t, "BTC-USD", pos.ProductSymbol())

	assert.Empty(t, PositionSnapshot{}.ProductSymbol())
}

func TestNotionalValue(t *testing.T) {
	pos := PositionSnapshot{Size: -0.5, EntryPrice: 40000.0, MarkPrice: 45000.0}
	assert.Equal(t, 22500.0, pos.NotionalValue())

	// Missing mark price falls back to entry.
	pos = PositionSnapshot{Size: 2.0, EntryPrice: 100.0}
	assert.Equal(t, 200.0, pos.NotionalValue())

	assert.Zero(t, PositionSnapshot{}.NotionalValue())
}
