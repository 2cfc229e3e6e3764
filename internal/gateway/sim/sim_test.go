package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltadeck/internal/gateway/exchange"
	"deltadeck/internal/order/wsmsg"
	"deltadeck/internal/types"
)

func TestPlaceOrderEmitsParseableFillFrame(t *testing.T) {
	venue := New("BTC-USD", 45000, 100000, 1)

	resp, err := venue.PlaceOrder(context.Background(), exchange.OrderRequest{
		ProductSymbol: "BTC-USD",
		Side:          "buy",
		Size:          0.5,
		OrderType:     "market_order",
		ClientOrderID: "cli-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "sim-1", resp.ID)

	frames, err := venue.Frames(context.Background())
	require.NoError(t, err)

	evt, err := wsmsg.Parse(<-frames)
	require.NoError(t, err)
	assert.Equal(t, "sim-1", evt.OrderID)
	assert.Equal(t, "cli-1", evt.ClientOrderID)
	assert.Equal(t, wsmsg.StateClosed, evt.State)
	assert.Equal(t, 45000.0, evt.AverageFillPrice)
}

func TestPlaceOrderRejectsUnknownSymbol(t *testing.T) {
	venue := New("BTC-USD", 45000, 100000, 1)
	_, err := venue.PlaceOrder(context.Background(), exchange.OrderRequest{
		ProductSymbol: "DOGE-USD", Side: "buy", Size: 1,
	})
	assert.Error(t, err)
}

func TestLatestPriceWalks(t *testing.T) {
	venue := New("BTC-USD", 45000, 100000, 1)
	ctx := context.Background()

	p1 := venue.LatestPrice(ctx, "BTC-USD")
	p2 := venue.LatestPrice(ctx, "BTC-USD")
	assert.Greater(t, p1, 0.0)
	assert.NotEqual(t, p1, p2)
	// Steps are bounded at 0.2% per call.
	assert.InEpsilon(t, p1, p2, 0.003)

	assert.Zero(t, venue.LatestPrice(ctx, "DOGE-USD"))
}

func TestAnalyzerFollowsMomentum(t *testing.T) {
	analyzer := NewAnalyzer()
	ctx := context.Background()

	state := func(price float64) types.MarketState {
		return types.MarketState{MarketData: []types.MarketData{{Symbol: "BTC-USD", LastPrice: price}}}
	}

	sig, err := analyzer.Analyze(ctx, state(45000))
	require.NoError(t, err)
	assert.Equal(t, "hold", sig.Action)

	sig, err = analyzer.Analyze(ctx, state(45500))
	require.NoError(t, err)
	assert.Equal(t, "long", sig.Action)
	assert.Equal(t, 0.75, sig.Confidence)

	sig, err = analyzer.Analyze(ctx, state(44800))
	require.NoError(t, err)
	assert.Equal(t, "short", sig.Action)
}
