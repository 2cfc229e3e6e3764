package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltadeck/internal/config"
	"deltadeck/internal/gateway/exchange"
	"deltadeck/internal/gateway/sim"
	"deltadeck/internal/risk"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{HTTPAddr: ":0", LogLevel: "error"},
		Agent: config.AgentConfig{
			Symbol:           "BTC-USD",
			AnalysisInterval: "1m",
		},
		Risk:       risk.DefaultLimits(),
		TakeProfit: config.TakeProfitConfig{PollInterval: "1s"},
	}
}

func testCollaborators() (Collaborators, *sim.Exchange) {
	venue := sim.New("BTC-USD", 45000, 100000, 1)
	return Collaborators{
		Commander: venue,
		Stream:    venue,
		Market:    venue,
		Analyzer:  sim.NewAnalyzer(),
	}, venue
}

func TestNewRequiresAllCollaborators(t *testing.T) {
	collab, _ := testCollaborators()
	collab.Analyzer = nil
	_, err := New(testConfig(), collab)
	assert.Error(t, err)

	_, err = New(nil, collab)
	assert.Error(t, err)
}

func TestOrderRoundTripThroughSimVenue(t *testing.T) {
	collab, venue := testCollaborators()
	a, err := New(testConfig(), collab)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Orders.Run(ctx, venue) }()

	sub, err := a.Orders.PlaceOrder(ctx, exchange.OrderRequest{
		ProductSymbol: "BTC-USD",
		Side:          "buy",
		Size:          0.5,
		OrderType:     "market_order",
	})
	require.NoError(t, err)

	rec, err := a.Orders.WaitForOrderUpdate(ctx, sub.OrderID, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "closed", rec.State)
	assert.Equal(t, sub.ClientOrderID, rec.ClientOrderID)
	assert.Equal(t, 45000.0, rec.AverageFillPrice)
}

func TestFullCloseFeedsRiskAndLossStreak(t *testing.T) {
	collab, _ := testCollaborators()
	a, err := New(testConfig(), collab)
	require.NoError(t, err)

	_, err = a.TakeProfit.Register("trade-1", "BTC-USD", "long", 45000, 1.0, "aggressive")
	require.NoError(t, err)

	// Arm the trailing level at the first ladder target, ratchet the
	// stop up, then breach it to force a full close.
	a.TakeProfit.UpdatePrice("BTC-USD", 46350)
	a.TakeProfit.Tick()
	a.TakeProfit.UpdatePrice("BTC-USD", 47000)
	a.TakeProfit.Tick()
	a.TakeProfit.UpdatePrice("BTC-USD", 46000)
	a.TakeProfit.Tick()

	plan, ok := a.TakeProfit.Plan("trade-1")
	require.True(t, ok)
	assert.False(t, plan.IsActive)

	// The 1000 profit flowed into the daily PnL through the full-close
	// hook.
	assert.Equal(t, 1000.0, a.Risk.DailyPnL())
	assert.Equal(t, 0, a.Agent.State().ConsecutiveLosses)
}
