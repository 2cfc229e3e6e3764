package risk

import (
	"math"
	"testing"

	"deltadeck/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePositionSize(t *testing.T) {
	m := NewManager(DefaultLimits())

	res := m.ValidatePositionSize("BTC-USD", 0.05, 50000, 100000)
	assert.True(t, res.Approved, "2.5%% of balance should pass a 10%% cap")

	res = m.ValidatePositionSize("BTC-USD", 0.25, 50000, 100000)
	require.False(t, res.Approved)
	assert.Equal(t, "Position size exceeds limit", res.Reason)

	res = m.ValidatePositionSize("BTC-USD", 0.05, 50000, 0)
	require.False(t, res.Approved)
	assert.Equal(t, "Insufficient balance", res.Reason)

	res = m.ValidatePositionSize("BTC-USD", -1, 50000, 100000)
	require.False(t, res.Approved)
	assert.Equal(t, "Invalid position size", res.Reason)
}

func TestValidatePositionSizeBoundary(t *testing.T) {
	m := NewManager(DefaultLimits())

	// Exactly at the cap is allowed; rejection is strictly greater-than.
	res := m.ValidatePositionSize("BTC-USD", 2, 5000, 100000)
	assert.True(t, res.Approved)

	res = m.ValidatePositionSize("BTC-USD", 2.001, 5000, 100000)
	assert.False(t, res.Approved)
}

func TestValidateTrade(t *testing.T) {
	m := NewManager(DefaultLimits())

	res := m.ValidateTrade("BTC-USD", "long", 0.05, 50000, "momentum", nil, 100000)
	require.True(t, res.Approved)
	assert.InDelta(t, 2.5, res.RiskScore, 1e-9)

	res = m.ValidateTrade("", "long", 0.05, 50000, "", nil, 100000)
	assert.False(t, res.Approved)

	res = m.ValidateTrade("BTC-USD", "sideways", 0.05, 50000, "", nil, 100000)
	assert.False(t, res.Approved)

	res = m.ValidateTrade("BTC-USD", "long", 0.05, 0, "", nil, 100000)
	require.False(t, res.Approved)
	assert.Equal(t, "Invalid price", res.Reason)

	positions := make([]types.PositionSnapshot, DefaultLimits().MaxOpenPositions)
	res = m.ValidateTrade("BTC-USD", "long", 0.05, 50000, "", positions, 100000)
	require.False(t, res.Approved)
	assert.Equal(t, "Maximum open positions reached", res.Reason)
}

func TestGetRiskMetricsEmpty(t *testing.T) {
	m := NewManager(DefaultLimits())

	assert.Equal(t, Metrics{}, m.GetRiskMetrics(nil, 100000))
	assert.Equal(t, Metrics{}, m.GetRiskMetrics(nil, 0))
	assert.Equal(t, Metrics{}, m.GetRiskMetrics([]types.PositionSnapshot{{Symbol: "BTC-USD"}}, -5))
}

func TestGetRiskMetricsMalformedPositions(t *testing.T) {
	m := NewManager(DefaultLimits())

	positions := []types.PositionSnapshot{
		{
			Product:       &types.ProductRef{Symbol: "BTC-USD"},
			Size:          "0.5",
			MarkPrice:     "50000",
			UnrealizedPnL: "150.5",
			RealizedPnL:   "50",
		},
		{
			// No product, garbage numerics: contributes zero, never panics.
			Size:          "not-a-number",
			MarkPrice:     nil,
			UnrealizedPnL: math.NaN(),
			RealizedPnL:   struct{}{},
		},
	}

	metrics := m.GetRiskMetrics(positions, 100000)
	assert.InDelta(t, 25000, metrics.TotalExposure, 1e-9)
	assert.InDelta(t, 150.5, metrics.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 50, metrics.RealizedPnL, 1e-9)
	assert.InDelta(t, 25, metrics.PortfolioRisk, 1e-9)
	assert.Zero(t, metrics.CurrentDrawdown, "positive PnL means no drawdown")
}

func TestGetRiskMetricsDrawdown(t *testing.T) {
	m := NewManager(DefaultLimits())

	positions := []types.PositionSnapshot{
		{Product: &types.ProductRef{Symbol: "ETH-USD"}, Size: "1", MarkPrice: "3000", UnrealizedPnL: "-2000", RealizedPnL: "-1000"},
	}
	metrics := m.GetRiskMetrics(positions, 100000)
	assert.InDelta(t, 3.0, metrics.CurrentDrawdown, 1e-9)
	assert.InDelta(t, 3.0, metrics.MaxDrawdown, 1e-9)

	// Drawdown high-water mark survives recovery.
	metrics = m.GetRiskMetrics(nil, 100000)
	assert.Zero(t, metrics.CurrentDrawdown)
	metrics = m.GetRiskMetrics([]types.PositionSnapshot{
		{Product: &types.ProductRef{Symbol: "ETH-USD"}, Size: "1", MarkPrice: "3000", UnrealizedPnL: "-1000"},
	}, 100000)
	assert.InDelta(t, 3.0, metrics.MaxDrawdown, 1e-9)
}

func TestCheckRiskLimitsStrictlyGreater(t *testing.T) {
	m := NewManager(DefaultLimits())
	limit := DefaultLimits().MaxDrawdown * 100

	alerts := m.CheckRiskLimits(Metrics{CurrentDrawdown: limit}, nil, 100000)
	assert.Empty(t, alerts, "exactly at the limit is not a breach")

	alerts = m.CheckRiskLimits(Metrics{CurrentDrawdown: limit + 1}, nil, 100000)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertDrawdown, alerts[0].Kind)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
}

func TestCheckRiskLimitsSeverities(t *testing.T) {
	m := NewManager(DefaultLimits())

	positions := make([]types.PositionSnapshot, 6)
	for i := range positions {
		positions[i] = types.PositionSnapshot{
			Product:   &types.ProductRef{Symbol: "BTC-USD"},
			Size:      "0.5",
			MarkPrice: "50000", // 25% of balance each
		}
	}
	metrics := Metrics{PortfolioRisk: 99, CurrentDrawdown: 20}
	alerts := m.CheckRiskLimits(metrics, positions, 100000)

	kinds := map[AlertKind]Severity{}
	for _, a := range alerts {
		kinds[a.Kind] = a.Severity
	}
	assert.Equal(t, SeverityCritical, kinds[AlertPortfolioRisk])
	assert.Equal(t, SeverityCritical, kinds[AlertDrawdown])
	assert.Equal(t, SeverityWarning, kinds[AlertMaxPositions])
	assert.Equal(t, SeverityWarning, kinds[AlertPositionSize])
}

func TestCheckRiskLimitsDailyLoss(t *testing.T) {
	m := NewManager(DefaultLimits())
	m.UpdateDailyPnL(-6000) // 6% of 100k, limit is 5%

	alerts := m.CheckRiskLimits(Metrics{}, nil, 100000)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertDailyLoss, alerts[0].Kind)

	m.ResetDailyPnL()
	assert.Empty(t, m.CheckRiskLimits(Metrics{}, nil, 100000))
}

func TestAlertHistoryBounded(t *testing.T) {
	m := NewManager(DefaultLimits())
	for i := 0; i < 60; i++ {
		m.CheckRiskLimits(Metrics{CurrentDrawdown: 99}, nil, 100000)
	}
	assert.Len(t, m.Alerts(), alertHistoryCap)
}

func TestCalculateStopLoss(t *testing.T) {
	m := NewManager(DefaultLimits())
	pct := DefaultLimits().StopLossPercentage

	long := m.CalculateStopLoss(45000, "long")
	assert.InDelta(t, 45000*(1-pct), long, 1e-9)
	assert.Less(t, long, 45000.0)

	short := m.CalculateStopLoss(45000, "short")
	assert.InDelta(t, 45000*(1+pct), short, 1e-9)
	assert.Greater(t, short, 45000.0)

	assert.Zero(t, m.CalculateStopLoss(0, "long"))
	assert.Zero(t, m.CalculateStopLoss(-10, "short"))
}

func TestCalculateTakeProfit(t *testing.T) {
	m := NewManager(DefaultLimits())

	assert.InDelta(t, 46800, m.CalculateTakeProfit(45000, 44100, "long", 2.0), 1e-9)
	assert.InDelta(t, 43200, m.CalculateTakeProfit(45000, 45900, "short", 2.0), 1e-9)
	// Zero ratio falls back to 2.0.
	assert.InDelta(t, 46800, m.CalculateTakeProfit(45000, 44100, "long", 0), 1e-9)
	assert.Zero(t, m.CalculateTakeProfit(0, 44100, "long", 2.0))
}

func TestCalculateOptimalPositionSize(t *testing.T) {
	m := NewManager(DefaultLimits())

	// 2% of 100k = 2000 risked over a 900 price gap => 2.222...,
	// capped at 100000*0.1/45000 = 0.2222...
	size := m.CalculateOptimalPositionSize(100000, 45000, 44100, 0.02)
	assert.InDelta(t, 100000*0.1/45000, size, 1e-9)

	// Wide stop: uncapped sizing applies.
	size = m.CalculateOptimalPositionSize(100000, 45000, 22500, 0.02)
	assert.InDelta(t, 2000.0/22500, size, 1e-9)

	assert.Zero(t, m.CalculateOptimalPositionSize(100000, 45000, 45000, 0.02))
	assert.Zero(t, m.CalculateOptimalPositionSize(0, 45000, 44100, 0.02))
}

func TestLimitsClamp(t *testing.T) {
	l := Limits{MaxPositionSize: 1.5, MaxDrawdown: -0.3, MaxOpenPositions: -2, RiskPerTrade: 0.02}.Clamp()
	assert.Equal(t, 1.0, l.MaxPositionSize)
	assert.Equal(t, 0.0, l.MaxDrawdown)
	assert.Equal(t, 0, l.MaxOpenPositions)
	assert.Equal(t, 0.02, l.RiskPerTrade)
}

func TestUpdateLimitsMergesAndClamps(t *testing.T) {
	m := NewManager(DefaultLimits())

	oversized := 1.5
	got := m.UpdateLimits(LimitsPatch{MaxPositionSize: &oversized})
	assert.Equal(t, 1.0, got.MaxPositionSize, "out-of-range input clamps, not rejects")
	assert.Equal(t, DefaultLimits().MaxDrawdown, got.MaxDrawdown, "untouched fields survive the merge")

	// New thresholds are visible immediately.
	res := m.ValidatePositionSize("BTC-USD", 1.9, 50000, 100000)
	assert.True(t, res.Approved)
}

func TestRecordTradeResult(t *testing.T) {
	m := NewManager(DefaultLimits())
	m.RecordTradeResult(0.02)
	m.RecordTradeResult(0.01)
	m.RecordTradeResult(-0.01)

	metrics := m.GetRiskMetrics([]types.PositionSnapshot{
		{Product: &types.ProductRef{Symbol: "BTC-USD"}, Size: "0.1", MarkPrice: "50000"},
	}, 100000)
	assert.InDelta(t, 100.0*2/3, metrics.WinRate, 1e-9)
	assert.NotZero(t, metrics.SharpeRatio)
}
