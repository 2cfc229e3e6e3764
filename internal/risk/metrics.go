package risk

import "math"

// Metrics is the derived exposure view. It is rebuilt from a snapshot on
// every call and never mutated in place.
type Metrics struct {
	TotalExposure   float64 `json:"total_exposure"`
	PortfolioRisk   float64 `json:"portfolio_risk"`   // percent of balance
	CurrentDrawdown float64 `json:"current_drawdown"` // percent
	MaxDrawdown     float64 `json:"max_drawdown"`     // percent, high-water
	UnrealizedPnL   float64 `json:"unrealized_pnl"`
	RealizedPnL     float64 `json:"realized_pnl"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	WinRate         float64 `json:"win_rate"`
	ValueAtRisk     float64 `json:"value_at_risk"`
}

// varConfidenceFactor approximates one-tailed 95% on the exposure base.
const varConfidenceFactor = 0.05

// sharpeFromReturns computes a plain mean/stddev ratio over recorded
// per-trade returns. Fewer than two samples yields 0.
func sharpeFromReturns(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std
}
