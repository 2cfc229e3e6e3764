package risk

// Limits is the portfolio constraint set owned by the Manager. Every
// fractional field lives in [0,1] after Clamp; out-of-range input is
// normalized at the boundary, never rejected, so a sloppy config file or
// UI slider cannot wedge the gatekeeper.
type Limits struct {
	MaxPortfolioRisk   float64 `json:"max_portfolio_risk" mapstructure:"max_portfolio_risk"`
	MaxPositionSize    float64 `json:"max_position_size" mapstructure:"max_position_size"`
	MaxDrawdown        float64 `json:"max_drawdown" mapstructure:"max_drawdown"`
	MaxDailyLoss       float64 `json:"max_daily_loss" mapstructure:"max_daily_loss"`
	MaxOpenPositions   int     `json:"max_open_positions" mapstructure:"max_open_positions"`
	CorrelationLimit   float64 `json:"correlation_limit" mapstructure:"correlation_limit"`
	RiskPerTrade       float64 `json:"risk_per_trade" mapstructure:"risk_per_trade"`
	MaxLeverage        float64 `json:"max_leverage" mapstructure:"max_leverage"`
	StopLossPercentage float64 `json:"stop_loss_percentage" mapstructure:"stop_loss_percentage"`
}

// DefaultLimits mirrors the dashboard defaults: 10% position cap, 15%
// drawdown stop, 2% risk per trade.
func DefaultLimits() Limits {
	return Limits{
		MaxPortfolioRisk:   0.20,
		MaxPositionSize:    0.10,
		MaxDrawdown:        0.15,
		MaxDailyLoss:       0.05,
		MaxOpenPositions:   5,
		CorrelationLimit:   0.70,
		RiskPerTrade:       0.02,
		MaxLeverage:        0.50,
		StopLossPercentage: 0.02,
	}
}

// Clamp normalizes every fractional field into [0,1] and the open
// position cap to >= 0.
func (l Limits) Clamp() Limits {
	l.MaxPortfolioRisk = clampFraction(l.MaxPortfolioRisk)
	l.MaxPositionSize = clampFraction(l.MaxPositionSize)
	l.MaxDrawdown = clampFraction(l.MaxDrawdown)
	l.MaxDailyLoss = clampFraction(l.MaxDailyLoss)
	l.CorrelationLimit = clampFraction(l.CorrelationLimit)
	l.RiskPerTrade = clampFraction(l.RiskPerTrade)
	l.MaxLeverage = clampFraction(l.MaxLeverage)
	l.StopLossPercentage = clampFraction(l.StopLossPercentage)
	if l.MaxOpenPositions < 0 {
		l.MaxOpenPositions = 0
	}
	return l
}

func clampFraction(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// LimitsPatch shallow-merges into Limits: only non-nil fields replace
// the current value. The merged result is clamped again.
type LimitsPatch struct {
	MaxPortfolioRisk   *float64 `json:"max_portfolio_risk,omitempty"`
	MaxPositionSize    *float64 `json:"max_position_size,omitempty"`
	MaxDrawdown        *float64 `json:"max_drawdown,omitempty"`
	MaxDailyLoss       *float64 `json:"max_daily_loss,omitempty"`
	MaxOpenPositions   *int     `json:"max_open_positions,omitempty"`
	CorrelationLimit   *float64 `json:"correlation_limit,omitempty"`
	RiskPerTrade       *float64 `json:"risk_per_trade,omitempty"`
	MaxLeverage        *float64 `json:"max_leverage,omitempty"`
	StopLossPercentage *float64 `json:"stop_loss_percentage,omitempty"`
}

func (p LimitsPatch) applyTo(l Limits) Limits {
	if p.MaxPortfolioRisk != nil {
		l.MaxPortfolioRisk = *p.MaxPortfolioRisk
	}
	if p.MaxPositionSize != nil {
		l.MaxPositionSize = *p.MaxPositionSize
	}
	if p.MaxDrawdown != nil {
		l.MaxDrawdown = *p.MaxDrawdown
	}
	if p.MaxDailyLoss != nil {
		l.MaxDailyLoss = *p.MaxDailyLoss
	}
	if p.MaxOpenPositions != nil {
		l.MaxOpenPositions = *p.MaxOpenPositions
	}
	if p.CorrelationLimit != nil {
		l.CorrelationLimit = *p.CorrelationLimit
	}
	if p.RiskPerTrade != nil {
		l.RiskPerTrade = *p.RiskPerTrade
	}
	if p.MaxLeverage != nil {
		l.MaxLeverage = *p.MaxLeverage
	}
	if p.StopLossPercentage != nil {
		l.StopLossPercentage = *p.StopLossPercentage
	}
	return l.Clamp()
}
