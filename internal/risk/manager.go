// Package risk implements the portfolio gatekeeper: position-size and
// trade validation against configured limits, derived exposure metrics
// and breach alerts. Every public method degrades to a safe default
// (zeroed metrics, approved=false with a reason, empty slice) on
// malformed input; nothing here returns an error for data problems.
package risk

import (
	"fmt"
	"strings"
	"sync"

	"deltadeck/internal/types"
)

// ValidationResult is the never-throw answer of the validators.
type ValidationResult struct {
	Approved  bool    `json:"approved"`
	Reason    string  `json:"reason,omitempty"`
	RiskScore float64 `json:"risk_score,omitempty"`
}

func reject(reason string) ValidationResult {
	return ValidationResult{Approved: false, Reason: reason}
}

const (
	tradeReturnsCap        = 256
	defaultRiskRewardRatio = 2.0
)

// Manager owns the limits, the alert history ring and the daily PnL
// accumulator. Construct one per hosting application and pass it by
// reference; there is deliberately no package-level instance.
type Manager struct {
	mu              sync.RWMutex
	limits          Limits
	alerts          []Alert
	dailyPnL        float64
	maxDrawdownSeen float64

	tradeReturns []float64
	wins         int
	losses       int
}

func NewManager(limits Limits) *Manager {
	return &Manager{limits: limits.Clamp()}
}

// Limits returns a copy of the current limit set.
func (m *Manager) Limits() Limits {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limits
}

// UpdateLimits shallow-merges the patch into the current limits and
// clamps the result. Subsequent validations see the new thresholds
// immediately; there is no versioning or rollback.
func (m *Manager) UpdateLimits(patch LimitsPatch) Limits {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = patch.applyTo(m.limits)
	return m.limits
}

// ReplaceLimits swaps the whole limit set, clamped. Used by the config
// hot-reload path.
func (m *Manager) ReplaceLimits(limits Limits) Limits {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = limits.Clamp()
	return m.limits
}

// ValidatePositionSize checks a proposed position value against the
// balance-relative size cap. Pure function of its arguments and the
// current limits.
func (m *Manager) ValidatePositionSize(symbol string, size, price, balance float64) ValidationResult {
	if balance <= 0 {
		return reject("Insufficient balance")
	}
	if size <= 0 {
		return reject("Invalid position size")
	}
	limits := m.Limits()
	ratio := size * price / balance
	if ratio > limits.MaxPositionSize {
		return reject("Position size exceeds limit")
	}
	return ValidationResult{Approved: true, RiskScore: ratio * 100}
}

// ValidateTrade composes parameter validation, the open-position-count
// cap and ValidatePositionSize. Safe to call concurrently: it only
// reads the current limits and its own arguments.
func (m *Manager) ValidateTrade(symbol, side string, size, price float64, strategyTag string, positions []types.PositionSnapshot, balance float64) ValidationResult {
	if strings.TrimSpace(symbol) == "" {
		return reject("Invalid symbol")
	}
	if types.NormalizeSide(side) == "" {
		return reject(fmt.Sprintf("Invalid side: %s", side))
	}
	if size <= 0 {
		return reject("Invalid position size")
	}
	if price <= 0 {
		return reject("Invalid price")
	}
	limits := m.Limits()
	if len(positions) >= limits.MaxOpenPositions {
		return reject("Maximum open positions reached")
	}
	if res := m.ValidatePositionSize(symbol, size, price, balance); !res.Approved {
		return res
	}
	return ValidationResult{Approved: true, RiskScore: size * price / balance * 100}
}

// GetRiskMetrics rebuilds the metrics view from a position/balance
// snapshot. Malformed positions contribute zero; a non-positive balance
// yields an all-zero Metrics rather than a division blow-up.
func (m *Manager) GetRiskMetrics(positions []types.PositionSnapshot, balance float64) Metrics {
	if balance <= 0 {
		return Metrics{}
	}

	var exposure, unrealized, realized float64
	for _, p := range positions {
		exposure += p.NotionalValue()
		unrealized += p.UnrealizedPnLValue()
		realized += p.RealizedPnLValue()
	}

	totalPnL := unrealized + realized
	drawdown := 0.0
	if totalPnL < 0 {
		drawdown = -totalPnL / balance * 100
	}

	m.mu.Lock()
	if drawdown > m.maxDrawdownSeen {
		m.maxDrawdownSeen = drawdown
	}
	maxDD := m.maxDrawdownSeen
	sharpe := sharpeFromReturns(m.tradeReturns)
	winRate := 0.0
	if total := m.wins + m.losses; total > 0 {
		winRate = float64(m.wins) / float64(total) * 100
	}
	m.mu.Unlock()

	return Metrics{
		TotalExposure:   exposure,
		PortfolioRisk:   exposure / balance * 100,
		CurrentDrawdown: drawdown,
		MaxDrawdown:     maxDD,
		UnrealizedPnL:   unrealized,
		RealizedPnL:     realized,
		SharpeRatio:     sharpe,
		WinRate:         winRate,
		ValueAtRisk:     exposure * varConfidenceFactor,
	}
}

// CheckRiskLimits compares a metrics snapshot against the current
// limits and returns the alerts raised by this call only. All threshold
// comparisons are strictly greater-than: sitting exactly at a limit is
// not a breach. Raised alerts are also appended to the bounded history.
func (m *Manager) CheckRiskLimits(metrics Metrics, positions []types.PositionSnapshot, balance float64) []Alert {
	limits := m.Limits()

	var fresh []Alert

	if threshold := limits.MaxPortfolioRisk * 100; metrics.PortfolioRisk > threshold {
		fresh = append(fresh, newAlert(AlertPortfolioRisk, SeverityCritical,
			fmt.Sprintf("Portfolio risk %.2f%% exceeds limit %.2f%%", metrics.PortfolioRisk, threshold),
			"portfolio_risk", metrics.PortfolioRisk, threshold))
	}
	if threshold := limits.MaxDrawdown * 100; metrics.CurrentDrawdown > threshold {
		fresh = append(fresh, newAlert(AlertDrawdown, SeverityCritical,
			fmt.Sprintf("Drawdown %.2f%% exceeds limit %.2f%%", metrics.CurrentDrawdown, threshold),
			"current_drawdown", metrics.CurrentDrawdown, threshold))
	}
	if balance > 0 {
		dailyPnL := m.DailyPnL()
		if threshold := -limits.MaxDailyLoss * balance; dailyPnL < threshold {
			fresh = append(fresh, newAlert(AlertDailyLoss, SeverityCritical,
				fmt.Sprintf("Daily loss %.2f exceeds limit %.2f", dailyPnL, threshold),
				"daily_pnl", dailyPnL, threshold))
		}
	}
	if count := len(positions); count > limits.MaxOpenPositions {
		fresh = append(fresh, newAlert(AlertMaxPositions, SeverityWarning,
			fmt.Sprintf("Open positions %d exceed limit %d", count, limits.MaxOpenPositions),
			"open_positions", float64(count), float64(limits.MaxOpenPositions)))
	}
	if balance > 0 {
		threshold := limits.MaxPositionSize * 100
		for _, p := range positions {
			pct := p.NotionalValue() / balance * 100
			if pct > threshold {
				fresh = append(fresh, newAlert(AlertPositionSize, SeverityWarning,
					fmt.Sprintf("%s position is %.2f%% of balance, limit %.2f%%", p.ProductSymbol(), pct, threshold),
					"position_size", pct, threshold))
			}
		}
	}

	if len(fresh) > 0 {
		m.mu.Lock()
		m.alerts = appendAlerts(m.alerts, fresh)
		m.mu.Unlock()
	}
	return fresh
}

// Alerts returns a copy of the alert history, oldest first.
func (m *Manager) Alerts() []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// CalculateStopLoss places the stop at the configured percentage below
// (long) or above (short) the entry. Non-positive entry yields 0.
func (m *Manager) CalculateStopLoss(entryPrice float64, side string) float64 {
	if entryPrice <= 0 {
		return 0
	}
	pct := m.Limits().StopLossPercentage
	switch types.NormalizeSide(side) {
	case types.SideShort:
		return entryPrice * (1 + pct)
	case types.SideLong:
		return entryPrice * (1 - pct)
	default:
		return 0
	}
}

// CalculateTakeProfit projects the reward in the favorable direction:
// |entry-stop| * ratio. A non-positive ratio falls back to 2.0.
func (m *Manager) CalculateTakeProfit(entryPrice, stopLoss float64, side string, riskRewardRatio float64) float64 {
	if entryPrice <= 0 {
		return 0
	}
	if riskRewardRatio <= 0 {
		riskRewardRatio = defaultRiskRewardRatio
	}
	risk := entryPrice - stopLoss
	if risk < 0 {
		risk = -risk
	}
	reward := risk * riskRewardRatio
	switch types.NormalizeSide(side) {
	case types.SideShort:
		return entryPrice - reward
	case types.SideLong:
		return entryPrice + reward
	default:
		return 0
	}
}

// CalculateOptimalPositionSize sizes a trade so the stop-loss distance
// risks riskPerTrade of the balance, capped by the balance-relative
// position limit. riskPerTrade <= 0 uses the configured default.
func (m *Manager) CalculateOptimalPositionSize(balance, entryPrice, stopLoss, riskPerTrade float64) float64 {
	if balance <= 0 || entryPrice <= 0 {
		return 0
	}
	limits := m.Limits()
	if riskPerTrade <= 0 {
		riskPerTrade = limits.RiskPerTrade
	}
	priceRisk := entryPrice - stopLoss
	if priceRisk < 0 {
		priceRisk = -priceRisk
	}
	if priceRisk == 0 {
		return 0
	}
	size := balance * riskPerTrade / priceRisk
	if maxSize := balance * limits.MaxPositionSize / entryPrice; size > maxSize {
		size = maxSize
	}
	return size
}

// UpdateDailyPnL accumulates realized PnL for the current trading day.
// The caller resets it once per day; there is no calendar rollover here.
func (m *Manager) UpdateDailyPnL(delta float64) {
	m.mu.Lock()
	m.dailyPnL += delta
	m.mu.Unlock()
}

func (m *Manager) ResetDailyPnL() {
	m.mu.Lock()
	m.dailyPnL = 0
	m.mu.Unlock()
}

func (m *Manager) DailyPnL() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dailyPnL
}

// RecordTradeResult feeds the win-rate and Sharpe accumulators with one
// closed trade's return (PnL relative to balance at close).
func (m *Manager) RecordTradeResult(ret float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ret >= 0 {
		m.wins++
	} else {
		m.losses++
	}
	m.tradeReturns = append(m.tradeReturns, ret)
	if n := len(m.tradeReturns); n > tradeReturnsCap {
		m.tradeReturns = m.tradeReturns[n-tradeReturnsCap:]
	}
}
