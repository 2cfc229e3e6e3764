package takeprofit

import (
	"math"

	"github.com/shopspring/decimal"

	"deltadeck/internal/types"
)

// Price comparisons go through decimals so that targets computed from
// percentages compare exactly against tick prices; float noise around a
// target must not double-trigger or skip a level.

var decOne = decimal.NewFromInt(1)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

func decimalGTE(a, b float64) bool { return decFromFloat(a).Cmp(decFromFloat(b)) >= 0 }
func decimalLTE(a, b float64) bool { return decFromFloat(a).Cmp(decFromFloat(b)) <= 0 }
func decimalGT(a, b float64) bool  { return decFromFloat(a).Cmp(decFromFloat(b)) > 0 }
func decimalLT(a, b float64) bool  { return decFromFloat(a).Cmp(decFromFloat(b)) < 0 }

// relativeTarget places a target pct (fraction) beyond the entry in the
// profitable direction: above for long, below for short.
func relativeTarget(entry, pct float64, side string) float64 {
	if entry <= 0 {
		return 0
	}
	base := decFromFloat(entry)
	pctDec := decFromFloat(pct)
	var factor decimal.Decimal
	switch side {
	case types.SideShort:
		factor = decOne.Sub(pctDec)
	default:
		factor = decOne.Add(pctDec)
	}
	return decToFloat(base.Mul(factor))
}

// targetHit reports whether price has crossed target in the favorable
// direction: >= for long, <= for short.
func targetHit(side string, price, target float64) bool {
	if price <= 0 || target <= 0 {
		return false
	}
	switch side {
	case types.SideShort:
		return decimalLTE(price, target)
	default:
		return decimalGTE(price, target)
	}
}

// trailingCandidate derives a target from the favorable water mark and a
// trailing distance percentage (of price).
func trailingCandidate(side string, waterMark, distancePct float64) float64 {
	if waterMark <= 0 || distancePct <= 0 {
		return 0
	}
	base := decFromFloat(waterMark)
	dist := decFromFloat(distancePct / 100)
	var factor decimal.Decimal
	switch side {
	case types.SideShort:
		factor = decOne.Add(dist)
	default:
		factor = decOne.Sub(dist)
	}
	return decToFloat(base.Mul(factor))
}

// ratchets reports whether candidate tightens the target in the
// position's favor: a higher exit for long, a lower one for short.
// Equal or looser candidates never replace the current target.
func ratchets(side string, candidate, current float64) bool {
	if candidate <= 0 {
		return false
	}
	if current <= 0 {
		return true
	}
	switch side {
	case types.SideShort:
		return decimalLT(candidate, current)
	default:
		return decimalGT(candidate, current)
	}
}

// stopBreached reports whether price has fallen back through a trailing
// stop: <= for long, >= for short.
func stopBreached(side string, price, stop float64) bool {
	if price <= 0 || stop <= 0 {
		return false
	}
	switch side {
	case types.SideShort:
		return decimalGTE(price, stop)
	default:
		return decimalLTE(price, stop)
	}
}

// closeProfit is the realized PnL for exiting sizeClosed at exitPrice,
// sign-adjusted by side.
func closeProfit(side string, entry, exitPrice, sizeClosed float64) float64 {
	switch side {
	case types.SideShort:
		return (entry - exitPrice) * sizeClosed
	default:
		return (exitPrice - entry) * sizeClosed
	}
}
