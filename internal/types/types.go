// Package types holds the wire-facing snapshot types shared by the risk,
// order and agent layers. Exchange snapshots are treated as read-only:
// the core derives numbers from them and never mutates one.
package types

import (
	"strings"
	"time"

	"deltadeck/internal/pkg/convert"
)

const (
	SideLong  = "long"
	SideShort = "short"
)

// NormalizeSide lowercases and validates a side string. Returns "" for
// anything that is not long/short (buy/sell aliases included).
func NormalizeSide(side string) string {
	switch strings.ToLower(strings.TrimSpace(side)) {
	case "long", "buy":
		return SideLong
	case "short", "sell":
		return SideShort
	default:
		return ""
	}
}

// ProductRef is the nested product block on exchange position payloads.
// It can be absent entirely on malformed snapshots.
type ProductRef struct {
	Symbol string `json:"symbol"`
}

// PositionSnapshot mirrors one exchange position. Numeric fields arrive
// as decimal strings, numbers or null depending on the feed revision, so
// they stay untyped here and are coerced through the accessor methods.
type PositionSnapshot struct {
	Product       *ProductRef `json:"product,omitempty"`
	Symbol        string      `json:"symbol,omitempty"`
	Size          any         `json:"size"`
	EntryPrice    any         `json:"entry_price"`
	MarkPrice     any         `json:"mark_price"`
	UnrealizedPnL any         `json:"unrealized_pnl"`
	RealizedPnL   any         `json:"realized_pnl"`
}

// ProductSymbol resolves the symbol from either the nested product block
// or the flat field; "" when both are missing.
func (p PositionSnapshot) ProductSymbol() string {
	if p.Product != nil && strings.TrimSpace(p.Product.Symbol) != "" {
		return strings.TrimSpace(p.Product.Symbol)
	}
	return strings.TrimSpace(p.Symbol)
}

func (p PositionSnapshot) SizeValue() float64          { return convert.ToFloat64(p.Size) }
func (p PositionSnapshot) EntryPriceValue() float64    { return convert.ToFloat64(p.EntryPrice) }
func (p PositionSnapshot) MarkPriceValue() float64     { return convert.ToFloat64(p.MarkPrice) }
func (p PositionSnapshot) UnrealizedPnLValue() float64 { return convert.ToFloat64(p.UnrealizedPnL) }
func (p PositionSnapshot) RealizedPnLValue() float64   { return convert.ToFloat64(p.RealizedPnL) }

// NotionalValue is |size| * mark price, falling back to entry price when
// the mark is missing.
func (p PositionSnapshot) NotionalValue() float64 {
	size := p.SizeValue()
	if size < 0 {
		size = -size
	}
	price := p.MarkPriceValue()
	if price <= 0 {
		price = p.EntryPriceValue()
	}
	return size * price
}

// MarketData is one symbol's market snapshot as polled by the agent.
type MarketData struct {
	Symbol    string    `json:"symbol"`
	LastPrice float64   `json:"last_price"`
	Volume    float64   `json:"volume"`
	High24h   float64   `json:"high_24h"`
	Low24h    float64   `json:"low_24h"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MarketState bundles everything a single agent tick needs.
type MarketState struct {
	MarketData []MarketData       `json:"market_data"`
	Positions  []PositionSnapshot `json:"positions"`
	Balance    float64            `json:"balance"`
}

// AccountSnapshot is the account balance view exposed over HTTP.
type AccountSnapshot struct {
	Total     float64   `json:"total"`
	Available float64   `json:"available"`
	Used      float64   `json:"used"`
	Currency  string    `json:"currency"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Signal is the analysis engine's output. The engine is an external
// oracle; the core only consumes these fields and never validates the
// math behind them.
type Signal struct {
	Action       string  `json:"action"` // "long", "short" or "hold"
	Confidence   float64 `json:"confidence"`
	EntryPrice   float64 `json:"entry_price"`
	StopLoss     float64 `json:"stop_loss"`
	PositionSize float64 `json:"position_size"`
	Reasoning    string  `json:"reasoning"`
}
