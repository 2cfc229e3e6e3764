// Package takeprofit implements the per-position exit state machine:
// scaled take-profit levels, trailing targets that only ratchet in the
// position's favor, and optional volatility-driven adjustment of the
// trailing distances. It is driven by a polling tick against prices
// pushed in from outside; a tick with no price for a symbol is a no-op
// for that position.
package takeprofit

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"deltadeck/internal/logger"
	"deltadeck/internal/scheduler"
	"deltadeck/internal/types"
)

const (
	// closeEpsilon is the absolute remaining-size threshold below which
	// a position counts as fully closed.
	closeEpsilon = 0.001

	eventHistoryCap = 100
	priceHistoryCap = 64

	highVolThreshold = 0.02
	lowVolThreshold  = 0.005

	widenFactor  = 1.1
	narrowFactor = 0.9
)

// DefaultPollInterval matches the dashboard's 1-second exit poll.
const DefaultPollInterval = time.Second

type EventType string

const (
	EventPartialClose    EventType = "PARTIAL_CLOSE"
	EventFullClose       EventType = "FULL_CLOSE"
	EventTrailingUpdated EventType = "TRAILING_UPDATED"
)

// Event records one state transition. Events are append-only, capped at
// the newest eventHistoryCap entries.
type Event struct {
	Type          EventType `json:"type"`
	TradeID       string    `json:"trade_id"`
	Symbol        string    `json:"symbol"`
	LevelID       string    `json:"level_id,omitempty"`
	Price         float64   `json:"price"`
	SizeClosed    float64   `json:"size_closed,omitempty"`
	Profit        float64   `json:"profit,omitempty"`
	RemainingSize float64   `json:"remaining_size"`
	NewTarget     float64   `json:"new_target,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Level is one exit rung. IsTriggered is monotonic false->true;
// TriggeredAt/TriggeredPrice are set exactly once.
//
// A fixed level (TrailingDistance 0) triggers when price crosses
// PriceTarget in the favorable direction. A trailing level arms at
// PriceTarget instead: from then on TrailingStop follows the favorable
// water mark at TrailingDistance percent and only ever ratchets in the
// position's favor; the level triggers when price falls back through
// the stop.
type Level struct {
	ID               string    `json:"id"`
	Percentage       float64   `json:"percentage"` // of remaining size, 0-100
	PriceTarget      float64   `json:"price_target"`
	TrailingDistance float64   `json:"trailing_distance,omitempty"` // percent, 0 = fixed
	TrailingArmed    bool      `json:"trailing_armed,omitempty"`
	TrailingStop     float64   `json:"trailing_stop,omitempty"`
	IsActive         bool      `json:"is_active"`
	IsTriggered      bool      `json:"is_triggered"`
	TriggeredAt      time.Time `json:"triggered_at,omitempty"`
	TriggeredPrice   float64   `json:"triggered_price,omitempty"`
}

// Plan is the per-trade exit state. RemainingSize only decreases,
// TotalProfitRealized only increases, and the water marks only move in
// the position's favorable direction.
type Plan struct {
	TradeID             string    `json:"trade_id"`
	Symbol              string    `json:"symbol"`
	Side                string    `json:"side"`
	EntryPrice          float64   `json:"entry_price"`
	CurrentPrice        float64   `json:"current_price"`
	Strategy            Strategy  `json:"strategy"`
	Levels              []*Level  `json:"levels"`
	HighestPrice        float64   `json:"highest_price"`
	LowestPrice         float64   `json:"lowest_price"`
	InitialSize         float64   `json:"initial_size"`
	RemainingSize       float64   `json:"remaining_size"`
	TotalProfitRealized float64   `json:"total_profit_realized"`
	IsActive            bool      `json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// System owns all plans and the price cache. Every mutation happens
// under one mutex held for a whole tick, so a handler never observes a
// half-updated plan.
type System struct {
	mu         sync.Mutex
	strategies map[string]Strategy
	plans      map[string]*Plan
	prices     map[string]float64
	priceHist  map[string][]float64
	events     []Event
	onEvent    func(Event)
}

func NewSystem(strategies map[string]Strategy) *System {
	if strategies == nil {
		strategies = BuiltinStrategies()
	}
	return &System{
		strategies: strategies,
		plans:      make(map[string]*Plan),
		prices:     make(map[string]float64),
		priceHist:  make(map[string][]float64),
	}
}

// SetEventHandler installs a callback invoked (synchronously, under the
// system lock released) for every emitted event. Install before Run.
func (s *System) SetEventHandler(fn func(Event)) {
	s.mu.Lock()
	s.onEvent = fn
	s.mu.Unlock()
}

// Register creates the exit plan for a freshly opened trade.
func (s *System) Register(tradeID, symbol, side string, entryPrice, size float64, strategyName string) (Plan, error) {
	tradeID = strings.TrimSpace(tradeID)
	if tradeID == "" {
		return Plan{}, fmt.Errorf("trade id is required")
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Plan{}, fmt.Errorf("symbol is required")
	}
	normSide := types.NormalizeSide(side)
	if normSide == "" {
		return Plan{}, fmt.Errorf("invalid side: %s", side)
	}
	if entryPrice <= 0 {
		return Plan{}, fmt.Errorf("entry price must be positive")
	}
	if size <= 0 {
		return Plan{}, fmt.Errorf("size must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	strat, ok := s.strategies[strings.ToLower(strings.TrimSpace(strategyName))]
	if !ok {
		return Plan{}, fmt.Errorf("unknown strategy: %s", strategyName)
	}
	if err := strat.Validate(); err != nil {
		return Plan{}, err
	}
	if existing, ok := s.plans[tradeID]; ok && existing.IsActive {
		return Plan{}, fmt.Errorf("trade %s already has an active plan", tradeID)
	}

	now := time.Now()
	plan := &Plan{
		TradeID:       tradeID,
		Symbol:        symbol,
		Side:          normSide,
		EntryPrice:    entryPrice,
		CurrentPrice:  entryPrice,
		Strategy:      strat,
		HighestPrice:  entryPrice,
		LowestPrice:   entryPrice,
		InitialSize:   size,
		RemainingSize: size,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i, spec := range strat.Levels {
		pct := spec.TargetPct / 100
		if spec.TargetPct <= 0 {
			pct = ladderTargetPct(i)
		}
		plan.Levels = append(plan.Levels, &Level{
			ID:               uuid.NewString(),
			Percentage:       spec.Percentage,
			PriceTarget:      relativeTarget(entryPrice, pct, normSide),
			TrailingDistance: spec.TrailingDistance,
			IsActive:         true,
		})
	}
	s.plans[tradeID] = plan
	logger.Infof("takeprofit: registered trade=%s symbol=%s side=%s entry=%.4f size=%.6f strategy=%s",
		tradeID, symbol, normSide, entryPrice, size, strat.Name)
	return plan.snapshot(), nil
}

// Deactivate marks a plan inactive (position closed out-of-band).
func (s *System) Deactivate(tradeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[tradeID]
	if !ok || !plan.IsActive {
		return false
	}
	plan.IsActive = false
	plan.UpdatedAt = time.Now()
	return true
}

// UpdatePrice pushes a market price. Prices at or below zero are
// ignored; the tick treats an unknown symbol as a no-op.
func (s *System) UpdatePrice(symbol string, price float64) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}
	s.mu.Lock()
	s.prices[symbol] = price
	hist := append(s.priceHist[symbol], price)
	if n := len(hist); n > priceHistoryCap {
		hist = hist[n-priceHistoryCap:]
	}
	s.priceHist[symbol] = hist
	s.mu.Unlock()
}

// Run drives Tick on the given interval until the context ends.
func (s *System) Run(ctx context.Context, interval time.Duration) scheduler.Task {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	sched := scheduler.NewIntervalScheduler(ctx, interval)
	return sched.Start(s.Tick)
}

// Tick evaluates every active plan against the latest prices.
func (s *System) Tick() {
	s.mu.Lock()
	var emitted []Event
	for _, plan := range s.plans {
		if !plan.IsActive {
			continue
		}
		price, ok := s.prices[plan.Symbol]
		if !ok {
			continue
		}
		emitted = append(emitted, s.evaluate(plan, price)...)
	}
	handler := s.onEvent
	s.mu.Unlock()

	if handler != nil {
		for _, evt := range emitted {
			handler(evt)
		}
	}
}

// evaluate runs one plan against one price. Caller holds the lock.
func (s *System) evaluate(plan *Plan, price float64) []Event {
	var emitted []Event
	now := time.Now()

	plan.CurrentPrice = price
	if price > plan.HighestPrice {
		plan.HighestPrice = price
	}
	if price < plan.LowestPrice {
		plan.LowestPrice = price
	}
	plan.UpdatedAt = now

	for _, level := range plan.Levels {
		if !plan.IsActive {
			break
		}
		if level.IsTriggered || !level.IsActive {
			continue
		}

		if level.TrailingDistance > 0 {
			emitted = append(emitted, s.evaluateTrailing(plan, level, price, now)...)
			continue
		}

		if targetHit(plan.Side, price, level.PriceTarget) {
			emitted = append(emitted, s.triggerLevel(plan, level, price, now))
		}
	}

	if plan.IsActive && plan.Strategy.DynamicAdjustment {
		s.adjustTrailingDistances(plan)
	}
	return emitted
}

// triggerLevel closes the level's share of the remaining size at the
// given price. Caller holds the lock.
func (s *System) triggerLevel(plan *Plan, level *Level, price float64, now time.Time) Event {
	sizeToClose := plan.RemainingSize * level.Percentage / 100
	profit := closeProfit(plan.Side, plan.EntryPrice, price, sizeToClose)

	level.IsTriggered = true
	level.TriggeredAt = now
	level.TriggeredPrice = price

	plan.RemainingSize -= sizeToClose
	if plan.RemainingSize < 0 {
		plan.RemainingSize = 0
	}
	plan.TotalProfitRealized += profit

	evtType := EventPartialClose
	if plan.RemainingSize <= closeEpsilon {
		evtType = EventFullClose
		plan.RemainingSize = 0
		plan.IsActive = false
	}
	return s.record(Event{
		Type:          evtType,
		TradeID:       plan.TradeID,
		Symbol:        plan.Symbol,
		LevelID:       level.ID,
		Price:         price,
		SizeClosed:    sizeToClose,
		Profit:        profit,
		RemainingSize: plan.RemainingSize,
		Timestamp:     now,
	})
}

// evaluateTrailing drives one trailing level: arm at the target, then
// ratchet the stop under the favorable water mark and close on the
// pullback through it. Caller holds the lock.
func (s *System) evaluateTrailing(plan *Plan, level *Level, price float64, now time.Time) []Event {
	waterMark := plan.HighestPrice
	if plan.Side == types.SideShort {
		waterMark = plan.LowestPrice
	}

	if !level.TrailingArmed {
		if !targetHit(plan.Side, price, level.PriceTarget) {
			return nil
		}
		level.TrailingArmed = true
		level.TrailingStop = trailingCandidate(plan.Side, waterMark, level.TrailingDistance)
		return []Event{s.record(Event{
			Type:          EventTrailingUpdated,
			TradeID:       plan.TradeID,
			Symbol:        plan.Symbol,
			LevelID:       level.ID,
			Price:         price,
			RemainingSize: plan.RemainingSize,
			NewTarget:     level.TrailingStop,
			Timestamp:     now,
		})}
	}

	var emitted []Event
	candidate := trailingCandidate(plan.Side, waterMark, level.TrailingDistance)
	if ratchets(plan.Side, candidate, level.TrailingStop) {
		level.TrailingStop = candidate
		emitted = append(emitted, s.record(Event{
			Type:          EventTrailingUpdated,
			TradeID:       plan.TradeID,
			Symbol:        plan.Symbol,
			LevelID:       level.ID,
			Price:         price,
			RemainingSize: plan.RemainingSize,
			NewTarget:     candidate,
			Timestamp:     now,
		}))
	}
	if stopBreached(plan.Side, price, level.TrailingStop) {
		emitted = append(emitted, s.triggerLevel(plan, level, price, now))
	}
	return emitted
}

// adjustTrailingDistances widens trailing distances under high realized
// volatility and narrows them under low, clamped to the strategy's
// configured band. Caller holds the lock.
func (s *System) adjustTrailingDistances(plan *Plan) {
	vol := realizedVolatility(s.priceHist[plan.Symbol])
	if vol == 0 {
		return
	}
	factor := 0.0
	switch {
	case vol > highVolThreshold:
		factor = widenFactor
	case vol < lowVolThreshold:
		factor = narrowFactor
	default:
		return
	}
	minDist := plan.Strategy.MinTrailingDistance
	maxDist := plan.Strategy.MaxTrailingDistance
	if minDist <= 0 {
		minDist = defaultMinTrailingDistance
	}
	if maxDist <= 0 {
		maxDist = defaultMaxTrailingDistance
	}
	for _, level := range plan.Levels {
		if level.IsTriggered || level.TrailingDistance <= 0 {
			continue
		}
		next := level.TrailingDistance * factor
		if next < minDist {
			next = minDist
		}
		if next > maxDist {
			next = maxDist
		}
		level.TrailingDistance = next
	}
}

// realizedVolatility is the stddev of simple returns over the recent
// price history. Fewer than three samples yields 0.
func realizedVolatility(prices []float64) float64 {
	if len(prices) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 {
			continue
		}
		returns = append(returns, prices[i]/prices[i-1]-1)
	}
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
	return math.Sqrt(variance)
}

// record appends to the bounded event ring. Caller holds the lock.
func (s *System) record(evt Event) Event {
	s.events = append(s.events, evt)
	if n := len(s.events); n > eventHistoryCap {
		s.events = s.events[n-eventHistoryCap:]
	}
	return evt
}

// Plan returns a deep copy of one plan.
func (s *System) Plan(tradeID string) (Plan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[tradeID]
	if !ok {
		return Plan{}, false
	}
	return plan.snapshot(), true
}

// Plans returns deep copies of all plans, active and inactive.
func (s *System) Plans() []Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Plan, 0, len(s.plans))
	for _, plan := range s.plans {
		out = append(out, plan.snapshot())
	}
	return out
}

// Events returns a copy of the event history, oldest first.
func (s *System) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func (p *Plan) snapshot() Plan {
	cp := *p
	cp.Levels = make([]*Level, len(p.Levels))
	for i, lvl := range p.Levels {
		l := *lvl
		cp.Levels[i] = &l
	}
	return cp
}
