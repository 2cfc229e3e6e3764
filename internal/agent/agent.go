// Package agent is the orchestrator: on every analysis tick it polls
// the market source, evaluates the risk gates, asks the analysis oracle
// for a signal and drives the order manager and take-profit system.
// Two independent breakers guard it: the risk-driven emergency stop
// (drawdown, loss streak, daily loss) and a local error breaker that
// forces ERROR after repeated internal failures.
package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"deltadeck/internal/gateway/exchange"
	"deltadeck/internal/logger"
	"deltadeck/internal/order"
	"deltadeck/internal/pkg/circuit"
	"deltadeck/internal/risk"
	"deltadeck/internal/scheduler"
	"deltadeck/internal/takeprofit"
	"deltadeck/internal/types"
)

const (
	decisionLogCap = 100
	errorLogCap    = 10

	// maxTickErrors is the local breaker threshold, independent of any
	// risk limit.
	maxTickErrors = 5

	// dailyLossEmergencyFraction of balance lost in one day trips the
	// emergency stop regardless of the configured daily-loss alert.
	dailyLossEmergencyFraction = 0.05

	DefaultAnalysisInterval = time.Minute
)

// Config is the agent's static tick configuration. Zero trading hours
// mean round-the-clock trading.
type Config struct {
	Symbol               string        `mapstructure:"symbol"`
	AnalysisInterval     time.Duration `mapstructure:"analysis_interval"`
	MaxDailyTrades       int           `mapstructure:"max_daily_trades"`
	MaxConsecutiveLosses int           `mapstructure:"max_consecutive_losses"`
	MinConfidence        float64       `mapstructure:"min_confidence"`
	TradingHourStart     int           `mapstructure:"trading_hour_start"`
	TradingHourEnd       int           `mapstructure:"trading_hour_end"`
	ExitStrategy         string        `mapstructure:"exit_strategy"`
	RiskRewardRatio      float64       `mapstructure:"risk_reward_ratio"`
}

func (c Config) withDefaults() Config {
	if c.AnalysisInterval <= 0 {
		c.AnalysisInterval = DefaultAnalysisInterval
	}
	if c.MaxDailyTrades <= 0 {
		c.MaxDailyTrades = 10
	}
	if c.MaxConsecutiveLosses <= 0 {
		c.MaxConsecutiveLosses = 3
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = 0.70
	}
	if c.ExitStrategy == "" {
		c.ExitStrategy = "balanced"
	}
	if c.RiskRewardRatio <= 0 {
		c.RiskRewardRatio = 2.0
	}
	return c
}

// Agent owns the decision and error logs and its own counters. All
// collaborators are injected; nothing here reaches for a global.
type Agent struct {
	cfg      Config
	risk     *risk.Manager
	orders   *order.Manager
	exits    *takeprofit.System
	market   exchange.MarketSource
	analyzer exchange.Analyzer
	breaker  *circuit.Breaker

	mu                sync.Mutex
	status            Status
	dailyTrades       int
	totalTrades       int
	consecutiveLosses int
	tradeDay          time.Time
	lastMetrics       risk.Metrics
	lastTickAt        time.Time
	decisions         []Decision
	errLog            []ErrorRecord
	subscribers       []func(Decision)
	onAlert           func(risk.Alert)
	task              scheduler.Task

	inTick atomic.Bool
	nowFn  func() time.Time
}

func New(cfg Config, riskMgr *risk.Manager, orders *order.Manager, exits *takeprofit.System,
	market exchange.MarketSource, analyzer exchange.Analyzer) *Agent {
	return &Agent{
		cfg:      cfg.withDefaults(),
		risk:     riskMgr,
		orders:   orders,
		exits:    exits,
		market:   market,
		analyzer: analyzer,
		breaker:  circuit.NewBreaker("agent-tick", maxTickErrors, time.Minute),
		status:   StatusStopped,
		nowFn:    time.Now,
	}
}

// Subscribe registers a decision callback. Callbacks run synchronously
// after the decision is appended; keep them cheap.
func (a *Agent) Subscribe(fn func(Decision)) {
	if fn == nil {
		return
	}
	a.mu.Lock()
	a.subscribers = append(a.subscribers, fn)
	a.mu.Unlock()
}

// SetAlertHandler installs a callback for every fresh risk alert raised
// during a tick.
func (a *Agent) SetAlertHandler(fn func(risk.Alert)) {
	a.mu.Lock()
	a.onAlert = fn
	a.mu.Unlock()
}

// Start moves STOPPED to RUNNING and begins scheduling ticks. Starting
// from ERROR or EMERGENCY_STOP is the manual restart path: counters and
// the error breaker reset.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	switch a.status {
	case StatusRunning, StatusPaused:
		a.mu.Unlock()
		return fmt.Errorf("agent already started (status %s)", a.status)
	}
	a.status = StatusRunning
	a.errLog = nil
	a.breaker.Reset()
	interval := a.cfg.AnalysisInterval
	a.mu.Unlock()

	sched := scheduler.NewIntervalScheduler(ctx, interval)
	sched.RunImmediately = true
	task := sched.Start(func() { a.Tick(ctx) })

	a.mu.Lock()
	a.task = task
	a.mu.Unlock()

	logger.Infof("agent: started symbol=%s interval=%s", a.cfg.Symbol, interval)
	return nil
}

// Pause suspends trading without tearing down the schedule; paused
// ticks return immediately.
func (a *Agent) Pause() error {
	return a.transition(StatusRunning, StatusPaused, "paused")
}

// Resume returns a paused agent to RUNNING.
func (a *Agent) Resume() error {
	return a.transition(StatusPaused, StatusRunning, "resumed")
}

func (a *Agent) transition(from, to Status, verb string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != from {
		return fmt.Errorf("cannot be %s from status %s", verb, a.status)
	}
	a.status = to
	logger.Infof("agent: %s", verb)
	return nil
}

// Stop halts scheduling and returns to STOPPED from any non-terminal
// state.
func (a *Agent) Stop() {
	a.halt(StatusStopped, "stopped")
}

// EmergencyStop is the terminal risk trip. Only a manual Start leaves
// it.
func (a *Agent) EmergencyStop(reason string) {
	a.halt(StatusEmergencyStop, "EMERGENCY STOP: "+reason)
}

func (a *Agent) halt(to Status, msg string) {
	a.mu.Lock()
	task := a.task
	a.task = nil
	a.status = to
	a.mu.Unlock()

	if task != nil {
		// Stop blocks until the loop goroutine exits, and halt can be
		// reached from inside a tick, so detach. The status change
		// already makes further ticks no-ops.
		go task.Stop()
	}
	logger.Warnf("agent: %s", msg)
}

// Tick runs one analysis pass. A tick already in flight suppresses the
// new one instead of overlapping it.
func (a *Agent) Tick(ctx context.Context) {
	if !a.inTick.CompareAndSwap(false, true) {
		logger.Debugf("agent: tick still in progress, skipping")
		return
	}
	defer a.inTick.Store(false)

	a.mu.Lock()
	if a.status != StatusRunning {
		a.mu.Unlock()
		return
	}
	a.rollTradeDayLocked()
	a.lastTickAt = a.nowFn()
	a.mu.Unlock()

	if err := a.runTick(ctx); err != nil {
		a.recordError(err)
		return
	}
	a.breaker.RecordSuccess()
}

func (a *Agent) rollTradeDayLocked() {
	day := a.nowFn().Truncate(24 * time.Hour)
	if !day.Equal(a.tradeDay) {
		a.tradeDay = day
		a.dailyTrades = 0
		a.risk.ResetDailyPnL()
	}
}

func (a *Agent) runTick(ctx context.Context) error {
	now := a.nowFn()
	if !a.withinTradingHours(now) {
		a.recordDecision(Decision{Action: ActionSkip, Reason: "Outside trading hours"})
		return nil
	}

	a.mu.Lock()
	daily := a.dailyTrades
	a.mu.Unlock()
	if daily >= a.cfg.MaxDailyTrades {
		a.recordDecision(Decision{Action: ActionSkip, Reason: "Daily trade limit reached"})
		return nil
	}

	state, err := a.market.GetMarketState(ctx)
	if err != nil {
		return fmt.Errorf("fetching market state failed: %w", err)
	}

	metrics := a.risk.GetRiskMetrics(state.Positions, state.Balance)
	a.mu.Lock()
	a.lastMetrics = metrics
	losses := a.consecutiveLosses
	onAlert := a.onAlert
	a.mu.Unlock()

	for _, alert := range a.risk.CheckRiskLimits(metrics, state.Positions, state.Balance) {
		logger.Warnf("agent: risk alert [%s/%s] %s", alert.Kind, alert.Severity, alert.Message)
		if onAlert != nil {
			onAlert(alert)
		}
	}

	if reason := a.emergencyReason(metrics, losses, state.Balance); reason != "" {
		a.EmergencyStop(reason)
		a.recordDecision(Decision{Action: ActionSkip, Reason: reason})
		return nil
	}

	signal, err := a.analyzer.Analyze(ctx, state)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	side := types.NormalizeSide(signal.Action)
	if side == "" || signal.Confidence < a.cfg.MinConfidence {
		a.recordDecision(Decision{
			Action:     ActionHold,
			Symbol:     a.cfg.Symbol,
			Confidence: signal.Confidence,
			Reason:     holdReason(side, signal.Confidence, a.cfg.MinConfidence),
		})
		return nil
	}

	entry := signal.EntryPrice
	if entry <= 0 {
		entry = a.market.LatestPrice(ctx, a.cfg.Symbol)
	}
	if entry <= 0 {
		a.recordDecision(Decision{Action: ActionSkip, Symbol: a.cfg.Symbol, Reason: "No price available"})
		return nil
	}

	stop := signal.StopLoss
	if stop <= 0 {
		stop = a.risk.CalculateStopLoss(entry, side)
	}
	limits := a.risk.Limits()
	size := a.risk.CalculateOptimalPositionSize(state.Balance, entry, stop, limits.RiskPerTrade)
	if size <= 0 {
		a.recordDecision(Decision{Action: ActionSkip, Symbol: a.cfg.Symbol, Reason: "Position size computed as zero"})
		return nil
	}

	if result := a.risk.ValidateTrade(a.cfg.Symbol, side, size, entry, "", state.Positions, state.Balance); !result.Approved {
		a.recordDecision(Decision{
			Action:     ActionSkip,
			Symbol:     a.cfg.Symbol,
			Side:       side,
			Size:       size,
			Confidence: signal.Confidence,
			Reason:     result.Reason,
		})
		return nil
	}

	sub, err := a.orders.PlaceOrder(ctx, exchange.OrderRequest{
		ProductSymbol: a.cfg.Symbol,
		Size:          size,
		Side:          orderSide(side),
		OrderType:     "market_order",
	})
	if err != nil {
		return fmt.Errorf("placing order failed: %w", err)
	}

	if a.exits != nil {
		if _, err := a.exits.Register(sub.ClientOrderID, a.cfg.Symbol, side, entry, size, a.cfg.ExitStrategy); err != nil {
			logger.Warnf("agent: exit plan registration failed for %s: %v", sub.ClientOrderID, err)
		}
	}

	a.mu.Lock()
	a.dailyTrades++
	a.totalTrades++
	a.mu.Unlock()

	a.recordDecision(Decision{
		Action:     ActionTrade,
		Symbol:     a.cfg.Symbol,
		Side:       side,
		Size:       size,
		Confidence: signal.Confidence,
		Reason:     signal.Reasoning,
		OrderID:    sub.OrderID,
	})
	return nil
}

func holdReason(side string, confidence, floor float64) string {
	if side == "" {
		return "Signal action is hold"
	}
	return fmt.Sprintf("Confidence %.2f below threshold %.2f", confidence, floor)
}

func orderSide(side string) string {
	if side == types.SideShort {
		return "sell"
	}
	return "buy"
}

func (a *Agent) withinTradingHours(now time.Time) bool {
	start, end := a.cfg.TradingHourStart, a.cfg.TradingHourEnd
	if start == end {
		return true
	}
	h := now.Hour()
	if start < end {
		return h >= start && h < end
	}
	// Window wraps midnight.
	return h >= start || h < end
}

func (a *Agent) emergencyReason(metrics risk.Metrics, losses int, balance float64) string {
	limits := a.risk.Limits()
	if metrics.CurrentDrawdown > limits.MaxDrawdown*100 {
		return fmt.Sprintf("Drawdown %.2f%% exceeds maximum %.2f%%", metrics.CurrentDrawdown, limits.MaxDrawdown*100)
	}
	if losses >= a.cfg.MaxConsecutiveLosses {
		return fmt.Sprintf("%d consecutive losses reached limit %d", losses, a.cfg.MaxConsecutiveLosses)
	}
	if daily := a.risk.DailyPnL(); balance > 0 && daily < 0 && -daily > balance*dailyLossEmergencyFraction {
		return fmt.Sprintf("Daily loss %.2f exceeds %.0f%% of balance", -daily, dailyLossEmergencyFraction*100)
	}
	return ""
}

// RecordTradeOutcome feeds one closed trade's return back into the risk
// stats and the loss-streak counter. Wired to take-profit full closes
// by the application.
func (a *Agent) RecordTradeOutcome(ret float64) {
	a.risk.RecordTradeResult(ret)
	a.mu.Lock()
	if ret < 0 {
		a.consecutiveLosses++
	} else if ret > 0 {
		a.consecutiveLosses = 0
	}
	a.mu.Unlock()
}

func (a *Agent) recordDecision(d Decision) {
	d.ID = uuid.NewString()
	d.Timestamp = a.nowFn()

	a.mu.Lock()
	a.decisions = append(a.decisions, d)
	if len(a.decisions) > decisionLogCap {
		a.decisions = a.decisions[len(a.decisions)-decisionLogCap:]
	}
	subs := make([]func(Decision), len(a.subscribers))
	copy(subs, a.subscribers)
	a.mu.Unlock()

	logger.Debugf("agent: decision %s %s reason=%q", d.Action, d.Symbol, d.Reason)
	for _, fn := range subs {
		fn(d)
	}
}

func (a *Agent) recordError(err error) {
	a.breaker.RecordFailure()

	a.mu.Lock()
	a.errLog = append(a.errLog, ErrorRecord{Timestamp: a.nowFn(), Message: err.Error()})
	if len(a.errLog) > errorLogCap {
		a.errLog = a.errLog[len(a.errLog)-errorLogCap:]
	}
	failures := a.breaker.Failures()
	a.mu.Unlock()

	logger.Errorf("agent: tick failed (%d/%d): %v", failures, maxTickErrors, err)
	if failures >= maxTickErrors {
		a.halt(StatusError, fmt.Sprintf("halting after %d consecutive errors", failures))
	}
}

// Status returns the current lifecycle state.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// State returns a point-in-time snapshot of the full agent state.
func (a *Agent) State() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		Status:            a.status,
		Symbol:            a.cfg.Symbol,
		DailyTrades:       a.dailyTrades,
		TotalTrades:       a.totalTrades,
		ConsecutiveLosses: a.consecutiveLosses,
		PortfolioRisk:     a.lastMetrics.PortfolioRisk,
		CurrentDrawdown:   a.lastMetrics.CurrentDrawdown,
		DailyPnL:          a.risk.DailyPnL(),
		LastTickAt:        a.lastTickAt,
		Decisions:         make([]Decision, len(a.decisions)),
		Errors:            make([]ErrorRecord, len(a.errLog)),
	}
	copy(snap.Decisions, a.decisions)
	copy(snap.Errors, a.errLog)
	return snap
}

// Decisions returns a copy of the bounded decision log, newest last.
func (a *Agent) Decisions() []Decision {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Decision, len(a.decisions))
	copy(out, a.decisions)
	return out
}
