package agent

import "time"

// Status is the agent lifecycle state. Only RUNNING schedules analysis
// ticks; ERROR and EMERGENCY_STOP stay put until a manual restart.
type Status string

const (
	StatusStopped       Status = "STOPPED"
	StatusRunning       Status = "RUNNING"
	StatusPaused        Status = "PAUSED"
	StatusError         Status = "ERROR"
	StatusEmergencyStop Status = "EMERGENCY_STOP"
)

// Decision actions. SKIP means a gate said no before any order was
// considered, HOLD means the signal itself was not actionable.
const (
	ActionTrade = "TRADE"
	ActionSkip  = "SKIP"
	ActionHold  = "HOLD"
)

// Decision is one appended entry of the bounded decision log.
type Decision struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action"`
	Symbol     string    `json:"symbol,omitempty"`
	Side       string    `json:"side,omitempty"`
	Size       float64   `json:"size,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OrderID    string    `json:"order_id,omitempty"`
}

// ErrorRecord is one entry of the bounded error log.
type ErrorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Snapshot is the externally visible agent state. Every slice in it is
// a copy; callers can never reach the live logs.
type Snapshot struct {
	Status            Status        `json:"status"`
	Symbol            string        `json:"symbol"`
	DailyTrades       int           `json:"daily_trades"`
	TotalTrades       int           `json:"total_trades"`
	ConsecutiveLosses int           `json:"consecutive_losses"`
	PortfolioRisk     float64       `json:"portfolio_risk"`
	CurrentDrawdown   float64       `json:"current_drawdown"`
	DailyPnL          float64       `json:"daily_pnl"`
	LastTickAt        time.Time     `json:"last_tick_at"`
	Decisions         []Decision    `json:"decisions"`
	Errors            []ErrorRecord `json:"errors"`
}
