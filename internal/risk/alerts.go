package risk

import (
	"time"

	"github.com/google/uuid"
)

// AlertKind identifies which limit a breach alert refers to.
type AlertKind string

const (
	AlertPortfolioRisk AlertKind = "portfolio_risk"
	AlertDrawdown      AlertKind = "drawdown"
	AlertDailyLoss     AlertKind = "daily_loss"
	AlertMaxPositions  AlertKind = "max_positions"
	AlertPositionSize  AlertKind = "position_size"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one limit breach observed by CheckRiskLimits. Alerts are
// append-only; the Manager trims the ring from the tail and never
// deletes one individually.
type Alert struct {
	ID           string    `json:"id"`
	Kind         AlertKind `json:"kind"`
	Severity     Severity  `json:"severity"`
	Message      string    `json:"message"`
	Metric       string    `json:"metric"`
	CurrentValue float64   `json:"current_value"`
	Threshold    float64   `json:"threshold"`
	Timestamp    time.Time `json:"timestamp"`
}

func newAlert(kind AlertKind, sev Severity, msg, metric string, current, threshold float64) Alert {
	return Alert{
		ID:           uuid.NewString(),
		Kind:         kind,
		Severity:     sev,
		Message:      msg,
		Metric:       metric,
		CurrentValue: current,
		Threshold:    threshold,
		Timestamp:    time.Now(),
	}
}

const alertHistoryCap = 50

// appendAlerts trims the combined history to the newest alertHistoryCap
// entries. Caller holds the manager lock.
func appendAlerts(history []Alert, fresh []Alert) []Alert {
	history = append(history, fresh...)
	if n := len(history); n > alertHistoryCap {
		history = history[n-alertHistoryCap:]
	}
	return history
}
