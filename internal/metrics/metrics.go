// Package metrics exposes the Prometheus instrumentation the dashboard
// scrapes at /metrics:
//   - deltadeck_orders_total{side,status}      orders by side and outcome
//   - deltadeck_decisions_total{action}        agent decisions (TRADE|SKIP|HOLD)
//   - deltadeck_risk_alerts_total{kind,severity} risk alerts raised
//   - deltadeck_tp_events_total{type}          take-profit exit events
//   - deltadeck_equity_usd                     last observed balance (gauge)
//   - deltadeck_agent_status                   numeric agent state (gauge)
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deltadeck_orders_total",
			Help: "Orders placed, by side and submission outcome",
		},
		[]string{"side", "status"},
	)

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deltadeck_decisions_total",
			Help: "Agent decisions by action",
		},
		[]string{"action"},
	)

	riskAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deltadeck_risk_alerts_total",
			Help: "Risk alerts raised, by kind and severity",
		},
		[]string{"kind", "severity"},
	)

	tpEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deltadeck_tp_events_total",
			Help: "Take-profit events by type",
		},
		[]string{"type"},
	)

	equityUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "deltadeck_equity_usd",
			Help: "Last observed account balance in USD",
		},
	)

	// agentStatus encodes the lifecycle state as a number so dashboards
	// can alert on it: 0 stopped, 1 running, 2 paused, 3 error,
	// 4 emergency stop.
	agentStatus = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "deltadeck_agent_status",
			Help: "Agent lifecycle state (0=stopped 1=running 2=paused 3=error 4=emergency_stop)",
		},
	)
)

func init() {
	prometheus.MustRegister(ordersTotal, decisionsTotal, riskAlertsTotal, tpEventsTotal)
	prometheus.MustRegister(equityUSD, agentStatus)
}

func IncOrder(side, status string)        { ordersTotal.WithLabelValues(side, status).Inc() }
func IncDecision(action string)           { decisionsTotal.WithLabelValues(action).Inc() }
func IncRiskAlert(kind, severity string)  { riskAlertsTotal.WithLabelValues(kind, severity).Inc() }
func IncTakeProfitEvent(eventType string) { tpEventsTotal.WithLabelValues(eventType).Inc() }
func SetEquity(usd float64)               { equityUSD.Set(usd) }

var statusCodes = map[string]float64{
	"STOPPED":        0,
	"RUNNING":        1,
	"PAUSED":         2,
	"ERROR":          3,
	"EMERGENCY_STOP": 4,
}

// SetAgentStatus maps a lifecycle state name to its numeric series
// value. Unknown names report as error.
func SetAgentStatus(status string) {
	code, ok := statusCodes[status]
	if !ok {
		code = statusCodes["ERROR"]
	}
	agentStatus.Set(code)
}
