package config

import (
	"fmt"
	"strings"

	"deltadeck/internal/scheduler"
)

func validate(c *Config) error {
	if err := c.Agent.validate(); err != nil {
		return err
	}
	if err := c.TakeProfit.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AgentConfig) validate() error {
	if strings.TrimSpace(a.Symbol) == "" {
		return fmt.Errorf("agent.symbol cannot be empty")
	}
	if _, ok := scheduler.ParseIntervalDuration(a.AnalysisInterval); !ok {
		return fmt.Errorf("agent.analysis_interval is not a valid interval: %q", a.AnalysisInterval)
	}
	if a.MinConfidence < 0 || a.MinConfidence > 1 {
		return fmt.Errorf("agent.min_confidence must be within [0,1]")
	}
	if a.TradingHourStart < 0 || a.TradingHourStart > 23 {
		return fmt.Errorf("agent.trading_hour_start must be within [0,23]")
	}
	if a.TradingHourEnd < 0 || a.TradingHourEnd > 23 {
		return fmt.Errorf("agent.trading_hour_end must be within [0,23]")
	}
	return nil
}

func (t *TakeProfitConfig) validate() error {
	if t.PollInterval != "" {
		if _, ok := scheduler.ParseIntervalDuration(t.PollInterval); !ok {
			return fmt.Errorf("takeprofit.poll_interval is not a valid interval: %q", t.PollInterval)
		}
	}
	return nil
}
