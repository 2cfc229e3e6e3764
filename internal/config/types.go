package config

import (
	"time"

	"deltadeck/internal/agent"
	"deltadeck/internal/risk"
	"deltadeck/internal/scheduler"
)

// Config is the full runtime configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Risk       risk.Limits      `mapstructure:"risk"`
	TakeProfit TakeProfitConfig `mapstructure:"takeprofit"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	HTTPAddr string `mapstructure:"http_addr"`
	LogPath  string `mapstructure:"log_path"`
}

// AgentConfig carries interval fields as strings ("30s", "5m", "1h") and
// converts on demand.
type AgentConfig struct {
	Symbol               string  `mapstructure:"symbol"`
	AnalysisInterval     string  `mapstructure:"analysis_interval"`
	MaxDailyTrades       int     `mapstructure:"max_daily_trades"`
	MaxConsecutiveLosses int     `mapstructure:"max_consecutive_losses"`
	MinConfidence        float64 `mapstructure:"min_confidence"`
	TradingHourStart     int     `mapstructure:"trading_hour_start"`
	TradingHourEnd       int     `mapstructure:"trading_hour_end"`
	ExitStrategy         string  `mapstructure:"exit_strategy"`
	RiskRewardRatio      float64 `mapstructure:"risk_reward_ratio"`
}

type TakeProfitConfig struct {
	StrategiesPath string `mapstructure:"strategies_path"`
	PollInterval   string `mapstructure:"poll_interval"`
}

// AgentSettings converts the raw section into the agent's own config.
func (a AgentConfig) AgentSettings() agent.Config {
	// An unparsable interval becomes 0; the agent substitutes its default.
	interval, _ := scheduler.ParseIntervalDuration(a.AnalysisInterval)
	return agent.Config{
		Symbol:               a.Symbol,
		AnalysisInterval:     interval,
		MaxDailyTrades:       a.MaxDailyTrades,
		MaxConsecutiveLosses: a.MaxConsecutiveLosses,
		MinConfidence:        a.MinConfidence,
		TradingHourStart:     a.TradingHourStart,
		TradingHourEnd:       a.TradingHourEnd,
		ExitStrategy:         a.ExitStrategy,
		RiskRewardRatio:      a.RiskRewardRatio,
	}
}

// PollIntervalDuration falls back to the take-profit default when unset
// or unparsable.
func (t TakeProfitConfig) PollIntervalDuration(fallback time.Duration) time.Duration {
	d, ok := scheduler.ParseIntervalDuration(t.PollInterval)
	if !ok || d <= 0 {
		return fallback
	}
	return d
}
