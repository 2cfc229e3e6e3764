package config

import "deltadeck/internal/risk"

const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9980"
	defaultAgentSymbol     = "BTC-USD"
	defaultAgentInterval   = "1m"
	defaultAgentMaxTrades  = 10
	defaultAgentMaxLosses  = 3
	defaultAgentConfidence = 0.70
	defaultAgentExit       = "balanced"
	defaultAgentRiskReward = 2.0
	defaultTakeProfitPoll  = "1s"
)

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = defaultAppEnv
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultAppLogLevel
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = defaultAppHTTPAddr
	}
	if c.Agent.Symbol == "" {
		c.Agent.Symbol = defaultAgentSymbol
	}
	if c.Agent.AnalysisInterval == "" {
		c.Agent.AnalysisInterval = defaultAgentInterval
	}
	if c.Agent.MaxDailyTrades <= 0 {
		c.Agent.MaxDailyTrades = defaultAgentMaxTrades
	}
	if c.Agent.MaxConsecutiveLosses <= 0 {
		c.Agent.MaxConsecutiveLosses = defaultAgentMaxLosses
	}
	if c.Agent.MinConfidence <= 0 {
		c.Agent.MinConfidence = defaultAgentConfidence
	}
	if c.Agent.ExitStrategy == "" {
		c.Agent.ExitStrategy = defaultAgentExit
	}
	if c.Agent.RiskRewardRatio <= 0 {
		c.Agent.RiskRewardRatio = defaultAgentRiskReward
	}
	if c.TakeProfit.PollInterval == "" {
		c.TakeProfit.PollInterval = defaultTakeProfitPoll
	}
	// Unset risk limits fall back field by field; a zero cap would
	// otherwise reject every trade.
	defaults := risk.DefaultLimits()
	if c.Risk.MaxPortfolioRisk == 0 {
		c.Risk.MaxPortfolioRisk = defaults.MaxPortfolioRisk
	}
	if c.Risk.MaxPositionSize == 0 {
		c.Risk.MaxPositionSize = defaults.MaxPositionSize
	}
	if c.Risk.MaxDrawdown == 0 {
		c.Risk.MaxDrawdown = defaults.MaxDrawdown
	}
	if c.Risk.MaxDailyLoss == 0 {
		c.Risk.MaxDailyLoss = defaults.MaxDailyLoss
	}
	if c.Risk.MaxOpenPositions == 0 {
		c.Risk.MaxOpenPositions = defaults.MaxOpenPositions
	}
	if c.Risk.CorrelationLimit == 0 {
		c.Risk.CorrelationLimit = defaults.CorrelationLimit
	}
	if c.Risk.RiskPerTrade == 0 {
		c.Risk.RiskPerTrade = defaults.RiskPerTrade
	}
	if c.Risk.MaxLeverage == 0 {
		c.Risk.MaxLeverage = defaults.MaxLeverage
	}
	if c.Risk.StopLossPercentage == 0 {
		c.Risk.StopLossPercentage = defaults.StopLossPercentage
	}
	c.Risk = c.Risk.Clamp()
}
