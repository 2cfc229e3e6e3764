// Package app wires the core together: configuration in, one running
// process out. All construction is explicit; collaborators that live
// outside the process (exchange command API, event stream, market data,
// analysis engine) are injected through Collaborators.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"deltadeck/internal/agent"
	"deltadeck/internal/config"
	"deltadeck/internal/gateway/exchange"
	"deltadeck/internal/logger"
	"deltadeck/internal/metrics"
	"deltadeck/internal/order"
	"deltadeck/internal/risk"
	"deltadeck/internal/takeprofit"
	livehttp "deltadeck/internal/transport/http/live"
)

// Collaborators are the external systems the core drives. All four are
// required.
type Collaborators struct {
	Commander exchange.Commander
	Stream    exchange.EventStream
	Market    exchange.MarketSource
	Analyzer  exchange.Analyzer
}

func (c Collaborators) validate() error {
	if c.Commander == nil {
		return fmt.Errorf("commander is required")
	}
	if c.Stream == nil {
		return fmt.Errorf("event stream is required")
	}
	if c.Market == nil {
		return fmt.Errorf("market source is required")
	}
	if c.Analyzer == nil {
		return fmt.Errorf("analyzer is required")
	}
	return nil
}

// App holds the constructed components. New builds, Run starts.
type App struct {
	cfg    *config.Config
	collab Collaborators

	Risk       *risk.Manager
	Orders     *order.Manager
	TakeProfit *takeprofit.System
	Agent      *agent.Agent

	liveHTTP *livehttp.Server
	cfgPath  string
}

func New(cfg *config.Config, collab Collaborators) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if err := collab.validate(); err != nil {
		return nil, err
	}
	logger.SetLevel(cfg.App.LogLevel)

	riskMgr := risk.NewManager(cfg.Risk)

	strategies := takeprofit.BuiltinStrategies()
	if cfg.TakeProfit.StrategiesPath != "" {
		loaded, err := takeprofit.LoadStrategies(cfg.TakeProfit.StrategiesPath)
		if err != nil {
			return nil, fmt.Errorf("loading exit strategies failed: %w", err)
		}
		strategies = loaded
	}
	exits := takeprofit.NewSystem(strategies)

	orders := order.NewManager(collab.Commander)
	ag := agent.New(cfg.Agent.AgentSettings(), riskMgr, orders, exits, collab.Market, collab.Analyzer)

	server, err := livehttp.NewServer(livehttp.ServerConfig{
		Addr:       cfg.App.HTTPAddr,
		Risk:       riskMgr,
		Orders:     orders,
		TakeProfit: exits,
		Agent:      ag,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		collab:     collab,
		Risk:       riskMgr,
		Orders:     orders,
		TakeProfit: exits,
		Agent:      ag,
		liveHTTP:   server,
	}
	a.instrument()
	return a, nil
}

// SetConfigPath enables live reload of risk limits from the given file.
func (a *App) SetConfigPath(path string) {
	a.cfgPath = path
}

// instrument hooks the Prometheus counters into each component's
// callback surface.
func (a *App) instrument() {
	a.Agent.Subscribe(func(d agent.Decision) {
		metrics.IncDecision(d.Action)
		metrics.SetAgentStatus(string(a.Agent.Status()))
	})
	a.Agent.SetAlertHandler(func(alert risk.Alert) {
		metrics.IncRiskAlert(string(alert.Kind), string(alert.Severity))
	})
	a.Orders.SetUpdateHook(func(rec order.Confirmed) {
		metrics.IncOrder(rec.Side, rec.State)
	})
	a.TakeProfit.SetEventHandler(func(evt takeprofit.Event) {
		metrics.IncTakeProfitEvent(string(evt.Type))
		if evt.Type == takeprofit.EventFullClose {
			// Feed closed-trade results back into the loss streak and
			// the risk stats.
			a.Agent.RecordTradeOutcome(evt.Profit)
			a.Risk.UpdateDailyPnL(evt.Profit)
		}
	})
}

// Run starts every component and blocks until the context ends or one
// of them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.liveHTTP.Start(ctx); err != nil {
			return fmt.Errorf("live http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		err := a.Orders.Run(ctx, a.collab.Stream)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("order stream error: %w", err)
		}
		return nil
	})

	pollInterval := a.cfg.TakeProfit.PollIntervalDuration(takeprofit.DefaultPollInterval)
	exitTask := a.TakeProfit.Run(ctx, pollInterval)
	group.Go(func() error {
		a.pumpPrices(ctx, pollInterval)
		exitTask.Stop()
		return nil
	})

	if a.cfgPath != "" {
		group.Go(func() error {
			err := config.Watch(ctx, a.cfgPath, func(next *config.Config) {
				a.Risk.ReplaceLimits(next.Risk)
			})
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("config watch error: %w", err)
			}
			return nil
		})
	}

	if err := a.Agent.Start(ctx); err != nil {
		return err
	}
	metrics.SetAgentStatus(string(a.Agent.Status()))

	group.Go(func() error {
		<-ctx.Done()
		a.Agent.Stop()
		return nil
	})

	logger.Infof("deltadeck running: symbol=%s http=%s", a.cfg.Agent.Symbol, a.liveHTTP.Addr())
	return group.Wait()
}

// pumpPrices feeds the take-profit system the latest quote for every
// symbol with an active plan, plus the agent's own symbol, on the exit
// poll cadence.
func (a *App) pumpPrices(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	equity := time.NewTicker(30 * time.Second)
	defer equity.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-equity.C:
			if state, err := a.collab.Market.GetMarketState(ctx); err == nil {
				metrics.SetEquity(state.Balance)
			}
		case <-ticker.C:
			symbols := map[string]struct{}{a.cfg.Agent.Symbol: {}}
			for _, plan := range a.TakeProfit.Plans() {
				if plan.IsActive {
					symbols[plan.Symbol] = struct{}{}
				}
			}
			for symbol := range symbols {
				if price := a.collab.Market.LatestPrice(ctx, symbol); price > 0 {
					a.TakeProfit.UpdatePrice(symbol, price)
				}
			}
		}
	}
}
