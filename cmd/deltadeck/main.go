package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"deltadeck/internal/app"
	ddcfg "deltadeck/internal/config"
	"deltadeck/internal/gateway/sim"
	"deltadeck/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("DELTADECK_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := ddcfg.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config failed: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("initializing log file failed: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("config loaded (env=%s symbol=%s)", cfg.App.Env, cfg.Agent.Symbol)

	// The simulated venue stands in for the exchange connection. A real
	// deployment swaps in live implementations of the four gateway
	// interfaces here.
	venue := sim.New(cfg.Agent.Symbol, 45000, 100000, 1)
	application, err := app.New(cfg, app.Collaborators{
		Commander: venue,
		Stream:    venue,
		Market:    venue,
		Analyzer:  sim.NewAnalyzer(),
	})
	if err != nil {
		log.Fatalf("initializing app failed: %v", err)
	}
	application.SetConfigPath(cfgPath)

	if err := application.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("run failed: %v", err)
	}
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
