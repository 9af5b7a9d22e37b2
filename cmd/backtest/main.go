// cmd/backtest — backtest runner service.
//
// Polls the backtest_request table for queued requests and replays
// historical candles through the requested strategy, recording simulated
// trades against the request id. Runs against the same SQLite database
// the market-data recorder fills.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"sdexalgo/config"
	"sdexalgo/internal/backtest"
	"sdexalgo/internal/logger"
	"sdexalgo/internal/metrics"
	"sdexalgo/internal/store/sqlite"
	"sdexalgo/internal/strategy"
)

func main() {
	cfg := config.Load()
	log := logger.Init("backtest", slog.LevelInfo)
	log.Info("starting", "sqlite", cfg.SQLitePath, "poll_interval", cfg.BacktestPollInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlite.Open(cfg.SQLitePath, log)
	if err != nil {
		log.Error("sqlite open failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	health := metrics.NewHealthStatus()
	prom := metrics.NewMetrics()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()
	health.SetExchangeConnected(true) // replay touches no exchange
	health.StartLivenessChecker(ctx, nil, store.DB(), 10*time.Second)
	store.SetMetrics(prom)

	runner := backtest.New(store, store, store, strategy.Default(), cfg.BacktestPollInterval, log)
	runner.SetMetrics(prom)
	go runner.Run(ctx)

	log.Info("polling for queued backtests")

	<-sigCh
	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
}
