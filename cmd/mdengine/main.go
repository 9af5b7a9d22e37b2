// cmd/mdengine — market-data recorder.
//
// Polls the exchange for executed trades, folds them into 1-minute
// candles, and archives every closed candle into the sdex_ohlcv table
// that the historical query layer and the backtester read from. Runs
// standalone so candle history keeps accumulating even when no live
// deployment exists.
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
	"sdexalgo/internal/logger"
	"sdexalgo/internal/marketdata/fetcher"
	"sdexalgo/internal/metrics"
	"sdexalgo/internal/model"
	"sdexalgo/internal/store/sqlite"
	"sdexalgo/internal/xchange"
)

func main() {
	cfg := config.Load()
	log := logger.Init("mdengine", slog.LevelInfo)
	log.Info("starting", "sqlite", cfg.SQLitePath, "poll_interval", cfg.PollInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Persistence ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlite.Open(cfg.SQLitePath, log)
	if err != nil {
		log.Error("sqlite open failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	// ---- Metrics & health ----
	health := metrics.NewHealthStatus()
	prom := metrics.NewMetrics()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()
	health.StartLivenessChecker(ctx, nil, store.DB(), 10*time.Second)
	store.SetMetrics(prom)

	// ---- Exchange adapter ----
	adapter := xchange.New()
	health.SetExchangeConnected(true)

	// ---- Pipeline: fetcher -> minute-candle bus -> archive ----
	candleCh := make(chan model.Candle, 256)

	f := fetcher.New(adapter, store, log)
	f.Configure(cfg.PollInterval, cfg.FetchLimit)
	f.SetMetrics(prom)

	go store.Run(ctx, candleCh)
	go f.Run(ctx, candleCh)

	log.Info("recording 1m candles")

	<-sigCh
	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
}
