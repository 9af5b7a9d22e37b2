// cmd/algoengine — the live trading engine.
//
// One process hosts the whole live pipeline: the trade fetcher folds
// exchange trades into minute candles, the resolution fan-out resamples
// them per deployment, strategy workers turn candles into advice, and
// the trader turns advice into exchange offers. The admin HTTP surface
// lives here too, since it feeds the engine-command bus directly.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"sdexalgo/config"
	"sdexalgo/internal/api"
	"sdexalgo/internal/engine"
	"sdexalgo/internal/execution"
	"sdexalgo/internal/logger"
	"sdexalgo/internal/marketdata/fanout"
	"sdexalgo/internal/marketdata/fetcher"
	"sdexalgo/internal/metrics"
	"sdexalgo/internal/model"
	"sdexalgo/internal/notification"
	"sdexalgo/internal/status"
	"sdexalgo/internal/store/sqlite"
	"sdexalgo/internal/strategy"
	"sdexalgo/internal/xchange"
)

const (
	minuteBusSize  = 256
	adviceBusSize  = 64
	commandBusSize = 32
	statusBusSize  = 64
)

func main() {
	cfg := config.Load()
	log := logger.Init("algoengine", slog.LevelInfo)
	log.Info("starting", "sqlite", cfg.SQLitePath, "admin_addr", cfg.AdminAddr)

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

	// ---- Status publisher (optional, falls back to a no-op if Redis is unreachable) ----
	pub, err := status.New(status.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}, log)
	if err != nil {
		log.Error("redis connect failed, continuing without status publishing", "err", err)
		pub, _ = status.New(status.Config{}, log)
	}

	// ---- Metrics & health ----
	health := metrics.NewHealthStatus()
	prom := metrics.NewMetrics()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()
	health.StartLivenessChecker(ctx, pub.Client(), store.DB(), 10*time.Second)
	store.SetMetrics(prom)
	pub.SetMetrics(prom)

	// ---- Exchange adapter ----
	adapter := xchange.New()
	health.SetExchangeConnected(true)

	// ---- Buses ----
	minuteCh := make(chan model.Candle, minuteBusSize)
	archiveCh := make(chan model.Candle, minuteBusSize)
	fanoutCh := make(chan model.Candle, minuteBusSize)
	adviceBusCh := make(chan model.TradeAdvice, adviceBusSize)
	traderAdviceCh := make(chan model.TradeAdvice, adviceBusSize)
	commandCh := make(chan model.EngineCommand, commandBusSize)
	statusCh := make(chan model.Deployment, statusBusSize)
	statusAdviceCh := make(chan model.TradeAdvice, statusBusSize)

	// ---- Pipeline components ----
	f := fetcher.New(adapter, store, log)
	f.Configure(cfg.PollInterval, cfg.FetchLimit)
	f.SetMetrics(prom)

	fo := fanout.New(log)
	fo.SetMetrics(prom)

	strategies := strategy.Default()

	trader := execution.New(adapter, store, cfg.TradingAccount, cfg.WorkerPoolSize, cfg.ReapInterval, log)
	trader.SetMetrics(prom)

	eng := engine.New(fo, store, store, strategies, trader, adviceBusCh, log)
	eng.SetMetrics(prom)
	eng.SetStatusSink(statusCh)
	eng.SetNotifier(notification.FromConfig(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.AlertWebhookURL))

	// ---- Run everything ----
	go f.Run(ctx, minuteCh)
	go tee(ctx, minuteCh, archiveCh, fanoutCh)
	go store.Run(ctx, archiveCh)
	go fo.Run(ctx, fanoutCh)
	go tee(ctx, adviceBusCh, traderAdviceCh, statusAdviceCh)
	go trader.Run(ctx, traderAdviceCh, commandCh)
	go eng.Run(ctx, commandCh)
	go pub.Run(ctx, statusCh, statusAdviceCh)

	// ---- Admin HTTP surface ----
	mux := api.NewRouter(store, store, store, store, commandCh)
	adminSrv := &http.Server{Addr: cfg.AdminAddr, Handler: mux}
	go func() {
		log.Info("admin api listening", "addr", cfg.AdminAddr)
		if err := adminSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("admin api server error", "err", err)
		}
	}()

	<-sigCh
	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	adminSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
}

// tee copies every message on in to all outs. Sends block: the upstream
// poll interval is the regulator, and every consumer here (archive,
// fan-out, trader, status publisher) drains its channel unconditionally.
func tee[T any](ctx context.Context, in <-chan T, outs ...chan<- T) {
	defer func() {
		for _, out := range outs {
			close(out)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-in:
			if !ok {
				return
			}
			for _, out := range outs {
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
