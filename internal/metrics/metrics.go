package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading system: candle
// ingestion, deployment lifecycle, strategy execution, and persistence.
type Metrics struct {
	CandlesFetched  prometheus.Counter
	CandlesArchived prometheus.Counter
	FetcherPollErrs prometheus.Counter
	FanoutDrops     *prometheus.CounterVec // labels: deployment

	AdviceDispatched *prometheus.CounterVec // labels: deployment, advice
	DispatcherDrops  *prometheus.CounterVec // labels: deployment

	TradesExecuted     *prometheus.CounterVec // labels: deployment, advice
	TradeExecutionErrs prometheus.Counter

	DeploymentsByStatus *prometheus.GaugeVec // labels: status
	BacktestsByStatus   *prometheus.GaugeVec // labels: status

	StrategyExecuteDur prometheus.Histogram
	IndicatorComputeDur prometheus.Histogram

	SQLiteCommitDur   prometheus.Histogram
	SQLiteRetriesUsed prometheus.Counter

	RedisPublishErrs prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CandlesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trading_candles_fetched_total",
			Help: "Total 1m candle rows folded from exchange trade polls",
		}),
		CandlesArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trading_candles_archived_total",
			Help: "Total candles written to the archive store",
		}),
		FetcherPollErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trading_fetcher_poll_errors_total",
			Help: "Exchange adapter poll errors",
		}),
		FanoutDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_fanout_drops_total",
			Help: "Candles dropped by the Fan-out bus because a subscriber's sink was full",
		}, []string{"deployment"}),

		AdviceDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_advice_dispatched_total",
			Help: "Advice values forwarded by the Advice Dispatcher",
		}, []string{"deployment", "advice"}),
		DispatcherDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_dispatcher_drops_total",
			Help: "Advice dropped because the shared advice bus was full",
		}, []string{"deployment"}),

		TradesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_trades_executed_total",
			Help: "Trades submitted to the exchange by the Trader",
		}, []string{"deployment", "advice"}),
		TradeExecutionErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trading_trade_execution_errors_total",
			Help: "Advice executions by the Trader that ended in an error",
		}),

		DeploymentsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trading_deployments_by_status",
			Help: "Current deployment count per lifecycle status",
		}, []string{"status"}),
		BacktestsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trading_backtests_by_status",
			Help: "Current backtest request count per lifecycle status",
		}, []string{"status"}),

		StrategyExecuteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trading_strategy_execute_duration_seconds",
			Help:    "Strategy Execute hook latency per candle",
			Buckets: prometheus.DefBuckets,
		}),
		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trading_indicator_compute_duration_seconds",
			Help:    "Indicator recompute-over-full-history latency per candle",
			Buckets: prometheus.DefBuckets,
		}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trading_sqlite_commit_duration_seconds",
			Help:    "SQLite write transaction latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteRetriesUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trading_sqlite_retries_total",
			Help: "SQLITE_BUSY write retries consumed",
		}),

		RedisPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trading_redis_publish_errors_total",
			Help: "Errors publishing deployment-status/advice events to Redis",
		}),
	}

	prometheus.MustRegister(
		m.CandlesFetched,
		m.CandlesArchived,
		m.FetcherPollErrs,
		m.FanoutDrops,
		m.AdviceDispatched,
		m.DispatcherDrops,
		m.TradesExecuted,
		m.TradeExecutionErrs,
		m.DeploymentsByStatus,
		m.BacktestsByStatus,
		m.StrategyExecuteDur,
		m.IndicatorComputeDur,
		m.SQLiteCommitDur,
		m.SQLiteRetriesUsed,
		m.RedisPublishErrs,
	)

	return m
}

// ── nil-safe recording helpers ──
// Components carry an optional *Metrics; a nil receiver turns every
// recording call into a no-op so tests and partially wired binaries
// need no guards.

func (m *Metrics) CandleFetched() {
	if m == nil {
		return
	}
	m.CandlesFetched.Inc()
}

func (m *Metrics) CandlesArchivedAdd(n int) {
	if m == nil {
		return
	}
	m.CandlesArchived.Add(float64(n))
}

func (m *Metrics) FetcherPollError() {
	if m == nil {
		return
	}
	m.FetcherPollErrs.Inc()
}

func (m *Metrics) FanoutDrop(deployment string) {
	if m == nil {
		return
	}
	m.FanoutDrops.WithLabelValues(deployment).Inc()
}

func (m *Metrics) AdviceSent(deployment, advice string) {
	if m == nil {
		return
	}
	m.AdviceDispatched.WithLabelValues(deployment, advice).Inc()
}

func (m *Metrics) DispatcherDrop(deployment string) {
	if m == nil {
		return
	}
	m.DispatcherDrops.WithLabelValues(deployment).Inc()
}

func (m *Metrics) TradeExecuted(deployment, advice string) {
	if m == nil {
		return
	}
	m.TradesExecuted.WithLabelValues(deployment, advice).Inc()
}

func (m *Metrics) TradeExecutionError() {
	if m == nil {
		return
	}
	m.TradeExecutionErrs.Inc()
}

// DeploymentTransition moves a deployment between the per-status gauges;
// an empty from/to skips that side (a deployment entering RUNNING has no
// prior gauge to decrement).
func (m *Metrics) DeploymentTransition(from, to string) {
	if m == nil {
		return
	}
	if from != "" {
		m.DeploymentsByStatus.WithLabelValues(from).Dec()
	}
	if to != "" {
		m.DeploymentsByStatus.WithLabelValues(to).Inc()
	}
}

// BacktestTransition mirrors DeploymentTransition for backtest requests.
func (m *Metrics) BacktestTransition(from, to string) {
	if m == nil {
		return
	}
	if from != "" {
		m.BacktestsByStatus.WithLabelValues(from).Dec()
	}
	if to != "" {
		m.BacktestsByStatus.WithLabelValues(to).Inc()
	}
}

func (m *Metrics) ObserveStrategyExecute(d time.Duration) {
	if m == nil {
		return
	}
	m.StrategyExecuteDur.Observe(d.Seconds())
}

func (m *Metrics) ObserveIndicatorCompute(d time.Duration) {
	if m == nil {
		return
	}
	m.IndicatorComputeDur.Observe(d.Seconds())
}

func (m *Metrics) ObserveSQLiteCommit(d time.Duration) {
	if m == nil {
		return
	}
	m.SQLiteCommitDur.Observe(d.Seconds())
}

func (m *Metrics) SQLiteRetry() {
	if m == nil {
		return
	}
	m.SQLiteRetriesUsed.Inc()
}

func (m *Metrics) RedisPublishError() {
	if m == nil {
		return
	}
	m.RedisPublishErrs.Inc()
}

// HealthStatus represents the system's dependency health: the exchange
// adapter, the SQLite store, and the optional Redis status publisher.
type HealthStatus struct {
	mu sync.RWMutex

	ExchangeConnected bool      `json:"exchange_connected"`
	LastCandleTime    time.Time `json:"last_candle_time"`
	RedisConnected    bool      `json:"redis_connected"`
	SQLiteOK          bool      `json:"sqlite_ok"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetExchangeConnected(v bool) {
	h.mu.Lock()
	h.ExchangeConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity. Redis is
// optional (the Status Publisher degrades to a no-op when unset), so a nil
// client simply leaves RedisConnected at its zero value.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	if rdb == nil {
		return
	}
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				h.CheckRedis(probeCtx, rdb)
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.ExchangeConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = time.Since(h.LastCandleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status            string  `json:"status"`
		Uptime            string  `json:"uptime"`
		ExchangeConnected bool    `json:"exchange_connected"`
		LastCandleTime    string  `json:"last_candle_time"`
		CandleAge         string  `json:"candle_age"`
		RedisConnected    bool    `json:"redis_connected"`
		RedisLatencyMs    float64 `json:"redis_latency_ms"`
		SQLiteOK          bool    `json:"sqlite_ok"`
		SQLiteLatencyMs   float64 `json:"sqlite_latency_ms"`
		LastCheckAt       string  `json:"last_check_at"`
	}{
		Status:            overallStatus,
		Uptime:            time.Since(h.StartedAt).Round(time.Second).String(),
		ExchangeConnected: h.ExchangeConnected,
		LastCandleTime:    h.LastCandleTime.Format(time.RFC3339),
		CandleAge:         candleAge,
		RedisConnected:    h.RedisConnected,
		RedisLatencyMs:    h.RedisLatencyMs,
		SQLiteOK:          h.SQLiteOK,
		SQLiteLatencyMs:   h.SQLiteLatencyMs,
		LastCheckAt:       h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
