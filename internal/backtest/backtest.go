// Package backtest implements the backtest runner: it polls the backtest
// store for NEW requests, replays historical candles (re-aggregated to
// the requested resolution by the historical query layer) through a
// strategy instance using the same Strategy/Worker contract the live
// pipeline uses, and persists resulting trades against the backtest id.
package backtest

import (
	"context"
	"log/slog"
	"time"

	"sdexalgo/internal/metrics"
	"sdexalgo/internal/model"
	"sdexalgo/internal/strategy"
)

const defaultPageSize = 100

// Runner drives queued backtest requests to completion.
type Runner struct {
	backtests  model.BacktestStore
	history    model.HistoricalQuery
	trades     model.TradeStore
	strategies *strategy.Registry
	metrics    *metrics.Metrics
	log        *slog.Logger

	pollInterval time.Duration
	pageSize     int
}

// New builds a Backtest Runner.
func New(backtests model.BacktestStore, history model.HistoricalQuery, trades model.TradeStore, strategies *strategy.Registry, pollInterval time.Duration, log *slog.Logger) *Runner {
	return &Runner{
		backtests:    backtests,
		history:      history,
		trades:       trades,
		strategies:   strategies,
		log:          log,
		pollInterval: pollInterval,
		pageSize:     defaultPageSize,
	}
}

// SetMetrics wires the optional metrics surface; safe to leave unset.
func (r *Runner) SetMetrics(m *metrics.Metrics) { r.metrics = m }

// Run polls for queued backtest requests until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pollOnce(ctx)
		}
	}
}

func (r *Runner) pollOnce(ctx context.Context) {
	queued, err := r.backtests.NextQueued(ctx, 1)
	if err != nil {
		r.log.Error("backtest: poll failed", "err", err)
		return
	}
	for _, req := range queued {
		r.runOne(ctx, req)
	}
}

// runOne drives a single BacktestRequest to completion.
func (r *Runner) runOne(ctx context.Context, req model.BacktestRequest) {
	if err := r.backtests.UpdateBacktestStatus(ctx, req.ID, model.BacktestRunning, ""); err != nil {
		r.log.Error("backtest: persist RUNNING failed", "backtest", req.ID, "err", err)
		return
	}
	r.metrics.BacktestTransition("", string(model.BacktestRunning))

	algo := req.AlgoSnapshot
	strat, err := r.strategies.New(algo.Strategy, algo.Parameters)
	if err != nil {
		r.fail(ctx, req.ID, &model.ConfigError{Op: "instantiate strategy " + algo.Strategy, Err: err})
		return
	}

	worker := strategy.NewWorker(req.ID, strat, r.log)
	worker.SetMetrics(r.metrics)
	if err := worker.Setup(); err != nil {
		r.fail(ctx, req.ID, err)
		return
	}

	seq := newSequencer()
	pageToken := ""
	for {
		candles, next, err := r.history.GetCandles(ctx, algo.Pair, req.StartTS, req.EndTS, algo.Resolution, r.pageSize, pageToken)
		if err != nil {
			r.fail(ctx, req.ID, &model.PersistenceError{Op: "get candles", Err: err})
			return
		}

		for _, candle := range candles {
			advice, err := worker.Step(candle)
			if err != nil {
				// A strategy panic is fatal in replay, unlike the live
				// Worker which logs it and moves on.
				r.fail(ctx, req.ID, &model.StrategyError{Op: "process_candle/execute", Err: err})
				return
			}
			if advice == nil {
				continue
			}
			accepted, sold, bought := seq.apply(*advice, candle.Close)
			if !accepted {
				// Skip only this advice; the candle loop continues.
				continue
			}
			record := model.TradeRecord{
				Timestamp:    candle.Start,
				BacktestID:   req.ID,
				Advice:       *advice,
				SoldAsset:    sellAssetFor(*advice, algo.Pair),
				SoldAmount:   sold,
				BoughtAsset:  buyAssetFor(*advice, algo.Pair),
				BoughtAmount: bought,
			}
			if err := r.trades.RecordTrade(ctx, record); err != nil {
				r.fail(ctx, req.ID, &model.PersistenceError{Op: "record backtest trade", Err: err})
				return
			}
		}

		if len(candles) < r.pageSize || next == "" {
			break
		}
		pageToken = next
	}

	if err := r.backtests.UpdateBacktestStatus(ctx, req.ID, model.BacktestFinished, ""); err != nil {
		r.log.Error("backtest: persist FINISHED failed", "backtest", req.ID, "err", err)
	}
	r.metrics.BacktestTransition(string(model.BacktestRunning), string(model.BacktestFinished))
}

func (r *Runner) fail(ctx context.Context, id string, cause error) {
	r.log.Error("backtest: run failed, transitioning to ERROR", "backtest", id, "err", cause)
	if err := r.backtests.UpdateBacktestStatus(ctx, id, model.BacktestError, cause.Error()); err != nil {
		r.log.Error("backtest: persist ERROR failed", "backtest", id, "err", err)
	}
	r.metrics.BacktestTransition(string(model.BacktestRunning), string(model.BacktestError))
}

// sequencer suppresses duplicate consecutive advice and SELL before any
// BUY, and simulates trade sizing with a unit base-lot: a BUY sells 1
// unit of base for close x 1 counter (last-bought records that counter
// amount); the following SELL sells back that counter amount for
// last-bought / close units of base, mirroring the Trader's own
// sell=base/buy=counter convention for BUY.
type sequencer struct {
	hasAdvice  bool
	lastAdvice model.Advice
	lastBought float64
}

func newSequencer() *sequencer { return &sequencer{} }

// apply reports whether advice should be recorded as a trade, and the
// (sold, bought) amounts to record if so.
func (s *sequencer) apply(advice model.Advice, close float64) (accepted bool, sold, bought float64) {
	if !s.hasAdvice && advice == model.Sell {
		return false, 0, 0
	}
	if s.hasAdvice && s.lastAdvice == advice {
		return false, 0, 0
	}
	s.hasAdvice = true
	s.lastAdvice = advice

	if advice == model.Buy {
		s.lastBought = close * 1
		return true, 1, s.lastBought
	}
	bought = s.lastBought / close
	return true, s.lastBought, bought
}

// sellAssetFor/buyAssetFor mirror execution.Trader's offerDirection
// convention: BUY sells base and buys counter; SELL sells counter and
// buys base.
func sellAssetFor(advice model.Advice, pair model.TradingPair) model.Asset {
	if advice == model.Buy {
		return pair.Base
	}
	return pair.Counter
}

func buyAssetFor(advice model.Advice, pair model.TradingPair) model.Asset {
	if advice == model.Buy {
		return pair.Counter
	}
	return pair.Base
}
