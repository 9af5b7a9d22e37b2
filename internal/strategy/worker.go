package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sdexalgo/internal/indicator"
	"sdexalgo/internal/metrics"
	"sdexalgo/internal/model"
)

const (
	// defaultSleep paces the run loop between candles.
	defaultSleep = 1 * time.Second
)

// registeredIndicator is one indicator a strategy asked for via
// InitContext.AddIndicator.
type registeredIndicator struct {
	indicatorType string
	params        map[string]float64
	impl          indicator.Indicator
}

// workerInitCtx implements InitContext against a single Worker.
type workerInitCtx struct {
	registry *indicator.Registry
	out      map[string]*registeredIndicator
}

func (c *workerInitCtx) AddIndicator(localName, indicatorType string, params map[string]float64) error {
	impl, ok := c.registry.Lookup(indicatorType)
	if !ok {
		return &model.ConfigError{Op: "add_indicator", Err: fmt.Errorf("unknown indicator type %q", indicatorType)}
	}
	if err := indicator.Validate(indicatorType, params); err != nil {
		return &model.ConfigError{Op: "add_indicator", Err: err}
	}
	c.out[localName] = &registeredIndicator{indicatorType: indicatorType, params: params, impl: impl}
	return nil
}

// Worker is the per-deployment strategy worker. It owns the
// rolling OHLCV history, the indicator registry, and the current_candle /
// current_advice slots; the strategy it drives is oblivious to all of
// this bookkeeping.
type Worker struct {
	deploymentID string
	strategy     Strategy
	indicators   map[string]*registeredIndicator
	registry     *indicator.Registry
	history      indicator.OHLCV
	current      *model.Candle
	lastValues   IndicatorValues
	ctx          Context
	sleep        time.Duration
	metrics      *metrics.Metrics
	log          *slog.Logger
}

// NewWorker builds a Worker for one deployment's strategy instance.
func NewWorker(deploymentID string, strat Strategy, log *slog.Logger) *Worker {
	return &Worker{
		deploymentID: deploymentID,
		strategy:     strat,
		indicators:   make(map[string]*registeredIndicator),
		registry:     indicator.NewRegistry(),
		sleep:        defaultSleep,
		log:          log,
	}
}

// SetMetrics wires the optional metrics surface; safe to leave unset.
func (w *Worker) SetMetrics(m *metrics.Metrics) { w.metrics = m }

// Setup runs the strategy's Init hook, registering its indicators. A
// returned error is a configuration error; the engine controller must
// treat it as fatal for the deployment.
func (w *Worker) Setup() error {
	ictx := &workerInitCtx{registry: w.registry, out: w.indicators}
	if err := w.strategy.Init(ictx); err != nil {
		return err
	}
	return nil
}

// Run is the perpetual run loop: obtain the next candle
// (blocking — a channel receive naturally satisfies "non-blocking if
// unread, else block"), process it if newer than the last one seen,
// recompute indicators over the full history, invoke the strategy hooks,
// and drain any resulting advice onto out. Returns when ctx is cancelled
// or in closes.
func (w *Worker) Run(ctx context.Context, in <-chan model.Candle, out chan<- model.Advice) {
	ticker := time.NewTicker(w.sleep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case candle, ok := <-in:
			if !ok {
				return
			}
			w.processIfNewer(candle)
			w.execute(out)
		case <-ticker.C:
			// No new candle this tick; still invoke Execute so a
			// strategy can act on time alone.
			if w.current != nil {
				w.execute(out)
			}
		}
	}
}

func (w *Worker) processIfNewer(candle model.Candle) {
	if w.current != nil && !candle.Start.After(w.current.Start) {
		return
	}

	w.history.Open = append(w.history.Open, candle.Open)
	w.history.High = append(w.history.High, candle.High)
	w.history.Low = append(w.history.Low, candle.Low)
	w.history.Close = append(w.history.Close, candle.Close)
	w.history.Volume = append(w.history.Volume, candle.BaseVolume)

	w.lastValues = w.recompute()

	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("strategy process_candle panic", "deployment", w.deploymentID, "recover", r)
			}
		}()
		if err := w.strategy.ProcessCandle(candle); err != nil {
			w.log.Error("strategy process_candle error", "deployment", w.deploymentID, "err", err)
		}
	}()

	c := candle
	w.current = &c
}

// recompute recomputes every registered indicator over the full
// accumulated history and returns the last element of each output
// vector, NaN translated to nil.
func (w *Worker) recompute() IndicatorValues {
	start := time.Now()
	defer func() { w.metrics.ObserveIndicatorCompute(time.Since(start)) }()

	values := make(IndicatorValues, len(w.indicators))
	for name, ri := range w.indicators {
		vals, err := ri.impl.Compute(w.history, ri.params)
		if err != nil {
			w.log.Error("indicator recompute error", "deployment", w.deploymentID, "indicator", name, "err", err)
			values[name] = nil
			continue
		}
		values[name] = lastValue(vals)
	}
	return values
}

func lastValue(vals []float64) *float64 {
	if len(vals) == 0 {
		return nil
	}
	last := vals[len(vals)-1]
	if last != last { // NaN
		return nil
	}
	v := last
	return &v
}

func (w *Worker) execute(out chan<- model.Advice) {
	if advice, _ := w.executeSync(); advice != nil {
		select {
		case out <- *advice:
		default:
			w.log.Warn("advice dropped, output channel full", "deployment", w.deploymentID)
		}
	}
}

// executeSync invokes the strategy's Execute hook against the last
// computed indicator values and returns any advice it set, or nil, and
// whether Execute panicked (the panic is recovered and logged).
// Factored out of execute so the backtest runner can drive the same
// per-candle lifecycle synchronously, without a channel in between.
func (w *Worker) executeSync() (*model.Advice, bool) {
	values := w.lastValues
	panicked := false

	start := time.Now()
	defer func() { w.metrics.ObserveStrategyExecute(time.Since(start)) }()

	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				w.log.Error("strategy execute panic", "deployment", w.deploymentID, "recover", r)
			}
		}()
		w.strategy.Execute(values, &w.ctx)
	}()

	advice := w.ctx.Advice()
	if advice == nil {
		return nil, panicked
	}
	a := *advice
	w.ctx.reset()
	return &a, panicked
}

// Step processes one historical candle synchronously: append to history,
// recompute indicators, call ProcessCandle then Execute, and return any
// advice the strategy set. Used by the backtest runner, which drives a
// Worker directly from paged historical candles instead of a live
// channel.
func (w *Worker) Step(candle model.Candle) (advice *model.Advice, err error) {
	defer func() {
		if r := recover(); r != nil {
			advice, err = nil, fmt.Errorf("process_candle panic: %v", r)
		}
	}()
	if w.current != nil && !candle.Start.After(w.current.Start) {
		return nil, nil
	}
	if err := w.processCandleChecked(candle); err != nil {
		return nil, err
	}
	a, panicked := w.executeSync()
	if panicked {
		return nil, fmt.Errorf("execute panicked")
	}
	return a, nil
}

// processCandleChecked is processIfNewer's body, but surfaces the
// strategy's ProcessCandle error instead of only logging it: the
// backtest runner treats a strategy error or panic as fatal (Step turns
// panics into errors), unlike the live Worker, which swallows it and
// continues.
func (w *Worker) processCandleChecked(candle model.Candle) error {
	w.history.Open = append(w.history.Open, candle.Open)
	w.history.High = append(w.history.High, candle.High)
	w.history.Low = append(w.history.Low, candle.Low)
	w.history.Close = append(w.history.Close, candle.Close)
	w.history.Volume = append(w.history.Volume, candle.BaseVolume)

	w.lastValues = w.recompute()

	err := w.strategy.ProcessCandle(candle)

	c := candle
	w.current = &c
	return err
}
