// Package strategy implements the strategy worker: the
// per-deployment capability set a concrete strategy must provide, and the
// worker that drives it from a candle stream to advice.
package strategy

import "sdexalgo/internal/model"

// IndicatorValues holds the last computed value of every indicator
// registered by a strategy, keyed by the local name passed to
// InitContext.AddIndicator. A nil value means the indicator has not yet
// warmed up (its last computed value was NaN).
type IndicatorValues map[string]*float64

// InitContext is passed to Strategy.Init so a strategy can register the
// indicators it needs. AddIndicator validates the type+parameters
// immediately (against a synthetic OHLCV series) and returns an error if
// invalid — the Worker treats that as a fatal configuration error.
type InitContext interface {
	AddIndicator(localName, indicatorType string, params map[string]float64) error
}

// Context is passed to Strategy.Execute. Buy/Sell merely record the
// advice for this cycle of the run loop. Calling both in one Execute
// call is a no-op for the second call: only the first advice set in a
// call is kept.
type Context struct {
	advice *model.Advice
}

// Buy records a BUY advice for the current run-loop iteration.
func (c *Context) Buy() {
	if c.advice != nil {
		return
	}
	a := model.Buy
	c.advice = &a
}

// Sell records a SELL advice for the current run-loop iteration.
func (c *Context) Sell() {
	if c.advice != nil {
		return
	}
	a := model.Sell
	c.advice = &a
}

// Advice returns the advice recorded this iteration, or nil.
func (c *Context) Advice() *model.Advice { return c.advice }

// reset clears any recorded advice, called by the Worker after dispatch.
func (c *Context) reset() { c.advice = nil }

// Strategy is the fixed capability set a concrete strategy must provide.
// Strategies are polymorphic over this interface only: no inheritance,
// no access to Worker internals; all history/indicator bookkeeping
// belongs to the Worker.
type Strategy interface {
	// Name returns the strategy's registered name.
	Name() string

	// Init is called once, before the first candle, to register
	// indicators via ctx.AddIndicator.
	Init(ctx InitContext) error

	// ProcessCandle is called once per newly closed candle, before
	// Execute, with the freshly closed candle.
	ProcessCandle(candle model.Candle) error

	// Execute is called once per run-loop iteration (whether or not a
	// new candle arrived) with the latest indicator values; it may call
	// ctx.Buy()/ctx.Sell() to emit advice.
	Execute(values IndicatorValues, ctx *Context)
}
