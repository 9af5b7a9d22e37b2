package strategy

import "sdexalgo/internal/model"

// DummyAlternator is a strategy with no real signal, used for
// exercising the pipeline end-to-end. It alternates BUY/SELL every
// `period` candles (default 100).
type DummyAlternator struct {
	period     int
	count      int
	actedAt    int
	lastAction model.Advice
	hasAction  bool
}

// NewDummyAlternator builds a DummyAlternator from string parameters.
func NewDummyAlternator(parameters map[string]string) (Strategy, error) {
	return &DummyAlternator{period: intParam(parameters, "period", 100)}, nil
}

func (s *DummyAlternator) Name() string { return "dummy_alternator" }

func (s *DummyAlternator) Init(ctx InitContext) error { return nil }

func (s *DummyAlternator) ProcessCandle(candle model.Candle) error {
	s.count++
	return nil
}

func (s *DummyAlternator) Execute(values IndicatorValues, ctx *Context) {
	if s.period <= 0 || s.count == 0 || s.count%s.period != 0 || s.count == s.actedAt {
		return
	}
	s.actedAt = s.count
	if !s.hasAction || s.lastAction == model.Sell {
		ctx.Buy()
		s.lastAction = model.Buy
	} else {
		ctx.Sell()
		s.lastAction = model.Sell
	}
	s.hasAction = true
}
