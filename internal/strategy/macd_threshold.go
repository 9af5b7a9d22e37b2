package strategy

import "sdexalgo/internal/model"

// MACDThreshold buys when the MACD histogram (MACD line minus signal line) has
// stayed at or above threshold_up for `stickiness` consecutive
// iterations, and sells the symmetric case, alternating BUY/SELL as the
// histogram crosses back and forth.
type MACDThreshold struct {
	fast, slow, signal     float64
	thresholdUp            float64
	thresholdDown          float64
	stickiness             int
	aboveCount, belowCount int
	lastAction             model.Advice
	hasAction              bool
}

// NewMACDThreshold builds a MACDThreshold strategy from string
// parameters. Defaults: fast=10, slow=21, signal=9, threshold_up=0.025,
// threshold_down=-0.025, stickiness=1; callers may override.
func NewMACDThreshold(parameters map[string]string) (Strategy, error) {
	return &MACDThreshold{
		fast:          floatParam(parameters, "fast", 10),
		slow:          floatParam(parameters, "slow", 21),
		signal:        floatParam(parameters, "signal", 9),
		thresholdUp:   floatParam(parameters, "threshold_up", 0.025),
		thresholdDown: floatParam(parameters, "threshold_down", -0.025),
		stickiness:    intParam(parameters, "stickiness", 1),
	}, nil
}

func (s *MACDThreshold) Name() string { return "macd_threshold" }

func (s *MACDThreshold) Init(ctx InitContext) error {
	params := map[string]float64{"fast": s.fast, "slow": s.slow, "signal": s.signal}
	if err := ctx.AddIndicator("macd", "MACD", params); err != nil {
		return err
	}
	return ctx.AddIndicator("macd_signal", "MACD_SIGNAL", params)
}

func (s *MACDThreshold) ProcessCandle(candle model.Candle) error { return nil }

func (s *MACDThreshold) Execute(values IndicatorValues, ctx *Context) {
	macd := values["macd"]
	signal := values["macd_signal"]
	if macd == nil || signal == nil {
		return
	}
	hist := *macd - *signal

	switch {
	case hist >= s.thresholdUp:
		s.aboveCount++
		s.belowCount = 0
	case hist <= s.thresholdDown:
		s.belowCount++
		s.aboveCount = 0
	default:
		s.aboveCount = 0
		s.belowCount = 0
	}

	if s.aboveCount >= s.stickiness && (!s.hasAction || s.lastAction != model.Buy) {
		ctx.Buy()
		s.lastAction = model.Buy
		s.hasAction = true
		s.aboveCount = 0
		return
	}
	if s.belowCount >= s.stickiness && s.hasAction && s.lastAction != model.Sell {
		ctx.Sell()
		s.lastAction = model.Sell
		s.belowCount = 0
	}
}
