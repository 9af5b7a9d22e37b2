package indicator

// MACD is Moving Average Convergence/Divergence, returning the MACD line
// (fast EMA minus slow EMA). The signal line is exposed via MACDSignal so
// a strategy can register both under distinct local names.
// Parameters: "fast" (12), "slow" (26), "signal" (9).
type MACD struct{}

func (MACD) Type() string { return "MACD" }

func (MACD) Defaults() map[string]float64 {
	return map[string]float64{"fast": 12, "slow": 26, "signal": 9}
}

func (m MACD) Compute(h OHLCV, params map[string]float64) ([]float64, error) {
	p := mergeParams(m.Defaults(), params)
	fast, slow := int(p["fast"]), int(p["slow"])
	if fast <= 0 || slow <= 0 || fast >= slow {
		return nil, errInvalidParam("fast/slow")
	}
	fastEMA := ema(h.Close, fast)
	slowEMA := ema(h.Close, slow)
	out := make([]float64, len(h.Close))
	for i := range out {
		out[i] = fastEMA[i] - slowEMA[i]
	}
	return out, nil
}

// MACDSignal is the EMA of the MACD line itself.
type MACDSignal struct{}

func (MACDSignal) Type() string { return "MACD_SIGNAL" }

func (MACDSignal) Defaults() map[string]float64 {
	return map[string]float64{"fast": 12, "slow": 26, "signal": 9}
}

func (s MACDSignal) Compute(h OHLCV, params map[string]float64) ([]float64, error) {
	p := mergeParams(s.Defaults(), params)
	macdLine, err := (MACD{}).Compute(h, p)
	if err != nil {
		return nil, err
	}
	signal := int(p["signal"])
	if signal <= 0 {
		return nil, errInvalidParam("signal")
	}
	return ema(macdLine, signal), nil
}
