package indicator

import "math"

// SMA is the Simple Moving Average, recomputed over the full history on
// every call. Parameter: "period" (default 20).
type SMA struct{}

func (SMA) Type() string { return "SMA" }

func (SMA) Defaults() map[string]float64 { return map[string]float64{"period": 20} }

func (s SMA) Compute(h OHLCV, params map[string]float64) ([]float64, error) {
	p := mergeParams(s.Defaults(), params)
	period := int(p["period"])
	if period <= 0 {
		return nil, errInvalidParam("period")
	}
	closes := h.Close
	out := make([]float64, len(closes))
	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i+1 < period {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(period)
	}
	return out, nil
}
