package indicator

import "math"

// EMA is the Exponential Moving Average, recomputed over the full history
// on every call (seeded with a plain SMA over the first `period` values,
// per the conventional warm-up). Parameter: "period" (default 12).
type EMA struct{}

func (EMA) Type() string { return "EMA" }

func (EMA) Defaults() map[string]float64 { return map[string]float64{"period": 12} }

func (e EMA) Compute(h OHLCV, params map[string]float64) ([]float64, error) {
	p := mergeParams(e.Defaults(), params)
	period := int(p["period"])
	if period <= 0 {
		return nil, errInvalidParam("period")
	}
	return ema(h.Close, period), nil
}

// ema computes the exponential moving average series for closes, seeded
// with a plain average over the first `period` non-NaN values (closes may
// itself carry leading NaNs, e.g. when seeded from another indicator's
// output such as a MACD line). NaN for indices before the seed completes.
func ema(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}

	start := -1
	for i, c := range closes {
		if !math.IsNaN(c) {
			start = i
			break
		}
	}
	if start == -1 || len(closes)-start < period {
		return out
	}

	mult := 2.0 / float64(period+1)
	sum := 0.0
	for i := start; i < start+period; i++ {
		sum += closes[i]
	}
	prev := sum / float64(period)
	out[start+period-1] = prev
	for i := start + period; i < len(closes); i++ {
		prev = (closes[i]-prev)*mult + prev
		out[i] = prev
	}
	return out
}
