package indicator

import (
	"fmt"
	"math/rand"
)

func errInvalidParam(name string) error {
	return fmt.Errorf("invalid parameter %q", name)
}

// Registry maps indicator type names to Indicator implementations, used
// by the Strategy Worker's AddIndicator to validate a type+parameter
// combination before a deployment starts.
type Registry struct {
	byType map[string]Indicator
}

// NewRegistry builds the default registry of known indicator types.
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]Indicator)}
	for _, ind := range []Indicator{SMA{}, EMA{}, MACD{}, MACDSignal{}} {
		r.byType[ind.Type()] = ind
	}
	return r
}

// Lookup returns the Indicator for a type name.
func (r *Registry) Lookup(indicatorType string) (Indicator, bool) {
	ind, ok := r.byType[indicatorType]
	return ind, ok
}

// Validate checks that indicatorType is known and that params produce a
// usable result over a synthetic 100-point OHLCV.
func Validate(indicatorType string, params map[string]float64) error {
	reg := defaultRegistry
	ind, ok := reg.Lookup(indicatorType)
	if !ok {
		return fmt.Errorf("unknown indicator type %q", indicatorType)
	}
	_, err := ind.Compute(syntheticOHLCV(100), params)
	return err
}

var defaultRegistry = NewRegistry()

// syntheticOHLCV generates a deterministic pseudo-random n-point OHLCV
// series for indicator-parameter validation. The seed is fixed so
// validation is reproducible.
func syntheticOHLCV(n int) OHLCV {
	rng := rand.New(rand.NewSource(42))
	h := OHLCV{
		Open:   make([]float64, n),
		High:   make([]float64, n),
		Low:    make([]float64, n),
		Close:  make([]float64, n),
		Volume: make([]float64, n),
	}
	price := 100.0
	for i := 0; i < n; i++ {
		delta := (rng.Float64() - 0.5) * 2
		open := price
		close := price + delta
		high := open + rng.Float64()
		low := open - rng.Float64()
		if close > high {
			high = close
		}
		if close < low {
			low = close
		}
		h.Open[i] = open
		h.High[i] = high
		h.Low[i] = low
		h.Close[i] = close
		h.Volume[i] = rng.Float64() * 1000
		price = close
	}
	return h
}
