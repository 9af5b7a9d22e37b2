package indicator

import (
	"math"
	"testing"
)

func closesOf(n int, f func(i int) float64) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = f(i)
	}
	return out
}

func TestSMAWarmupThenValue(t *testing.T) {
	h := OHLCV{Close: closesOf(5, func(i int) float64 { return float64(i + 1) })}
	vals, err := (SMA{}).Compute(h, map[string]float64{"period": 3})
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(vals[0]) || !math.IsNaN(vals[1]) {
		t.Fatalf("expected NaN warm-up, got %v", vals[:2])
	}
	if vals[2] != 2 { // (1+2+3)/3
		t.Errorf("vals[2] = %v, want 2", vals[2])
	}
	if vals[4] != 4 { // (3+4+5)/3
		t.Errorf("vals[4] = %v, want 4", vals[4])
	}
}

func TestEMASeededAfterWarmup(t *testing.T) {
	h := OHLCV{Close: closesOf(10, func(i int) float64 { return 10 })}
	vals, err := (EMA{}).Compute(h, map[string]float64{"period": 3})
	if err != nil {
		t.Fatal(err)
	}
	if math.IsNaN(vals[9]) {
		t.Fatal("expected a settled EMA value by index 9")
	}
	if math.Abs(vals[9]-10) > 1e-9 {
		t.Errorf("flat series should converge to 10, got %v", vals[9])
	}
}

func TestMACDSignalDoesNotStayNaNForever(t *testing.T) {
	h := OHLCV{Close: closesOf(60, func(i int) float64 { return 100 + float64(i%5) })}
	vals, err := (MACDSignal{}).Compute(h, map[string]float64{"fast": 5, "slow": 10, "signal": 4})
	if err != nil {
		t.Fatal(err)
	}
	if math.IsNaN(vals[len(vals)-1]) {
		t.Fatal("MACD signal never warmed up")
	}
}

func TestValidateUnknownType(t *testing.T) {
	if err := Validate("BOGUS", nil); err == nil {
		t.Fatal("expected error for unknown indicator type")
	}
}

func TestValidateKnownType(t *testing.T) {
	if err := Validate("SMA", map[string]float64{"period": 20}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateInvalidParam(t *testing.T) {
	if err := Validate("SMA", map[string]float64{"period": 0}); err == nil {
		t.Fatal("expected error for zero period")
	}
}
