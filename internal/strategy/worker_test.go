package strategy

import (
	"context"
	"log/slog"
	"io"
	"testing"
	"time"

	"sdexalgo/internal/model"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingStrategy records how many candles it has seen and panics on a
// configured candle index, to exercise scenario 4 ("a strategy raises in
// execute on the fifth candle; the worker continues").
type countingStrategy struct {
	panicOn   int
	processed int
	executed  int
}

func (s *countingStrategy) Name() string                { return "counting" }
func (s *countingStrategy) Init(ctx InitContext) error   { return nil }
func (s *countingStrategy) ProcessCandle(c model.Candle) error {
	s.processed++
	return nil
}
func (s *countingStrategy) Execute(values IndicatorValues, ctx *Context) {
	s.executed++
	if s.executed == s.panicOn {
		panic("boom")
	}
	if s.executed == 6 {
		ctx.Buy()
	}
}

func pair() model.TradingPair {
	return model.TradingPair{Base: model.NativeAsset, Counter: model.NewAsset("USD", "IssuerA")}
}

func TestWorkerSwallowsStrategyPanicAndContinues(t *testing.T) {
	strat := &countingStrategy{panicOn: 5}
	w := NewWorker("dep-1", strat, silentLogger())
	w.sleep = time.Hour // disable the ticker branch; we drive via the channel only

	in := make(chan model.Candle, 10)
	out := make(chan model.Advice, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go w.Run(ctx, in, out)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		in <- model.Candle{Pair: pair(), Resolution: model.Res1m, Start: start.Add(time.Duration(i) * time.Minute), Open: 1, High: 1, Low: 1, Close: 1}
	}

	deadline := time.After(2 * time.Second)
	select {
	case <-out:
	case <-deadline:
		t.Fatal("expected advice from the 6th candle, worker likely died from the panic")
	}

	if strat.processed != 6 {
		t.Errorf("processed = %d, want 6 (worker must continue after the panic)", strat.processed)
	}
}
