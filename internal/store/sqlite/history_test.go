package sqlite

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"sdexalgo/internal/logger"
	"sdexalgo/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := Open(path, logger.Init("test", slog.LevelError))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testPair() model.TradingPair {
	return model.TradingPair{
		Base:    model.NativeAsset,
		Counter: model.NewAsset("USD", "IssuerA"),
	}
}

// seedHourOfMinuteCandles inserts 60 one-minute candles, minute i having
// open=i, close=i, high=i+0.5, low=i-0.5, base volume 1 and counter
// volume 2. An hourly query
// over them must return one row with open=candle0.open,
// close=candle59.close, high=max, low=min, volume=sum.
func seedHourOfMinuteCandles(t *testing.T, s *Store, pair model.TradingPair, hourStart time.Time) {
	t.Helper()
	ch := make(chan model.Candle, 60)
	for i := 0; i < 60; i++ {
		ch <- model.Candle{
			Pair:          pair,
			Resolution:    model.Res1m,
			Start:         hourStart.Add(time.Duration(i) * time.Minute),
			Open:          float64(i),
			High:          float64(i) + 0.5,
			Low:           float64(i) - 0.5,
			Close:         float64(i),
			BaseVolume:    1,
			CounterVolume: 2,
		}
	}
	close(ch)
	s.Run(context.Background(), ch)
}

func TestGetCandles_OneMinutePassthrough(t *testing.T) {
	s := newTestStore(t)
	pair := testPair()
	hourStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedHourOfMinuteCandles(t, s, pair, hourStart)

	candles, next, err := s.GetCandles(context.Background(), pair, hourStart, hourStart.Add(time.Hour), model.Res1m, 100, "")
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if len(candles) != 60 {
		t.Fatalf("expected 60 raw candles, got %d", len(candles))
	}
	if next != "" {
		t.Fatalf("expected no next page token, got %q", next)
	}
	if candles[0].Open != 0 || candles[59].Close != 59 {
		t.Fatalf("unexpected passthrough values: first=%v last=%v", candles[0], candles[59])
	}
}

func TestGetCandles_HourlyAggregation(t *testing.T) {
	s := newTestStore(t)
	pair := testPair()
	hourStart := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	seedHourOfMinuteCandles(t, s, pair, hourStart)

	candles, next, err := s.GetCandles(context.Background(), pair, hourStart, hourStart.Add(time.Hour), model.Res1h, 100, "")
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if next != "" {
		t.Fatalf("expected no next page token, got %q", next)
	}
	if len(candles) != 1 {
		t.Fatalf("expected exactly one aggregated hour candle, got %d", len(candles))
	}
	c := candles[0]
	if c.Open != 0 {
		t.Errorf("open = %v, want 0 (minute-candle-0.open)", c.Open)
	}
	if c.Close != 59 {
		t.Errorf("close = %v, want 59 (minute-candle-59.close)", c.Close)
	}
	if c.High != 59.5 {
		t.Errorf("high = %v, want 59.5", c.High)
	}
	if c.Low != -0.5 {
		t.Errorf("low = %v, want -0.5", c.Low)
	}
	if c.BaseVolume != 60 {
		t.Errorf("base volume = %v, want 60 (sum)", c.BaseVolume)
	}
	if c.CounterVolume != 120 {
		t.Errorf("counter volume = %v, want 120 (sum)", c.CounterVolume)
	}
}

func TestGetCandles_InvalidResolution(t *testing.T) {
	s := newTestStore(t)
	pair := testPair()
	_, _, err := s.GetCandles(context.Background(), pair, time.Time{}, time.Time{}, model.Resolution("3m"), 10, "")
	if err == nil {
		t.Fatal("expected error for invalid resolution")
	}
}

func TestGetCandles_Pagination(t *testing.T) {
	s := newTestStore(t)
	pair := testPair()
	hourStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedHourOfMinuteCandles(t, s, pair, hourStart)

	first, next, err := s.GetCandles(context.Background(), pair, hourStart, hourStart.Add(time.Hour), model.Res1m, 40, "")
	if err != nil {
		t.Fatalf("GetCandles page 1: %v", err)
	}
	if len(first) != 40 || next == "" {
		t.Fatalf("expected 40 rows and a next token, got %d rows, token %q", len(first), next)
	}

	second, next2, err := s.GetCandles(context.Background(), pair, hourStart, hourStart.Add(time.Hour), model.Res1m, 40, next)
	if err != nil {
		t.Fatalf("GetCandles page 2: %v", err)
	}
	if len(second) != 20 || next2 != "" {
		t.Fatalf("expected remaining 20 rows and no next token, got %d rows, token %q", len(second), next2)
	}
	if second[0].Open != 40 {
		t.Fatalf("page 2 should resume at minute 40, got open=%v", second[0].Open)
	}
}
