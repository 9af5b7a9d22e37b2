package backtest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"sdexalgo/internal/model"
	"sdexalgo/internal/strategy"
)

type fakeBacktestStore struct {
	queued   []model.BacktestRequest
	statuses map[string]model.BacktestStatus
}

func (s *fakeBacktestStore) CreateBacktest(ctx context.Context, b model.BacktestRequest) error {
	return nil
}
func (s *fakeBacktestStore) UpdateBacktestStatus(ctx context.Context, id string, status model.BacktestStatus, errMsg string) error {
	s.statuses[id] = status
	return nil
}
func (s *fakeBacktestStore) GetBacktest(ctx context.Context, id string) (model.BacktestRequest, error) {
	return model.BacktestRequest{}, nil
}
func (s *fakeBacktestStore) ListBacktests(ctx context.Context, owner string) ([]model.BacktestRequest, error) {
	return nil, nil
}
func (s *fakeBacktestStore) NextQueued(ctx context.Context, n int) ([]model.BacktestRequest, error) {
	out := s.queued
	s.queued = nil
	return out, nil
}

type fakeTradeStore struct {
	recorded []model.TradeRecord
}

func (s *fakeTradeStore) RecordTrade(ctx context.Context, t model.TradeRecord) error {
	s.recorded = append(s.recorded, t)
	return nil
}
func (s *fakeTradeStore) ListTradesByDeployment(ctx context.Context, deploymentID string) ([]model.TradeRecord, error) {
	return nil, nil
}
func (s *fakeTradeStore) ListTradesByBacktest(ctx context.Context, backtestID string) ([]model.TradeRecord, error) {
	return s.recorded, nil
}

// fakeHistory serves a single fixed page of candles regardless of the
// requested window, matching the shape of a real HistoricalQuery closely
// enough to drive the Runner end to end.
type fakeHistory struct {
	candles []model.Candle
}

func (h *fakeHistory) GetCandles(ctx context.Context, pair model.TradingPair, from, to time.Time, res model.Resolution, pageSize int, pageToken string) ([]model.Candle, string, error) {
	if pageToken != "" {
		return nil, "", nil
	}
	return h.candles, "", nil
}

func discardLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testPair() model.TradingPair {
	return model.TradingPair{Base: model.NativeAsset, Counter: model.NewAsset("USD", "IssuerA")}
}

func makeCandles(n int, closes []float64) []model.Candle {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Candle, n)
	for i := 0; i < n; i++ {
		c := closes[i%len(closes)]
		out[i] = model.Candle{
			Pair: testPair(), Resolution: model.Res1m, Start: base.Add(time.Duration(i) * time.Minute),
			Open: c, High: c, Low: c, Close: c, BaseVolume: 1, CounterVolume: c,
		}
	}
	return out
}

// TestBacktestDummyAlternatorAlternatesAndSkipsDuplicates drives the
// Runner with the dummy_alternator strategy (period=2, to keep the test
// small) and asserts the resulting trades alternate BUY/SELL with unit
// base-lot sizing, skipping the duplicate repeats in between.
func TestBacktestDummyAlternatorAlternatesAndSkipsDuplicates(t *testing.T) {
	closes := make([]float64, 0, 8)
	for i := 0; i < 8; i++ {
		closes = append(closes, 2.0)
	}
	candles := makeCandles(8, closes)

	req := model.BacktestRequest{
		ID:    "bt1",
		Owner: "alice",
		AlgoSnapshot: model.Algo{
			Name: "trend", Owner: "alice", Pair: testPair(), Resolution: model.Res1m,
			Strategy: "dummy_alternator", Parameters: map[string]string{"period": "2"},
		},
		Status: model.BacktestNew,
	}

	btStore := &fakeBacktestStore{queued: []model.BacktestRequest{req}, statuses: map[string]model.BacktestStatus{}}
	tradeStore := &fakeTradeStore{}
	history := &fakeHistory{candles: candles}

	r := New(btStore, history, tradeStore, strategy.Default(), time.Millisecond, discardLog())
	r.pageSize = 100
	r.pollOnce(context.Background())

	if btStore.statuses["bt1"] != model.BacktestFinished {
		t.Fatalf("status = %v, want FINISHED", btStore.statuses["bt1"])
	}

	if len(tradeStore.recorded) == 0 {
		t.Fatal("expected at least one recorded trade")
	}
	for i := 1; i < len(tradeStore.recorded); i++ {
		if tradeStore.recorded[i].Advice == tradeStore.recorded[i-1].Advice {
			t.Errorf("trade %d repeats advice %v consecutively", i, tradeStore.recorded[i].Advice)
		}
	}
	if tradeStore.recorded[0].Advice != model.Buy {
		t.Errorf("first trade = %v, want BUY", tradeStore.recorded[0].Advice)
	}
	// Unit base-lot: first BUY sells 1 base for close(=2.0) counter.
	if tradeStore.recorded[0].SoldAmount != 1 || tradeStore.recorded[0].BoughtAmount != 2.0 {
		t.Errorf("first trade sold/bought = %v/%v, want 1/2.0", tradeStore.recorded[0].SoldAmount, tradeStore.recorded[0].BoughtAmount)
	}
}

// TestSequencerSuppressesSellBeforeBuy: a SELL with no prior BUY in
// this backtest is rejected.
func TestSequencerSuppressesSellBeforeBuy(t *testing.T) {
	s := newSequencer()
	accepted, _, _ := s.apply(model.Sell, 2.0)
	if accepted {
		t.Fatal("SELL before any BUY must be rejected")
	}
}

// TestSequencerSuppressesDuplicateAdvice: a duplicate consecutive
// advice is skipped without perturbing sizing
// state for the next accepted advice.
func TestSequencerSuppressesDuplicateAdvice(t *testing.T) {
	s := newSequencer()
	ok1, _, bought1 := s.apply(model.Buy, 2.0)
	ok2, _, _ := s.apply(model.Buy, 3.0) // duplicate BUY, should be rejected
	ok3, sold3, bought3 := s.apply(model.Sell, 2.0)

	if !ok1 || ok2 || !ok3 {
		t.Fatalf("accepted = %v, %v, %v; want true, false, true", ok1, ok2, ok3)
	}
	if bought1 != 2.0 {
		t.Fatalf("first BUY bought = %v, want 2.0", bought1)
	}
	if sold3 != 2.0 || bought3 != 1.0 {
		t.Fatalf("SELL sold/bought = %v/%v, want 2.0/1.0", sold3, bought3)
	}
}
