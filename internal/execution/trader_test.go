package execution

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"sdexalgo/internal/model"
	"sdexalgo/internal/xchange"
)

type fakeTradeStore struct {
	mu       sync.Mutex
	recorded []model.TradeRecord
	fail     bool
}

func (s *fakeTradeStore) RecordTrade(ctx context.Context, t model.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return context.DeadlineExceeded
	}
	s.recorded = append(s.recorded, t)
	return nil
}

func (s *fakeTradeStore) ListTradesByDeployment(ctx context.Context, deploymentID string) ([]model.TradeRecord, error) {
	return nil, nil
}

func (s *fakeTradeStore) ListTradesByBacktest(ctx context.Context, backtestID string) ([]model.TradeRecord, error) {
	return nil, nil
}

func discardLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testAdvice(advice model.Advice) model.TradeAdvice {
	return model.TradeAdvice{
		UserProfile:  "default",
		DeploymentID: "dep-1",
		Pair:         model.TradingPair{Base: model.NativeAsset, Counter: model.NewAsset("USD", "IssuerA")},
		Advice:       advice,
		Amount:       100,
		NumCycles:    2,
	}
}

func newTestTrader(store *fakeTradeStore) *Trader {
	return New(xchange.NewFake(0.5), store, "trader", 1, time.Second, discardLog())
}

// TestTraderCycleSequencing drives the advice sequence BUY, BUY, SELL,
// BUY, SELL, SELL through a deployment with num_cycles=2: the duplicate
// BUY is dropped, four trades execute, and the final SELL is rejected
// with DONE because the cycle count is already reached.
func TestTraderCycleSequencing(t *testing.T) {
	store := &fakeTradeStore{}
	tr := newTestTrader(store)
	ctx := context.Background()

	sequence := []model.Advice{model.Buy, model.Buy, model.Sell, model.Buy, model.Sell, model.Sell}
	want := []outcome{outcomeOK, outcomeCont, outcomeOK, outcomeOK, outcomeOK, outcomeDone}

	for i, advice := range sequence {
		got, err := tr.ExecuteAdvice(ctx, testAdvice(advice))
		if got != want[i] {
			t.Fatalf("advice %d (%s): outcome = %v, want %v (err=%v)", i, advice, got, want[i], err)
		}
	}

	if len(store.recorded) != 4 {
		t.Fatalf("recorded trades = %d, want 4", len(store.recorded))
	}
	for i := 1; i < len(store.recorded); i++ {
		if store.recorded[i].Advice == store.recorded[i-1].Advice {
			t.Errorf("trades %d and %d have the same advice %s", i-1, i, store.recorded[i].Advice)
		}
	}
	if store.recorded[0].Advice != model.Buy {
		t.Errorf("first recorded trade is %s, want BUY", store.recorded[0].Advice)
	}
}

// TestTraderSellWithoutPriorBuy: a SELL with no existing context is
// ignored (CONT) and creates no context.
func TestTraderSellWithoutPriorBuy(t *testing.T) {
	store := &fakeTradeStore{}
	tr := newTestTrader(store)

	got, err := tr.ExecuteAdvice(context.Background(), testAdvice(model.Sell))
	if got != outcomeCont || err != nil {
		t.Fatalf("outcome = %v, err = %v; want CONT, nil", got, err)
	}
	if len(store.recorded) != 0 {
		t.Fatalf("recorded trades = %d, want 0", len(store.recorded))
	}

	// The next BUY must create a fresh context and execute normally.
	got, _ = tr.ExecuteAdvice(context.Background(), testAdvice(model.Buy))
	if got != outcomeOK {
		t.Fatalf("BUY after ignored SELL: outcome = %v, want OK", got)
	}
}

// TestTraderRoundTripAccounting: a full-fill BUY at bid 0.5 moves the
// whole buy amount into sell-amount at that price, and the following
// SELL moves it back.
func TestTraderRoundTripAccounting(t *testing.T) {
	store := &fakeTradeStore{}
	tr := newTestTrader(store)
	ctx := context.Background()

	if got, _ := tr.ExecuteAdvice(ctx, testAdvice(model.Buy)); got != outcomeOK {
		t.Fatalf("BUY outcome = %v, want OK", got)
	}
	if got, _ := tr.ExecuteAdvice(ctx, testAdvice(model.Sell)); got != outcomeOK {
		t.Fatalf("SELL outcome = %v, want OK", got)
	}

	buy, sell := store.recorded[0], store.recorded[1]
	if buy.SoldAmount != 100 || buy.BoughtAmount != 50 {
		t.Errorf("BUY sold/bought = %v/%v, want 100/50", buy.SoldAmount, buy.BoughtAmount)
	}
	if sell.SoldAmount != 50 || sell.BoughtAmount != 25 {
		t.Errorf("SELL sold/bought = %v/%v, want 50/25", sell.SoldAmount, sell.BoughtAmount)
	}
	if !sell.SoldAsset.Equal(buy.BoughtAsset) || !sell.BoughtAsset.Equal(buy.SoldAsset) {
		t.Error("SELL must invert BUY's asset direction")
	}
}

// TestTraderRanOutOfFund: an amount that floors to zero is an execution
// error, not a trade.
func TestTraderRanOutOfFund(t *testing.T) {
	store := &fakeTradeStore{}
	tr := newTestTrader(store)

	advice := testAdvice(model.Buy)
	advice.Amount = 0.5
	got, err := tr.ExecuteAdvice(context.Background(), advice)
	if got != outcomeError || err == nil {
		t.Fatalf("outcome = %v, err = %v; want ERROR with cause", got, err)
	}
	if len(store.recorded) != 0 {
		t.Fatalf("recorded trades = %d, want 0", len(store.recorded))
	}
}

// TestTraderForgetDropsContext: after Forget, the next SELL has no
// context again and is ignored.
func TestTraderForgetDropsContext(t *testing.T) {
	store := &fakeTradeStore{}
	tr := newTestTrader(store)
	ctx := context.Background()

	if got, _ := tr.ExecuteAdvice(ctx, testAdvice(model.Buy)); got != outcomeOK {
		t.Fatal("BUY should execute")
	}
	tr.Forget("dep-1")

	if got, _ := tr.ExecuteAdvice(ctx, testAdvice(model.Sell)); got != outcomeCont {
		t.Fatalf("SELL after Forget: outcome = %v, want CONT", got)
	}
}
