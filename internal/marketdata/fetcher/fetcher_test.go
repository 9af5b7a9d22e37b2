package fetcher

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"sdexalgo/internal/model"
)

type fakeAdapter struct {
	model.ExchangeAdapter
	batches [][]model.TradeRow
	idx     int
}

func (f *fakeAdapter) LastTradeCursor(ctx context.Context) (string, error) { return "", nil }

func (f *fakeAdapter) FetchTrades(ctx context.Context, cursor string, limit int) ([]model.TradeRow, error) {
	if f.idx >= len(f.batches) {
		return nil, nil
	}
	b := f.batches[f.idx]
	f.idx++
	return b, nil
}

func row(sec int, priceN, priceD int64, baseAmt float64) model.TradeRow {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	price := float64(priceN) / float64(priceD)
	return model.TradeRow{
		Base:          model.NativeAsset,
		Counter:       model.NewAsset("USD", "IssuerA"),
		Price:         model.PriceFraction{N: priceN, D: priceD},
		BaseAmount:    baseAmt,
		CounterAmount: baseAmt * price,
		LedgerCloseAt: base.Add(time.Duration(sec) * time.Second),
		PagingToken:   "tok",
	}
}

// TestFetcherMinuteRollover: three trades in the
// same minute followed by one trade in the next minute; the first minute
// must be emitted with open=0.10, high=0.12, low=0.10, close=0.11,
// base_volume=350, and the new trade starts a fresh in-progress candle.
func TestFetcherMinuteRollover(t *testing.T) {
	adapter := &fakeAdapter{batches: [][]model.TradeRow{
		{row(0, 10, 100, 100), row(30, 12, 100, 50), row(59, 11, 100, 200), row(61, 13, 100, 10)},
	}}
	f := New(adapter, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	sink := make(chan model.Candle, 10)
	f.poll(context.Background(), sink)

	select {
	case c := <-sink:
		if c.Open != 0.10 || c.High != 0.12 || c.Low != 0.10 || c.Close != 0.11 || c.BaseVolume != 350 {
			t.Fatalf("unexpected emitted candle: %+v", c)
		}
	default:
		t.Fatal("expected one emitted candle")
	}

	key := model.TradingPair{Base: model.NativeAsset, Counter: model.NewAsset("USD", "IssuerA")}.Key()
	next, ok := f.inProgress[key]
	if !ok {
		t.Fatal("expected an in-progress candle for the next minute")
	}
	if next.Open != 0.13 {
		t.Errorf("next in-progress candle open = %v, want 0.13", next.Open)
	}
}
