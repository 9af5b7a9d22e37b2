package xchange

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"sdexalgo/internal/model"
)

// Fake is an in-memory model.ExchangeAdapter for tests: it always fills
// at the configured BidPrice and reports the full requested amount as
// matched, so the Trader's sequencing/cycle logic can be exercised
// without a real ledger.
type Fake struct {
	mu       sync.Mutex
	BidPrice float64
	offerSeq int64
	trxSeq   int64

	// Effects reports the effects FetchEffects returns. Each Submit
	// replaces it with a single full fill of the submitted amount at
	// BidPrice; while it is nil FetchEffects returns no effects.
	Effects func(trxID string) []model.TradeEffect
}

func NewFake(bidPrice float64) *Fake { return &Fake{BidPrice: bidPrice} }

func (f *Fake) LastTradeCursor(ctx context.Context) (string, error) { return "0", nil }

func (f *Fake) FetchTrades(ctx context.Context, cursor string, limit int) ([]model.TradeRow, error) {
	return nil, nil
}

func (f *Fake) FetchOrderBook(ctx context.Context, selling, buying model.Asset) (model.OrderBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.OrderBook{Bids: []model.BidLevel{{Amount: 1e9, Price: f.BidPrice}}}, nil
}

func (f *Fake) NewTransaction(ctx context.Context, account string) model.TransactionBuilder {
	id := atomic.AddInt64(&f.trxSeq, 1)
	return &fakeBuilder{f: f, trxID: fmt.Sprintf("trx-%d", id)}
}

func (f *Fake) FetchEffects(ctx context.Context, transactionID string) ([]model.TradeEffect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Effects != nil {
		return f.Effects(transactionID), nil
	}
	return nil, nil
}

func (f *Fake) FetchOpenOffers(ctx context.Context, account string) ([]model.OfferHandle, error) {
	return nil, nil
}

func (f *Fake) CancelOffer(ctx context.Context, account, offerID string, sell, buy model.Asset) error {
	return nil
}

type fakeBuilder struct {
	f        *Fake
	trxID    string
	lastSold float64
	lastBuy  model.Asset
	lastSell model.Asset
}

func (b *fakeBuilder) AddOffer(amount float64, sell, buy model.Asset, price float64) model.TransactionBuilder {
	b.f.mu.Lock()
	b.f.offerSeq++
	b.f.mu.Unlock()
	b.lastSold = amount
	b.lastSell = sell
	b.lastBuy = buy
	return b
}

func (b *fakeBuilder) RemoveOffer(offerID string, sell, buy model.Asset) model.TransactionBuilder {
	return b
}

func (b *fakeBuilder) Submit(ctx context.Context) (model.TransactionResult, error) {
	bought := b.lastSold * b.f.BidPrice
	b.f.mu.Lock()
	b.f.Effects = func(trxID string) []model.TradeEffect {
		return []model.TradeEffect{{
			Type:         "trade",
			Account:      "trader",
			SoldAmount:   b.lastSold,
			BoughtAmount: bought,
		}}
	}
	b.f.mu.Unlock()
	return model.TransactionResult{TransactionID: b.trxID, Success: true}, nil
}
