// Package xchange holds the repository's only concrete
// model.ExchangeAdapter: a Stub that returns model.ErrNotImplemented from
// every operation.
//
// The exchange adapter is an external collaborator
// (trades/orderbook/transaction/effects/offers over a Stellar-like
// ledger); the binaries in cmd/ wire this Stub by default and accept a
// real model.ExchangeAdapter as a drop-in replacement wherever one
// becomes available.
package xchange

import (
	"context"

	"sdexalgo/internal/model"
)

// Stub implements model.ExchangeAdapter with model.ErrNotImplemented.
type Stub struct{}

// New returns a Stub exchange adapter.
func New() *Stub { return &Stub{} }

func (Stub) LastTradeCursor(ctx context.Context) (string, error) {
	return "", model.ErrNotImplemented
}

func (Stub) FetchTrades(ctx context.Context, cursor string, limit int) ([]model.TradeRow, error) {
	return nil, model.ErrNotImplemented
}

func (Stub) FetchOrderBook(ctx context.Context, selling, buying model.Asset) (model.OrderBook, error) {
	return model.OrderBook{}, model.ErrNotImplemented
}

func (Stub) NewTransaction(ctx context.Context, account string) model.TransactionBuilder {
	return stubBuilder{}
}

func (Stub) FetchEffects(ctx context.Context, transactionID string) ([]model.TradeEffect, error) {
	return nil, model.ErrNotImplemented
}

func (Stub) FetchOpenOffers(ctx context.Context, account string) ([]model.OfferHandle, error) {
	return nil, model.ErrNotImplemented
}

func (Stub) CancelOffer(ctx context.Context, account, offerID string, sell, buy model.Asset) error {
	return model.ErrNotImplemented
}

// stubBuilder implements model.TransactionBuilder, rejecting every submit.
type stubBuilder struct{}

func (stubBuilder) AddOffer(amount float64, sell, buy model.Asset, price float64) model.TransactionBuilder {
	return stubBuilder{}
}

func (stubBuilder) RemoveOffer(offerID string, sell, buy model.Asset) model.TransactionBuilder {
	return stubBuilder{}
}

func (stubBuilder) Submit(ctx context.Context) (model.TransactionResult, error) {
	return model.TransactionResult{}, model.ErrNotImplemented
}
