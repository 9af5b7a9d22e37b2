package model

import (
	"context"
	"time"
)

// ── External collaborator ports ──
// These interfaces decouple the core pipeline from its external
// collaborators (exchange, persistence). Concrete implementations are out
// of scope for the core; only the interfaces are specified here.

// PriceFraction is a rational price as reported by the exchange ledger.
type PriceFraction struct {
	N, D int64
}

// Float returns n/d as a float64.
func (p PriceFraction) Float() float64 {
	if p.D == 0 {
		return 0
	}
	return float64(p.N) / float64(p.D)
}

// TradeRow is one executed trade as reported by the exchange.
type TradeRow struct {
	Base          Asset
	Counter       Asset
	Price         PriceFraction
	BaseAmount    float64
	CounterAmount float64
	LedgerCloseAt time.Time
	PagingToken   string
}

// BidLevel is one level of the order book's bid side.
type BidLevel struct {
	Amount float64
	Price  float64
}

// OrderBook is the order book for one (selling, buying) asset pair.
type OrderBook struct {
	Bids []BidLevel
}

// TradeEffect is one exchange-reported consequence of a submitted
// transaction.
type TradeEffect struct {
	Type         string // e.g. "trade"
	Account      string
	SoldAmount   float64
	BoughtAmount float64
	OfferID      string
}

// TransactionResult is the outcome of a submitted transaction.
type TransactionResult struct {
	TransactionID string
	Success       bool
	Errors        []string
}

// OfferHandle identifies an offer submitted via TransactionBuilder.
type OfferHandle struct {
	OfferID string
}

// TransactionBuilder is a scoped builder: AddOffer/RemoveOffer stage
// operations, Submit finalizes and submits them as one transaction.
type TransactionBuilder interface {
	AddOffer(amount float64, sell, buy Asset, price float64) TransactionBuilder
	RemoveOffer(offerID string, sell, buy Asset) TransactionBuilder
	Submit(ctx context.Context) (TransactionResult, error)
}

// NetworkMode selects which exchange network an adapter talks to.
type NetworkMode string

const (
	NetworkPublic NetworkMode = "public"
	NetworkTest   NetworkMode = "test"
	NetworkCustom NetworkMode = "custom"
)

// ExchangeAdapter is the exchange collaborator consumed by the Fetcher and
// the Trader. No concrete exchange client ships with this repository;
// deployments wire one in behind this interface.
type ExchangeAdapter interface {
	// LastTradeCursor returns the paging token of the newest trade.
	LastTradeCursor(ctx context.Context) (string, error)

	// FetchTrades returns ordered trade rows after cursor, up to limit.
	FetchTrades(ctx context.Context, cursor string, limit int) ([]TradeRow, error)

	// FetchOrderBook returns the order book for a (selling, buying) pair.
	FetchOrderBook(ctx context.Context, selling, buying Asset) (OrderBook, error)

	// NewTransaction opens a scoped transaction builder for the given
	// trading account.
	NewTransaction(ctx context.Context, account string) TransactionBuilder

	// FetchEffects returns the effects of a previously submitted
	// transaction.
	FetchEffects(ctx context.Context, transactionID string) ([]TradeEffect, error)

	// FetchOpenOffers returns the account's currently open offers.
	FetchOpenOffers(ctx context.Context, account string) ([]OfferHandle, error)

	// CancelOffer cancels an open offer; not-found is not an error.
	CancelOffer(ctx context.Context, account, offerID string, sell, buy Asset) error
}

// ── Persistence ports ──

// AlgoStore persists Algo templates.
type AlgoStore interface {
	CreateAlgo(ctx context.Context, a Algo) error
	GetAlgo(ctx context.Context, owner, name string) (Algo, error)
	ListAlgos(ctx context.Context, owner string) ([]Algo, error)
	DeleteAlgo(ctx context.Context, owner, name string) error
}

// DeploymentStore persists Deployment rows.
type DeploymentStore interface {
	CreateDeployment(ctx context.Context, d Deployment) error
	UpdateDeploymentStatus(ctx context.Context, id string, status DeploymentStatus, errMsg string) error
	GetDeployment(ctx context.Context, id string) (Deployment, error)
	ListDeployments(ctx context.Context, owner string) ([]Deployment, error)
}

// TradeStore persists executed trades, live or backtested.
type TradeStore interface {
	RecordTrade(ctx context.Context, t TradeRecord) error
	ListTradesByDeployment(ctx context.Context, deploymentID string) ([]TradeRecord, error)
	ListTradesByBacktest(ctx context.Context, backtestID string) ([]TradeRecord, error)
}

// BacktestStore persists BacktestRequest rows.
type BacktestStore interface {
	CreateBacktest(ctx context.Context, b BacktestRequest) error
	UpdateBacktestStatus(ctx context.Context, id string, status BacktestStatus, errMsg string) error
	GetBacktest(ctx context.Context, id string) (BacktestRequest, error)
	ListBacktests(ctx context.Context, owner string) ([]BacktestRequest, error)
	// NextQueued returns up to n requests in state NEW, oldest first.
	NextQueued(ctx context.Context, n int) ([]BacktestRequest, error)
}

// CandleArchive persists the 1-minute candle grain that the Historical
// Candle Store Query Layer re-aggregates at query time.
type CandleArchive interface {
	// Run persists closed 1-minute candles from candleCh until it closes
	// or ctx is cancelled.
	Run(ctx context.Context, candleCh <-chan Candle)
	Close() error
}

// HistoricalQuery is the paged read side of the candle archive.
type HistoricalQuery interface {
	// GetCandles returns up to pageSize candles for pair in [from, to) at
	// resolution, re-aggregating on the fly for resolutions coarser than
	// 1m. nextPageToken is empty when no further page exists.
	GetCandles(ctx context.Context, pair TradingPair, from, to time.Time, res Resolution, pageSize int, pageToken string) (candles []Candle, nextPageToken string, err error)
}

// StateStore persists small recovery state: the Fetcher's last-handled
// trade cursor and any in-progress candles, so a restart can resume
// without re-deriving them from scratch.
type StateStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
}
