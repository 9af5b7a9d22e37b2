// Package fetcher implements the candle aggregator: it polls the
// exchange adapter for recent trades and folds them into closed
// 1-minute candles, one per (pair, minute) actually traded.
package fetcher

import (
	"context"
	"log/slog"
	"time"

	"sdexalgo/internal/metrics"
	"sdexalgo/internal/model"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultFetchLimit   = 200

	stateCursorKey = "LAST_HANDLED_TRADE"
	stateCandleKey = "UNPROCESSED_CANDLES"
)

// Fetcher runs the perpetual Candle Aggregator loop.
type Fetcher struct {
	adapter      model.ExchangeAdapter
	state        model.StateStore
	pollInterval time.Duration
	fetchLimit   int
	log          *slog.Logger

	metrics *metrics.Metrics

	cursor     string
	inProgress map[string]model.Candle
	pairByKey  map[string]model.TradingPair
}

// New builds a Fetcher. state may be nil, in which case no crash-recovery
// is attempted and the Fetcher starts from the exchange's current tail.
func New(adapter model.ExchangeAdapter, state model.StateStore, log *slog.Logger) *Fetcher {
	return &Fetcher{
		adapter:      adapter,
		state:        state,
		pollInterval: defaultPollInterval,
		fetchLimit:   defaultFetchLimit,
		log:          log,
		inProgress:   make(map[string]model.Candle),
		pairByKey:    make(map[string]model.TradingPair),
	}
}

// SetMetrics wires the optional metrics surface; safe to leave unset.
func (f *Fetcher) SetMetrics(m *metrics.Metrics) { f.metrics = m }

// Configure overrides the default poll cadence and fetch page size.
// Must be called before Run.
func (f *Fetcher) Configure(poll time.Duration, limit int) {
	if poll > 0 {
		f.pollInterval = poll
	}
	if limit > 0 {
		f.fetchLimit = limit
	}
}

// Run begins the perpetual poll loop, emitting closed 1-minute candles on
// sink. Blocks until ctx is cancelled.
func (f *Fetcher) Run(ctx context.Context, sink chan<- model.Candle) {
	f.restore(ctx)
	if f.cursor == "" {
		if cur, err := f.adapter.LastTradeCursor(ctx); err == nil {
			f.cursor = cur
		} else {
			f.log.Error("fetcher: initial cursor lookup failed", "err", err)
		}
	}

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.persist(context.Background())
			return
		case <-ticker.C:
			f.poll(ctx, sink)
		}
	}
}

func (f *Fetcher) poll(ctx context.Context, sink chan<- model.Candle) {
	rows, err := f.adapter.FetchTrades(ctx, f.cursor, f.fetchLimit)
	if err != nil {
		// Exchange I/O errors: log and retry next tick; in-progress
		// candles persist across the error, cursor does not advance.
		f.metrics.FetcherPollError()
		f.log.Error("fetcher: fetch trades failed, retrying next tick", "err", err)
		return
	}

	for _, row := range rows {
		f.foldRow(row, sink)
		f.cursor = row.PagingToken
	}

	if len(rows) > 0 {
		f.persist(ctx)
	}
}

func (f *Fetcher) foldRow(row model.TradeRow, sink chan<- model.Candle) {
	pair := model.TradingPair{Base: row.Base, Counter: row.Counter}
	key := pair.Key()
	f.pairByKey[key] = pair
	price := row.Price.Float()
	minuteStart := row.LedgerCloseAt.UTC().Truncate(time.Minute)

	existing, ok := f.inProgress[key]
	switch {
	case !ok:
		f.inProgress[key] = model.NewFromTrade(pair, model.Res1m, minuteStart, price, row.BaseAmount, row.CounterAmount)
	case model.SameBucket(existing.Start, row.LedgerCloseAt, model.Res1m):
		existing.Update(price, row.BaseAmount, row.CounterAmount)
		f.inProgress[key] = existing
	default:
		select {
		case sink <- existing:
		default:
			f.log.Warn("fetcher: minute-candle bus full, blocking until it drains", "pair", key)
			sink <- existing // the bus is the upstream regulator; block rather than lose a closed candle
		}
		f.metrics.CandleFetched()
		f.inProgress[key] = model.NewFromTrade(pair, model.Res1m, minuteStart, price, row.BaseAmount, row.CounterAmount)
	}
}

func (f *Fetcher) restore(ctx context.Context) {
	if f.state == nil {
		return
	}
	if cur, ok, err := f.state.Get(ctx, stateCursorKey); err == nil && ok {
		f.cursor = cur
	}
	if raw, ok, err := f.state.Get(ctx, stateCandleKey); err == nil && ok {
		decoded, err := decodeCandleMap(raw)
		if err != nil {
			f.log.Error("fetcher: could not decode recovered in-progress candles", "err", err)
			return
		}
		f.inProgress = decoded
		for key, c := range decoded {
			f.pairByKey[key] = c.Pair
		}
	}
}

func (f *Fetcher) persist(ctx context.Context) {
	if f.state == nil {
		return
	}
	if err := f.state.Put(ctx, stateCursorKey, f.cursor); err != nil {
		f.log.Error("fetcher: persist cursor failed", "err", err)
	}
	encoded, err := encodeCandleMap(f.inProgress)
	if err != nil {
		f.log.Error("fetcher: encode in-progress candles failed", "err", err)
		return
	}
	if err := f.state.Put(ctx, stateCandleKey, encoded); err != nil {
		f.log.Error("fetcher: persist in-progress candles failed", "err", err)
	}
}
