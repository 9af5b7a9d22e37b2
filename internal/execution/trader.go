// Package execution implements the trader: it consumes advice, enforces
// per-deployment sequencing and cycle-count invariants, talks to the
// exchange adapter to place/cancel offers, records executed trades, and
// signals the engine controller when a deployment is done or errored.
package execution

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"sdexalgo/internal/logger"
	"sdexalgo/internal/metrics"
	"sdexalgo/internal/model"
)

// outcome is the result of one ExecuteAdvice call.
type outcome int

const (
	outcomeOK outcome = iota
	outcomeCont
	outcomeDone
	outcomeError
)

type tradeResult struct {
	userProfile  string
	deploymentID string
	outcome      outcome
	err          string
}

// Trader turns advice into exchange offers. One Trader instance serves
// every live deployment; per-deployment state lives only in its
// TradeContext table.
type Trader struct {
	exchange model.ExchangeAdapter
	trades   model.TradeStore
	account  string
	log      *slog.Logger

	poolSize     int
	reapInterval time.Duration

	contexts *contextTable
	metrics  *metrics.Metrics

	pending   []tradeResult
	pendingMu sync.Mutex
}

// New builds a Trader. account is the trading account the Trader
// submits offers and reads effects/open-offers for.
func New(exchange model.ExchangeAdapter, trades model.TradeStore, account string, poolSize int, reapInterval time.Duration, log *slog.Logger) *Trader {
	if poolSize <= 0 {
		poolSize = 1
	}
	return &Trader{
		exchange:     exchange,
		trades:       trades,
		account:      account,
		log:          log,
		poolSize:     poolSize,
		reapInterval: reapInterval,
		contexts:     newContextTable(),
	}
}

// SetMetrics wires the optional metrics surface; safe to leave unset.
func (t *Trader) SetMetrics(m *metrics.Metrics) { t.metrics = m }

// Forget discards a deployment's in-memory TradeContext. The Engine
// Controller calls this once a deployment reaches a terminal status.
func (t *Trader) Forget(deploymentID string) {
	t.contexts.forget(deploymentID)
}

// Run is the Trader's thin scheduler: it polls adviceCh,
// offloads each advice onto a bounded worker pool, and periodically
// reaps completed results, converting DONE/ERROR into engine commands on
// cmdOut. Blocks until ctx is cancelled or adviceCh closes.
func (t *Trader) Run(ctx context.Context, adviceCh <-chan model.TradeAdvice, cmdOut chan<- model.EngineCommand) {
	sem := make(chan struct{}, t.poolSize)
	var wg sync.WaitGroup
	defer wg.Wait()

	ticker := time.NewTicker(t.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case advice, ok := <-adviceCh:
			if !ok {
				return
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(a model.TradeAdvice) {
				defer wg.Done()
				defer func() { <-sem }()
				t.execute(ctx, a)
			}(advice)
		case <-ticker.C:
			t.reap(cmdOut)
		}
	}
}

func (t *Trader) execute(ctx context.Context, advice model.TradeAdvice) {
	// Every advice execution carries its own trace id; the log lines
	// ExecuteAdvice writes through its traced logger include it.
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(advice.DeploymentID, time.Now()))

	out, err := t.ExecuteAdvice(ctx, advice)
	if out == outcomeError {
		t.metrics.TradeExecutionError()
	}
	if out == outcomeOK || out == outcomeCont {
		return
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	t.pendingMu.Lock()
	t.pending = append(t.pending, tradeResult{
		userProfile:  advice.UserProfile,
		deploymentID: advice.DeploymentID,
		outcome:      out,
		err:          errMsg,
	})
	t.pendingMu.Unlock()
}

func (t *Trader) reap(cmdOut chan<- model.EngineCommand) {
	t.pendingMu.Lock()
	batch := t.pending
	t.pending = nil
	t.pendingMu.Unlock()

	for _, r := range batch {
		cmd := model.EngineCommand{UserProfile: r.userProfile, DeploymentID: r.deploymentID}
		switch r.outcome {
		case outcomeDone:
			cmd.Kind = model.CmdDone
		case outcomeError:
			cmd.Kind = model.CmdStop
			cmd.Err = r.err
		default:
			continue
		}
		select {
		case cmdOut <- cmd:
		default:
			t.log.Warn("trader: engine command bus full, dropping", "deployment", r.deploymentID, "kind", cmd.Kind)
		}
	}
}

// ExecuteAdvice runs the full sequencing/cycle/offer/settlement/record
// state machine for one advice event. Exported for direct use by tests
// and by anything driving the Trader synchronously.
func (t *Trader) ExecuteAdvice(ctx context.Context, advice model.TradeAdvice) (outcomeResult outcome, errResult error) {
	log := t.log.With(logger.LogWithTrace(ctx)...)

	entry, ok, created := t.contexts.getOrCreate(advice)
	if !ok {
		log.Warn("trader: sell advice with no prior buy, ignoring", "deployment", advice.DeploymentID)
		return outcomeCont, nil
	}

	entry.mu.Lock()
	if entry.ctx.CurrentCycles >= entry.ctx.NumCycles {
		entry.mu.Unlock()
		return outcomeDone, nil
	}
	// A freshly created context's LastAdvice is only an anchor (equal to
	// FirstAdvice, which equals this very advice) — the duplicate check
	// must not fire against it, or the first advice a deployment ever
	// sees would be rejected as a repeat of itself.
	if !created && entry.ctx.LastAdvice == advice.Advice {
		entry.mu.Unlock()
		return outcomeCont, nil
	}
	if !created && advice.Advice != entry.ctx.FirstAdvice {
		entry.ctx.CurrentCycles++
	}
	entry.ctx.LastAdvice = advice.Advice
	buyAmount, sellAmount := entry.ctx.BuyAmount, entry.ctx.SellAmount
	entry.mu.Unlock()

	sellAsset, buyAsset, amount := offerDirection(advice, buyAmount, sellAmount)
	if math.Floor(amount) <= 0 {
		return outcomeError, &model.ExchangeError{Op: "offer placement", Err: errRanOutOfFund}
	}

	book, err := t.exchange.FetchOrderBook(ctx, sellAsset, buyAsset)
	if err != nil || len(book.Bids) == 0 {
		return outcomeError, &model.ExchangeError{Op: "fetch order book", Err: errOrNoBids(err)}
	}
	price := book.Bids[0].Price

	builder := t.exchange.NewTransaction(ctx, t.account)
	builder.AddOffer(amount, sellAsset, buyAsset, price)
	result, err := builder.Submit(ctx)
	if err != nil || !result.Success {
		return outcomeError, &model.ExchangeError{Op: "submit offer", Err: submitErr(err, result)}
	}

	t.cancelResidue(ctx, sellAsset, buyAsset)

	totalSold, totalBought, err := t.settle(ctx, result.TransactionID)
	if err != nil {
		return outcomeError, &model.ExchangeError{Op: "fetch effects", Err: err}
	}

	entry.mu.Lock()
	if advice.Advice == model.Buy {
		entry.ctx.BuyAmount -= totalSold
		entry.ctx.SellAmount += totalBought
	} else {
		entry.ctx.SellAmount -= totalSold
		entry.ctx.BuyAmount += totalBought
	}
	entry.mu.Unlock()

	record := model.TradeRecord{
		Timestamp:    time.Now().UTC(),
		DeploymentID: advice.DeploymentID,
		Advice:       advice.Advice,
		SoldAsset:    sellAsset,
		SoldAmount:   totalSold,
		BoughtAsset:  buyAsset,
		BoughtAmount: totalBought,
	}
	if err := t.trades.RecordTrade(ctx, record); err != nil {
		// The on-chain side already executed; the lost write is
		// flagged as an ERROR rather than silently dropped.
		return outcomeError, &model.PersistenceError{Op: "record trade", Err: err}
	}
	t.metrics.TradeExecuted(advice.DeploymentID, string(advice.Advice))
	log.Info("trader: trade recorded", "deployment", advice.DeploymentID, "advice", advice.Advice, "sold", totalSold, "bought", totalBought)

	return outcomeOK, nil
}

// offerDirection determines (sell-asset, buy-asset, amount) from advice
// direction.
func offerDirection(advice model.TradeAdvice, buyAmount, sellAmount float64) (sell, buy model.Asset, amount float64) {
	if advice.Advice == model.Buy {
		return advice.Pair.Base, advice.Pair.Counter, buyAmount
	}
	return advice.Pair.Counter, advice.Pair.Base, sellAmount
}

func (t *Trader) cancelResidue(ctx context.Context, sell, buy model.Asset) {
	offers, err := t.exchange.FetchOpenOffers(ctx, t.account)
	if err != nil {
		t.log.Warn("trader: could not check for residue offer", "err", err)
		return
	}
	for _, o := range offers {
		// not-found is not an error: CancelOffer swallows it.
		if err := t.exchange.CancelOffer(ctx, t.account, o.OfferID, sell, buy); err != nil {
			t.log.Warn("trader: residue offer cancel failed", "offer", o.OfferID, "err", err)
		}
	}
}

// settle sums matched sold/bought amounts over effects belonging to the
// trader's account whose type is a trade. Sold/bought come from
// effects, not from the original offer: partial fills are the norm.
func (t *Trader) settle(ctx context.Context, transactionID string) (sold, bought float64, err error) {
	effects, err := t.exchange.FetchEffects(ctx, transactionID)
	if err != nil {
		return 0, 0, err
	}
	for _, e := range effects {
		if e.Type != "trade" || e.Account != t.account {
			continue
		}
		sold += e.SoldAmount
		bought += e.BoughtAmount
	}
	return sold, bought, nil
}
