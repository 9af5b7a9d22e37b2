package execution

import (
	"sync"

	"sdexalgo/internal/model"
)

// contextEntry pairs a TradeContext with the per-deployment mutex that
// guards all reads and writes of it.
type contextEntry struct {
	mu  sync.Mutex
	ctx model.TradeContext
}

// contextTable is the Trader's map-of-mutex TradeContext store, guarded
// for insertion by a single short-held global mutex. Two concurrent
// first-advices for the same deployment must resolve to one context, so
// insertion is check-and-put, not a plain put.
type contextTable struct {
	mu    sync.Mutex
	byDep map[string]*contextEntry
}

func newContextTable() *contextTable {
	return &contextTable{byDep: make(map[string]*contextEntry)}
}

// getOrCreate: if no context exists and the
// advice is SELL, ok is false and no context is created (caller logs
// "sell without prior buy" and returns CONT). Otherwise a context is
// created atomically on first access (first = last = advice) or the
// existing one is returned. created reports whether this call created
// the entry: the freshly created context's "last_advice" is only an
// anchor, so step 2's sequencing/cycle check (which would otherwise see
// last_advice == A.advice and reject the very first advice as a
// duplicate) must be skipped for a newly created context.
func (t *contextTable) getOrCreate(advice model.TradeAdvice) (entry *contextEntry, ok bool, created bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, exists := t.byDep[advice.DeploymentID]; exists {
		return e, true, false
	}
	if advice.Advice == model.Sell {
		return nil, false, false
	}
	e := &contextEntry{ctx: model.TradeContext{
		FirstAdvice: advice.Advice,
		LastAdvice:  advice.Advice,
		NumCycles:   advice.NumCycles,
		BuyAmount:   advice.Amount,
	}}
	t.byDep[advice.DeploymentID] = e
	return e, true, true
}

// forget discards a deployment's TradeContext, called once the
// deployment is terminal.
func (t *contextTable) forget(deploymentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byDep, deploymentID)
}
