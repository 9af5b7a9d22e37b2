// Package fanout implements the resolution fan-out: given a shared
// minute-candle source and a registry mapping pair -> list of
// (resolution, per-deployment-sink), it delivers each subscribed
// deployment a stream of candles at its requested resolution. An
// aggregate is emitted only when the first candle of the next bucket
// arrives, so the most recent bucket is never emitted early.
package fanout

import (
	"context"
	"log/slog"
	"sync"

	"sdexalgo/internal/metrics"
	"sdexalgo/internal/model"
)

// Subscription is one deployment's (resolution, sink) registration for a
// trading pair.
type Subscription struct {
	DeploymentID string
	Resolution   model.Resolution
	Sink         chan<- model.Candle
}

// aggKey identifies one (pair, resolution) in-progress aggregate.
type aggKey struct {
	pair string
	res  model.Resolution
}

// Fanout owns the subscription registry and the per-(pair,resolution)
// in-progress aggregates. The registry is mutated only by the Engine
// Controller (Subscribe/Unsubscribe) and read by the single Run
// goroutine — guarded by a RWMutex since those are two different
// goroutines; the aggregate map itself is touched only from Run and
// needs no lock.
type Fanout struct {
	mu   sync.RWMutex
	subs map[string][]Subscription // pair key -> subscriptions

	aggregates map[aggKey]model.Candle
	metrics    *metrics.Metrics
	log        *slog.Logger
}

// New builds an empty Fanout.
func New(log *slog.Logger) *Fanout {
	return &Fanout{
		subs:       make(map[string][]Subscription),
		aggregates: make(map[aggKey]model.Candle),
		log:        log,
	}
}

// SetMetrics wires the optional metrics surface; safe to leave unset.
func (f *Fanout) SetMetrics(m *metrics.Metrics) { f.metrics = m }

// Subscribe registers a deployment's candle sink for a pair at a
// resolution. Must be called before the deployment's strategy worker
// starts.
func (f *Fanout) Subscribe(pairKey string, sub Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[pairKey] = append(f.subs[pairKey], sub)
}

// Unsubscribe removes a deployment's subscription. Must be called before
// the deployment's Strategy Worker is cancelled, so no further candle is
// enqueued for a cancelled worker.
func (f *Fanout) Unsubscribe(pairKey, deploymentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := f.subs[pairKey]
	out := subs[:0]
	for _, s := range subs {
		if s.DeploymentID != deploymentID {
			out = append(out, s)
		}
	}
	f.subs[pairKey] = out
}

// Run consumes minute candles from in and fans them out per subscription
// until ctx is cancelled or in closes.
func (f *Fanout) Run(ctx context.Context, in <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-in:
			if !ok {
				return
			}
			f.deliver(c)
		}
	}
}

func (f *Fanout) deliver(c model.Candle) {
	f.mu.RLock()
	subs := append([]Subscription(nil), f.subs[c.Key()]...)
	f.mu.RUnlock()

	// The in-progress aggregate is shared per (pair, resolution), so the
	// bucket-boundary decision must be made exactly once per resolution,
	// not once per subscription: a per-subscription decision would let
	// the first subscriber's emit replace the aggregate and the next
	// subscriber merge the new candle into itself.
	byRes := make(map[model.Resolution][]Subscription)
	for _, sub := range subs {
		if sub.Resolution == model.Res1m {
			f.send(sub, c)
			continue
		}
		byRes[sub.Resolution] = append(byRes[sub.Resolution], sub)
	}

	for res, group := range byRes {
		key := aggKey{pair: c.Key(), res: res}
		agg, ok := f.aggregates[key]
		switch {
		case !ok:
			f.aggregates[key] = c
		case model.SameBucket(agg.Start, c.Start, res):
			agg.Merge(c)
			f.aggregates[key] = agg
		default:
			for _, sub := range group {
				f.send(sub, agg)
			}
			f.aggregates[key] = c
		}
	}
}

func (f *Fanout) send(sub Subscription, c model.Candle) {
	select {
	case sub.Sink <- c:
	default:
		f.metrics.FanoutDrop(sub.DeploymentID)
		f.log.Warn("fanout: sink full, dropping candle", "deployment", sub.DeploymentID, "pair", c.Key())
	}
}
