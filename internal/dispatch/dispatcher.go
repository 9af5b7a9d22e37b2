// Package dispatch implements the advice dispatcher: a
// tiny per-deployment shim that tags a strategy's raw advice with
// deployment identity and forwards it onto the shared advice bus, so the
// Strategy Worker never needs to know about deployment identity, owner,
// or cycle count.
package dispatch

import (
	"context"
	"log/slog"

	"sdexalgo/internal/metrics"
	"sdexalgo/internal/model"
)

// Run reads raw advice from in and forwards tagged TradeAdvice onto out
// until ctx is cancelled or in closes. A full output bus drops the
// advice rather than blocking the dispatcher.
func Run(ctx context.Context, log *slog.Logger, m *metrics.Metrics, userProfile, deploymentID string, pair model.TradingPair, amount float64, numCycles int, in <-chan model.Advice, out chan<- model.TradeAdvice) {
	for {
		select {
		case <-ctx.Done():
			return
		case advice, ok := <-in:
			if !ok {
				return
			}
			tagged := model.TradeAdvice{
				UserProfile:  userProfile,
				DeploymentID: deploymentID,
				Pair:         pair,
				Advice:       advice,
				Amount:       amount,
				NumCycles:    numCycles,
			}
			select {
			case out <- tagged:
				m.AdviceSent(deploymentID, string(advice))
			default:
				m.DispatcherDrop(deploymentID)
				log.Warn("advice dropped, bus full", "deployment", deploymentID)
			}
		}
	}
}
