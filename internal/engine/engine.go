// Package engine implements the engine controller: it owns the in-memory
// deployment registry and processes DEPLOY/UNDEPLOY/DONE/STOP commands
// from a single-consumer command bus, wiring or tearing down a strategy
// worker + advice dispatcher pair and the fan-out subscription that
// feeds it.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sdexalgo/internal/dispatch"
	"sdexalgo/internal/marketdata/fanout"
	"sdexalgo/internal/metrics"
	"sdexalgo/internal/model"
	"sdexalgo/internal/notification"
	"sdexalgo/internal/strategy"
)

// candleBusSize/adviceBusSize bound the per-deployment channels the
// engine allocates on DEPLOY.
const (
	candleBusSize = 64
	adviceBusSize = 16
)

// Forgetter discards a deployment's in-memory trade state once it
// terminates. Implemented by *execution.Trader; kept as a narrow
// interface here so the Engine Controller does not import execution's
// full surface.
type Forgetter interface {
	Forget(deploymentID string)
}

// deploymentHandle is everything the Engine Controller must tear down
// when a deployment leaves RUNNING.
type deploymentHandle struct {
	algo       model.Algo
	pairKey    string
	cancel     context.CancelFunc
	candleSink chan model.Candle
}

// Engine is the single writer of both the deployment registry and the
// Fan-out subscription map: both are mutated only from the
// command-processing goroutine started by Run.
type Engine struct {
	fanout     *fanout.Fanout
	algos      model.AlgoStore
	deployment model.DeploymentStore
	strategies *strategy.Registry
	forgetter  Forgetter
	log        *slog.Logger

	mu        sync.RWMutex // guards live for concurrent read-only status queries only
	live      map[string]*deploymentHandle
	adviceOut chan<- model.TradeAdvice

	statusSink chan<- model.Deployment // optional, set via SetStatusSink
	notifier   notification.Notifier   // optional, set via SetNotifier
	metrics    *metrics.Metrics        // optional, set via SetMetrics
}

// New builds an Engine Controller. adviceOut is the shared advice bus the
// Trader consumes from; every deployment's Dispatcher forwards onto it.
func New(fo *fanout.Fanout, algos model.AlgoStore, deployments model.DeploymentStore, strategies *strategy.Registry, forgetter Forgetter, adviceOut chan<- model.TradeAdvice, log *slog.Logger) *Engine {
	return &Engine{
		fanout:     fo,
		algos:      algos,
		deployment: deployments,
		strategies: strategies,
		forgetter:  forgetter,
		adviceOut:  adviceOut,
		log:        log,
		live:       make(map[string]*deploymentHandle),
	}
}

// SetStatusSink wires an optional channel the Engine Controller best-effort
// publishes every deployment status transition onto, for the Redis
// status publisher to fan out to dashboards. Safe to leave unset;
// publishStatus is then a no-op.
func (e *Engine) SetStatusSink(ch chan<- model.Deployment) {
	e.statusSink = ch
}

// SetNotifier wires an optional alert channel for deployment failures.
func (e *Engine) SetNotifier(n notification.Notifier) {
	e.notifier = n
}

// SetMetrics wires the optional metrics surface; safe to leave unset.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

func (e *Engine) alert(deploymentID, errMsg string) {
	if e.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := e.notifier.Send(ctx, notification.Alert{
		Level:   notification.AlertCritical,
		Title:   "deployment errored",
		Message: "deployment " + deploymentID + ": " + errMsg,
	})
	if err != nil {
		e.log.Warn("engine: alert delivery failed", "deployment", deploymentID, "err", err)
	}
}

func (e *Engine) publishStatus(dep model.Deployment) {
	if e.statusSink == nil {
		return
	}
	select {
	case e.statusSink <- dep:
	default:
	}
}

// Run consumes commands from cmdCh until ctx is cancelled or cmdCh closes.
// This is the single command-serialization point of the engine: the
// Fan-out subscription and the deployment map are always updated from
// this one goroutine, so subscribers are added before a worker starts and
// removed before it is cancelled.
func (e *Engine) Run(ctx context.Context, cmdCh <-chan model.EngineCommand) {
	for {
		select {
		case <-ctx.Done():
			e.shutdownAll()
			return
		case cmd, ok := <-cmdCh:
			if !ok {
				e.shutdownAll()
				return
			}
			e.handle(ctx, cmd)
		}
	}
}

func (e *Engine) handle(ctx context.Context, cmd model.EngineCommand) {
	switch cmd.Kind {
	case model.CmdDeploy:
		e.deploy(ctx, cmd.Deployment)
	case model.CmdUndeploy:
		e.teardown(cmd.DeploymentID, model.DeploymentStopped, "")
	case model.CmdDone:
		e.teardown(cmd.DeploymentID, model.DeploymentFinished, "")
	case model.CmdStop:
		e.teardown(cmd.DeploymentID, model.DeploymentError, cmd.Err)
	default:
		e.log.Warn("engine: unknown command kind", "kind", cmd.Kind)
	}
}

// deploy handles DEPLOY: allocate channels, register the
// candle sink under the algo's pair in the Fan-out registry *before*
// spawning the worker, look up the strategy factory, and on any failure
// unregister the sink and transition the deployment to ERROR rather than
// leaving a dangling subscription.
func (e *Engine) deploy(ctx context.Context, dep model.Deployment) {
	algo, err := e.algos.GetAlgo(ctx, dep.Owner, dep.AlgoName)
	if err != nil {
		e.fail(ctx, dep.ID, fmt.Errorf("load algo %q: %w", dep.AlgoName, err))
		return
	}

	candleCh := make(chan model.Candle, candleBusSize)
	pairKey := algo.Pair.Key()
	e.fanout.Subscribe(pairKey, fanout.Subscription{
		DeploymentID: dep.ID,
		Resolution:   algo.Resolution,
		Sink:         candleCh,
	})

	strat, err := e.strategies.New(algo.Strategy, algo.Parameters)
	if err != nil {
		e.fanout.Unsubscribe(pairKey, dep.ID)
		e.fail(ctx, dep.ID, &model.ConfigError{Op: "instantiate strategy " + algo.Strategy, Err: err})
		return
	}

	worker := strategy.NewWorker(dep.ID, strat, e.log)
	worker.SetMetrics(e.metrics)
	if err := worker.Setup(); err != nil {
		e.fanout.Unsubscribe(pairKey, dep.ID)
		e.fail(ctx, dep.ID, err)
		return
	}

	if err := e.deployment.UpdateDeploymentStatus(ctx, dep.ID, model.DeploymentRunning, ""); err != nil {
		e.log.Error("engine: persist RUNNING status failed", "deployment", dep.ID, "err", err)
	}
	dep.Status = model.DeploymentRunning
	e.metrics.DeploymentTransition("", string(model.DeploymentRunning))
	e.publishStatus(dep)

	runCtx, cancel := context.WithCancel(ctx)
	adviceCh := make(chan model.Advice, adviceBusSize)

	go worker.Run(runCtx, candleCh, adviceCh)
	go dispatch.Run(runCtx, e.log, e.metrics, dep.Owner, dep.ID, algo.Pair, dep.Amount, dep.NumCycles, adviceCh, e.adviceOut)

	e.mu.Lock()
	e.live[dep.ID] = &deploymentHandle{algo: algo, pairKey: pairKey, cancel: cancel, candleSink: candleCh}
	e.mu.Unlock()

	e.log.Info("engine: deployed", "deployment", dep.ID, "algo", algo.Name, "pair", pairKey, "resolution", algo.Resolution)
}

// fail records a deployment as ERROR without ever having started a
// Worker. Used for configuration-time DEPLOY failures.
func (e *Engine) fail(ctx context.Context, deploymentID string, cause error) {
	e.log.Error("engine: deploy failed, transitioning to ERROR", "deployment", deploymentID, "err", cause)
	if err := e.deployment.UpdateDeploymentStatus(ctx, deploymentID, model.DeploymentError, cause.Error()); err != nil {
		e.log.Error("engine: persist ERROR status failed", "deployment", deploymentID, "err", err)
	}
	e.metrics.DeploymentTransition("", string(model.DeploymentError))
	e.publishStatus(model.Deployment{ID: deploymentID, Status: model.DeploymentError, Error: cause.Error()})
	e.alert(deploymentID, cause.Error())
}

// teardown handles UNDEPLOY/DONE/STOP: the Fan-out subscription is
// removed first, so no further candle is enqueued for a worker about to
// be cancelled, then the worker/dispatcher goroutines are cancelled, the
// trade context is forgotten, and the persisted status is updated.
func (e *Engine) teardown(deploymentID string, status model.DeploymentStatus, errMsg string) {
	e.mu.Lock()
	h, ok := e.live[deploymentID]
	if ok {
		delete(e.live, deploymentID)
	}
	e.mu.Unlock()
	if !ok {
		e.log.Warn("engine: teardown for unknown/already-terminal deployment", "deployment", deploymentID, "status", status)
		return
	}

	e.fanout.Unsubscribe(h.pairKey, deploymentID)
	h.cancel()
	if e.forgetter != nil {
		e.forgetter.Forget(deploymentID)
	}

	ctx := context.Background()
	if err := e.deployment.UpdateDeploymentStatus(ctx, deploymentID, status, errMsg); err != nil {
		e.log.Error("engine: persist terminal status failed", "deployment", deploymentID, "status", status, "err", err)
	}
	e.metrics.DeploymentTransition(string(model.DeploymentRunning), string(status))
	e.publishStatus(model.Deployment{ID: deploymentID, Status: status, Error: errMsg})
	if status == model.DeploymentError {
		e.alert(deploymentID, errMsg)
	}
	e.log.Info("engine: deployment terminal", "deployment", deploymentID, "status", status)
}

// shutdownAll cancels every still-live deployment's worker/dispatcher on
// process shutdown, without touching persisted status; a restart is
// expected to re-deploy whatever was RUNNING.
func (e *Engine) shutdownAll() {
	e.mu.Lock()
	handles := e.live
	e.live = make(map[string]*deploymentHandle)
	e.mu.Unlock()

	for id, h := range handles {
		e.fanout.Unsubscribe(h.pairKey, id)
		h.cancel()
	}
}

// Live reports whether a deployment currently has a running worker. Safe
// to call from any goroutine.
func (e *Engine) Live(deploymentID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.live[deploymentID]
	return ok
}
