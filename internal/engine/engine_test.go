package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"sdexalgo/internal/marketdata/fanout"
	"sdexalgo/internal/model"
	"sdexalgo/internal/strategy"
)

// fakeAlgoStore and fakeDeploymentStore are minimal in-memory fakes for
// the two persistence ports the Engine Controller touches, matching the
// rest of the repo's no-mocking-framework, plain-interface-fake style.

type fakeAlgoStore struct {
	algos map[string]model.Algo
}

func (s *fakeAlgoStore) CreateAlgo(ctx context.Context, a model.Algo) error { return nil }
func (s *fakeAlgoStore) GetAlgo(ctx context.Context, owner, name string) (model.Algo, error) {
	a, ok := s.algos[owner+"/"+name]
	if !ok {
		return model.Algo{}, errors.New("not found")
	}
	return a, nil
}
func (s *fakeAlgoStore) ListAlgos(ctx context.Context, owner string) ([]model.Algo, error) {
	return nil, nil
}
func (s *fakeAlgoStore) DeleteAlgo(ctx context.Context, owner, name string) error { return nil }

type fakeDeploymentStore struct {
	mu       sync.Mutex
	statuses map[string]model.DeploymentStatus
}

func newFakeDeploymentStore() *fakeDeploymentStore {
	return &fakeDeploymentStore{statuses: make(map[string]model.DeploymentStatus)}
}
func (s *fakeDeploymentStore) CreateDeployment(ctx context.Context, d model.Deployment) error {
	return nil
}
func (s *fakeDeploymentStore) UpdateDeploymentStatus(ctx context.Context, id string, status model.DeploymentStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
	return nil
}
func (s *fakeDeploymentStore) GetDeployment(ctx context.Context, id string) (model.Deployment, error) {
	return model.Deployment{}, nil
}
func (s *fakeDeploymentStore) ListDeployments(ctx context.Context, owner string) ([]model.Deployment, error) {
	return nil, nil
}
func (s *fakeDeploymentStore) statusOf(id string) model.DeploymentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[id]
}

type fakeForgetter struct {
	mu       sync.Mutex
	forgotten []string
}

func (f *fakeForgetter) Forget(deploymentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, deploymentID)
}

func discardLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testPair() model.TradingPair {
	return model.TradingPair{Base: model.NativeAsset, Counter: model.NewAsset("USD", "IssuerA")}
}

// TestEngineDeployUndeploy exercises the full lifecycle: DEPLOY
// registers a Fan-out subscription and transitions the deployment to
// RUNNING; UNDEPLOY removes the subscription before the worker is
// cancelled and transitions to STOPPED.
func TestEngineDeployUndeploy(t *testing.T) {
	algos := &fakeAlgoStore{algos: map[string]model.Algo{
		"alice/trend": {
			Name: "trend", Owner: "alice", Pair: testPair(), Resolution: model.Res1m,
			Strategy: "dummy_alternator", Parameters: map[string]string{},
		},
	}}
	deployments := newFakeDeploymentStore()
	forgetter := &fakeForgetter{}
	fo := fanout.New(discardLog())
	adviceOut := make(chan model.TradeAdvice, 8)

	e := New(fo, algos, deployments, strategy.Default(), forgetter, adviceOut, discardLog())

	cmdCh := make(chan model.EngineCommand, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx, cmdCh)

	dep := model.Deployment{ID: "d1", Owner: "alice", AlgoName: "trend", Amount: 100, NumCycles: 2}
	cmdCh <- model.EngineCommand{Kind: model.CmdDeploy, Deployment: dep}

	waitFor(t, func() bool { return deployments.statusOf("d1") == model.DeploymentRunning })
	waitFor(t, func() bool { return e.Live("d1") })

	cmdCh <- model.EngineCommand{Kind: model.CmdUndeploy, DeploymentID: "d1"}
	waitFor(t, func() bool { return deployments.statusOf("d1") == model.DeploymentStopped })
	waitFor(t, func() bool { return !e.Live("d1") })

	forgetter.mu.Lock()
	defer forgetter.mu.Unlock()
	if len(forgetter.forgotten) != 1 || forgetter.forgotten[0] != "d1" {
		t.Errorf("forgotten = %v, want [d1]", forgetter.forgotten)
	}
}

// TestEngineDeployUnknownStrategy exercises the configuration-error
// path: instantiating an unknown strategy must unregister the Fan-out
// subscription it had already registered and transition to ERROR.
func TestEngineDeployUnknownStrategy(t *testing.T) {
	algos := &fakeAlgoStore{algos: map[string]model.Algo{
		"alice/bad": {
			Name: "bad", Owner: "alice", Pair: testPair(), Resolution: model.Res1m,
			Strategy: "no_such_strategy", Parameters: map[string]string{},
		},
	}}
	deployments := newFakeDeploymentStore()
	fo := fanout.New(discardLog())
	adviceOut := make(chan model.TradeAdvice, 8)
	e := New(fo, algos, deployments, strategy.Default(), nil, adviceOut, discardLog())

	cmdCh := make(chan model.EngineCommand, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx, cmdCh)

	dep := model.Deployment{ID: "d2", Owner: "alice", AlgoName: "bad", Amount: 100, NumCycles: 1}
	cmdCh <- model.EngineCommand{Kind: model.CmdDeploy, Deployment: dep}

	waitFor(t, func() bool { return deployments.statusOf("d2") == model.DeploymentError })
	if e.Live("d2") {
		t.Error("deployment should not be live after a configuration error")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
