// Package api provides the admin HTTP surface: a thin net/http.ServeMux
// wired directly to the SQLite store and the engine-command bus, with no
// auth and no validation beyond shape.
//
// Every handler replies with {"status":"OK", ...} or
// {"status":"ERROR","error_code":N,"error_desc":"..."}.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"sdexalgo/internal/model"
)

// Error codes exposed in the error envelope.
const (
	errInternal          = 1
	errIncorrectRequest  = 2
	errResourceNotFound  = 3
	errResourceAlreadyExist = 4
)

var errDescriptions = map[int]string{
	errInternal:             "Internal error",
	errIncorrectRequest:     "Incorrect or missing request parameters",
	errResourceNotFound:     "Resource not found",
	errResourceAlreadyExist: "Resource already exist",
}

// Router wires the admin HTTP surface to the persistence ports and the
// engine-command bus (model.EngineCommand). Owner identity has no auth
// layer; it is read from the X-User-Id header, defaulting to "default".
type Router struct {
	algos       model.AlgoStore
	deployments model.DeploymentStore
	backtests   model.BacktestStore
	trades      model.TradeStore
	commands    chan<- model.EngineCommand
}

// NewRouter builds the admin HTTP ServeMux.
func NewRouter(algos model.AlgoStore, deployments model.DeploymentStore, backtests model.BacktestStore, trades model.TradeStore, commands chan<- model.EngineCommand) *http.ServeMux {
	rt := &Router{algos: algos, deployments: deployments, backtests: backtests, trades: trades, commands: commands}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, nil)
	})

	mux.HandleFunc("/algo/create", rt.createAlgo)
	mux.HandleFunc("/list/algos", rt.listAlgos)
	mux.HandleFunc("/algo/", rt.algoOrDeployedSubroute) // dispatches /algo/{name}, /algo/deploy, /algo/undeploy/{id}, /algo/deployed/...

	mux.HandleFunc("/backtest/run", rt.runBacktest)
	mux.HandleFunc("/backtest/status/", rt.backtestStatus)
	mux.HandleFunc("/backtest/trades/", rt.backtestTrades)
	mux.HandleFunc("/list/backtests", rt.listBacktests)

	mux.HandleFunc("/list/algos/deployed", rt.listDeployed)
	mux.HandleFunc("/delete/algo/", rt.deleteAlgo)

	return mux
}

// ── /algo/* dispatch ──

// algoOrDeployedSubroute fans out the handful of routes that share the
// "/algo/" prefix: a bare name lookup, deploy, undeploy, and
// the two deployed-deployment endpoints (status and trades).
func (rt *Router) algoOrDeployedSubroute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/algo/")
	switch {
	case path == "deploy" && r.Method == http.MethodPost:
		rt.deployAlgo(w, r)
	case strings.HasPrefix(path, "undeploy/") && r.Method == http.MethodPost:
		rt.undeployAlgo(w, r, strings.TrimPrefix(path, "undeploy/"))
	case strings.HasPrefix(path, "deployed/status/"):
		rt.deployedStatus(w, r, strings.TrimPrefix(path, "deployed/status/"))
	case strings.HasPrefix(path, "deployed/trades/"):
		rt.deployedTrades(w, r, strings.TrimPrefix(path, "deployed/trades/"))
	case path != "" && r.Method == http.MethodGet:
		rt.getAlgo(w, r, path)
	default:
		writeErr(w, http.StatusNotFound, errResourceNotFound)
	}
}

func owner(r *http.Request) string {
	if u := r.Header.Get("X-User-Id"); u != "" {
		return u
	}
	return "default"
}

// ── algo CRUD ──

type createAlgoRequest struct {
	AlgoName            string            `json:"algo_name"`
	TradePair           string            `json:"trade_pair"`
	CandleSize          string            `json:"candle_size"`
	StrategyName        string            `json:"strategy_name"`
	StrategyParameters  map[string]string `json:"strategy_parameters"`
}

func (rt *Router) createAlgo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, errIncorrectRequest)
		return
	}
	var req createAlgoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, errIncorrectRequest)
		return
	}
	pair, res, err := parsePairAndResolution(req.TradePair, req.CandleSize)
	if err != nil || req.AlgoName == "" || req.StrategyName == "" {
		writeErr(w, http.StatusBadRequest, errIncorrectRequest)
		return
	}

	usr := owner(r)
	if _, err := rt.algos.GetAlgo(r.Context(), usr, req.AlgoName); err == nil {
		writeErr(w, http.StatusBadRequest, errResourceAlreadyExist)
		return
	}

	algo := model.Algo{
		Name: req.AlgoName, Owner: usr, Pair: pair, Resolution: res,
		Strategy: req.StrategyName, Parameters: req.StrategyParameters,
	}
	if err := rt.algos.CreateAlgo(r.Context(), algo); err != nil {
		writeErr(w, http.StatusInternalServerError, errInternal)
		return
	}
	writeOK(w, nil)
}

func (rt *Router) listAlgos(w http.ResponseWriter, r *http.Request) {
	algos, err := rt.algos.ListAlgos(r.Context(), owner(r))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, errInternal)
		return
	}
	writeOK(w, algos)
}

func (rt *Router) getAlgo(w http.ResponseWriter, r *http.Request, name string) {
	algo, err := rt.algos.GetAlgo(r.Context(), owner(r), name)
	if err != nil {
		writeErr(w, http.StatusNotFound, errResourceNotFound)
		return
	}
	writeOK(w, algo)
}

func (rt *Router) deleteAlgo(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/delete/algo/")
	if name == "" {
		writeErr(w, http.StatusBadRequest, errIncorrectRequest)
		return
	}
	if err := rt.algos.DeleteAlgo(r.Context(), owner(r), name); err != nil {
		writeErr(w, http.StatusInternalServerError, errInternal)
		return
	}
	writeOK(w, nil)
}

// ── deploy / undeploy ──

type deployRequest struct {
	AlgoName  string  `json:"algo_name"`
	Amount    float64 `json:"amount"`
	NumCycles int     `json:"num_cycles"`
}

func (rt *Router) deployAlgo(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AlgoName == "" || req.Amount <= 0 {
		writeErr(w, http.StatusBadRequest, errIncorrectRequest)
		return
	}
	usr := owner(r)
	if _, err := rt.algos.GetAlgo(r.Context(), usr, req.AlgoName); err != nil {
		writeErr(w, http.StatusNotFound, errResourceNotFound)
		return
	}

	dep := model.Deployment{
		ID: uuid.NewString(), Owner: usr, AlgoName: req.AlgoName,
		Amount: req.Amount, NumCycles: req.NumCycles, Status: model.DeploymentNew,
	}
	if err := rt.deployments.CreateDeployment(r.Context(), dep); err != nil {
		writeErr(w, http.StatusInternalServerError, errInternal)
		return
	}
	rt.enqueue(model.EngineCommand{Kind: model.CmdDeploy, UserProfile: usr, Deployment: dep})
	writeOK(w, map[string]string{"deploy_id": dep.ID})
}

func (rt *Router) undeployAlgo(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" {
		writeErr(w, http.StatusBadRequest, errIncorrectRequest)
		return
	}
	rt.enqueue(model.EngineCommand{Kind: model.CmdUndeploy, UserProfile: owner(r), DeploymentID: id})
	writeOK(w, nil)
}

func (rt *Router) deployedStatus(w http.ResponseWriter, r *http.Request, id string) {
	dep, err := rt.deployments.GetDeployment(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusNotFound, errResourceNotFound)
		return
	}
	writeOK(w, dep)
}

func (rt *Router) deployedTrades(w http.ResponseWriter, r *http.Request, id string) {
	trades, err := rt.trades.ListTradesByDeployment(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, errInternal)
		return
	}
	writeOK(w, trades)
}

func (rt *Router) listDeployed(w http.ResponseWriter, r *http.Request) {
	deps, err := rt.deployments.ListDeployments(r.Context(), owner(r))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, errInternal)
		return
	}
	writeOK(w, deps)
}

// enqueue forwards a command to the Engine Controller without blocking.
// If the command bus is full the command is dropped silently and the
// caller still replies OK; this is best-effort like the rest of the bus
// model.
func (rt *Router) enqueue(cmd model.EngineCommand) {
	select {
	case rt.commands <- cmd:
	default:
	}
}

// ── backtests ──

type backtestRunRequest struct {
	AlgoName string `json:"algo_name"`
	StartTS  int64  `json:"start_ts"`
	EndTS    int64  `json:"end_ts"`
}

func (rt *Router) runBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtestRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AlgoName == "" {
		writeErr(w, http.StatusBadRequest, errIncorrectRequest)
		return
	}
	usr := owner(r)
	algo, err := rt.algos.GetAlgo(r.Context(), usr, req.AlgoName)
	if err != nil {
		writeErr(w, http.StatusNotFound, errResourceNotFound)
		return
	}

	bt := model.BacktestRequest{
		ID: uuid.NewString(), Owner: usr, AlgoSnapshot: algo,
		StartTS: time.Unix(req.StartTS, 0).UTC(), EndTS: time.Unix(req.EndTS, 0).UTC(),
		Status: model.BacktestNew,
	}
	if err := rt.backtests.CreateBacktest(r.Context(), bt); err != nil {
		writeErr(w, http.StatusInternalServerError, errInternal)
		return
	}
	writeOK(w, map[string]string{"req_id": bt.ID})
}

func (rt *Router) backtestStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/backtest/status/")
	bt, err := rt.backtests.GetBacktest(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusNotFound, errResourceNotFound)
		return
	}
	writeOK(w, bt)
}

func (rt *Router) backtestTrades(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/backtest/trades/")
	trades, err := rt.trades.ListTradesByBacktest(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, errInternal)
		return
	}
	writeOK(w, trades)
}

func (rt *Router) listBacktests(w http.ResponseWriter, r *http.Request) {
	bts, err := rt.backtests.ListBacktests(r.Context(), owner(r))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, errInternal)
		return
	}
	writeOK(w, bts)
}

// ── response envelope ──

func writeOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{"status": "OK"}
	if data != nil {
		resp["data"] = data
	}
	json.NewEncoder(w).Encode(resp)
}

func writeErr(w http.ResponseWriter, httpStatus, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"status":     "ERROR",
		"error_code": code,
		"error_desc": errDescriptions[code],
	})
}

// ── wire-format parsing ──

// parsePairAndResolution parses a "baseCode_baseIssuer_counterCode_counterIssuer"
// trade-pair key (model.TradingPair.Key's format) and validates the
// resolution string against the enumerated set.
func parsePairAndResolution(pairKey, candleSize string) (model.TradingPair, model.Resolution, error) {
	res := model.Resolution(candleSize)
	if !res.Valid() {
		return model.TradingPair{}, "", errors.New("invalid candle size")
	}
	parts := strings.Split(pairKey, "_")
	base, rest, err := parseAssetPrefix(parts)
	if err != nil {
		return model.TradingPair{}, "", err
	}
	counter, _, err := parseAssetPrefix(rest)
	if err != nil {
		return model.TradingPair{}, "", err
	}
	return model.TradingPair{Base: base, Counter: counter}, res, nil
}

// parseAssetPrefix consumes the leading asset encoding from parts: either
// "CODE_native" for the distinguished native asset or "CODE_ISSUER" for
// everything else, and returns the remaining parts for the next asset.
func parseAssetPrefix(parts []string) (model.Asset, []string, error) {
	if len(parts) < 2 {
		return model.Asset{}, nil, errors.New("malformed asset in trade pair key")
	}
	if parts[1] == "native" {
		return model.NativeAsset, parts[2:], nil
	}
	return model.NewAsset(parts[0], parts[1]), parts[2:], nil
}
