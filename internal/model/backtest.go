package model

import "time"

// BacktestStatus is the lifecycle state of a BacktestRequest. Transitions
// are monotone: NEW -> RUNNING -> {FINISHED, ERROR}.
type BacktestStatus string

const (
	BacktestNew      BacktestStatus = "NEW"
	BacktestRunning  BacktestStatus = "RUNNING"
	BacktestFinished BacktestStatus = "FINISHED"
	BacktestError    BacktestStatus = "ERROR"
)

// BacktestRequest drives the Backtest Runner. AlgoSnapshot is a copy of the
// Algo as it existed when the request was created (the Algo itself may be
// deleted afterward without invalidating the request).
type BacktestRequest struct {
	ID           string         `json:"id"`
	Owner        string         `json:"owner"`
	AlgoSnapshot Algo           `json:"algo_snapshot"`
	StartTS      time.Time      `json:"start_ts"`
	EndTS        time.Time      `json:"end_ts"`
	Status       BacktestStatus `json:"status"`
	Error        string         `json:"error,omitempty"`
}
