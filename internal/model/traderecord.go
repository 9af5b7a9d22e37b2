package model

import "time"

// TradeRecord is an append-only record of an executed trade, tagged by
// either a live deployment id or a backtest id (never both).
type TradeRecord struct {
	Timestamp      time.Time `json:"ts"`
	DeploymentID   string    `json:"deployment_id,omitempty"`
	BacktestID     string    `json:"backtest_id,omitempty"`
	Advice         Advice    `json:"advice"`
	SoldAsset      Asset     `json:"sold_asset"`
	SoldAmount     float64   `json:"sold_amount"`
	BoughtAsset    Asset     `json:"bought_asset"`
	BoughtAmount   float64   `json:"bought_amount"`
}
