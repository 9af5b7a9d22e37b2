package model

// Advice is a strategy's directional signal.
type Advice string

const (
	Buy  Advice = "BUY"
	Sell Advice = "SELL"
)

// TradeAdvice is raw strategy advice tagged with deployment identity by
// the Advice Dispatcher before it reaches the Trader.
type TradeAdvice struct {
	UserProfile  string      `json:"user_profile"`
	DeploymentID string      `json:"deployment_id"`
	Pair         TradingPair `json:"pair"`
	Advice       Advice      `json:"advice"`
	Amount       float64     `json:"amount"`
	NumCycles    int         `json:"num_cycles"`
}
