package model

// TradeContext is per-deployment trading state held only in memory by the
// Trader. It is created on the first BUY advice for a deployment and
// discarded when the deployment terminates.
//
// Invariants: CurrentCycles <= NumCycles; LastAdvice never equals the
// advice currently being processed past the sequencing check (the Trader
// enforces this before mutating the context).
type TradeContext struct {
	FirstAdvice   Advice
	LastAdvice    Advice
	CurrentCycles int
	NumCycles     int
	BuyAmount     float64
	SellAmount    float64
}
