package model

import (
	"encoding/json"
	"time"
)

// Candle is one OHLCV bucket for a TradingPair at a given Resolution.
// Invariants: Low <= Open, Close <= High; BaseVolume, CounterVolume >= 0.
// A candle is in-progress until its bucket boundary is crossed, at which
// point it is closed and immutable — callers that hold a Candle value
// after observing it on a bus must treat it as a snapshot, not a handle
// to mutable state.
type Candle struct {
	Pair          TradingPair `json:"pair"`
	Resolution    Resolution  `json:"resolution"`
	Start         time.Time   `json:"start"`
	Open          float64     `json:"open"`
	High          float64     `json:"high"`
	Low           float64     `json:"low"`
	Close         float64     `json:"close"`
	BaseVolume    float64     `json:"base_volume"`
	CounterVolume float64     `json:"counter_volume"`
}

// Key returns the candle's pair key, for use as a map key in per-pair
// aggregation state.
func (c Candle) Key() string { return c.Pair.Key() }

// NewFromTrade starts a fresh in-progress candle from a single trade row.
func NewFromTrade(pair TradingPair, res Resolution, ts time.Time, price, baseAmount, counterAmount float64) Candle {
	return Candle{
		Pair:          pair,
		Resolution:    res,
		Start:         ts,
		Open:          price,
		High:          price,
		Low:           price,
		Close:         price,
		BaseVolume:    baseAmount,
		CounterVolume: counterAmount,
	}
}

// Update folds one more trade into an in-progress candle.
func (c *Candle) Update(price, baseAmount, counterAmount float64) {
	c.Close = price
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.BaseVolume += baseAmount
	c.CounterVolume += counterAmount
}

// Merge folds a closed candle `next` (of the same resolution bucket) into
// an in-progress aggregate, per the Resolution Fan-out's merge rule:
// close <- next.close, high <- max, low <- min, volumes +=.
func (c *Candle) Merge(next Candle) {
	c.Close = next.Close
	if next.High > c.High {
		c.High = next.High
	}
	if next.Low < c.Low {
		c.Low = next.Low
	}
	c.BaseVolume += next.BaseVolume
	c.CounterVolume += next.CounterVolume
}

// JSON returns the JSON encoding of the candle (ignoring errors — used
// only for best-effort status fan-out, never for persistence).
func (c Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
