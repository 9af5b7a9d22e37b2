package model

// TradingPair is an ordered (base, counter) pair of Assets traded against
// each other. BUY advice sells base and buys counter; SELL sells counter
// and buys base.
type TradingPair struct {
	Base    Asset `json:"base"`
	Counter Asset `json:"counter"`
}

// Key returns the storage/wire key: "baseCode_baseIssuer_counterCode_counterIssuer".
// The native asset's "_native" suffix collapses into the same separator
// scheme used by Asset.Key, so the pair key is simply the two asset keys
// joined.
func (p TradingPair) Key() string {
	return p.Base.Key() + "_" + p.Counter.Key()
}

// Equal reports whether two trading pairs refer to the same ordered pair
// of assets.
func (p TradingPair) Equal(other TradingPair) bool {
	return p.Base.Equal(other.Base) && p.Counter.Equal(other.Counter)
}
