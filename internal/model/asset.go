package model

// Asset identifies a tradeable unit on the exchange: either the
// distinguished native asset, or a (code, issuer) pair.
type Asset struct {
	Native bool   `json:"native"`
	Code   string `json:"code,omitempty"`
	Issuer string `json:"issuer,omitempty"`
}

// NativeAsset is the well-known native asset of the ledger.
var NativeAsset = Asset{Native: true}

// NewAsset builds a non-native asset from a code and issuer account id.
func NewAsset(code, issuer string) Asset {
	return Asset{Code: code, Issuer: issuer}
}

// Key returns the wire/storage key for this asset: "XLM_native" for the
// native asset, "CODE_ISSUER" otherwise.
func (a Asset) Key() string {
	if a.Native {
		return "XLM_native"
	}
	return a.Code + "_" + a.Issuer
}

// Equal reports whether two assets refer to the same ledger entry.
func (a Asset) Equal(other Asset) bool {
	if a.Native != other.Native {
		return false
	}
	if a.Native {
		return true
	}
	return a.Code == other.Code && a.Issuer == other.Issuer
}
