package domain

import "strings"

// Pair is a trading pair such as ETH/BTC. Base is the traded asset and Quote
// is the asset prices are denominated in. Both are stored upper case.
type Pair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// NewPair normalises the asset symbols and returns the pair.
func NewPair(base, quote string) Pair {
	return Pair{
		Base:  strings.ToUpper(strings.TrimSpace(base)),
		Quote: strings.ToUpper(strings.TrimSpace(quote)),
	}
}

// String returns "BASE/QUOTE".
func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// Symbol returns the concatenated ticker used by most venues, e.g. "ETHBTC".
func (p Pair) Symbol() string {
	return p.Base + p.Quote
}

// Key returns a redis/lock friendly identifier, e.g. "ETH-BTC".
func (p Pair) Key() string {
	return p.Base + "-" + p.Quote
}

// NormalizeAsset returns the canonical form of an asset symbol.
func NormalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}
