package binance

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/venuearb/internal/domain"
)

// --------------------------------------------------------------------------
// REST DTOs
// --------------------------------------------------------------------------

// ExchangeInfo is the response of GET /api/v3/exchangeInfo.
type ExchangeInfo struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// SymbolInfo describes one listed symbol. QuoteAssetPrecision is the number
// of decimals of quote amounts; older deployments only send QuotePrecision.
type SymbolInfo struct {
	Symbol              string         `json:"symbol"`
	Status              string         `json:"status"` // "TRADING", "BREAK", ...
	BaseAsset           string         `json:"baseAsset"`
	QuoteAsset          string         `json:"quoteAsset"`
	QuoteAssetPrecision *int32         `json:"quoteAssetPrecision"`
	QuotePrecision      *int32         `json:"quotePrecision"`
	Filters             []SymbolFilter `json:"filters"`
}

// SymbolFilter is one entry of a symbol's filters. Only the fields the
// engine reads are decoded.
type SymbolFilter struct {
	FilterType  string `json:"filterType"`
	TickSize    string `json:"tickSize"`
	StepSize    string `json:"stepSize"`
	MinQty      string `json:"minQty"`
	MinNotional string `json:"minNotional"`
}

// DepthResponse is the response of GET /api/v3/depth.
type DepthResponse struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// AccountResponse is the response of GET /api/v3/account.
type AccountResponse struct {
	Balances []AccountBalance `json:"balances"`
}

// AccountBalance is one asset of the account.
type AccountBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// CoinConfig is one entry of GET /sapi/v1/capital/config/getall.
type CoinConfig struct {
	Coin              string        `json:"coin"`
	WithdrawAllEnable bool          `json:"withdrawAllEnable"`
	NetworkList       []CoinNetwork `json:"networkList"`
}

// CoinNetwork is one withdrawal network of a coin.
type CoinNetwork struct {
	Network        string `json:"network"`
	WithdrawEnable bool   `json:"withdrawEnable"`
}

// OrderResponse is the response of POST /api/v3/order.
type OrderResponse struct {
	Symbol      string `json:"symbol"`
	OrderID     int64  `json:"orderId"`
	Status      string `json:"status"` // "NEW", "PARTIALLY_FILLED", "FILLED", ...
	ExecutedQty string `json:"executedQty"`
}

// APIError is the error body Binance returns with non-2xx responses.
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// combinedMessage wraps every message of a combined stream.
type combinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// DepthUpdate is a <symbol>@depth event.
type DepthUpdate struct {
	EventType string      `json:"e"`
	EventTime int64       `json:"E"`
	Symbol    string      `json:"s"`
	FirstID   int64       `json:"U"`
	FinalID   int64       `json:"u"`
	Bids      [][2]string `json:"b"`
	Asks      [][2]string `json:"a"`
}

// --------------------------------------------------------------------------
// Conversions
// --------------------------------------------------------------------------

// withdrawable reports whether any network of the coin allows withdrawals.
func (c CoinConfig) withdrawable() bool {
	if !c.WithdrawAllEnable {
		return false
	}
	if len(c.NetworkList) == 0 {
		return true
	}
	for _, n := range c.NetworkList {
		if n.WithdrawEnable {
			return true
		}
	}
	return false
}

// precisionOf returns the number of decimals of a step such as "0.00010000".
func precisionOf(step string) int32 {
	step = strings.TrimSpace(step)
	if i := strings.IndexByte(step, '.'); i >= 0 {
		frac := strings.TrimRight(step[i+1:], "0")
		return int32(len(frac))
	}
	return 0
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseLevels(raw [][2]string) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, r := range raw {
		price, err := decimal.NewFromString(r[0])
		if err != nil || !price.IsPositive() {
			continue
		}
		qty, err := decimal.NewFromString(r[1])
		if err != nil || !qty.IsPositive() {
			continue
		}
		out = append(out, domain.NewPriceLevel(price, qty))
	}
	return out
}

func parseChanges(raw [][2]string) []domain.LevelChange {
	out := make([]domain.LevelChange, 0, len(raw))
	for _, r := range raw {
		price, err := decimal.NewFromString(r[0])
		if err != nil || !price.IsPositive() {
			continue
		}
		qty, err := decimal.NewFromString(r[1])
		if err != nil {
			continue
		}
		out = append(out, domain.LevelChange{Price: price, Quantity: qty})
	}
	return out
}
