package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Exchange is the per-venue capability the arbitrage engine trades through.
// Venue specific behaviour (fees, precision, minimums, wire protocol) lives
// behind it; the engine never branches on venue identity.
type Exchange interface {
	Name() string

	// PostTradingFee is the fraction of traded value kept after fees, e.g. 0.999.
	PostTradingFee() decimal.Decimal

	Supports(pair Pair) bool
	// CanWithdraw reports whether asset can be withdrawn. known is false when
	// the venue does not list the asset.
	CanWithdraw(asset string) (allowed, known bool)

	LowestAsk(pair Pair) (decimal.Decimal, error)
	HighestBid(pair Pair) (decimal.Decimal, error)
	AsksCursor(pair Pair) (*Cursor, error)
	BidsCursor(pair Pair) (*Cursor, error)

	Buy(ctx context.Context, order Order) error
	Sell(ctx context.Context, order Order) error

	Balance(asset string) decimal.Decimal

	BasePrecision(pair Pair) int32
	QuotePrecision(pair Pair) int32
	PricePrecision(pair Pair) int32
	MinTradeVolume(pair Pair) decimal.Decimal
	MinQuantity(pair Pair) decimal.Decimal

	// StartMonitoring keeps the venue's books for base/quote in sync until ctx
	// is cancelled.
	StartMonitoring(ctx context.Context, bases []string, quote string) error
}
