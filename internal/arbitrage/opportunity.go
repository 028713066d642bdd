// Package arbitrage finds and sizes cross-venue arbitrage opportunities and
// schedules their execution.
package arbitrage

import (
	"github.com/alanyoungcy/venuearb/internal/domain"
	"github.com/shopspring/decimal"
)

// Sizing is the result of walking one venue's asks against another venue's
// bids.
type Sizing struct {
	BuyPrice   decimal.Decimal // last profitable ask
	BuyVolume  decimal.Decimal // base bought
	SellPrice  decimal.Decimal // last profitable bid
	SellVolume decimal.Decimal // base sold
}

var initialSellPrice = decimal.NewFromInt(1000)

// Optimize walks asks (best first) against bids (best first) while the
// ask/bid ratio stays at or below ratio and both budgets remain. The walk
// stops at the first level without a positive price. quoteBudget
// caps the quote asset spent buying; baseBudget caps the base asset sold.
// Both budgets are floored to their scale before the walk. The cursors' levels
// are consumed, so callers must pass private copies.
func Optimize(asks, bids *domain.Cursor, ratio, quoteBudget, baseBudget decimal.Decimal, baseScale, quoteScale int32) Sizing {
	quoteRemaining := quoteBudget.RoundFloor(quoteScale)
	baseRemaining := baseBudget.RoundFloor(baseScale)
	initialBase := baseRemaining

	buyPrice := decimal.Zero
	sellPrice := initialSellPrice
	bought := decimal.Zero

	ask, okAsk := asks.Next()
	bid, okBid := bids.Next()
	for okAsk && okBid && quoteRemaining.IsPositive() && baseRemaining.IsPositive() {
		pa, pb := ask.Price(), bid.Price()
		if !pa.IsPositive() || !pb.IsPositive() || domain.DivHalfEven(pa, pb, domain.Scale).GreaterThan(ratio) {
			break
		}
		buyPrice, sellPrice = pa, pb

		// The smaller of the two levels (in quote terms) is used up; the other
		// keeps what is left of it.
		askExhausted := ask.QuoteAmount().LessThanOrEqual(bid.QuoteAmount())
		smaller := bid.QuoteAmount()
		if askExhausted {
			smaller = ask.QuoteAmount()
		}
		traded := decimal.Min(smaller, quoteRemaining, baseRemaining.Mul(pa))

		bought = bought.Add(domain.DivHalfEven(traded, pa, domain.Scale).RoundFloor(baseScale))
		baseRemaining = baseRemaining.Sub(domain.DivHalfEven(traded, pb, domain.Scale)).RoundFloor(baseScale)
		quoteRemaining = quoteRemaining.Sub(traded).RoundFloor(quoteScale)

		if askExhausted {
			bid.SetQuoteAmount(bid.QuoteAmount().Sub(traded))
			ask, okAsk = asks.Next()
		} else {
			ask.SetQuoteAmount(ask.QuoteAmount().Sub(traded))
			bid, okBid = bids.Next()
		}
	}

	return Sizing{
		BuyPrice:   buyPrice,
		BuyVolume:  bought,
		SellPrice:  sellPrice,
		SellVolume: initialBase.Sub(baseRemaining),
	}
}

// Opportunity is a candidate trade: buy the base asset on one venue and sell
// it on another.
type Opportunity struct {
	Pair      domain.Pair
	BuyVenue  domain.Exchange
	SellVenue domain.Exchange
	BuyOrder  domain.Order
	SellOrder domain.Order

	baseScale  int32
	quoteScale int32
}

// NewOpportunity returns an unsized opportunity. Amounts are kept at the
// smaller of the two venues' precisions so that both can execute the orders.
func NewOpportunity(buyVenue, sellVenue domain.Exchange, pair domain.Pair) *Opportunity {
	return &Opportunity{
		Pair:       pair,
		BuyVenue:   buyVenue,
		SellVenue:  sellVenue,
		BuyOrder:   domain.NewOrder(domain.OrderSideBuy, pair),
		SellOrder:  domain.NewOrder(domain.OrderSideSell, pair),
		baseScale:  min(buyVenue.BasePrecision(pair), sellVenue.BasePrecision(pair)),
		quoteScale: min(buyVenue.QuotePrecision(pair), sellVenue.QuotePrecision(pair)),
	}
}

// Optimize sizes both orders. When either book is missing the orders are
// left at zero volume and the lookup error (domain.ErrBookNotFound) is
// returned for logging; the opportunity is still safe to rank.
func (o *Opportunity) Optimize(ratio, quoteBudget, baseBudget decimal.Decimal) error {
	asks, err := o.BuyVenue.AsksCursor(o.Pair)
	if err == nil {
		var bids *domain.Cursor
		bids, err = o.SellVenue.BidsCursor(o.Pair)
		if err == nil {
			s := Optimize(asks, bids, ratio, quoteBudget, baseBudget, o.baseScale, o.quoteScale)
			o.BuyOrder.Price, o.BuyOrder.BaseVolume = s.BuyPrice, s.BuyVolume
			o.SellOrder.Price, o.SellOrder.BaseVolume = s.SellPrice, s.SellVolume
			return nil
		}
	}
	o.BuyOrder.BaseVolume = decimal.Zero
	o.SellOrder.BaseVolume = decimal.Zero
	return err
}

// Volume is the quote value of the buy order floored at the quote scale.
// It ranks opportunities against each other and against minimum volumes.
func (o *Opportunity) Volume() decimal.Decimal {
	return o.BuyOrder.BaseVolume.Mul(o.BuyOrder.Price).RoundFloor(o.quoteScale)
}

// PredictedProfit is the base asset left over after both legs.
func (o *Opportunity) PredictedProfit() decimal.Decimal {
	return o.BuyOrder.BaseVolume.Sub(o.SellOrder.BaseVolume)
}

// Event describes the opportunity for publishing.
func (o *Opportunity) Event() domain.OpportunityEvent {
	return domain.OpportunityEvent{
		Pair:            o.Pair,
		BuyVenue:        o.BuyVenue.Name(),
		SellVenue:       o.SellVenue.Name(),
		BuyPrice:        o.BuyOrder.Price,
		SellPrice:       o.SellOrder.Price,
		BuyVolume:       o.BuyOrder.BaseVolume,
		SellVolume:      o.SellOrder.BaseVolume,
		Volume:          o.Volume(),
		PredictedProfit: o.PredictedProfit(),
	}
}

// MostValuable returns the opportunity with the larger Volume. Ties go to b.
func MostValuable(a, b *Opportunity) *Opportunity {
	if a.Volume().GreaterThan(b.Volume()) {
		return a
	}
	return b
}
