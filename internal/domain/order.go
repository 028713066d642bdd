package domain

import "github.com/shopspring/decimal"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Order is a limit order produced by the optimizer. It starts with zero
// volume and price and is consumed exactly once by execution.
type Order struct {
	Side       OrderSide
	BaseVolume decimal.Decimal
	Price      decimal.Decimal
	Pair       Pair
}

// NewOrder returns an empty order for side and pair.
func NewOrder(side OrderSide, pair Pair) Order {
	return Order{
		Side:       side,
		BaseVolume: decimal.Zero,
		Price:      decimal.Zero,
		Pair:       pair,
	}
}

// Notional returns the quote-asset value of the order.
func (o Order) Notional() decimal.Decimal {
	return o.BaseVolume.Mul(o.Price)
}
