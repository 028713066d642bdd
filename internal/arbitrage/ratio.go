package arbitrage

import (
	"fmt"

	"github.com/alanyoungcy/venuearb/internal/domain"
	"github.com/shopspring/decimal"
)

// RatioCache holds the buy/sell ratio threshold of every ordered venue pair.
// An ask/bid ratio at or below the threshold is profitable after both venues'
// fees and the target profit.
type RatioCache struct {
	ratios map[string]map[string]decimal.Decimal // buy venue -> sell venue -> ratio
}

// NewRatioCache computes fee(a)*fee(b)/targetProfit, floored at scale 8, for
// every unordered pair of venues and stores it under both orderings. Fees are
// read once; a venue whose fee later changes keeps its original ratio.
func NewRatioCache(venues []domain.Exchange, targetProfit decimal.Decimal) *RatioCache {
	c := &RatioCache{ratios: make(map[string]map[string]decimal.Decimal)}
	for i := 0; i < len(venues)-1; i++ {
		for n := i + 1; n < len(venues); n++ {
			r := BuySellRatio(venues[i].PostTradingFee(), venues[n].PostTradingFee(), targetProfit)
			c.put(venues[i].Name(), venues[n].Name(), r)
			c.put(venues[n].Name(), venues[i].Name(), r)
		}
	}
	return c
}

// BuySellRatio returns feeA*feeB/targetProfit rounded toward negative
// infinity at scale 8.
func BuySellRatio(feeA, feeB, targetProfit decimal.Decimal) decimal.Decimal {
	return domain.DivFloor(feeA.Mul(feeB), targetProfit, domain.Scale)
}

func (c *RatioCache) put(buy, sell string, r decimal.Decimal) {
	m, ok := c.ratios[buy]
	if !ok {
		m = make(map[string]decimal.Decimal)
		c.ratios[buy] = m
	}
	m[sell] = r
}

// Get returns the ratio for buying on buyVenue and selling on sellVenue.
// A missing entry means the cache was built without one of the venues and is
// reported as domain.ErrRatioNotFound.
func (c *RatioCache) Get(buyVenue, sellVenue string) (decimal.Decimal, error) {
	if m, ok := c.ratios[buyVenue]; ok {
		if r, ok := m[sellVenue]; ok {
			return r, nil
		}
	}
	return decimal.Zero, fmt.Errorf("arbitrage: ratio %s -> %s: %w", buyVenue, sellVenue, domain.ErrRatioNotFound)
}
