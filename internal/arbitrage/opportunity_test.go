package arbitrage

import (
	"testing"

	"github.com/alanyoungcy/venuearb/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ratioFor(a, b *fakeVenue, target string) decimal.Decimal {
	return BuySellRatio(a.fee, b.fee, d(target))
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "%s: want %s, got %s", msg, want, got)
}

func TestUnprofitableBookYieldsZeroVolume(t *testing.T) {
	v1, v2 := unprofitableVenues()
	ratio := ratioFor(v1, v2, "1.001")

	opp := NewOpportunity(v1, v2, ethBTC)
	require.NoError(t, opp.Optimize(ratio, v1.Balance("BTC"), v2.Balance("ETH")))
	assert.True(t, opp.Volume().IsZero())
	assert.True(t, opp.BuyOrder.BaseVolume.IsZero())
	assert.True(t, opp.SellOrder.BaseVolume.IsZero())

	opp = NewOpportunity(v2, v1, ethBTC)
	require.NoError(t, opp.Optimize(ratio, v2.Balance("BTC"), v1.Balance("ETH")))
	assert.True(t, opp.Volume().IsZero())
}

func TestProfitableOnlyInOneDirection(t *testing.T) {
	v1, v2 := profitableVenues()
	ratio := ratioFor(v1, v2, "1.001")
	assertDecimal(t, "0.98903596", ratio, "ratio")

	opp := NewOpportunity(v1, v2, ethBTC)
	require.NoError(t, opp.Optimize(ratio, v1.Balance("BTC"), v2.Balance("ETH")))
	assert.True(t, opp.Volume().IsPositive())
	assertDecimal(t, "0.989", opp.BuyOrder.Price, "buy price")
	assertDecimal(t, "0.5055", opp.BuyOrder.BaseVolume, "buy volume")
	assertDecimal(t, "1", opp.SellOrder.Price, "sell price")
	assertDecimal(t, "0.5", opp.SellOrder.BaseVolume, "sell volume")
	assertDecimal(t, "0.4999", opp.Volume(), "opportunity volume")
	assertDecimal(t, "0.0055", opp.PredictedProfit(), "predicted profit")

	reverse := NewOpportunity(v2, v1, ethBTC)
	require.NoError(t, reverse.Optimize(ratio, v2.Balance("BTC"), v1.Balance("ETH")))
	assert.True(t, reverse.Volume().IsZero())
}

func TestSellBudgetLimitsOpportunity(t *testing.T) {
	v1, v2 := profitableVenues()
	v2.balances["ETH"] = d("0.1")
	ratio := ratioFor(v1, v2, "1.001")

	opp := NewOpportunity(v1, v2, ethBTC)
	require.NoError(t, opp.Optimize(ratio, v1.Balance("BTC"), v2.Balance("ETH")))
	assertDecimal(t, "0.1", opp.BuyOrder.BaseVolume, "buy volume")
	assertDecimal(t, "0.0989", opp.SellOrder.BaseVolume, "sell volume")
	assertDecimal(t, "0.0989", opp.Volume(), "opportunity volume")
	assert.True(t, opp.PredictedProfit().IsPositive())
}

func TestMissingBookYieldsZeroOrders(t *testing.T) {
	v1, v2 := profitableVenues()
	v2.bids = nil

	opp := NewOpportunity(v1, v2, ethBTC)
	err := opp.Optimize(ratioFor(v1, v2, "1.001"), d("2"), d("2"))
	assert.ErrorIs(t, err, domain.ErrBookNotFound)
	assert.True(t, opp.Volume().IsZero())
	assert.True(t, opp.SellOrder.BaseVolume.IsZero())
}

func TestOptimizeLeavesVenueBooksUntouched(t *testing.T) {
	v1, v2 := profitableVenues()
	before := domain.CloneLevels(v1.asks)

	opp := NewOpportunity(v1, v2, ethBTC)
	require.NoError(t, opp.Optimize(ratioFor(v1, v2, "1.001"), d("2"), d("2")))
	assert.Equal(t, before, v1.asks)
}

func TestOptimizeIsSymmetricInVenueOrder(t *testing.T) {
	v1, v2 := profitableVenues()
	ratio := ratioFor(v1, v2, "1.001")
	quoteBudget, baseBudget := d("1.5"), d("0.7")

	cases := []struct {
		name      string
		buy, sell *fakeVenue
	}{
		{"one_to_two", v1, v2},
		{"two_to_one", v2, v1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opp := NewOpportunity(tc.buy, tc.sell, ethBTC)
			require.NoError(t, opp.Optimize(ratio, quoteBudget, baseBudget))

			direct := Optimize(domain.NewCursor(tc.buy.asks), domain.NewCursor(tc.sell.bids),
				ratio, quoteBudget, baseBudget, 4, 4)
			assert.True(t, direct.BuyVolume.Equal(opp.BuyOrder.BaseVolume))
			assert.True(t, direct.SellVolume.Equal(opp.SellOrder.BaseVolume))
			assert.True(t, direct.BuyPrice.Equal(opp.BuyOrder.Price))
			assert.True(t, direct.SellPrice.Equal(opp.SellOrder.Price))
		})
	}
}

func TestOptimizeStopsWhenCursorRunsOut(t *testing.T) {
	asks := domain.NewCursor(quoteLevels("0.9", "0.1"))
	bids := domain.NewCursor(quoteLevels("1.0", "5"))

	s := Optimize(asks, bids, d("0.99"), d("10"), d("10"), 8, 8)
	assertDecimal(t, "0.11111111", s.BuyVolume, "buy volume")
	assertDecimal(t, "0.9", s.BuyPrice, "buy price")
	assertDecimal(t, "0.1", s.SellVolume, "sell volume")
}

func TestOptimizeStopsAtNonPositivePrice(t *testing.T) {
	tests := []struct {
		name string
		asks []domain.PriceLevel
		bids []domain.PriceLevel
	}{
		{"zero ask", []domain.PriceLevel{domain.NewPriceLevel(d("0"), d("1")), domain.NewPriceLevel(d("0.9"), d("1"))}, quoteLevels("1.0", "5")},
		{"negative ask", []domain.PriceLevel{domain.NewPriceLevel(d("-0.5"), d("1"))}, quoteLevels("1.0", "5")},
		{"zero bid", quoteLevels("0.9", "1"), []domain.PriceLevel{domain.NewPriceLevel(d("0"), d("1"))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Sizing
			require.NotPanics(t, func() {
				s = Optimize(domain.NewCursor(tt.asks), domain.NewCursor(tt.bids), d("0.99"), d("10"), d("10"), 8, 8)
			})
			assert.True(t, s.BuyVolume.IsZero())
			assert.True(t, s.SellVolume.IsZero())
		})
	}
}

func TestMostValuable(t *testing.T) {
	v1, v2 := profitableVenues()
	ratio := ratioFor(v1, v2, "1.001")

	a := NewOpportunity(v1, v2, ethBTC)
	require.NoError(t, a.Optimize(ratio, d("2"), d("2")))
	b := NewOpportunity(v1, v2, ethBTC)
	require.NoError(t, b.Optimize(ratio, d("2"), d("2")))
	require.True(t, a.Volume().Equal(b.Volume()))

	assert.Same(t, b, MostValuable(a, b), "ties go to the second argument")
	assert.Same(t, a, MostValuable(b, a))

	small := NewOpportunity(v1, v2, ethBTC)
	require.NoError(t, small.Optimize(ratio, d("0.01"), d("2")))
	assert.Same(t, a, MostValuable(a, small))
	assert.Same(t, a, MostValuable(small, a))
}
