package arbitrage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/venuearb/internal/domain"
	"github.com/shopspring/decimal"
)

var ethBTC = domain.NewPair("ETH", "BTC")

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// quoteLevels builds levels from alternating price / quote-amount strings.
func quoteLevels(pq ...string) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(pq)/2)
	for i := 0; i+1 < len(pq); i += 2 {
		out = append(out, domain.NewQuoteLevel(d(pq[i]), d(pq[i+1])))
	}
	return out
}

// fakeVenue is an in-memory domain.Exchange with fixed books. A nil side is
// reported as a missing book.
type fakeVenue struct {
	name      string
	fee       decimal.Decimal
	asks      []domain.PriceLevel
	bids      []domain.PriceLevel
	balances  map[string]decimal.Decimal
	minTrade  decimal.Decimal
	precision int32
	pairs     map[domain.Pair]bool
	withdraw  map[string]bool

	mu    sync.Mutex
	buys  []domain.Order
	sells []domain.Order
}

func newFakeVenue(name string, asks, bids []domain.PriceLevel, btc, eth string) *fakeVenue {
	return &fakeVenue{
		name: name,
		fee:  d("0.995"),
		asks: asks,
		bids: bids,
		balances: map[string]decimal.Decimal{
			"BTC": d(btc),
			"ETH": d(eth),
		},
		minTrade:  decimal.Zero,
		precision: 4,
		pairs:     map[domain.Pair]bool{ethBTC: true},
		withdraw:  map[string]bool{"ETH": true, "BTC": true},
	}
}

func (f *fakeVenue) Name() string                    { return f.name }
func (f *fakeVenue) PostTradingFee() decimal.Decimal { return f.fee }
func (f *fakeVenue) Supports(p domain.Pair) bool     { return f.pairs[p] }

func (f *fakeVenue) CanWithdraw(asset string) (bool, bool) {
	allowed, known := f.withdraw[asset]
	return allowed, known
}

func (f *fakeVenue) LowestAsk(p domain.Pair) (decimal.Decimal, error) {
	if len(f.asks) == 0 {
		return decimal.Zero, fmt.Errorf("%s asks: %w", f.name, domain.ErrBookNotFound)
	}
	return f.asks[0].Price(), nil
}

func (f *fakeVenue) HighestBid(p domain.Pair) (decimal.Decimal, error) {
	if len(f.bids) == 0 {
		return decimal.Zero, fmt.Errorf("%s bids: %w", f.name, domain.ErrBookNotFound)
	}
	return f.bids[0].Price(), nil
}

func (f *fakeVenue) AsksCursor(p domain.Pair) (*domain.Cursor, error) {
	if f.asks == nil {
		return nil, fmt.Errorf("%s asks: %w", f.name, domain.ErrBookNotFound)
	}
	return domain.NewCursor(f.asks), nil
}

func (f *fakeVenue) BidsCursor(p domain.Pair) (*domain.Cursor, error) {
	if f.bids == nil {
		return nil, fmt.Errorf("%s bids: %w", f.name, domain.ErrBookNotFound)
	}
	return domain.NewCursor(f.bids), nil
}

func (f *fakeVenue) Buy(_ context.Context, o domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buys = append(f.buys, o)
	return nil
}

func (f *fakeVenue) Sell(_ context.Context, o domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sells = append(f.sells, o)
	return nil
}

func (f *fakeVenue) Balance(asset string) decimal.Decimal { return f.balances[asset] }

func (f *fakeVenue) BasePrecision(domain.Pair) int32  { return f.precision }
func (f *fakeVenue) QuotePrecision(domain.Pair) int32 { return f.precision }
func (f *fakeVenue) PricePrecision(domain.Pair) int32 { return 3 }

func (f *fakeVenue) MinTradeVolume(domain.Pair) decimal.Decimal { return f.minTrade }
func (f *fakeVenue) MinQuantity(domain.Pair) decimal.Decimal    { return decimal.Zero }

func (f *fakeVenue) StartMonitoring(context.Context, []string, string) error { return nil }

// Books from the original two-venue scenario: buying on the first venue and
// selling on the second is profitable, the other direction is not.
func profitableVenues() (*fakeVenue, *fakeVenue) {
	v1 := newFakeVenue("one",
		quoteLevels("0.989", "0.5", "0.990", "0.75", "0.995", "1", "1.000", "1.25"),
		quoteLevels("0.985", "0.5", "0.980", "0.75", "0.975", "1", "0.970", "1.25"),
		"2", "2")
	v2 := newFakeVenue("two",
		quoteLevels("1.100", "0.5", "1.105", "0.75", "1.110", "1", "1.115", "1.25"),
		quoteLevels("1.000", "0.5", "0.995", "0.75", "0.990", "1", "0.985", "1.25"),
		"2", "2")
	return v1, v2
}

func unprofitableVenues() (*fakeVenue, *fakeVenue) {
	asks := quoteLevels("1.000", "0.5", "1.005", "0.75", "1.010", "1", "1.015", "1.25")
	bids := quoteLevels("0.995", "0.5", "0.990", "0.75", "0.985", "1", "0.980", "1.25")
	return newFakeVenue("one", asks, bids, "2", "2"), newFakeVenue("two", asks, bids, "2", "2")
}

type recordingExecutor struct {
	mu    sync.Mutex
	opps  []*Opportunity
	err   error
	after func()
}

func (e *recordingExecutor) Execute(ctx context.Context, opp *Opportunity) (domain.Execution, error) {
	e.mu.Lock()
	e.opps = append(e.opps, opp)
	e.mu.Unlock()
	if e.after != nil {
		e.after()
	}
	if e.err != nil {
		return domain.Execution{ID: "x"}, e.err
	}
	if err := opp.SellVenue.Sell(ctx, opp.SellOrder); err != nil {
		return domain.Execution{}, err
	}
	if err := opp.BuyVenue.Buy(ctx, opp.BuyOrder); err != nil {
		return domain.Execution{}, err
	}
	return domain.Execution{ID: "x", State: domain.ExecDone}, nil
}

func (e *recordingExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.opps)
}

type recordingBus struct {
	mu       sync.Mutex
	channels []string
}

func (b *recordingBus) Publish(_ context.Context, channel string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = append(b.channels, channel)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *recordingBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *recordingBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}
