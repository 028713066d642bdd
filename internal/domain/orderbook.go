package domain

import "github.com/shopspring/decimal"

// BookSide selects the ask or bid half of an order book.
type BookSide string

const (
	SideAsks BookSide = "asks"
	SideBids BookSide = "bids"
)

// PriceLevel is one price in an order book together with the resting amount,
// expressed both in the base asset and in the quote asset. The two amounts are
// kept consistent (quote = base * price) at Scale fractional digits with
// half-even rounding whenever either one is set.
type PriceLevel struct {
	price decimal.Decimal
	base  decimal.Decimal
	quote decimal.Decimal
}

// NewPriceLevel builds a level from a price and a base-asset amount.
func NewPriceLevel(price, base decimal.Decimal) PriceLevel {
	var l PriceLevel
	l.SetPrice(price)
	l.SetBaseAmount(base)
	return l
}

// NewQuoteLevel builds a level from a price and a quote-asset amount.
func NewQuoteLevel(price, quote decimal.Decimal) PriceLevel {
	var l PriceLevel
	l.SetPrice(price)
	l.SetQuoteAmount(quote)
	return l
}

func (l PriceLevel) Price() decimal.Decimal       { return l.price }
func (l PriceLevel) BaseAmount() decimal.Decimal  { return l.base }
func (l PriceLevel) QuoteAmount() decimal.Decimal { return l.quote }

// SetPrice changes the level price and re-derives the quote amount from the
// base amount.
func (l *PriceLevel) SetPrice(p decimal.Decimal) {
	l.price = p.RoundBank(Scale)
	l.quote = MulHalfEven(l.base, l.price, Scale)
}

// SetBaseAmount sets the base amount and re-derives the quote amount.
func (l *PriceLevel) SetBaseAmount(b decimal.Decimal) {
	l.base = b.RoundBank(Scale)
	l.quote = MulHalfEven(l.base, l.price, Scale)
}

// SetQuoteAmount sets the quote amount and re-derives the base amount.
func (l *PriceLevel) SetQuoteAmount(q decimal.Decimal) {
	l.quote = q.RoundBank(Scale)
	if l.price.IsZero() {
		l.base = decimal.Zero
		return
	}
	l.base = DivHalfEven(l.quote, l.price, Scale)
}

// CloneLevels returns an independent copy of levels. Decimals are immutable
// values, so copying the slice is a deep copy.
func CloneLevels(levels []PriceLevel) []PriceLevel {
	if levels == nil {
		return nil
	}
	out := make([]PriceLevel, len(levels))
	copy(out, levels)
	return out
}

// Cursor walks a private copy of a price-ordered sequence from best to worst.
// Levels returned by Next belong to the cursor and may be mutated freely.
type Cursor struct {
	levels []PriceLevel
	pos    int
}

// NewCursor clones levels and positions the cursor before the first one.
func NewCursor(levels []PriceLevel) *Cursor {
	return &Cursor{levels: CloneLevels(levels)}
}

// Next advances to the next level. ok is false once the sequence is exhausted.
func (c *Cursor) Next() (level *PriceLevel, ok bool) {
	if c.pos >= len(c.levels) {
		return nil, false
	}
	level = &c.levels[c.pos]
	c.pos++
	return level, true
}

// Remaining reports how many levels Next can still return.
func (c *Cursor) Remaining() int {
	return len(c.levels) - c.pos
}

// Snapshot is one side of a pair's book at a venue sequence id. Asks are
// ascending by price, bids descending.
type Snapshot struct {
	Levels     []PriceLevel
	SequenceID int64
}

// Clone returns a copy that shares nothing with s.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{Levels: CloneLevels(s.Levels), SequenceID: s.SequenceID}
}

// Best returns the first level, if any.
func (s Snapshot) Best() (PriceLevel, bool) {
	if len(s.Levels) == 0 {
		return PriceLevel{}, false
	}
	return s.Levels[0], true
}

// LevelChange is a new base quantity for a price. Zero removes the level.
type LevelChange struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Diff is an incremental update to one side of a book. FinalSequenceID is the
// last venue sequence id the diff covers.
type Diff struct {
	FirstSequenceID int64
	FinalSequenceID int64
	Changes         []LevelChange
}
