// Package orderbook holds a venue's live order books and keeps them in sync
// with the venue's snapshot + diff stream.
package orderbook

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/venuearb/internal/domain"
)

type pairBooks struct {
	asks *domain.Snapshot
	bids *domain.Snapshot
}

func (b *pairBooks) side(side domain.BookSide) *domain.Snapshot {
	if side == domain.SideAsks {
		return b.asks
	}
	return b.bids
}

// Registry maps (quote, base) to the latest asks and bids snapshots of one
// venue. Writers replace whole snapshots; readers always receive clones, so a
// consumer may mutate what it gets without touching the shared book.
type Registry struct {
	mu    sync.RWMutex
	books map[string]map[string]*pairBooks // quote -> base -> books
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{books: make(map[string]map[string]*pairBooks)}
}

// Put replaces one side of pair's book with a copy of snap.
func (r *Registry) Put(pair domain.Pair, side domain.BookSide, snap domain.Snapshot) {
	pair = domain.NewPair(pair.Base, pair.Quote)
	stored := snap.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	byBase, ok := r.books[pair.Quote]
	if !ok {
		byBase = make(map[string]*pairBooks)
		r.books[pair.Quote] = byBase
	}
	b, ok := byBase[pair.Base]
	if !ok {
		b = &pairBooks{}
		byBase[pair.Base] = b
	}
	if side == domain.SideAsks {
		b.asks = &stored
	} else {
		b.bids = &stored
	}
}

// Snapshot returns a clone of one side of pair's book. It returns
// domain.ErrBookNotFound when that side has never been populated.
func (r *Registry) Snapshot(pair domain.Pair, side domain.BookSide) (domain.Snapshot, error) {
	pair = domain.NewPair(pair.Base, pair.Quote)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if byBase, ok := r.books[pair.Quote]; ok {
		if b, ok := byBase[pair.Base]; ok {
			if s := b.side(side); s != nil {
				return s.Clone(), nil
			}
		}
	}
	return domain.Snapshot{}, fmt.Errorf("orderbook: %s %s: %w", pair, side, domain.ErrBookNotFound)
}

// Cursor returns a cursor over a private copy of one side of pair's book.
func (r *Registry) Cursor(pair domain.Pair, side domain.BookSide) (*domain.Cursor, error) {
	snap, err := r.Snapshot(pair, side)
	if err != nil {
		return nil, err
	}
	return domain.NewCursor(snap.Levels), nil
}

// Best returns the best level of one side of pair's book. An empty side is
// reported as domain.ErrBookNotFound as well.
func (r *Registry) Best(pair domain.Pair, side domain.BookSide) (domain.PriceLevel, error) {
	pair = domain.NewPair(pair.Base, pair.Quote)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if byBase, ok := r.books[pair.Quote]; ok {
		if b, ok := byBase[pair.Base]; ok {
			if s := b.side(side); s != nil {
				if lvl, ok := s.Best(); ok {
					return lvl, nil
				}
			}
		}
	}
	return domain.PriceLevel{}, fmt.Errorf("orderbook: best %s %s: %w", pair, side, domain.ErrBookNotFound)
}

// Pairs lists every pair with at least one populated side, sorted.
func (r *Registry) Pairs() []domain.Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Pair
	for quote, byBase := range r.books {
		for base := range byBase {
			out = append(out, domain.Pair{Base: base, Quote: quote})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
