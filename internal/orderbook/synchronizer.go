package orderbook

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/alanyoungcy/venuearb/internal/domain"
	"github.com/shopspring/decimal"
)

// SyncState tracks one book side through snapshot and diff application.
type SyncState int

const (
	StateUnsynced SyncState = iota
	StateSnapshotted
	StateSyncing
)

func (s SyncState) String() string {
	switch s {
	case StateSnapshotted:
		return "snapshotted"
	case StateSyncing:
		return "syncing"
	default:
		return "unsynced"
	}
}

// Observer is notified of synchronizer decisions. The metrics package
// implements it.
type Observer interface {
	SnapshotApplied(venue string, pair domain.Pair, side domain.BookSide)
	DiffApplied(venue string, pair domain.Pair, side domain.BookSide, depth int)
	DiffDropped(venue string, pair domain.Pair, side domain.BookSide)
}

type bookKey struct {
	pair domain.Pair
	side domain.BookSide
}

type bookState struct {
	state SyncState
	seq   int64
}

// Synchronizer applies snapshots and sequence-numbered diffs to a Registry.
// Diffs whose final sequence id is not above the last accepted one are
// dropped, so replaying a buffered diff stream over a fresh snapshot is safe.
type Synchronizer struct {
	venue    string
	registry *Registry
	mirror   domain.BookMirror
	observer Observer
	logger   *slog.Logger

	mu    sync.Mutex
	books map[bookKey]*bookState
}

// SyncOption configures a Synchronizer.
type SyncOption func(*Synchronizer)

// WithMirror copies every accepted book side to m.
func WithMirror(m domain.BookMirror) SyncOption {
	return func(s *Synchronizer) { s.mirror = m }
}

// WithObserver reports snapshot and diff outcomes to o.
func WithObserver(o Observer) SyncOption {
	return func(s *Synchronizer) { s.observer = o }
}

// NewSynchronizer returns a Synchronizer writing into registry.
func NewSynchronizer(venue string, registry *Registry, logger *slog.Logger, opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{
		venue:    venue,
		registry: registry,
		logger:   logger.With(slog.String("component", "book_sync"), slog.String("venue", venue)),
		books:    make(map[bookKey]*bookState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the registry the synchronizer writes to.
func (s *Synchronizer) Registry() *Registry { return s.registry }

// State reports the sync state and last accepted sequence id of a book side.
func (s *Synchronizer) State(pair domain.Pair, side domain.BookSide) (SyncState, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.books[bookKey{domain.NewPair(pair.Base, pair.Quote), side}]; ok {
		return st.state, st.seq
	}
	return StateUnsynced, 0
}

// Reset marks a book side unsynced. The next diff is rejected until a new
// snapshot arrives, and Stale reports the side until then.
func (s *Synchronizer) Reset(pair domain.Pair, side domain.BookSide) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bookKey{domain.NewPair(pair.Base, pair.Quote), side}
	if _, ok := s.books[key]; ok {
		s.books[key] = &bookState{state: StateUnsynced}
	}
}

// Stale reports whether a book side was synchronised once and has since been
// reset. Its registry entry still holds the last book, which no longer
// follows the venue.
func (s *Synchronizer) Stale(pair domain.Pair, side domain.BookSide) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.books[bookKey{domain.NewPair(pair.Base, pair.Quote), side}]
	return ok && st.state == StateUnsynced
}

// ApplySnapshot replaces a book side with snap and records its sequence id.
// Levels without a positive price are dropped.
func (s *Synchronizer) ApplySnapshot(ctx context.Context, pair domain.Pair, side domain.BookSide, snap domain.Snapshot) {
	pair = domain.NewPair(pair.Base, pair.Quote)
	snap = snap.Clone()
	kept := snap.Levels[:0]
	for _, lvl := range snap.Levels {
		if !lvl.Price().IsPositive() {
			continue
		}
		lvl.SetPrice(lvl.Price())
		kept = append(kept, lvl)
	}
	snap.Levels = kept
	sortLevels(side, snap.Levels)

	s.mu.Lock()
	s.registry.Put(pair, side, snap)
	s.books[bookKey{pair, side}] = &bookState{state: StateSnapshotted, seq: snap.SequenceID}
	s.mu.Unlock()

	s.logger.Debug("snapshot applied",
		slog.String("pair", pair.String()),
		slog.String("side", string(side)),
		slog.Int64("seq", snap.SequenceID),
		slog.Int("levels", len(snap.Levels)),
	)
	if s.observer != nil {
		s.observer.SnapshotApplied(s.venue, pair, side)
	}
	s.mirrorSide(ctx, pair, side, snap)
}

// ApplyDiff merges diff into a book side. It returns false without error when
// the diff is stale. A side without a snapshot yields domain.ErrBookNotFound.
func (s *Synchronizer) ApplyDiff(ctx context.Context, pair domain.Pair, side domain.BookSide, diff domain.Diff) (bool, error) {
	pair = domain.NewPair(pair.Base, pair.Quote)
	key := bookKey{pair, side}

	s.mu.Lock()
	st, ok := s.books[key]
	if !ok || st.state == StateUnsynced {
		s.mu.Unlock()
		return false, fmt.Errorf("orderbook: diff for %s %s before snapshot: %w", pair, side, domain.ErrBookNotFound)
	}
	if diff.FinalSequenceID <= st.seq {
		s.mu.Unlock()
		if s.observer != nil {
			s.observer.DiffDropped(s.venue, pair, side)
		}
		return false, nil
	}

	current, err := s.registry.Snapshot(pair, side)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	merged := domain.Snapshot{
		Levels:     mergeLevels(side, current.Levels, diff.Changes),
		SequenceID: diff.FinalSequenceID,
	}
	s.registry.Put(pair, side, merged)
	st.state = StateSyncing
	st.seq = diff.FinalSequenceID
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.DiffApplied(s.venue, pair, side, len(merged.Levels))
	}
	s.mirrorSide(ctx, pair, side, merged)
	return true, nil
}

func (s *Synchronizer) mirrorSide(ctx context.Context, pair domain.Pair, side domain.BookSide, snap domain.Snapshot) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.MirrorSide(ctx, s.venue, pair, side, snap); err != nil {
		s.logger.Warn("book mirror failed",
			slog.String("pair", pair.String()),
			slog.String("side", string(side)),
			slog.String("error", err.Error()),
		)
	}
}

// better reports whether price a ranks ahead of b on side.
func better(side domain.BookSide, a, b decimal.Decimal) bool {
	if side == domain.SideAsks {
		return a.LessThan(b)
	}
	return a.GreaterThan(b)
}

func sortLevels(side domain.BookSide, levels []domain.PriceLevel) {
	sort.SliceStable(levels, func(i, j int) bool {
		return better(side, levels[i].Price(), levels[j].Price())
	})
}

// mergeLevels applies changes to levels in a single pass. Changes are keyed by
// price (the last one for a price wins); a zero quantity removes the level,
// any other quantity replaces the base amount or inserts a new level in price
// order. Changes without a positive price are ignored.
func mergeLevels(side domain.BookSide, levels []domain.PriceLevel, changes []domain.LevelChange) []domain.PriceLevel {
	byPrice := make(map[string]domain.LevelChange, len(changes))
	for _, c := range changes {
		c.Price = c.Price.RoundBank(domain.Scale)
		if !c.Price.IsPositive() {
			continue
		}
		byPrice[c.Price.String()] = c
	}
	ordered := make([]domain.LevelChange, 0, len(byPrice))
	for _, c := range byPrice {
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return better(side, ordered[i].Price, ordered[j].Price)
	})

	out := make([]domain.PriceLevel, 0, len(levels)+len(ordered))
	i, j := 0, 0
	for i < len(levels) || j < len(ordered) {
		switch {
		case j >= len(ordered) || (i < len(levels) && better(side, levels[i].Price(), ordered[j].Price)):
			out = append(out, levels[i])
			i++
		case i >= len(levels) || better(side, ordered[j].Price, levels[i].Price()):
			if ordered[j].Quantity.IsPositive() {
				out = append(out, domain.NewPriceLevel(ordered[j].Price, ordered[j].Quantity))
			}
			j++
		default:
			if ordered[j].Quantity.IsPositive() {
				lvl := levels[i]
				lvl.SetBaseAmount(ordered[j].Quantity)
				out = append(out, lvl)
			}
			i++
			j++
		}
	}
	return out
}
