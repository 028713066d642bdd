// Package feed keeps order books in sync from a venue's depth stream.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/venuearb/internal/domain"
	"github.com/alanyoungcy/venuearb/internal/orderbook"
)

const (
	minBackoff = 2 * time.Second
	maxBackoff = 60 * time.Second
)

// DepthEvent is one diff-stream message for a pair. Both sides share the
// event's sequence range.
type DepthEvent struct {
	Pair    domain.Pair
	FirstID int64
	FinalID int64
	Asks    []domain.LevelChange
	Bids    []domain.LevelChange
}

// DepthSnapshot is a full REST book.
type DepthSnapshot struct {
	LastUpdateID int64
	Asks         []domain.PriceLevel
	Bids         []domain.PriceLevel
}

// Source is a venue's market-data transport.
type Source interface {
	// Subscribe opens the diff stream for pairs. The returned channel is
	// closed when the stream drops or ctx is cancelled.
	Subscribe(ctx context.Context, pairs []domain.Pair) (<-chan DepthEvent, error)
	Snapshot(ctx context.Context, pair domain.Pair) (DepthSnapshot, error)
}

// Driver subscribes first, buffers diffs while the snapshots are fetched,
// applies each snapshot, replays the buffered diffs over it and then applies
// live diffs. A dropped stream marks every book unsynced and starts over
// with fresh snapshots.
type Driver struct {
	source Source
	syncer *orderbook.Synchronizer
	logger *slog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// NewDriver creates a Driver feeding syncer from source.
func NewDriver(source Source, syncer *orderbook.Synchronizer, logger *slog.Logger) *Driver {
	return &Driver{
		source:     source,
		syncer:     syncer,
		logger:     logger.With(slog.String("component", "depth_feed")),
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		done:       make(chan struct{}),
	}
}

// Run keeps pairs in sync until ctx is cancelled or Close is called.
func (d *Driver) Run(ctx context.Context, pairs []domain.Pair) error {
	if len(pairs) == 0 {
		d.logger.Info("no pairs to follow, exiting")
		return nil
	}
	backoff := d.minBackoff
	for {
		synced, err := d.session(ctx, pairs)
		d.reset(pairs)
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-d.done:
			return nil
		default:
		}
		if synced {
			backoff = d.minBackoff
		}
		d.logger.Warn("depth stream lost, resynchronising",
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-d.done:
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, d.maxBackoff)
	}
}

// Close stops the driver.
func (d *Driver) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

type snapshotResult struct {
	pair domain.Pair
	snap DepthSnapshot
	err  error
}

// session runs one subscription. synced reports whether every pair got a
// snapshot before the session ended.
func (d *Driver) session(ctx context.Context, pairs []domain.Pair) (synced bool, err error) {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := d.source.Subscribe(sessCtx, pairs)
	if err != nil {
		return false, fmt.Errorf("feed: subscribe: %w", err)
	}

	snaps := make(chan snapshotResult, len(pairs))
	go func() {
		for _, p := range pairs {
			s, err := d.source.Snapshot(sessCtx, p)
			snaps <- snapshotResult{pair: p, snap: s, err: err}
			if err != nil {
				return
			}
		}
	}()

	pending := make(map[domain.Pair][]DepthEvent)
	live := make(map[domain.Pair]bool, len(pairs))
	for {
		select {
		case <-ctx.Done():
			return len(live) == len(pairs), ctx.Err()
		case <-d.done:
			return len(live) == len(pairs), nil
		case r := <-snaps:
			if r.err != nil {
				return false, fmt.Errorf("feed: snapshot %s: %w", r.pair, r.err)
			}
			d.applySnapshot(ctx, r.pair, r.snap)
			buffered := pending[r.pair]
			delete(pending, r.pair)
			for _, ev := range buffered {
				d.applyEvent(ctx, ev)
			}
			live[r.pair] = true
			d.logger.Info("order book synchronised",
				slog.String("pair", r.pair.String()),
				slog.Int64("seq", r.snap.LastUpdateID),
				slog.Int("replayed", len(buffered)),
			)
		case ev, ok := <-events:
			if !ok {
				return len(live) == len(pairs), fmt.Errorf("feed: %w", domain.ErrWSDisconnect)
			}
			if !live[ev.Pair] {
				pending[ev.Pair] = append(pending[ev.Pair], ev)
				continue
			}
			d.applyEvent(ctx, ev)
		}
	}
}

func (d *Driver) applySnapshot(ctx context.Context, pair domain.Pair, snap DepthSnapshot) {
	d.syncer.ApplySnapshot(ctx, pair, domain.SideAsks, domain.Snapshot{Levels: snap.Asks, SequenceID: snap.LastUpdateID})
	d.syncer.ApplySnapshot(ctx, pair, domain.SideBids, domain.Snapshot{Levels: snap.Bids, SequenceID: snap.LastUpdateID})
}

func (d *Driver) applyEvent(ctx context.Context, ev DepthEvent) {
	for _, side := range []struct {
		side    domain.BookSide
		changes []domain.LevelChange
	}{
		{domain.SideAsks, ev.Asks},
		{domain.SideBids, ev.Bids},
	} {
		if len(side.changes) == 0 {
			continue
		}
		_, err := d.syncer.ApplyDiff(ctx, ev.Pair, side.side, domain.Diff{
			FirstSequenceID: ev.FirstID,
			FinalSequenceID: ev.FinalID,
			Changes:         side.changes,
		})
		if err != nil {
			d.logger.Debug("diff not applied",
				slog.String("pair", ev.Pair.String()),
				slog.String("side", string(side.side)),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (d *Driver) reset(pairs []domain.Pair) {
	for _, p := range pairs {
		d.syncer.Reset(p, domain.SideAsks)
		d.syncer.Reset(p, domain.SideBids)
	}
}
