package redis

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/venuearb/internal/domain"
)

//go:embed scripts/book_mirror.lua
var bookMirrorLua string

// BookMirror implements domain.BookMirror.
//
// Key schema, per venue and pair:
//
//	book:{venue}:{BASE-QUOTE}:{side}       - sorted set of prices (score = price)
//	book:{venue}:{BASE-QUOTE}:{side}:size  - hash price -> base amount
//	book:{venue}:{BASE-QUOTE}:meta         - hash with "{side}_seq"
type BookMirror struct {
	rdb    *redis.Client
	mirror *redis.Script
}

// NewBookMirror creates a BookMirror backed by the given Client.
func NewBookMirror(c *Client) *BookMirror {
	return &BookMirror{
		rdb:    c.Underlying(),
		mirror: redis.NewScript(bookMirrorLua),
	}
}

func bookPrefix(venue string, pair domain.Pair) string {
	return "book:" + venue + ":" + pair.Key()
}

func bookSideKey(venue string, pair domain.Pair, side domain.BookSide) string {
	return bookPrefix(venue, pair) + ":" + string(side)
}

func bookSizeKey(venue string, pair domain.Pair, side domain.BookSide) string {
	return bookSideKey(venue, pair, side) + ":size"
}

func bookMetaKey(venue string, pair domain.Pair) string {
	return bookPrefix(venue, pair) + ":meta"
}

// MirrorSide stores snap unless the mirror already holds a newer sequence.
func (m *BookMirror) MirrorSide(ctx context.Context, venue string, pair domain.Pair, side domain.BookSide, snap domain.Snapshot) error {
	_, err := m.Mirror(ctx, venue, pair, side, snap)
	return err
}

// Mirror is MirrorSide reporting whether the side was written.
func (m *BookMirror) Mirror(ctx context.Context, venue string, pair domain.Pair, side domain.BookSide, snap domain.Snapshot) (bool, error) {
	keys := []string{
		bookSideKey(venue, pair, side),
		bookSizeKey(venue, pair, side),
		bookMetaKey(venue, pair),
	}
	args := make([]any, 0, 2+2*len(snap.Levels))
	args = append(args, string(side), snap.SequenceID)
	for _, lvl := range snap.Levels {
		args = append(args, lvl.Price().String(), lvl.BaseAmount().String())
	}

	written, err := m.mirror.Run(ctx, m.rdb, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("redis: mirror %s %s %s: %w", venue, pair, side, err)
	}
	return written == 1, nil
}

// LoadSide reads a mirrored side back, best price first. A side never
// mirrored yields domain.ErrNotFound.
func (m *BookMirror) LoadSide(ctx context.Context, venue string, pair domain.Pair, side domain.BookSide) (domain.Snapshot, error) {
	sideKey := bookSideKey(venue, pair, side)

	pipe := m.rdb.Pipeline()
	var pricesCmd *redis.StringSliceCmd
	if side == domain.SideBids {
		pricesCmd = pipe.ZRevRange(ctx, sideKey, 0, -1)
	} else {
		pricesCmd = pipe.ZRange(ctx, sideKey, 0, -1)
	}
	sizesCmd := pipe.HGetAll(ctx, bookSizeKey(venue, pair, side))
	seqCmd := pipe.HGet(ctx, bookMetaKey(venue, pair), string(side)+"_seq")
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.Snapshot{}, fmt.Errorf("redis: load %s %s %s: %w", venue, pair, side, err)
	}

	seqStr, err := seqCmd.Result()
	if errors.Is(err, redis.Nil) {
		return domain.Snapshot{}, fmt.Errorf("redis: load %s %s %s: %w", venue, pair, side, domain.ErrNotFound)
	}
	seq, err := strconv.ParseInt(seqStr, 10, 64)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis: load %s %s %s: bad sequence %q", venue, pair, side, seqStr)
	}

	sizes := sizesCmd.Val()
	prices := pricesCmd.Val()
	snap := domain.Snapshot{SequenceID: seq, Levels: make([]domain.PriceLevel, 0, len(prices))}
	for _, p := range prices {
		price, err := decimal.NewFromString(p)
		if err != nil {
			continue
		}
		amount, err := decimal.NewFromString(sizes[p])
		if err != nil {
			continue
		}
		snap.Levels = append(snap.Levels, domain.NewPriceLevel(price, amount))
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.BookMirror = (*BookMirror)(nil)
