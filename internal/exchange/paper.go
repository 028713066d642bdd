package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/venuearb/internal/domain"
	"github.com/alanyoungcy/venuearb/internal/orderbook"
)

// PaperConfig configures a simulated venue.
type PaperConfig struct {
	Name     string
	Fee      decimal.Decimal
	Rules    map[domain.Pair]MarketRules
	Balances map[string]decimal.Decimal
	// Withdraw lists withdrawal flags; assets not listed are withdrawable.
	Withdraw map[string]bool
}

// PaperGateway fills orders immediately against the venue's own books. Buys
// take asks priced at or below the limit, sells take bids at or above it, and
// the consumed liquidity is removed from the book. The received asset is
// credited net of the fee.
type PaperGateway struct {
	cfg      PaperConfig
	registry *orderbook.Registry
	market   Gateway
	logger   *slog.Logger

	mu       sync.Mutex
	balances map[string]decimal.Decimal
	orders   atomic.Int64
}

// NewPaperGateway returns a simulated gateway reading books from registry.
// When market is non-nil its Monitor supplies live books; otherwise books are
// expected to be seeded with Seed.
func NewPaperGateway(cfg PaperConfig, registry *orderbook.Registry, market Gateway, logger *slog.Logger) *PaperGateway {
	return &PaperGateway{
		cfg:      cfg,
		registry: registry,
		market:   market,
		logger:   logger.With(slog.String("component", "paper_gateway"), slog.String("venue", cfg.Name)),
		balances: normaliseAssets(cfg.Balances),
	}
}

func (p *PaperGateway) Name() string { return p.cfg.Name }

// Seed installs both sides of a book directly.
func (p *PaperGateway) Seed(pair domain.Pair, asks, bids []domain.PriceLevel) {
	p.registry.Put(pair, domain.SideAsks, domain.Snapshot{Levels: asks})
	p.registry.Put(pair, domain.SideBids, domain.Snapshot{Levels: bids})
}

func (p *PaperGateway) Rules(_ context.Context, quote string) (map[domain.Pair]MarketRules, error) {
	quote = domain.NormalizeAsset(quote)
	out := make(map[domain.Pair]MarketRules, len(p.cfg.Rules))
	for pair, r := range p.cfg.Rules {
		pair = domain.NewPair(pair.Base, pair.Quote)
		if quote == "" || pair.Quote == quote {
			out[pair] = r
		}
	}
	return out, nil
}

func (p *PaperGateway) Balances(context.Context) (map[string]decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(p.balances))
	for k, v := range p.balances {
		out[k] = v
	}
	return out, nil
}

func (p *PaperGateway) Withdrawals(context.Context) (map[string]bool, error) {
	out := make(map[string]bool)
	for pair := range p.cfg.Rules {
		out[domain.NormalizeAsset(pair.Base)] = true
		out[domain.NormalizeAsset(pair.Quote)] = true
	}
	p.mu.Lock()
	for asset := range p.balances {
		out[asset] = true
	}
	p.mu.Unlock()
	for asset, ok := range p.cfg.Withdraw {
		out[domain.NormalizeAsset(asset)] = ok
	}
	return out, nil
}

// Monitor delegates to the live market source, if any, and otherwise waits
// for ctx.
func (p *PaperGateway) Monitor(ctx context.Context, pairs []domain.Pair, syncer *orderbook.Synchronizer) error {
	if p.market != nil {
		return p.market.Monitor(ctx, pairs, syncer)
	}
	<-ctx.Done()
	return nil
}

// Place fills as much of order as the book allows at once.
func (p *PaperGateway) Place(_ context.Context, order domain.Order) (OrderAck, error) {
	side := domain.SideAsks
	if order.Side == domain.OrderSideSell {
		side = domain.SideBids
	}
	snap, err := p.registry.Snapshot(order.Pair, side)
	if err != nil {
		return OrderAck{}, err
	}

	remaining := order.BaseVolume
	filled, notional := decimal.Zero, decimal.Zero
	levels := snap.Levels
	kept := make([]domain.PriceLevel, 0, len(levels))
	for i := range levels {
		lvl := levels[i]
		crosses := lvl.Price().LessThanOrEqual(order.Price)
		if order.Side == domain.OrderSideSell {
			crosses = lvl.Price().GreaterThanOrEqual(order.Price)
		}
		if !remaining.IsPositive() || !crosses {
			kept = append(kept, levels[i:]...)
			break
		}
		take := decimal.Min(remaining, lvl.BaseAmount())
		filled = filled.Add(take)
		notional = notional.Add(take.Mul(lvl.Price()))
		remaining = remaining.Sub(take)
		if left := lvl.BaseAmount().Sub(take); left.IsPositive() {
			lvl.SetBaseAmount(left)
			kept = append(kept, lvl)
		}
	}
	if !filled.IsPositive() {
		return OrderAck{}, fmt.Errorf("paper: %s %s %s @ %s: %w", p.cfg.Name, order.Side, order.Pair, order.Price, ErrNotFilled)
	}

	base, quote := domain.NormalizeAsset(order.Pair.Base), domain.NormalizeAsset(order.Pair.Quote)
	p.mu.Lock()
	switch order.Side {
	case domain.OrderSideBuy:
		if p.balances[quote].LessThan(notional) {
			p.mu.Unlock()
			return OrderAck{}, fmt.Errorf("paper: %s buy needs %s %s: %w", p.cfg.Name, notional, quote, domain.ErrInsufficientBalance)
		}
		p.balances[quote] = p.balances[quote].Sub(notional)
		p.balances[base] = p.balances[base].Add(filled.Mul(p.cfg.Fee))
	default:
		if p.balances[base].LessThan(filled) {
			p.mu.Unlock()
			return OrderAck{}, fmt.Errorf("paper: %s sell needs %s %s: %w", p.cfg.Name, filled, base, domain.ErrInsufficientBalance)
		}
		p.balances[base] = p.balances[base].Sub(filled)
		p.balances[quote] = p.balances[quote].Add(notional.Mul(p.cfg.Fee))
	}
	p.mu.Unlock()

	p.registry.Put(order.Pair, side, domain.Snapshot{Levels: kept, SequenceID: snap.SequenceID})

	status := "FILLED"
	if remaining.IsPositive() {
		status = "PARTIALLY_FILLED"
	}
	id := fmt.Sprintf("paper-%d-%s", p.orders.Add(1), uuid.NewString()[:8])
	p.logger.Debug("paper fill",
		slog.String("order_id", id),
		slog.String("side", string(order.Side)),
		slog.String("filled", filled.String()),
		slog.String("notional", notional.String()),
	)
	return OrderAck{OrderID: id, Status: status, FilledBase: filled}, nil
}

// Compile-time interface check.
var _ Gateway = (*PaperGateway)(nil)
