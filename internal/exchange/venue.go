// Package exchange implements the engine's Exchange capability on top of a
// venue-specific Gateway. Everything venue specific (wire formats, auth,
// market-data protocol) lives in the gateway; Venue adds the order books,
// market rules, balances and order quantisation shared by all venues.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/venuearb/internal/domain"
	"github.com/alanyoungcy/venuearb/internal/orderbook"
)

// ErrNotFilled is returned by gateways that fill immediately and could not
// fill any of an order.
var ErrNotFilled = errors.New("order not filled")

// MarketRules are a venue's trading constraints for one pair.
type MarketRules struct {
	BasePrecision  int32           `json:"base_precision"`
	QuotePrecision int32           `json:"quote_precision"`
	PricePrecision int32           `json:"price_precision"`
	MinTradeVolume decimal.Decimal `json:"min_trade_volume"` // quote asset
	MinQuantity    decimal.Decimal `json:"min_quantity"`     // base asset
}

// OrderAck is a gateway's answer to an accepted order.
type OrderAck struct {
	OrderID    string
	Status     string
	FilledBase decimal.Decimal
}

// Gateway is the transport to one venue.
type Gateway interface {
	Name() string
	// Rules returns the rules of every pair quoted in quote.
	Rules(ctx context.Context, quote string) (map[domain.Pair]MarketRules, error)
	Balances(ctx context.Context) (map[string]decimal.Decimal, error)
	// Withdrawals returns which assets can currently be withdrawn.
	Withdrawals(ctx context.Context) (map[string]bool, error)
	Place(ctx context.Context, order domain.Order) (OrderAck, error)
	// Monitor feeds sync with books for pairs until ctx is cancelled.
	Monitor(ctx context.Context, pairs []domain.Pair, syncer *orderbook.Synchronizer) error
}

// Config describes one venue.
type Config struct {
	Name  string
	Quote string
	// Fee is the fraction of traded value kept after fees, e.g. 0.999.
	Fee decimal.Decimal
	// OptimisticBalances applies each accepted order to the local balances
	// immediately instead of waiting for the next refresh.
	OptimisticBalances bool
	RefreshInterval    time.Duration
	// Rules override what the gateway reports, per pair.
	Rules map[domain.Pair]MarketRules
}

// Venue implements domain.Exchange.
type Venue struct {
	cfg      Config
	gw       Gateway
	registry *orderbook.Registry
	syncer   *orderbook.Synchronizer
	logger   *slog.Logger

	mu       sync.RWMutex
	rules    map[domain.Pair]MarketRules
	balances map[string]decimal.Decimal
	withdraw map[string]bool
}

// NewVenue creates a Venue. registry receives the venue's books; pass the
// same registry to a gateway that needs to read them back (PaperGateway).
func NewVenue(cfg Config, gw Gateway, registry *orderbook.Registry, logger *slog.Logger, syncOpts ...orderbook.SyncOption) *Venue {
	if registry == nil {
		registry = orderbook.NewRegistry()
	}
	logger = logger.With(slog.String("component", "venue"), slog.String("venue", cfg.Name))
	v := &Venue{
		cfg:      cfg,
		gw:       gw,
		registry: registry,
		syncer:   orderbook.NewSynchronizer(cfg.Name, registry, logger, syncOpts...),
		logger:   logger,
		rules:    make(map[domain.Pair]MarketRules),
		balances: make(map[string]decimal.Decimal),
		withdraw: make(map[string]bool),
	}
	for p, r := range cfg.Rules {
		v.rules[domain.NewPair(p.Base, p.Quote)] = r
	}
	return v
}

func (v *Venue) Name() string                          { return v.cfg.Name }
func (v *Venue) PostTradingFee() decimal.Decimal       { return v.cfg.Fee }
func (v *Venue) Registry() *orderbook.Registry         { return v.registry }
func (v *Venue) Synchronizer() *orderbook.Synchronizer { return v.syncer }

// Refresh pulls rules, balances and withdrawal flags from the gateway. The
// fresh balances replace any optimistic adjustments.
func (v *Venue) Refresh(ctx context.Context) error {
	var errs []error

	rules, err := v.gw.Rules(ctx, v.cfg.Quote)
	if err != nil {
		errs = append(errs, fmt.Errorf("rules: %w", err))
	}
	balances, err := v.gw.Balances(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("balances: %w", err))
	}
	withdraw, err := v.gw.Withdrawals(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("withdrawals: %w", err))
	}

	v.mu.Lock()
	if rules != nil {
		merged := make(map[domain.Pair]MarketRules, len(rules))
		for p, r := range rules {
			merged[domain.NewPair(p.Base, p.Quote)] = r
		}
		for p, r := range v.cfg.Rules {
			merged[domain.NewPair(p.Base, p.Quote)] = r
		}
		v.rules = merged
	}
	if balances != nil {
		v.balances = normaliseAssets(balances)
	}
	if withdraw != nil {
		v.withdraw = make(map[string]bool, len(withdraw))
		for asset, ok := range withdraw {
			v.withdraw[domain.NormalizeAsset(asset)] = ok
		}
	}
	v.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("exchange: refresh %s: %w", v.cfg.Name, errors.Join(errs...))
	}
	return nil
}

// RunRefresh calls Refresh every RefreshInterval until ctx is cancelled.
func (v *Venue) RunRefresh(ctx context.Context) error {
	interval := v.cfg.RefreshInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := v.Refresh(ctx); err != nil && ctx.Err() == nil {
				v.logger.Warn("venue refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

func normaliseAssets(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for asset, amount := range in {
		out[domain.NormalizeAsset(asset)] = amount
	}
	return out
}

func (v *Venue) rulesFor(pair domain.Pair) (MarketRules, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	r, ok := v.rules[domain.NewPair(pair.Base, pair.Quote)]
	return r, ok
}

// Rules returns the current rules of pair.
func (v *Venue) Rules(pair domain.Pair) (MarketRules, bool) {
	return v.rulesFor(pair)
}

func (v *Venue) Supports(pair domain.Pair) bool {
	_, ok := v.rulesFor(pair)
	return ok
}

func (v *Venue) CanWithdraw(asset string) (allowed, known bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	allowed, known = v.withdraw[domain.NormalizeAsset(asset)]
	return allowed, known
}

// checkFresh fails with domain.ErrBookNotFound while a side is being
// resynchronised after its stream dropped.
func (v *Venue) checkFresh(pair domain.Pair, side domain.BookSide) error {
	if v.syncer.Stale(pair, side) {
		return fmt.Errorf("exchange: %s %s %s resynchronising: %w", v.cfg.Name, pair, side, domain.ErrBookNotFound)
	}
	return nil
}

func (v *Venue) best(pair domain.Pair, side domain.BookSide) (decimal.Decimal, error) {
	if err := v.checkFresh(pair, side); err != nil {
		return decimal.Zero, err
	}
	lvl, err := v.registry.Best(pair, side)
	if err != nil {
		return decimal.Zero, err
	}
	return lvl.Price(), nil
}

func (v *Venue) cursor(pair domain.Pair, side domain.BookSide) (*domain.Cursor, error) {
	if err := v.checkFresh(pair, side); err != nil {
		return nil, err
	}
	return v.registry.Cursor(pair, side)
}

func (v *Venue) LowestAsk(pair domain.Pair) (decimal.Decimal, error) {
	return v.best(pair, domain.SideAsks)
}

func (v *Venue) HighestBid(pair domain.Pair) (decimal.Decimal, error) {
	return v.best(pair, domain.SideBids)
}

func (v *Venue) AsksCursor(pair domain.Pair) (*domain.Cursor, error) {
	return v.cursor(pair, domain.SideAsks)
}

func (v *Venue) BidsCursor(pair domain.Pair) (*domain.Cursor, error) {
	return v.cursor(pair, domain.SideBids)
}

func (v *Venue) Balance(asset string) decimal.Decimal {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.balances[domain.NormalizeAsset(asset)]
}

// Balances returns a copy of every known balance.
func (v *Venue) Balances() map[string]decimal.Decimal {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(v.balances))
	for k, b := range v.balances {
		out[k] = b
	}
	return out
}

func (v *Venue) BasePrecision(pair domain.Pair) int32 {
	r, _ := v.rulesFor(pair)
	return r.BasePrecision
}

func (v *Venue) QuotePrecision(pair domain.Pair) int32 {
	r, _ := v.rulesFor(pair)
	return r.QuotePrecision
}

func (v *Venue) PricePrecision(pair domain.Pair) int32 {
	r, _ := v.rulesFor(pair)
	return r.PricePrecision
}

func (v *Venue) MinTradeVolume(pair domain.Pair) decimal.Decimal {
	r, _ := v.rulesFor(pair)
	return r.MinTradeVolume
}

func (v *Venue) MinQuantity(pair domain.Pair) decimal.Decimal {
	r, _ := v.rulesFor(pair)
	return r.MinQuantity
}

// quantise floors the volume to the base precision and rounds the price
// half-even to the price precision.
func (v *Venue) quantise(order domain.Order) (domain.Order, error) {
	r, ok := v.rulesFor(order.Pair)
	if !ok {
		return order, fmt.Errorf("exchange: %s %s: %w", v.cfg.Name, order.Pair, domain.ErrUnknownPair)
	}
	order.BaseVolume = order.BaseVolume.RoundFloor(r.BasePrecision)
	order.Price = order.Price.RoundBank(r.PricePrecision)
	if !order.BaseVolume.IsPositive() || order.BaseVolume.LessThan(r.MinQuantity) {
		return order, fmt.Errorf("exchange: %s %s volume %s below minimum %s: %w",
			v.cfg.Name, order.Pair, order.BaseVolume, r.MinQuantity, domain.ErrInvalidOrder)
	}
	return order, nil
}

// Buy submits a limit buy. The venue itself is trusted to reject an order
// the quote balance cannot cover.
func (v *Venue) Buy(ctx context.Context, order domain.Order) error {
	order.Side = domain.OrderSideBuy
	return v.place(ctx, order)
}

// Sell submits a limit sell after checking the base balance locally.
func (v *Venue) Sell(ctx context.Context, order domain.Order) error {
	order.Side = domain.OrderSideSell
	q, err := v.quantise(order)
	if err != nil {
		return err
	}
	if have := v.Balance(q.Pair.Base); have.LessThan(q.BaseVolume) {
		return fmt.Errorf("exchange: %s sell %s %s, have %s: %w",
			v.cfg.Name, q.BaseVolume, q.Pair.Base, have, domain.ErrInsufficientBalance)
	}
	return v.place(ctx, order)
}

func (v *Venue) place(ctx context.Context, order domain.Order) error {
	q, err := v.quantise(order)
	if err != nil {
		return err
	}
	ack, err := v.gw.Place(ctx, q)
	if err != nil {
		return fmt.Errorf("exchange: %s %s %s: %w", v.cfg.Name, q.Side, q.Pair, err)
	}
	v.logger.Info("order placed",
		slog.String("side", string(q.Side)),
		slog.String("pair", q.Pair.String()),
		slog.String("price", q.Price.String()),
		slog.String("volume", q.BaseVolume.String()),
		slog.String("order_id", ack.OrderID),
		slog.String("status", ack.Status),
	)
	if v.cfg.OptimisticBalances {
		filled := q.BaseVolume
		if ack.FilledBase.IsPositive() {
			filled = ack.FilledBase
		}
		v.applyFill(q, filled)
	}
	return nil
}

// applyFill adjusts local balances as if filled base units traded at the
// order price. The next Refresh overwrites the result.
func (v *Venue) applyFill(order domain.Order, filled decimal.Decimal) {
	base, quote := order.Pair.Base, order.Pair.Quote
	notional := filled.Mul(order.Price)

	v.mu.Lock()
	defer v.mu.Unlock()
	switch order.Side {
	case domain.OrderSideBuy:
		v.balances[base] = v.balances[base].Add(filled.Mul(v.cfg.Fee))
		v.balances[quote] = v.balances[quote].Sub(notional)
	case domain.OrderSideSell:
		v.balances[base] = v.balances[base].Sub(filled)
		v.balances[quote] = v.balances[quote].Add(notional.Mul(v.cfg.Fee))
	}
}

// StartMonitoring keeps the books of every supported base/quote pair in sync
// until ctx is cancelled.
func (v *Venue) StartMonitoring(ctx context.Context, bases []string, quote string) error {
	var pairs []domain.Pair
	for _, base := range bases {
		p := domain.NewPair(base, quote)
		if v.Supports(p) {
			pairs = append(pairs, p)
			continue
		}
		v.logger.Info("pair not listed, not monitoring", slog.String("pair", p.String()))
	}
	if len(pairs) == 0 {
		<-ctx.Done()
		return nil
	}
	v.logger.Info("monitoring order books", slog.Int("pairs", len(pairs)))
	return v.gw.Monitor(ctx, pairs, v.syncer)
}

// Compile-time interface check.
var _ domain.Exchange = (*Venue)(nil)
