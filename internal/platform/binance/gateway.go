// Package binance adapts a Binance-compatible spot venue to the engine: REST
// market rules, balances, withdraw flags and signed limit orders, plus the
// diff-depth websocket that keeps its books in sync.
package binance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/venuearb/internal/domain"
	"github.com/alanyoungcy/venuearb/internal/exchange"
	"github.com/alanyoungcy/venuearb/internal/feed"
	"github.com/alanyoungcy/venuearb/internal/orderbook"
)

const defaultDepthLimit = 1000

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	Name  string
	WSURL string
	// DepthLimit is the number of levels fetched per REST snapshot.
	DepthLimit int
}

// Gateway implements exchange.Gateway and feed.Source.
type Gateway struct {
	cfg    GatewayConfig
	client *Client
	logger *slog.Logger
}

// NewGateway creates a Gateway on top of client.
func NewGateway(cfg GatewayConfig, client *Client, logger *slog.Logger) *Gateway {
	if cfg.DepthLimit <= 0 {
		cfg.DepthLimit = defaultDepthLimit
	}
	return &Gateway{
		cfg:    cfg,
		client: client,
		logger: logger.With(slog.String("component", "binance"), slog.String("venue", cfg.Name)),
	}
}

func (g *Gateway) Name() string { return g.cfg.Name }

// Rules maps exchangeInfo filters onto market rules for every trading
// symbol quoted in quote.
func (g *Gateway) Rules(ctx context.Context, quote string) (map[domain.Pair]exchange.MarketRules, error) {
	info, err := g.client.ExchangeInfo(ctx)
	if err != nil {
		return nil, err
	}
	quote = domain.NormalizeAsset(quote)
	out := make(map[domain.Pair]exchange.MarketRules)
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || (quote != "" && !strings.EqualFold(s.QuoteAsset, quote)) {
			continue
		}
		out[domain.NewPair(s.BaseAsset, s.QuoteAsset)] = rulesFromSymbol(s)
	}
	return out, nil
}

// rulesFromSymbol reads the precisions and minimums of a symbol. The quote
// precision comes from the symbol itself and falls back to the tick size.
func rulesFromSymbol(s SymbolInfo) exchange.MarketRules {
	r := exchange.MarketRules{
		BasePrecision:  domain.Scale,
		QuotePrecision: domain.Scale,
		PricePrecision: domain.Scale,
		MinTradeVolume: decimal.Zero,
		MinQuantity:    decimal.Zero,
	}
	tickPrecision := false
	for _, f := range s.Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			r.BasePrecision = precisionOf(f.StepSize)
			r.MinQuantity = parseDecimal(f.MinQty)
		case "PRICE_FILTER":
			r.PricePrecision = precisionOf(f.TickSize)
			tickPrecision = true
		case "MIN_NOTIONAL", "NOTIONAL":
			r.MinTradeVolume = parseDecimal(f.MinNotional)
		}
	}
	switch {
	case s.QuoteAssetPrecision != nil:
		r.QuotePrecision = *s.QuoteAssetPrecision
	case s.QuotePrecision != nil:
		r.QuotePrecision = *s.QuotePrecision
	case tickPrecision:
		r.QuotePrecision = r.PricePrecision
	}
	return r
}

// Balances returns the free balance of every asset.
func (g *Gateway) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	acct, err := g.client.Account(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(acct.Balances))
	for _, b := range acct.Balances {
		out[domain.NormalizeAsset(b.Asset)] = parseDecimal(b.Free)
	}
	return out, nil
}

// Withdrawals reports per coin whether any network currently allows
// withdrawals.
func (g *Gateway) Withdrawals(ctx context.Context) (map[string]bool, error) {
	coins, err := g.client.CoinConfigs(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(coins))
	for _, c := range coins {
		out[domain.NormalizeAsset(c.Coin)] = c.withdrawable()
	}
	return out, nil
}

// Place submits order as a GTC limit order.
func (g *Gateway) Place(ctx context.Context, order domain.Order) (exchange.OrderAck, error) {
	side := "BUY"
	if order.Side == domain.OrderSideSell {
		side = "SELL"
	}
	resp, err := g.client.PlaceLimitOrder(ctx, order.Pair.Symbol(), side, order.BaseVolume.String(), order.Price.String())
	if err != nil {
		return exchange.OrderAck{}, err
	}
	return exchange.OrderAck{
		OrderID:    fmt.Sprintf("%d", resp.OrderID),
		Status:     resp.Status,
		FilledBase: parseDecimal(resp.ExecutedQty),
	}, nil
}

// Monitor keeps the books of pairs in sync until ctx is cancelled.
func (g *Gateway) Monitor(ctx context.Context, pairs []domain.Pair, syncer *orderbook.Synchronizer) error {
	return feed.NewDriver(g, syncer, g.logger).Run(ctx, pairs)
}

// Subscribe opens the diff-depth stream for pairs.
func (g *Gateway) Subscribe(ctx context.Context, pairs []domain.Pair) (<-chan feed.DepthEvent, error) {
	stream, err := DialDepthStream(ctx, g.cfg.WSURL, pairs)
	if err != nil {
		return nil, err
	}
	g.logger.Info("depth stream connected", slog.Int("pairs", len(pairs)))
	return stream.Events(), nil
}

// Snapshot fetches the REST book of pair.
func (g *Gateway) Snapshot(ctx context.Context, pair domain.Pair) (feed.DepthSnapshot, error) {
	depth, err := g.client.Depth(ctx, pair.Symbol(), g.cfg.DepthLimit)
	if err != nil {
		return feed.DepthSnapshot{}, err
	}
	return feed.DepthSnapshot{
		LastUpdateID: depth.LastUpdateID,
		Asks:         parseLevels(depth.Asks),
		Bids:         parseLevels(depth.Bids),
	}, nil
}

// Compile-time interface checks.
var (
	_ exchange.Gateway = (*Gateway)(nil)
	_ feed.Source      = (*Gateway)(nil)
)
