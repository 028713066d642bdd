package app

import (
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/venuearb/internal/config"
	"github.com/alanyoungcy/venuearb/internal/crypto"
	"github.com/alanyoungcy/venuearb/internal/domain"
	"github.com/alanyoungcy/venuearb/internal/exchange"
	"github.com/alanyoungcy/venuearb/internal/orderbook"
	"github.com/alanyoungcy/venuearb/internal/platform/binance"
)

// buildVenues creates one exchange.Venue per configured venue. Books are
// mirrored and observed through deps when those are available.
func buildVenues(cfg *config.Config, deps *Dependencies, logger *slog.Logger) ([]*exchange.Venue, error) {
	syncOpts := []orderbook.SyncOption{orderbook.WithObserver(deps.Metrics)}
	if deps.BookMirror != nil {
		syncOpts = append(syncOpts, orderbook.WithMirror(deps.BookMirror))
	}

	venues := make([]*exchange.Venue, 0, len(cfg.Venues))
	for _, vc := range cfg.Venues {
		rules, err := venueRules(vc)
		if err != nil {
			return nil, err
		}
		vcfg := exchange.Config{
			Name:               vc.Name,
			Quote:              cfg.Engine.Quote,
			Fee:                vc.Fee,
			OptimisticBalances: vc.OptimisticBalances,
			RefreshInterval:    cfg.Engine.BalanceRefresh.Duration,
			Rules:              rules,
		}

		registry := orderbook.NewRegistry()
		var gw exchange.Gateway
		switch vc.Kind {
		case config.KindBinance:
			gw, err = binanceGateway(vc, deps, logger, true)
			if err != nil {
				return nil, err
			}
		case config.KindPaper:
			var market exchange.Gateway
			if vc.PaperMarketData {
				if market, err = binanceGateway(vc, deps, logger, false); err != nil {
					return nil, err
				}
			}
			gw = exchange.NewPaperGateway(exchange.PaperConfig{
				Name:     vc.Name,
				Fee:      vc.Fee,
				Rules:    rules,
				Balances: vc.PaperBalances,
				Withdraw: vc.PaperWithdraw,
			}, registry, market, logger)
		default:
			return nil, fmt.Errorf("app: venue %q: unknown kind %q", vc.Name, vc.Kind)
		}

		venues = append(venues, exchange.NewVenue(vcfg, gw, registry, logger, syncOpts...))
	}
	return venues, nil
}

// binanceGateway builds a Binance gateway. Credentials are loaded only when
// signed is set; a paper venue's market-data source stays public.
func binanceGateway(vc config.VenueConfig, deps *Dependencies, logger *slog.Logger, signed bool) (*binance.Gateway, error) {
	var auth *crypto.HMACAuth
	if signed && vc.APIKey != "" {
		secret, err := crypto.LoadSecret(crypto.SecretConfig{
			Raw:      vc.APISecret,
			Path:     vc.SecretFile,
			Password: vc.SecretPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("app: venue %q: %w", vc.Name, err)
		}
		auth = &crypto.HMACAuth{Key: vc.APIKey, Secret: secret}
	}

	var opts []binance.ClientOption
	if deps.RateLimiter != nil && vc.RateLimit > 0 {
		opts = append(opts, binance.WithRateLimiter(deps.RateLimiter, "venue:"+vc.Name, vc.RateLimit, vc.RateWindow.Duration))
	}
	client := binance.NewClient(vc.RESTURL, auth, opts...)
	return binance.NewGateway(binance.GatewayConfig{
		Name:       vc.Name,
		WSURL:      vc.WSURL,
		DepthLimit: vc.DepthLimit,
	}, client, logger), nil
}

func venueRules(vc config.VenueConfig) (map[domain.Pair]exchange.MarketRules, error) {
	if len(vc.Rules) == 0 {
		return nil, nil
	}
	out := make(map[domain.Pair]exchange.MarketRules, len(vc.Rules))
	for key, r := range vc.Rules {
		pair, err := config.ParsePairKey(key)
		if err != nil {
			return nil, fmt.Errorf("app: venue %q: %w", vc.Name, err)
		}
		out[pair] = exchange.MarketRules{
			BasePrecision:  r.BasePrecision,
			QuotePrecision: r.QuotePrecision,
			PricePrecision: r.PricePrecision,
			MinTradeVolume: r.MinTradeVolume,
			MinQuantity:    r.MinQuantity,
		}
	}
	return out, nil
}
