package app

import (
	"fmt"
	"log/slog"

	"github.com/jidanzai321/aggregator/internal/aggregate"
	"github.com/jidanzai321/aggregator/internal/book"
	"github.com/jidanzai321/aggregator/internal/config"
	"github.com/jidanzai321/aggregator/internal/domain"
	"github.com/jidanzai321/aggregator/internal/platform/binance"
	"github.com/jidanzai321/aggregator/internal/platform/bybit"
	"github.com/jidanzai321/aggregator/internal/platform/dydx"
	"github.com/jidanzai321/aggregator/internal/platform/polymarket"
	"github.com/jidanzai321/aggregator/internal/platform/relay"
	"github.com/jidanzai321/aggregator/internal/source"
	"github.com/jidanzai321/aggregator/internal/supervisor"
)

// backoffPolicy converts the configured reconnect policy.
func backoffPolicy(cfg config.BackoffConfig) source.Backoff {
	return source.Backoff{
		Min:        cfg.Min.Duration,
		Max:        cfg.Max.Duration,
		Multiplier: cfg.Multiplier,
		Jitter:     cfg.Jitter,
	}
}

// newFeed builds the adapter for one venue of one symbol. The symbol's
// depth_limit, when set, overrides the venue's default depth.
func newFeed(cfg *config.Config, venue string, sym config.SymbolConfig, deps *Dependencies, logger *slog.Logger) (source.Feed, error) {
	vc, ok := cfg.Venues.Lookup(venue)
	if !ok {
		return nil, fmt.Errorf("app: %w %q", domain.ErrUnknownVenue, venue)
	}
	depth := vc.Depth
	if sym.DepthLimit > 0 {
		depth = sym.DepthLimit
	}

	switch venue {
	case binance.Venue:
		return binance.NewFeed(binance.ClientConfig{
			BaseURL:      vc.URL,
			PollInterval: vc.PollInterval.Duration,
			Limit:        depth,
		}, logger), nil
	case dydx.Venue:
		return dydx.NewFeed(vc.URL, logger), nil
	case bybit.Venue:
		return bybit.NewFeed(vc.URL, depth, logger), nil
	case polymarket.Venue:
		return polymarket.NewFeed(vc.URL, logger), nil
	case relay.Venue:
		if deps.SignalBus == nil {
			return nil, fmt.Errorf("app: venue %q needs a reachable redis", venue)
		}
		return relay.NewFeed(deps.SignalBus, vc.PollInterval.Duration, logger), nil
	}
	return nil, fmt.Errorf("app: %w %q", domain.ErrUnknownVenue, venue)
}

// buildSymbol creates one source per configured venue of sym, all sharing
// the symbol's grid, and reports their transitions to sup.
func buildSymbol(cfg *config.Config, sym config.SymbolConfig, deps *Dependencies, sup *supervisor.Supervisor, logger *slog.Logger) (supervisor.Symbol, error) {
	grid, err := book.NewGrid(sym.Tick)
	if err != nil {
		return supervisor.Symbol{}, fmt.Errorf("app: symbol %s: %w", sym.Name, err)
	}

	out := supervisor.Symbol{
		Name:   sym.Name,
		Window: aggregate.Window{RangePct: sym.RangePct, BinSize: sym.BinSize},
	}
	for _, venue := range sym.VenueNames() {
		feed, err := newFeed(cfg, venue, sym, deps, logger)
		if err != nil {
			return supervisor.Symbol{}, fmt.Errorf("app: symbol %s: %w", sym.Name, err)
		}
		out.Sources = append(out.Sources, source.New(feed, source.Config{
			Symbol:     sym.Name,
			Instrument: sym.Venues[venue],
			Grid:       grid,
			Backoff:    backoffPolicy(cfg.Backoff),
		}, logger, source.WithStateFunc(sup.Observe)))
	}
	return out, nil
}
