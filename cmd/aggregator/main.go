// Command aggregator merges the order books of several venues into one
// cross-venue depth view per symbol. It loads configuration, checks every
// symbol's price grid and display window, and runs until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jidanzai321/aggregator/internal/aggregate"
	"github.com/jidanzai321/aggregator/internal/app"
	"github.com/jidanzai321/aggregator/internal/book"
	"github.com/jidanzai321/aggregator/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	checkOnly := flag.Bool("check", false, "validate the configuration and symbol plan, then exit")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// The depth table owns stdout when it is enabled.
	var logOut io.Writer = os.Stdout
	if cfg.Terminal.Enabled {
		logOut = os.Stderr
	}
	logger = slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := checkSymbols(cfg, logger); err != nil {
		logger.Error("invalid symbol plan", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *checkOnly {
		fmt.Fprintf(os.Stderr, "%s: ok (%d symbols)\n", *configPath, len(cfg.Symbols))
		return
	}

	logger.Info("aggregator starting",
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.New(cfg, logger).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("aggregator exited with error", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
	logger.Info("aggregator stopped")
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// checkSymbols builds the price grid and display window of every symbol
// the way the engine will, so a tick or window the book cannot use stops
// the process before any venue is dialled.
func checkSymbols(cfg *config.Config, logger *slog.Logger) error {
	var errs []error
	for _, sym := range cfg.Symbols {
		grid, err := book.NewGrid(sym.Tick)
		if err != nil {
			errs = append(errs, fmt.Errorf("symbol %s: %w", sym.Name, err))
			continue
		}
		w := aggregate.Window{RangePct: sym.RangePct, BinSize: sym.BinSize}
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("symbol %s: %w", sym.Name, err))
			continue
		}
		if q := grid.Quantize(sym.BinSize); q != sym.BinSize {
			logger.Warn("bin_size is not a multiple of tick, buckets will hold uneven level counts",
				slog.String("symbol", sym.Name),
				slog.Float64("tick", grid.Tick()),
				slog.Float64("bin_size", sym.BinSize),
			)
		}
		logger.Info("symbol plan",
			slog.String("symbol", sym.Name),
			slog.Float64("tick", grid.Tick()),
			slog.Float64("range_pct", w.RangePct),
			slog.Float64("bin_size", w.BinSize),
			slog.Int("depth_limit", sym.DepthLimit),
			slog.String("venues", strings.Join(sym.VenueNames(), ",")),
		)
	}
	return errors.Join(errs...)
}
