package main

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jidanzai321/aggregator/internal/config"
	"github.com/jidanzai321/aggregator/internal/domain"
)

func TestCheckSymbols(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{Symbols: []config.SymbolConfig{
		{Name: "BTC-USD", Tick: 0.5, RangePct: 0.2, BinSize: 10, Venues: map[string]string{"bybit": "BTCUSDT"}},
	}}
	if err := checkSymbols(cfg, logger); err != nil {
		t.Fatalf("checkSymbols: %v", err)
	}

	cfg.Symbols = append(cfg.Symbols,
		config.SymbolConfig{Name: "BAD-TICK", Tick: 0, RangePct: 0.2, BinSize: 1},
		config.SymbolConfig{Name: "BAD-WIN", Tick: 1, RangePct: 1.5, BinSize: 1},
	)
	err := checkSymbols(cfg, logger)
	if !errors.Is(err, domain.ErrInvalidTick) || !errors.Is(err, domain.ErrInvalidWindow) {
		t.Fatalf("err = %v, want both tick and window errors", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
