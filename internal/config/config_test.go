package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jidanzai321/aggregator/internal/domain"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Symbols = []SymbolConfig{{
		Name:     "BTC-USD",
		Tick:     0.5,
		RangePct: 0.2,
		BinSize:  1,
		Venues:   map[string]string{"binance": "BTCUSDT", "bybit": "BTCUSDT"},
	}}
	return cfg
}

func TestDefaultsWithSymbolValidate(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRequiresSymbols(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "at least one symbol") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidateSymbolErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SymbolConfig)
		want   error
	}{
		{"zero tick", func(s *SymbolConfig) { s.Tick = 0 }, domain.ErrInvalidTick},
		{"range zero", func(s *SymbolConfig) { s.RangePct = 0 }, domain.ErrInvalidWindow},
		{"range above one", func(s *SymbolConfig) { s.RangePct = 1.5 }, domain.ErrInvalidWindow},
		{"negative bin", func(s *SymbolConfig) { s.BinSize = -1 }, domain.ErrInvalidWindow},
		{"unknown venue", func(s *SymbolConfig) { s.Venues["kraken"] = "XBTUSD" }, domain.ErrUnknownVenue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg.Symbols[0])
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "verbose"
	cfg.Venues.Bybit.Enabled = false
	cfg.Venues.Relay.Enabled = true
	cfg.Backoff.Multiplier = 0.5

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, want := range []string{
		`log_level "verbose"`,
		`venue "bybit" is disabled`,
		"relay: requires redis.addr",
		"multiplier must be >= 1",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidateRedisEncoding(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Encoding = "xml"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("encoding must be ignored without redis.addr: %v", err)
	}
	cfg.Redis.Addr = "localhost:6379"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "encoding") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidateServerEncoding(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Encoding = "proto"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	cfg.Server.Encoding = "xml"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "server: unknown encoding") {
		t.Fatalf("err = %v", err)
	}
	cfg.Server.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("encoding must be ignored with the server disabled: %v", err)
	}
}

func TestValidateBackoffRejectsNaN(t *testing.T) {
	cfg := validConfig()
	cfg.Backoff.Multiplier = math.NaN()
	cfg.Backoff.Jitter = math.NaN()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected an error for NaN backoff values")
	}
	for _, want := range []string{"multiplier", "jitter"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

const sampleTOML = `
log_level = "debug"

[engine]
merge_interval = "250ms"

[[symbols]]
name = "ETH-USD"
tick = 0.01
range_pct = 0.05
bin_size = 0.5
depth_limit = 200

[symbols.venues]
binance = "ETHUSDT"
dydx = "ETH-USD"

[redis]
addr = "localhost:6379"
encoding = "proto"
`

func TestLoadMergesDefaultsAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(sampleTOML), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AGG_REDIS_PASSWORD", "hunter2")
	t.Setenv("AGG_VENUES_DYDX_URL", "ws://localhost:9999")
	t.Setenv("AGG_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Engine.MergeInterval.Duration != 250*time.Millisecond {
		t.Errorf("merge_interval = %v", cfg.Engine.MergeInterval)
	}
	if cfg.Engine.ShutdownGrace.Duration != 5*time.Second {
		t.Errorf("shutdown_grace default lost: %v", cfg.Engine.ShutdownGrace)
	}
	sym := cfg.Symbols[0]
	if sym.DepthLimit != 200 || sym.Venues["dydx"] != "ETH-USD" {
		t.Errorf("symbol = %+v", sym)
	}
	if got := sym.VenueNames(); len(got) != 2 || got[0] != "binance" || got[1] != "dydx" {
		t.Errorf("VenueNames = %v", got)
	}
	if cfg.Redis.Password != "hunter2" || cfg.Redis.Encoding != "proto" {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.Venues.DYDX.URL != "ws://localhost:9999" {
		t.Errorf("dydx url = %q", cfg.Venues.DYDX.URL)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors = %v", cfg.Server.CORSOrigins)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRedactedConfigLeavesOriginalIntact(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Password = "secret"
	cfg.Postgres.DSN = "postgres://u:p@h/db"
	cfg.Notify.TelegramToken = "tok"

	red := RedactedConfig(&cfg)
	if red.Redis.Password != redacted || red.Postgres.DSN != redacted || red.Notify.TelegramToken != redacted {
		t.Fatalf("secrets not redacted: %+v", red)
	}
	if red.S3.SecretKey != "" {
		t.Fatalf("empty secret became %q", red.S3.SecretKey)
	}

	red.Symbols[0].Venues["binance"] = "changed"
	red.Notify.Events[0] = "changed"
	if cfg.Redis.Password != "secret" || cfg.Symbols[0].Venues["binance"] != "BTCUSDT" || cfg.Notify.Events[0] != "source_down" {
		t.Fatal("redacted copy aliases the original")
	}
}
