// Package config defines the top-level configuration for the aggregator
// and provides validation helpers.
package config

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jidanzai321/aggregator/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by AGG_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Backoff  BackoffConfig  `toml:"backoff"`
	Symbols  []SymbolConfig `toml:"symbols"`
	Venues   VenuesConfig   `toml:"venues"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Postgres PostgresConfig `toml:"postgres"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Terminal TerminalConfig `toml:"terminal"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds merge loop and shutdown timing.
type EngineConfig struct {
	MergeInterval duration `toml:"merge_interval"`
	ShutdownGrace duration `toml:"shutdown_grace"`
	SinkTimeout   duration `toml:"sink_timeout"`
}

// BackoffConfig is the reconnect delay policy shared by all sources.
type BackoffConfig struct {
	Min        duration `toml:"min"`
	Max        duration `toml:"max"`
	Multiplier float64  `toml:"multiplier"`
	Jitter     float64  `toml:"jitter"`
}

// SymbolConfig describes one aggregated symbol. Venues maps a venue name to
// that venue's instrument id for the symbol.
type SymbolConfig struct {
	Name       string            `toml:"name"`
	Tick       float64           `toml:"tick"`
	RangePct   float64           `toml:"range_pct"`
	BinSize    float64           `toml:"bin_size"`
	DepthLimit int               `toml:"depth_limit"`
	Venues     map[string]string `toml:"venues"`
}

// VenueNames returns the symbol's venue names in sorted order.
func (s SymbolConfig) VenueNames() []string {
	names := make([]string, 0, len(s.Venues))
	for name := range s.Venues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VenueConfig holds the endpoint and polling parameters of one venue.
// For relay, PollInterval is the blocking read timeout of each XREAD.
type VenueConfig struct {
	Enabled      bool     `toml:"enabled"`
	URL          string   `toml:"url"`
	PollInterval duration `toml:"poll_interval"`
	Depth        int      `toml:"depth"`
}

// VenuesConfig holds per-venue settings.
type VenuesConfig struct {
	Binance    VenueConfig `toml:"binance"`
	DYDX       VenueConfig `toml:"dydx"`
	Bybit      VenueConfig `toml:"bybit"`
	Polymarket VenueConfig `toml:"polymarket"`
	Relay      VenueConfig `toml:"relay"`
}

// Lookup returns the settings of the named venue.
func (v *VenuesConfig) Lookup(name string) (*VenueConfig, bool) {
	switch name {
	case "binance":
		return &v.Binance, true
	case "dydx":
		return &v.DYDX, true
	case "bybit":
		return &v.Bybit, true
	case "polymarket":
		return &v.Polymarket, true
	case "relay":
		return &v.Relay, true
	}
	return nil, false
}

// RedisConfig holds Redis connection parameters and the publish sink
// settings. An empty Addr disables everything backed by Redis.
type RedisConfig struct {
	Addr          string   `toml:"addr"`
	Password      string   `toml:"password"`
	DB            int      `toml:"db"`
	PoolSize      int      `toml:"pool_size"`
	MaxRetries    int      `toml:"max_retries"`
	TLSEnabled    bool     `toml:"tls_enabled"`
	ChannelPrefix string   `toml:"channel_prefix"`
	SnapshotTTL   duration `toml:"snapshot_ttl"`
	Encoding      string   `toml:"encoding"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	Prefix         string   `toml:"prefix"`
	MinInterval    duration `toml:"min_interval"`
}

// PostgresConfig holds the source event store connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// Encoding is the wire format of /ws book frames: json or proto.
	Encoding string `toml:"encoding"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	FailureThreshold  int      `toml:"failure_threshold"`
	Cooldown          duration `toml:"cooldown"`
}

// TerminalConfig controls the stdout depth table.
type TerminalConfig struct {
	Enabled bool `toml:"enabled"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml. Symbols are left empty.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			MergeInterval: duration{time.Second},
			ShutdownGrace: duration{5 * time.Second},
			SinkTimeout:   duration{2 * time.Second},
		},
		Backoff: BackoffConfig{
			Min:        duration{3 * time.Second},
			Max:        duration{60 * time.Second},
			Multiplier: 2,
			Jitter:     0.2,
		},
		Venues: VenuesConfig{
			Binance: VenueConfig{
				Enabled:      true,
				URL:          "https://api.binance.com",
				PollInterval: duration{time.Second},
				Depth:        100,
			},
			DYDX: VenueConfig{
				Enabled: true,
				URL:     "wss://indexer.dydx.trade/v4/ws",
			},
			Bybit: VenueConfig{
				Enabled: true,
				URL:     "wss://stream.bybit.com/v5/public/linear",
				Depth:   50,
			},
			Polymarket: VenueConfig{
				Enabled: true,
				URL:     "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			},
			Relay: VenueConfig{
				Enabled:      false,
				PollInterval: duration{5 * time.Second},
			},
		},
		Redis: RedisConfig{
			PoolSize:      20,
			MaxRetries:    3,
			ChannelPrefix: "ch:book:",
			SnapshotTTL:   duration{time.Minute},
			Encoding:      "json",
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "aggregator",
			ForcePathStyle: true,
			MinInterval:    duration{5 * time.Second},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			Encoding:    "json",
		},
		Notify: NotifyConfig{
			Events:           []string{"source_down", "source_recovered"},
			FailureThreshold: 3,
			Cooldown:         duration{5 * time.Minute},
		},
		Terminal: TerminalConfig{Enabled: true},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validEncodings = map[string]bool{
	"json":  true,
	"proto": true,
}

var validEvents = map[string]bool{
	"source_down":      true,
	"source_recovered": true,
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found. Individual problems wrap
// the domain sentinels where one applies.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Engine
	if c.Engine.MergeInterval.Duration <= 0 {
		add("engine: merge_interval must be > 0")
	}
	if c.Engine.ShutdownGrace.Duration <= 0 {
		add("engine: shutdown_grace must be > 0")
	}
	if c.Engine.SinkTimeout.Duration <= 0 {
		add("engine: sink_timeout must be > 0")
	}

	// Backoff
	if c.Backoff.Min.Duration <= 0 {
		add("backoff: min must be > 0")
	}
	if c.Backoff.Max.Duration < c.Backoff.Min.Duration {
		add("backoff: max must not be below min")
	}
	if math.IsNaN(c.Backoff.Multiplier) || c.Backoff.Multiplier < 1 {
		add("backoff: multiplier must be >= 1")
	}
	if math.IsNaN(c.Backoff.Jitter) || c.Backoff.Jitter < 0 || c.Backoff.Jitter > 1 {
		add("backoff: jitter must be within [0, 1]")
	}

	// Symbols
	if len(c.Symbols) == 0 {
		add("symbols: at least one symbol is required")
	}
	seen := make(map[string]bool, len(c.Symbols))
	for i, s := range c.Symbols {
		name := s.Name
		if name == "" {
			add("symbols[%d]: name must not be empty", i)
			name = fmt.Sprintf("#%d", i)
		} else if seen[name] {
			add("symbols: duplicate symbol %q", name)
		}
		seen[name] = true

		if s.Tick <= 0 {
			add("symbol %s: tick %v: %w", name, s.Tick, domain.ErrInvalidTick)
		}
		if s.RangePct <= 0 || s.RangePct > 1 {
			add("symbol %s: range_pct %v must be within (0, 1]: %w", name, s.RangePct, domain.ErrInvalidWindow)
		}
		if s.BinSize <= 0 {
			add("symbol %s: bin_size %v must be > 0: %w", name, s.BinSize, domain.ErrInvalidWindow)
		}
		if s.DepthLimit < 0 {
			add("symbol %s: depth_limit must be >= 0", name)
		}
		if len(s.Venues) == 0 {
			add("symbol %s: at least one venue is required", name)
		}
		for _, venue := range s.VenueNames() {
			vc, ok := c.Venues.Lookup(venue)
			switch {
			case !ok:
				add("symbol %s: %w %q", name, domain.ErrUnknownVenue, venue)
			case !vc.Enabled:
				add("symbol %s: venue %q is disabled", name, venue)
			case s.Venues[venue] == "":
				add("symbol %s: venue %q needs an instrument id", name, venue)
			}
		}
	}

	// Venues
	for _, name := range []string{"binance", "dydx", "bybit", "polymarket"} {
		vc, _ := c.Venues.Lookup(name)
		if vc.Enabled && vc.URL == "" {
			add("venues.%s: url must not be empty", name)
		}
	}
	if c.Venues.Binance.Enabled && c.Venues.Binance.PollInterval.Duration <= 0 {
		add("venues.binance: poll_interval must be > 0")
	}
	if c.Venues.Relay.Enabled && c.Redis.Addr == "" {
		add("venues.relay: requires redis.addr")
	}

	// Redis
	if c.Redis.Addr != "" {
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
		if !validEncodings[c.Redis.Encoding] {
			add("redis: unknown encoding %q (valid: json, proto)", c.Redis.Encoding)
		}
		if c.Redis.ChannelPrefix == "" {
			add("redis: channel_prefix must not be empty")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			add("s3: region must not be empty")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if !validEncodings[c.Server.Encoding] {
			add("server: unknown encoding %q (valid: json, proto)", c.Server.Encoding)
		}
	}

	// Notify
	for _, ev := range c.Notify.Events {
		if !validEvents[ev] {
			add("notify: unknown event %q", ev)
		}
	}
	if c.Notify.FailureThreshold < 1 {
		add("notify: failure_threshold must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %w", errors.Join(errs...))
	}
	return nil
}
