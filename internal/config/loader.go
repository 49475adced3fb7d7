package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AGG_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AGG_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setDuration(&cfg.Engine.MergeInterval, "AGG_ENGINE_MERGE_INTERVAL")
	setDuration(&cfg.Engine.ShutdownGrace, "AGG_ENGINE_SHUTDOWN_GRACE")
	setDuration(&cfg.Engine.SinkTimeout, "AGG_ENGINE_SINK_TIMEOUT")

	// ── Backoff ──
	setDuration(&cfg.Backoff.Min, "AGG_BACKOFF_MIN")
	setDuration(&cfg.Backoff.Max, "AGG_BACKOFF_MAX")
	setFloat64(&cfg.Backoff.Multiplier, "AGG_BACKOFF_MULTIPLIER")
	setFloat64(&cfg.Backoff.Jitter, "AGG_BACKOFF_JITTER")

	// ── Venues ──
	for _, name := range []string{"binance", "dydx", "bybit", "polymarket", "relay"} {
		vc, _ := cfg.Venues.Lookup(name)
		key := "AGG_VENUES_" + strings.ToUpper(name)
		setBool(&vc.Enabled, key+"_ENABLED")
		setStr(&vc.URL, key+"_URL")
		setDuration(&vc.PollInterval, key+"_POLL_INTERVAL")
		setInt(&vc.Depth, key+"_DEPTH")
	}

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "AGG_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AGG_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AGG_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AGG_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AGG_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AGG_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.ChannelPrefix, "AGG_REDIS_CHANNEL_PREFIX")
	setDuration(&cfg.Redis.SnapshotTTL, "AGG_REDIS_SNAPSHOT_TTL")
	setStr(&cfg.Redis.Encoding, "AGG_REDIS_ENCODING")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "AGG_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "AGG_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AGG_S3_REGION")
	setStr(&cfg.S3.Bucket, "AGG_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AGG_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AGG_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AGG_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AGG_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "AGG_S3_PREFIX")
	setDuration(&cfg.S3.MinInterval, "AGG_S3_MIN_INTERVAL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "AGG_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "AGG_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "AGG_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AGG_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AGG_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AGG_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AGG_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AGG_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AGG_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AGG_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AGG_POSTGRES_RUN_MIGRATIONS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "AGG_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "AGG_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AGG_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.Encoding, "AGG_SERVER_ENCODING")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "AGG_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AGG_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "AGG_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AGG_NOTIFY_EVENTS")
	setInt(&cfg.Notify.FailureThreshold, "AGG_NOTIFY_FAILURE_THRESHOLD")
	setDuration(&cfg.Notify.Cooldown, "AGG_NOTIFY_COOLDOWN")

	// ── Top-level ──
	setBool(&cfg.Terminal.Enabled, "AGG_TERMINAL_ENABLED")
	setStr(&cfg.LogLevel, "AGG_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
