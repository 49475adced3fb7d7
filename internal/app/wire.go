package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/jidanzai321/aggregator/internal/blob/s3"
	"github.com/jidanzai321/aggregator/internal/cache/redis"
	"github.com/jidanzai321/aggregator/internal/config"
	"github.com/jidanzai321/aggregator/internal/domain"
	"github.com/jidanzai321/aggregator/internal/notify"
	"github.com/jidanzai321/aggregator/internal/server/handler"
	"github.com/jidanzai321/aggregator/internal/store/postgres"
)

// Dependencies bundles the external backends the aggregator can use. Every
// field is optional; a nil field means the backend is disabled or was
// unreachable at startup.
type Dependencies struct {
	// Redis
	SignalBus     domain.SignalBus
	SnapshotCache domain.SnapshotCache

	// Blob storage
	BlobWriter domain.BlobWriter

	// Stores
	EventStore domain.SourceEventStore

	// Notifications
	Notifier *notify.Notifier

	// Checks pings every connected backend for GET /api/health.
	Checks map[string]handler.CheckFunc
}

// redisDialTimeout bounds the startup ping so an absent Redis does not
// delay the local pipeline.
const redisDialTimeout = 3 * time.Second

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
//
// Redis is best effort: when it cannot be reached the process runs
// local-only. Postgres and S3 are explicit opt-ins, so their failures are
// fatal.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Checks: map[string]handler.CheckFunc{}}

	// --- PostgreSQL (source event history) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.EventStore = postgres.NewSourceEventStore(pgClient.Pool())
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- Redis (publish sink, snapshot cache, relay streams) ---
	if cfg.Redis.Addr == "" {
		logger.InfoContext(ctx, "redis disabled, publish sink off")
	} else {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			MaxRetries:  cfg.Redis.MaxRetries,
			TLSEnabled:  cfg.Redis.TLSEnabled,
			DialTimeout: redisDialTimeout,
		})
		if err != nil {
			logger.WarnContext(ctx, "redis unavailable, running local-only",
				slog.String("addr", cfg.Redis.Addr),
				slog.String("error", err.Error()),
			)
		} else {
			closers = append(closers, func() { _ = redisClient.Close() })
			deps.SignalBus = redis.NewSignalBus(redisClient)
			deps.SnapshotCache = redis.NewSnapshotCache(redisClient)
			deps.Checks["redis"] = redisClient.Ping
		}
	}

	// --- S3 blob storage (latest snapshot objects) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.Cooldown.Duration, logger)

	return deps, cleanup, nil
}
