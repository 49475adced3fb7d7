// Package service holds the sinks that push snapshots to external systems.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jidanzai321/aggregator/internal/domain"
	"github.com/jidanzai321/aggregator/internal/sink"
)

// DefaultChannelPrefix is prepended to the symbol to form the pub/sub
// channel of its snapshots.
const DefaultChannelPrefix = "ch:book:"

// PublishConfig tunes a PublishService.
type PublishConfig struct {
	Encoding      sink.Encoding
	ChannelPrefix string
	// TTL bounds how long a cached snapshot outlives its last update.
	TTL time.Duration
}

// PublishService stores every snapshot in the snapshot cache and
// publishes it to subscribers.
type PublishService struct {
	cache  domain.SnapshotCache
	bus    domain.SignalBus
	cfg    PublishConfig
	logger *slog.Logger
}

// NewPublishService creates a PublishService with all required dependencies.
func NewPublishService(
	cache domain.SnapshotCache,
	bus domain.SignalBus,
	cfg PublishConfig,
	logger *slog.Logger,
) *PublishService {
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = DefaultChannelPrefix
	}
	if cfg.Encoding == "" {
		cfg.Encoding = sink.EncodingJSON
	}
	return &PublishService{
		cache:  cache,
		bus:    bus,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "publish_service")),
	}
}

func (s *PublishService) Name() string { return "publish" }

// Emit caches snap under its symbol and publishes it on the symbol's
// channel. Both steps are attempted even if one fails.
func (s *PublishService) Emit(ctx context.Context, symbol string, snap domain.MarketSnapshot) error {
	payload, err := sink.Encode(s.cfg.Encoding, snap)
	if err != nil {
		return fmt.Errorf("publish_service: encode %q: %w", symbol, err)
	}

	var errs []error
	if err := s.cache.Set(ctx, symbol, payload, s.cfg.TTL); err != nil {
		errs = append(errs, fmt.Errorf("publish_service: cache %q: %w", symbol, err))
	}
	channel := sink.Channel(s.cfg.ChannelPrefix, symbol)
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		errs = append(errs, fmt.Errorf("publish_service: publish %q: %w", channel, err))
	}
	return errors.Join(errs...)
}

// Cached returns the encoded snapshot last stored for symbol.
func (s *PublishService) Cached(ctx context.Context, symbol string) ([]byte, error) {
	payload, err := s.cache.Get(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("publish_service: get %q: %w", symbol, err)
	}
	return payload, nil
}

// ContentType is the media type of the payloads returned by Cached.
func (s *PublishService) ContentType() string { return sink.ContentType(s.cfg.Encoding) }

var _ domain.Sink = (*PublishService)(nil)
