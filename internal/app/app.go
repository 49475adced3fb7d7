// Package app provides the top-level application lifecycle of the
// aggregator. It wires the configured backends, venue sources, sinks and
// HTTP surface together and runs them until the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jidanzai321/aggregator/internal/config"
	"github.com/jidanzai321/aggregator/internal/domain"
	"github.com/jidanzai321/aggregator/internal/metrics"
	"github.com/jidanzai321/aggregator/internal/server"
	"github.com/jidanzai321/aggregator/internal/server/handler"
	"github.com/jidanzai321/aggregator/internal/server/ws"
	"github.com/jidanzai321/aggregator/internal/service"
	"github.com/jidanzai321/aggregator/internal/sink"
	"github.com/jidanzai321/aggregator/internal/supervisor"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

var _ handler.CachedReader = (*service.PublishService)(nil)

// outputs are the sinks built from the configuration, plus the ones the
// HTTP surface reads from.
type outputs struct {
	sinks   []domain.Sink
	latest  *sink.Latest
	hub     *ws.Hub
	publish *service.PublishService
}

// buildSinks selects the sinks enabled by cfg and the available backends.
func (a *App) buildSinks(deps *Dependencies) outputs {
	out := outputs{latest: sink.NewLatest()}
	out.sinks = append(out.sinks, out.latest)

	if a.cfg.Terminal.Enabled {
		out.sinks = append(out.sinks, sink.NewTerminal(os.Stdout))
	}
	if deps.SignalBus != nil && deps.SnapshotCache != nil {
		out.publish = service.NewPublishService(deps.SnapshotCache, deps.SignalBus, service.PublishConfig{
			Encoding:      sink.Encoding(a.cfg.Redis.Encoding),
			ChannelPrefix: a.cfg.Redis.ChannelPrefix,
			TTL:           a.cfg.Redis.SnapshotTTL.Duration,
		}, a.logger)
		out.sinks = append(out.sinks, out.publish)
	}
	if deps.BlobWriter != nil {
		out.sinks = append(out.sinks, service.NewBlobSink(deps.BlobWriter, a.cfg.S3.MinInterval.Duration, a.logger))
	}
	if a.cfg.Server.Enabled {
		out.hub = ws.NewHub(ws.Config{
			Encoding:      sink.Encoding(a.cfg.Server.Encoding),
			ChannelPrefix: a.cfg.Redis.ChannelPrefix,
			CheckOrigin:   originChecker(a.cfg.Server.CORSOrigins),
		}, a.logger)
		out.sinks = append(out.sinks, out.hub)
	}
	return out
}

// Run is the main entry point. It wires all dependencies, starts every
// source, merge loop and sink, and blocks until the context is cancelled.
// On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	a.logger.InfoContext(ctx, "starting application",
		slog.Int("symbols", len(a.cfg.Symbols)),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	reg := metrics.Init(a.logger)
	out := a.buildSinks(deps)

	var opts []supervisor.Option
	if deps.Notifier.Enabled() {
		opts = append(opts, supervisor.WithAlerter(deps.Notifier))
	}
	if deps.EventStore != nil {
		opts = append(opts, supervisor.WithEventStore(deps.EventStore))
	}
	sup := supervisor.New(supervisor.Config{
		MergeInterval:    a.cfg.Engine.MergeInterval.Duration,
		ShutdownGrace:    a.cfg.Engine.ShutdownGrace.Duration,
		SinkTimeout:      a.cfg.Engine.SinkTimeout.Duration,
		RestartBackoff:   backoffPolicy(a.cfg.Backoff),
		FailureThreshold: a.cfg.Notify.FailureThreshold,
	}, out.sinks, a.logger, opts...)

	for _, symCfg := range a.cfg.Symbols {
		sym, err := buildSymbol(a.cfg, symCfg, deps, sup, a.logger)
		if err != nil {
			return err
		}
		if err := sup.Add(sym); err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.logger.InfoContext(ctx, "symbol configured",
			slog.String("symbol", sym.Name),
			slog.Int("sources", len(sym.Sources)),
		)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sup.Run(gctx)
	})

	if out.hub != nil {
		g.Go(func() error {
			return out.hub.Run(gctx)
		})
	}

	if a.cfg.Server.Enabled {
		var cached handler.CachedReader
		if out.publish != nil {
			cached = out.publish
		}
		handlers := server.Handlers{
			Health:    handler.NewHealthHandler(deps.Checks, a.logger),
			Sources:   handler.NewSourceHandler(sup, deps.EventStore, a.logger),
			Snapshots: handler.NewSnapshotHandler(out.latest, cached, a.logger),
		}
		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
		}, handlers, out.hub, metrics.Handler(reg), a.logger)
		a.startHTTPServer(gctx, g, srv)
	}

	return g.Wait()
}

// startHTTPServer adds the HTTP server goroutine to g. The server is shut
// down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, srv *server.Server) {
	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return ctx.Err()
	})
}

// originChecker allows WebSocket upgrades from the configured CORS origins.
// Requests without an Origin header (non-browser clients) are allowed.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.ContainsFunc(allowed, func(o string) bool {
			return strings.EqualFold(o, origin)
		})
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	if len(a.closers) == 0 {
		return
	}
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
