package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jidanzai321/aggregator/internal/domain"
)

// SnapshotReader exposes the latest in-process snapshot per symbol.
type SnapshotReader interface {
	Get(symbol string) (domain.MarketSnapshot, bool)
	All() []domain.MarketSnapshot
}

// CachedReader returns encoded snapshots kept in the shared cache.
// *service.PublishService satisfies it.
type CachedReader interface {
	Cached(ctx context.Context, symbol string) ([]byte, error)
	ContentType() string
}

// SnapshotHandler serves the most recent aggregated snapshots.
type SnapshotHandler struct {
	latest SnapshotReader
	cached CachedReader
	logger *slog.Logger
}

// NewSnapshotHandler creates a SnapshotHandler. When cached is non-nil a
// symbol missing from latest is looked up there and served as stored.
func NewSnapshotHandler(latest SnapshotReader, cached CachedReader, logger *slog.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		latest: latest,
		cached: cached,
		logger: logHandler(logger, "snapshots"),
	}
}

// ListSnapshots returns the latest snapshot of every symbol.
// GET /api/snapshots
func (h *SnapshotHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps := h.latest.All()
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshots": snaps,
		"count":     len(snaps),
	})
}

// GetSnapshot returns the latest snapshot of one symbol.
// GET /api/snapshots/{symbol}
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if snap, ok := h.latest.Get(symbol); ok {
		writeJSON(w, http.StatusOK, snap)
		return
	}

	if h.cached != nil {
		payload, err := h.cached.Cached(r.Context(), symbol)
		switch {
		case err == nil:
			w.Header().Set("Content-Type", h.cached.ContentType())
			w.WriteHeader(http.StatusOK)
			w.Write(payload)
			return
		case !errors.Is(err, domain.ErrNotFound):
			h.logger.Warn("snapshot cache lookup failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	writeError(w, http.StatusNotFound, "no snapshot for "+symbol)
}
