package handler

import (
	"log/slog"
	"net/http"

	"github.com/jidanzai321/aggregator/internal/domain"
)

// StatusProvider reports the live state of every source.
type StatusProvider interface {
	Statuses() []domain.SourceStatus
}

// SourceHandler serves source status and lifecycle history.
type SourceHandler struct {
	statuses StatusProvider
	events   domain.SourceEventStore
	logger   *slog.Logger
}

// NewSourceHandler creates a SourceHandler. events may be nil when no
// event store is configured.
func NewSourceHandler(statuses StatusProvider, events domain.SourceEventStore, logger *slog.Logger) *SourceHandler {
	return &SourceHandler{
		statuses: statuses,
		events:   events,
		logger:   logHandler(logger, "sources"),
	}
}

// ListSources returns the status of every (venue, symbol) source.
// GET /api/sources
func (h *SourceHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	statuses := h.statuses.Statuses()
	writeJSON(w, http.StatusOK, map[string]any{
		"sources": statuses,
		"count":   len(statuses),
	})
}

// ListEvents returns recorded source transitions, newest first.
// GET /api/sources/events?venue=&symbol=&limit=&offset=&since=&until=
func (h *SourceHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}

	q := r.URL.Query()
	opts := parseListOpts(r)
	events, err := h.events.List(r.Context(), q.Get("venue"), q.Get("symbol"), opts)
	if err != nil {
		h.logger.Error("list source events failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list source events")
		return
	}
	if events == nil {
		events = []domain.SourceEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}
