// Package metrics exposes the aggregator's Prometheus collectors.
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jidanzai321/aggregator/internal/domain"
)

var (
	SourceUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregator_source_updates_total",
		Help: "Venue updates applied to a source ladder",
	}, []string{"venue", "symbol"})
	SourceDroppedUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregator_source_dropped_updates_total",
		Help: "Incremental updates discarded because no snapshot had been applied",
	}, []string{"venue", "symbol"})
	SourceReconnectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregator_source_reconnects_total",
		Help: "Transport failures followed by a reconnect attempt",
	}, []string{"venue", "symbol"})
	SourceState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aggregator_source_state",
		Help: "1 for the current lifecycle state of each source",
	}, []string{"venue", "symbol", "state"})
	SourceLevels = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aggregator_source_levels",
		Help: "Grid prices held in a source ladder",
	}, []string{"venue", "symbol"})

	MergeDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aggregator_merge_duration_seconds",
		Help:    "Time spent merging and summarizing one symbol",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
	}, []string{"symbol"})
	SnapshotsEmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregator_snapshots_emitted_total",
		Help: "Snapshots handed to sinks",
	}, []string{"symbol"})
	SnapshotsSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregator_snapshots_skipped_total",
		Help: "Merge cycles without a two-sided market",
	}, []string{"symbol"})

	SinkErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregator_sink_errors_total",
		Help: "Failed sink deliveries",
	}, []string{"sink"})
	SinkSupersededTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregator_sink_superseded_total",
		Help: "Snapshots replaced by a newer one before the sink consumed them",
	}, []string{"sink"})
)

var allStates = []domain.TaskState{
	domain.TaskStarting,
	domain.TaskRunning,
	domain.TaskFailed,
	domain.TaskRestarting,
	domain.TaskCancelled,
}

// SetSourceState marks state as the current state of a source.
func SetSourceState(venue, symbol string, state domain.TaskState) {
	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1
		}
		SourceState.WithLabelValues(venue, symbol, string(s)).Set(v)
	}
}

// Init registers every collector on a fresh registry.
func Init(logger *slog.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	toRegister := []prometheus.Collector{
		SourceUpdatesTotal, SourceDroppedUpdatesTotal, SourceReconnectsTotal, SourceState, SourceLevels,
		MergeDurationSeconds, SnapshotsEmittedTotal, SnapshotsSkippedTotal,
		SinkErrorsTotal, SinkSupersededTotal,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range toRegister {
		if err := reg.Register(c); err != nil {
			logger.Warn("metrics: register collector", slog.String("error", err.Error()))
		}
	}
	logger.Info("prometheus metrics initialized")
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
