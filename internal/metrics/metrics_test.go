package metrics

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jidanzai321/aggregator/internal/domain"
)

func TestSetSourceStateIsExclusive(t *testing.T) {
	SetSourceState("binance", "BTC-USD", domain.TaskRunning)
	SetSourceState("binance", "BTC-USD", domain.TaskFailed)

	if v := testutil.ToFloat64(SourceState.WithLabelValues("binance", "BTC-USD", "failed")); v != 1 {
		t.Fatalf("failed gauge = %v, want 1", v)
	}
	if v := testutil.ToFloat64(SourceState.WithLabelValues("binance", "BTC-USD", "running")); v != 0 {
		t.Fatalf("running gauge = %v, want 0", v)
	}
}

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	reg := Init(slog.New(slog.NewTextHandler(io.Discard, nil)))
	SnapshotsEmittedTotal.WithLabelValues("ETH-USD").Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "aggregator_snapshots_emitted_total") {
		t.Fatal("emitted counter missing from exposition")
	}
}
