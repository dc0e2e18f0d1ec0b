package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.PriceUpdates.Inc()
	prom.Metrics.OrdersPlaced.Inc()
	prom.Metrics.OrdersFailed.Inc()
	prom.Metrics.EntriesOpened.Inc()
	prom.Metrics.ExitsClosed.Inc()
	prom.Metrics.EngineErrors.Inc()

	assertValue(t, prom.priceUpdates, 1)
	assertValue(t, prom.ordersPlaced, 1)
	assertValue(t, prom.ordersFailed, 1)
	assertValue(t, prom.entriesOpened, 1)
	assertValue(t, prom.exitsClosed, 1)
	assertValue(t, prom.engineErrors, 1)
}

func TestPrometheusGauges(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.EntrySpread.Set(0.0021)
	prom.Metrics.ExitSpread.Set(-0.0004)

	assertValue(t, prom.entrySpread, 0.0021)
	assertValue(t, prom.exitSpread, -0.0004)
}

func assertValue(t *testing.T, collector prometheus.Collector, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(collector); got != expected {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
