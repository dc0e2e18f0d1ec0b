package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "hl_spread_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promGauge struct {
	gauge prometheus.Gauge
}

func (p promGauge) Set(v float64) {
	p.gauge.Set(v)
}

type Prometheus struct {
	Metrics *Metrics

	registry      *prometheus.Registry
	priceUpdates  prometheus.Counter
	ordersPlaced  prometheus.Counter
	ordersFailed  prometheus.Counter
	entriesOpened prometheus.Counter
	exitsClosed   prometheus.Counter
	engineErrors  prometheus.Counter
	entrySpread   prometheus.Gauge
	exitSpread    prometheus.Gauge
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	priceUpdates := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "price_updates_total",
		Help:      "Total number of order book updates applied.",
	})
	ordersPlaced := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_placed_total",
		Help:      "Total number of orders submitted.",
	})
	ordersFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "orders_failed_total",
		Help:      "Total number of orders that did not fill.",
	})
	entriesOpened := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "entries_opened_total",
		Help:      "Total number of positions opened.",
	})
	exitsClosed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "exits_closed_total",
		Help:      "Total number of positions closed.",
	})
	engineErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "engine_errors_total",
		Help:      "Total number of transitions into the error state.",
	})
	entrySpread := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "entry_spread",
		Help:      "Latest entry spread (perp bid vs spot ask).",
	})
	exitSpread := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "exit_spread",
		Help:      "Latest exit spread (perp ask vs spot bid).",
	})

	registry.MustRegister(priceUpdates, ordersPlaced, ordersFailed, entriesOpened, exitsClosed, engineErrors, entrySpread, exitSpread)

	m := &Metrics{
		PriceUpdates:  promCounter{priceUpdates},
		OrdersPlaced:  promCounter{ordersPlaced},
		OrdersFailed:  promCounter{ordersFailed},
		EntriesOpened: promCounter{entriesOpened},
		ExitsClosed:   promCounter{exitsClosed},
		EngineErrors:  promCounter{engineErrors},
		EntrySpread:   promGauge{entrySpread},
		ExitSpread:    promGauge{exitSpread},
	}

	return &Prometheus{
		Metrics:       m,
		registry:      registry,
		priceUpdates:  priceUpdates,
		ordersPlaced:  ordersPlaced,
		ordersFailed:  ordersFailed,
		entriesOpened: entriesOpened,
		exitsClosed:   exitsClosed,
		engineErrors:  engineErrors,
		entrySpread:   entrySpread,
		exitSpread:    exitSpread,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
