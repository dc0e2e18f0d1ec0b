package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(v float64)
}

type Metrics struct {
	PriceUpdates  Counter
	OrdersPlaced  Counter
	OrdersFailed  Counter
	EntriesOpened Counter
	ExitsClosed   Counter
	EngineErrors  Counter
	EntrySpread   Gauge
	ExitSpread    Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		PriceUpdates:  n,
		OrdersPlaced:  n,
		OrdersFailed:  n,
		EntriesOpened: n,
		ExitsClosed:   n,
		EngineErrors:  n,
		EntrySpread:   g,
		ExitSpread:    g,
	}
}
