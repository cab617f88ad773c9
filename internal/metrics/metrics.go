package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// Metrics holds the collectors updated by an aggregation cycle.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	cycles         prometheus.Counter
	fetchErrors    *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	omittedCalls   *prometheus.CounterVec
	exchangeTotal  *prometheus.GaugeVec
	grandTotal     prometheus.Gauge
	priceSource    *prometheus.CounterVec
	snapshotSaves  *prometheus.CounterVec
	lastCycleEpoch prometheus.Gauge
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer to expose them on /metrics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "cexbalance_aggregation_cycles_total",
			Help: "Total number of aggregation cycles",
		}),
		fetchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cexbalance_exchange_fetch_errors_total",
				Help: "Total number of failed exchange fetches",
			},
			[]string{"exchange"},
		),
		fetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cexbalance_exchange_fetch_duration_seconds",
				Help:    "Exchange fetch duration in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"exchange"},
		),
		omittedCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cexbalance_omitted_calls_total",
				Help: "Total number of secondary calls skipped after an error",
			},
			[]string{"exchange"},
		),
		exchangeTotal: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cexbalance_exchange_total_usd",
				Help: "Latest USD valuation per exchange",
			},
			[]string{"exchange"},
		),
		grandTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cexbalance_grand_total_usd",
			Help: "Latest USD valuation across all exchanges",
		}),
		priceSource: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cexbalance_price_tables_total",
				Help: "Price tables used by aggregation cycles, by source",
			},
			[]string{"source"},
		),
		snapshotSaves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cexbalance_snapshot_saves_total",
				Help: "Daily snapshot save attempts, by status",
			},
			[]string{"status"},
		),
		lastCycleEpoch: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cexbalance_last_cycle_timestamp_seconds",
			Help: "Unix time of the latest completed aggregation cycle",
		}),
	}
}

func (m *Metrics) RecordFetch(exchange string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(exchange).Observe(took.Seconds())
	if err != nil {
		m.fetchErrors.WithLabelValues(exchange).Inc()
		// a failed exchange has no current valuation
		m.exchangeTotal.DeleteLabelValues(exchange)
	}
}

func (m *Metrics) RecordOmitted(exchange string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.omittedCalls.WithLabelValues(exchange).Add(float64(n))
}

func (m *Metrics) RecordExchangeTotal(exchange string, usd decimal.Decimal) {
	if m == nil {
		return
	}
	m.exchangeTotal.WithLabelValues(exchange).Set(usd.InexactFloat64())
}

// RecordCycle marks a finished cycle with its grand total and price source.
func (m *Metrics) RecordCycle(at time.Time, grandTotal decimal.Decimal, priceSource string) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.grandTotal.Set(grandTotal.InexactFloat64())
	m.priceSource.WithLabelValues(priceSource).Inc()
	m.lastCycleEpoch.Set(float64(at.Unix()))
}

func (m *Metrics) RecordSnapshotSave(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.snapshotSaves.WithLabelValues(status).Inc()
}
