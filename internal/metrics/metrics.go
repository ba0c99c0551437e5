// Package metrics exposes Prometheus instruments for the detection engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every instrument on its own prometheus.Registry. A nil
// *Registry is valid and records nothing.
type Registry struct {
	reg *prometheus.Registry

	OrderBooksReceived *prometheus.CounterVec
	OrderBooksRejected *prometheus.CounterVec
	OrderBooks         prometheus.Gauge
	CrossRates         prometheus.Gauge
	OpenArbitrages     prometheus.Gauge
	ArbitragesOpened   prometheus.Counter
	ArbitragesClosed   prometheus.Counter
	ScanDuration       prometheus.Histogram
	ScanFailures       prometheus.Counter
	MatrixSnapshots    *prometheus.CounterVec
}

// New creates and registers all instruments.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		OrderBooksReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbdetector_orderbooks_received_total",
				Help: "Order books received, by source",
			},
			[]string{"source"},
		),

		OrderBooksRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbdetector_orderbooks_rejected_total",
				Help: "Order books rejected by validation, by source",
			},
			[]string{"source"},
		),

		OrderBooks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arbdetector_orderbooks",
				Help: "Order books currently held in the store",
			},
		),

		CrossRates: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arbdetector_cross_rates",
				Help: "Fresh cross rates seen by the last scan",
			},
		),

		OpenArbitrages: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arbdetector_open_arbitrages",
				Help: "Arbitrages open after the last scan",
			},
		),

		ArbitragesOpened: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arbdetector_arbitrages_opened_total",
				Help: "Arbitrages detected for the first time",
			},
		),

		ArbitragesClosed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arbdetector_arbitrages_closed_total",
				Help: "Arbitrages closed and moved to history",
			},
		),

		ScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arbdetector_scan_duration_seconds",
				Help:    "Duration of one detection scan",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),

		ScanFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arbdetector_scan_failures_total",
				Help: "Scan cycles skipped after an internal error",
			},
		),

		MatrixSnapshots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbdetector_matrix_snapshots_total",
				Help: "Matrix snapshots attempted, by result",
			},
			[]string{"result"},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.OrderBooksReceived,
		r.OrderBooksRejected,
		r.OrderBooks,
		r.CrossRates,
		r.OpenArbitrages,
		r.ArbitragesOpened,
		r.ArbitragesClosed,
		r.ScanDuration,
		r.ScanFailures,
		r.MatrixSnapshots,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) OrderBookReceived(source string, storeSize int) {
	if r == nil {
		return
	}
	r.OrderBooksReceived.WithLabelValues(source).Inc()
	r.OrderBooks.Set(float64(storeSize))
}

func (r *Registry) OrderBookRejected(source string) {
	if r == nil {
		return
	}
	r.OrderBooksRejected.WithLabelValues(source).Inc()
}

// ScanCompleted records one finished detection scan.
func (r *Registry) ScanCompleted(d time.Duration, crossRates, open, opened, closed int) {
	if r == nil {
		return
	}
	r.ScanDuration.Observe(d.Seconds())
	r.CrossRates.Set(float64(crossRates))
	r.OpenArbitrages.Set(float64(open))
	r.ArbitragesOpened.Add(float64(opened))
	r.ArbitragesClosed.Add(float64(closed))
}

func (r *Registry) ScanFailed() {
	if r == nil {
		return
	}
	r.ScanFailures.Inc()
}

// MatrixSnapshot records a snapshot attempt; result is "ok", "skipped" or "error".
func (r *Registry) MatrixSnapshot(result string) {
	if r == nil {
		return
	}
	r.MatrixSnapshots.WithLabelValues(result).Inc()
}
