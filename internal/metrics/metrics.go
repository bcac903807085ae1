// Package metrics holds the Prometheus collectors for the ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeCommitted  = "committed"
	OutcomeInvalid    = "invalid"
	OutcomeNotFound   = "not_found"
	OutcomeFailed     = "failed"
	OutcomeOK         = "ok"
	OutcomeDegraded   = "degraded"
	OutcomeSuperseded = "superseded"
	OutcomeDuplicate  = "duplicate"
	OutcomeSkipped    = "skipped"
)

// Metrics groups the collectors the controller and HTTP layer report to.
type Metrics struct {
	Writes        *prometheus.CounterVec
	Reads         *prometheus.CounterVec
	ReadLatency   *prometheus.HistogramVec
	Published     *prometheus.CounterVec
	Journaled     *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	PendingWrites prometheus.Gauge
}

// New registers every collector on reg. A nil reg uses a private registry,
// which keeps tests independent of the global default.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		Writes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "satis",
			Name:      "ledger_writes_total",
			Help:      "Ledger write operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		Reads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "satis",
			Name:      "ledger_reads_total",
			Help:      "View loads by view and outcome.",
		}, []string{"view", "outcome"}),
		ReadLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "satis",
			Name:      "ledger_read_seconds",
			Help:      "Ledger store read latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"view"}),
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "satis",
			Name:      "ledger_events_published_total",
			Help:      "Ledger events handed to the broker by outcome.",
		}, []string{"outcome"}),
		Journaled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "satis",
			Name:      "journal_rows_total",
			Help:      "Journal rows written by the worker by outcome.",
		}, []string{"outcome"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "satis",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		PendingWrites: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "satis",
			Name:      "ledger_pending_writes",
			Help:      "Writes issued to the store and not yet settled.",
		}),
	}
}
