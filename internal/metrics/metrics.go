// Package metrics wraps the crawl engine's progress counters in a
// prometheus.Registry (spec §2 NEW / §4.4 NEW). It is purely observational:
// nothing in the engine's control flow ever reads a metric back.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the gauges/counters one Engine run updates.
type Collector struct {
	registry *prometheus.Registry

	PagesFetched prometheus.Counter
	PagesFailed  *prometheus.CounterVec
	QueueDepth   prometheus.Gauge
	WorkersBusy  prometheus.Gauge
}

// New returns a Collector registered against a fresh prometheus.Registry,
// labeled by audit so multiple concurrent audits don't collide on metric
// identity.
func New(audit string) *Collector {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"audit": audit}

	c := &Collector{
		registry: reg,
		PagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "siteaudit_pages_fetched_total",
			Help:        "Total pages fetched by the crawl engine.",
			ConstLabels: labels,
		}),
		PagesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "siteaudit_pages_failed_total",
			Help:        "Total page fetches that ended in an error, by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "siteaudit_queue_depth",
			Help:        "Current number of URLs waiting to be dispatched.",
			ConstLabels: labels,
		}),
		WorkersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "siteaudit_workers_busy",
			Help:        "Current number of workers actively fetching.",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(c.PagesFetched, c.PagesFailed, c.QueueDepth, c.WorkersBusy)
	return c
}

// NewNop returns a Collector backed by a private registry whose metrics are
// never exposed; used when the caller didn't ask for a --metrics-addr.
func NewNop() *Collector {
	return New("nop")
}

// Handler returns the /metrics HTTP handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
