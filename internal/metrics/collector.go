// internal/metrics/collector.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "yieldscope"

// Collector owns the Prometheus metrics of the aggregation and cost pipeline.
type Collector struct {
	registry prometheus.Gatherer

	sourceFetches  *prometheus.CounterVec
	sourceLatency  *prometheus.HistogramVec
	opportunities  *prometheus.GaugeVec
	gasQuotes      *prometheus.CounterVec
	swapQuotes     *prometheus.CounterVec
	moveEstimates  *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
	refreshSeconds prometheus.Gauge
}

// NewCollector creates the metric set and registers it on reg.
// A nil reg leaves the metrics unregistered (useful in tests).
func NewCollector(reg *prometheus.Registry) *Collector {
	c := &Collector{
		sourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Data source fetches by protocol, chain and status",
		}, []string{"protocol", "chain", "status"}),
		sourceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Data source fetch latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"protocol", "chain"}),
		opportunities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "opportunities",
			Help:      "Opportunities in the last aggregation",
		}, []string{"protocol", "chain"}),
		gasQuotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gas_quotes_total",
			Help:      "Gas price quotes by chain and source",
		}, []string{"chain", "source"}),
		swapQuotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swap_quotes_total",
			Help:      "Swap quote requests by status",
		}, []string{"status"}),
		moveEstimates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "move_estimates_total",
			Help:      "Move cost estimates by status",
		}, []string{"status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		refreshSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Unix time of the last scheduled refresh",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			c.sourceFetches, c.sourceLatency, c.opportunities,
			c.gasQuotes, c.swapQuotes, c.moveEstimates,
			c.httpRequests, c.httpLatency, c.refreshSeconds,
		)
		c.registry = reg
	}
	return c
}

// RecordSourceFetch records one (protocol, chain) fetch.
func (c *Collector) RecordSourceFetch(protocol, chain string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	c.sourceFetches.WithLabelValues(protocol, chain, status).Inc()
	c.sourceLatency.WithLabelValues(protocol, chain).Observe(duration.Seconds())
}

// SetOpportunities sets the opportunity count of a (protocol, chain) slot.
func (c *Collector) SetOpportunities(protocol, chain string, n int) {
	c.opportunities.WithLabelValues(protocol, chain).Set(float64(n))
}

// RecordGasQuote counts a gas quote by provenance.
func (c *Collector) RecordGasQuote(chain, source string) {
	c.gasQuotes.WithLabelValues(chain, source).Inc()
}

// RecordSwapQuote counts a swap quote request.
func (c *Collector) RecordSwapQuote(success bool) {
	c.swapQuotes.WithLabelValues(statusLabel(success)).Inc()
}

// RecordMoveEstimate counts a move cost estimate.
func (c *Collector) RecordMoveEstimate(success bool) {
	c.moveEstimates.WithLabelValues(statusLabel(success)).Inc()
}

// RecordHTTP records one served request.
func (c *Collector) RecordHTTP(route, code string, duration time.Duration) {
	c.httpRequests.WithLabelValues(route, code).Inc()
	c.httpLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// MarkRefresh stamps the last refresh time.
func (c *Collector) MarkRefresh(t time.Time) {
	c.refreshSeconds.Set(float64(t.Unix()))
}

// Handler exposes the registry over HTTP.
func (c *Collector) Handler() http.Handler {
	if c.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Reset clears all vector metrics.
func (c *Collector) Reset() {
	c.sourceFetches.Reset()
	c.sourceLatency.Reset()
	c.opportunities.Reset()
	c.gasQuotes.Reset()
	c.swapQuotes.Reset()
	c.moveEstimates.Reset()
	c.httpRequests.Reset()
	c.httpLatency.Reset()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
