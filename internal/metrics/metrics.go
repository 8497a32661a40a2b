package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "library"

// Outcome labels for inventory items.
const (
	OutcomeIssued            = "issued"
	OutcomeReturned          = "returned"
	OutcomePartiallyReturned = "partially_returned"
)

// StatsSource reports the catalog totals exported as gauges.
type StatsSource interface {
	GetStats(ctx context.Context) (titles, onShelf int64, err error)
}

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	issueItems   *prometheus.CounterVec
	returnItems  *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the service collectors. stats may be nil, in which case the
// catalog gauges are not exported.
func New(stats StatsSource, log *zap.Logger) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		issueItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issue_items_total",
			Help:      "Issue batch items processed, by outcome.",
		}, []string{"outcome"}),
		returnItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "return_items_total",
			Help:      "Return batch items processed, by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.issueItems,
		m.returnItems,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if stats != nil {
		m.registry.MustRegister(newCatalogCollector(stats, log))
	}
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IssueItem counts one processed issue item.
func (m *Metrics) IssueItem(outcome string) {
	if m == nil {
		return
	}
	m.issueItems.WithLabelValues(outcome).Inc()
}

// ReturnItem counts one processed return item.
func (m *Metrics) ReturnItem(outcome string) {
	if m == nil {
		return
	}
	m.returnItems.WithLabelValues(outcome).Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// catalogCollector queries the store on every scrape.
type catalogCollector struct {
	stats   StatsSource
	log     *zap.Logger
	titles  *prometheus.Desc
	onShelf *prometheus.Desc
}

func newCatalogCollector(stats StatsSource, log *zap.Logger) *catalogCollector {
	return &catalogCollector{
		stats: stats,
		log:   log,
		titles: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "catalog", "titles"),
			"Distinct book titles in the catalog.", nil, nil,
		),
		onShelf: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "catalog", "copies_on_shelf"),
			"Copies available for issue across all books.", nil, nil,
		),
	}
}

func (c *catalogCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.titles
	ch <- c.onShelf
}

func (c *catalogCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	titles, onShelf, err := c.stats.GetStats(ctx)
	if err != nil {
		if c.log != nil {
			c.log.Warn("Failed to collect catalog stats", zap.Error(err))
		}
		ch <- prometheus.NewInvalidMetric(c.titles, err)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.titles, prometheus.GaugeValue, float64(titles))
	ch <- prometheus.MustNewConstMetric(c.onShelf, prometheus.GaugeValue, float64(onShelf))
}
