// Package metrics exposes Prometheus instrumentation for the viewer: catalog
// fetches, the refresh loop, trajectory sampling, streaming clients and the
// HTTP surface.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles every metric the viewer records. All recording methods
// are safe to call on a nil *Collector, which turns them into no-ops.
type Collector struct {
	gatherer prometheus.Gatherer

	CatalogFetches   *prometheus.CounterVec
	CatalogLines     prometheus.Gauge
	CatalogAge       prometheus.Gauge
	TrackedObjects   *prometheus.GaugeVec
	RefreshDuration  prometheus.Histogram
	PropagationFails prometheus.Counter
	TrajectoryPoints prometheus.Counter
	TrajectoryCache  *prometheus.CounterVec
	StreamClients    prometheus.Gauge
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// NewCollector registers the viewer metrics against reg, defaulting to the
// global Prometheus registry when nil. Registering twice against the same
// registry reuses the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.CatalogFetches, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbitview_catalog_fetches_total",
		Help: "Catalog fetch attempts, labeled by result (success|failure).",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.CatalogLines, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitview_catalog_lines",
		Help: "Non-blank lines in the cached catalog.",
	})); err != nil {
		return nil, err
	}
	if c.CatalogAge, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitview_catalog_age_seconds",
		Help: "Seconds since the cached catalog was fetched.",
	})); err != nil {
		return nil, err
	}
	if c.TrackedObjects, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orbitview_tracked_objects",
		Help: "Objects in the registry, labeled by category.",
	}, []string{"category"})); err != nil {
		return nil, err
	}
	if c.RefreshDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitview_refresh_duration_seconds",
		Help:    "Wall time of one position refresh over all visible objects.",
		Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})); err != nil {
		return nil, err
	}
	if c.PropagationFails, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitview_propagation_failures_total",
		Help: "Per-object position computations that failed during refresh.",
	})); err != nil {
		return nil, err
	}
	if c.TrajectoryPoints, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitview_trajectory_samples_total",
		Help: "Trajectory points computed.",
	})); err != nil {
		return nil, err
	}
	if c.TrajectoryCache, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbitview_trajectory_cache_total",
		Help: "Trajectory cache lookups, labeled by result (hit|miss).",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.StreamClients, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitview_stream_clients",
		Help: "Connected position stream clients.",
	})); err != nil {
		return nil, err
	}
	if c.HTTPRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbitview_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"path", "method", "code"})); err != nil {
		return nil, err
	}
	if c.HTTPDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orbitview_http_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method"})); err != nil {
		return nil, err
	}

	return c, nil
}

// register adds col to reg, returning the already-registered collector of the
// same type when one exists.
func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		var zero T
		return zero, err
	}
	return col, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// CatalogFetched records a successful fetch that produced lines lines.
func (c *Collector) CatalogFetched(lines int) {
	if c == nil {
		return
	}
	c.CatalogFetches.WithLabelValues("success").Inc()
	c.CatalogLines.Set(float64(lines))
	c.CatalogAge.Set(0)
}

// CatalogFetchFailed records a failed fetch. The cached line count is left
// alone because the cached catalog is unchanged.
func (c *Collector) CatalogFetchFailed() {
	if c == nil {
		return
	}
	c.CatalogFetches.WithLabelValues("failure").Inc()
}

// SetCatalogAge updates the catalog age gauge.
func (c *Collector) SetCatalogAge(age time.Duration) {
	if c == nil {
		return
	}
	c.CatalogAge.Set(age.Seconds())
}

// SetTrackedObjects replaces the per-category object counts.
func (c *Collector) SetTrackedObjects(counts map[string]int) {
	if c == nil {
		return
	}
	c.TrackedObjects.Reset()
	for category, n := range counts {
		c.TrackedObjects.WithLabelValues(category).Set(float64(n))
	}
}

// ObserveRefresh records one refresh pass.
func (c *Collector) ObserveRefresh(d time.Duration, failures int) {
	if c == nil {
		return
	}
	c.RefreshDuration.Observe(d.Seconds())
	if failures > 0 {
		c.PropagationFails.Add(float64(failures))
	}
}

// TrajectorySampled records the number of points computed for one track.
func (c *Collector) TrajectorySampled(points int) {
	if c == nil {
		return
	}
	c.TrajectoryPoints.Add(float64(points))
}

// TrajectoryCacheResult records a trajectory cache lookup.
func (c *Collector) TrajectoryCacheResult(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.TrajectoryCache.WithLabelValues(result).Inc()
}

// StreamClientConnected increments the connected stream client gauge.
func (c *Collector) StreamClientConnected() {
	if c == nil {
		return
	}
	c.StreamClients.Inc()
}

// StreamClientDisconnected decrements the connected stream client gauge.
func (c *Collector) StreamClientDisconnected() {
	if c == nil {
		return
	}
	c.StreamClients.Dec()
}
