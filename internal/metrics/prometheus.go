package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the status tracker
type PrometheusMetrics struct {
	// Resolution metrics
	ResolutionsTotal    *prometheus.CounterVec
	ResolutionDuration  prometheus.Histogram
	ResolvedEntities    prometheus.Histogram
	ResidentsByStatus   *prometheus.GaugeVec

	// Cache metrics
	CacheOperationsTotal   *prometheus.CounterVec
	CacheOperationDuration *prometheus.HistogramVec
	CachedRecords          *prometheus.GaugeVec

	// Remote store metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec
	StatusUpdatesTotal        *prometheus.CounterVec

	// Connectivity metrics
	Online             prometheus.Gauge
	ConnectivityProbes *prometheus.CounterVec

	// Alert metrics
	AlertsSentTotal    *prometheus.CounterVec
	AlertFailuresTotal *prometheus.CounterVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		ResolutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bantay_resolutions_total",
				Help: "Total number of status resolution passes",
			},
			[]string{"mode", "status"},
		),

		ResolutionDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bantay_resolution_duration_seconds",
				Help:    "Time spent resolving resident statuses",
				Buckets: prometheus.DefBuckets,
			},
		),

		ResolvedEntities: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bantay_resolved_entities",
				Help:    "Number of residents per resolution pass",
				Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000},
			},
		),

		ResidentsByStatus: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bantay_residents_by_status",
				Help: "Residents per status from the most recent resolution",
			},
			[]string{"status"},
		),

		CacheOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bantay_cache_operations_total",
				Help: "Total number of offline cache operations",
			},
			[]string{"operation", "collection", "status"},
		),

		CacheOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bantay_cache_operation_duration_seconds",
				Help:    "Duration of offline cache operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "collection"},
		),

		CachedRecords: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bantay_cached_records",
				Help: "Number of records currently held per cached collection",
			},
			[]string{"collection"},
		),

		DatabaseOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bantay_database_operations_total",
				Help: "Total number of remote store operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bantay_database_operation_duration_seconds",
				Help:    "Duration of remote store operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		StatusUpdatesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bantay_status_updates_total",
				Help: "Total number of status log entries recorded",
			},
			[]string{"status"},
		),

		Online: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bantay_online",
				Help: "Connectivity state (1=online, 0=offline)",
			},
		),

		ConnectivityProbes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bantay_connectivity_probes_total",
				Help: "Total number of connectivity probes",
			},
			[]string{"result"},
		),

		AlertsSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bantay_alerts_sent_total",
				Help: "Total number of status alerts sent",
			},
			[]string{"channel", "status"},
		),

		AlertFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bantay_alert_failures_total",
				Help: "Total number of failed status alerts",
			},
			[]string{"channel", "status"},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bantay_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bantay_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bantay_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bantay_component_health",
				Help: "Health status of application components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bantay_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bantay_goroutines",
				Help: "Number of running goroutines",
			},
		),
	}
}

// RecordResolution records a status resolution pass
func (m *PrometheusMetrics) RecordResolution(mode, status string, entities int, duration time.Duration) {
	m.ResolutionsTotal.WithLabelValues(mode, status).Inc()
	m.ResolutionDuration.Observe(duration.Seconds())
	m.ResolvedEntities.Observe(float64(entities))
}

// UpdateResidentsByStatus updates the per-status resident gauges
func (m *PrometheusMetrics) UpdateResidentsByStatus(counts map[string]int) {
	for status, count := range counts {
		m.ResidentsByStatus.WithLabelValues(status).Set(float64(count))
	}
}

// RecordCacheOperation records an offline cache operation
func (m *PrometheusMetrics) RecordCacheOperation(operation, collection, status string, duration time.Duration) {
	m.CacheOperationsTotal.WithLabelValues(operation, collection, status).Inc()
	m.CacheOperationDuration.WithLabelValues(operation, collection).Observe(duration.Seconds())
}

// UpdateCachedRecords updates the cached record count for a collection
func (m *PrometheusMetrics) UpdateCachedRecords(collection string, count int) {
	m.CachedRecords.WithLabelValues(collection).Set(float64(count))
}

// RecordDatabaseOperation records a remote store operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordStatusUpdate records a recorded status log entry
func (m *PrometheusMetrics) RecordStatusUpdate(status string) {
	m.StatusUpdatesTotal.WithLabelValues(status).Inc()
}

// UpdateOnline updates the connectivity gauge
func (m *PrometheusMetrics) UpdateOnline(online bool) {
	value := 0.0
	if online {
		value = 1.0
	}
	m.Online.Set(value)
}

// RecordConnectivityProbe records a connectivity probe result
func (m *PrometheusMetrics) RecordConnectivityProbe(result string) {
	m.ConnectivityProbes.WithLabelValues(result).Inc()
}

// RecordAlertSent records a sent status alert
func (m *PrometheusMetrics) RecordAlertSent(channel, status string) {
	m.AlertsSentTotal.WithLabelValues(channel, status).Inc()
}

// RecordAlertFailure records a failed status alert
func (m *PrometheusMetrics) RecordAlertFailure(channel, status string) {
	m.AlertFailuresTotal.WithLabelValues(channel, status).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
