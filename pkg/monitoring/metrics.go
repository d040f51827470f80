package monitoring

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector manages Prometheus metrics for a service
type MetricsCollector struct {
	serviceName string

	// Standard HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	activeConnections   prometheus.Gauge
	serviceInfo         *prometheus.GaugeVec

	// Custom metrics registry
	customMetrics map[string]prometheus.Collector
}

// NewMetricsCollector creates a new metrics collector for a service
func NewMetricsCollector(serviceName, version, commit string) *MetricsCollector {
	// Sanitize service name for Prometheus (replace hyphens with underscores)
	sanitizedServiceName := strings.ReplaceAll(serviceName, "-", "_")

	mc := &MetricsCollector{
		serviceName:   sanitizedServiceName,
		customMetrics: make(map[string]prometheus.Collector),
	}

	// Standard HTTP metrics
	mc.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: mc.serviceName + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	mc.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    mc.serviceName + "_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	mc.activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: mc.serviceName + "_active_connections",
			Help: "Number of active connections",
		},
	)

	mc.serviceInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: mc.serviceName + "_service_info",
			Help: "Service information",
		},
		[]string{"version", "commit"},
	)

	// Register standard metrics
	prometheus.MustRegister(mc.httpRequestsTotal)
	prometheus.MustRegister(mc.httpRequestDuration)
	prometheus.MustRegister(mc.activeConnections)
	prometheus.MustRegister(mc.serviceInfo)

	// Set service info
	mc.serviceInfo.WithLabelValues(version, commit).Set(1)

	return mc
}

// RegisterCustomMetric registers a custom Prometheus metric
func (mc *MetricsCollector) RegisterCustomMetric(name string, metric prometheus.Collector) {
	mc.customMetrics[name] = metric
	prometheus.MustRegister(metric)
}

// MetricsMiddleware returns middleware that collects HTTP metrics
func (mc *MetricsCollector) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Increment active connections
		mc.activeConnections.Inc()
		defer mc.activeConnections.Dec()

		// Process request
		c.Next()

		// Record metrics
		duration := time.Since(start).Seconds()
		method := c.Request.Method
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())

		mc.httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
		mc.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (mc *MetricsCollector) Handler() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// Service-specific metric helpers

// NewCounter creates a new counter metric for the service
func (mc *MetricsCollector) NewCounter(name, help string, labels []string) *prometheus.CounterVec {
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: mc.serviceName + "_" + name,
			Help: help,
		},
		labels,
	)
	mc.RegisterCustomMetric(name, counter)
	return counter
}

// NewGauge creates a new gauge metric for the service
func (mc *MetricsCollector) NewGauge(name, help string, labels []string) *prometheus.GaugeVec {
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: mc.serviceName + "_" + name,
			Help: help,
		},
		labels,
	)
	mc.RegisterCustomMetric(name, gauge)
	return gauge
}

// NewHistogram creates a new histogram metric for the service
func (mc *MetricsCollector) NewHistogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    mc.serviceName + "_" + name,
			Help:    help,
			Buckets: buckets,
		},
		labels,
	)
	mc.RegisterCustomMetric(name, histogram)
	return histogram
}

// Common service metrics creators

// DiscoveryMetrics bundles the metrics tracked by the discovery pipeline.
type DiscoveryMetrics struct {
	ScansTotal      *prometheus.CounterVec   // scans by trigger and status
	ScanDuration    *prometheus.HistogramVec // scan duration by trigger
	FilesDiscovered *prometheus.GaugeVec     // currently discovered files
	ConflictsActive *prometheus.GaugeVec     // unresolved project name conflicts
	CacheEvents     *prometheus.CounterVec   // cache hits, misses, bypasses, invalidations
}

// CreateDiscoveryMetrics creates standard discovery metrics
func (mc *MetricsCollector) CreateDiscoveryMetrics() *DiscoveryMetrics {
	return &DiscoveryMetrics{
		ScansTotal:      mc.NewCounter("scans_total", "Total filesystem scans", []string{"trigger", "status"}),
		ScanDuration:    mc.NewHistogram("scan_duration_seconds", "Filesystem scan duration", []string{"trigger"}, nil),
		FilesDiscovered: mc.NewGauge("files_discovered", "Compose files found by the last scan", []string{"root"}),
		ConflictsActive: mc.NewGauge("conflicts_active", "Project name conflicts in the last scan", []string{"root"}),
		CacheEvents:     mc.NewCounter("cache_events_total", "Discovery cache events", []string{"event"}),
	}
}

// RuntimeMetrics bundles the metrics tracked for container runtime calls.
type RuntimeMetrics struct {
	RequestsTotal   *prometheus.CounterVec   // runtime API requests by endpoint and status
	RequestDuration *prometheus.HistogramVec // runtime API request duration by endpoint
}

// CreateRuntimeMetrics creates standard container runtime metrics
func (mc *MetricsCollector) CreateRuntimeMetrics() *RuntimeMetrics {
	return &RuntimeMetrics{
		RequestsTotal:   mc.NewCounter("runtime_requests_total", "Total container runtime API requests", []string{"endpoint", "status"}),
		RequestDuration: mc.NewHistogram("runtime_request_duration_seconds", "Container runtime API request duration", []string{"endpoint"}, nil),
	}
}

// OperationMetrics bundles the metrics tracked for dispatched operations.
type OperationMetrics struct {
	OperationsTotal   *prometheus.CounterVec   // operations by action and status
	OperationDuration *prometheus.HistogramVec // end-to-end operation duration by action
}

// CreateOperationMetrics creates standard operation dispatch metrics
func (mc *MetricsCollector) CreateOperationMetrics() *OperationMetrics {
	return &OperationMetrics{
		OperationsTotal:   mc.NewCounter("operations_total", "Total dispatched operations", []string{"action", "status"}),
		OperationDuration: mc.NewHistogram("operation_duration_seconds", "Operation duration", []string{"action"}, nil),
	}
}

// CreateDatabaseMetrics creates standard database metrics
func (mc *MetricsCollector) CreateDatabaseMetrics() (
	*prometheus.CounterVec, // db_queries_total
	*prometheus.HistogramVec, // db_query_duration_seconds
	*prometheus.GaugeVec, // db_connections_active
) {
	queries := mc.NewCounter("db_queries_total", "Total database queries", []string{"query_type", "status"})
	duration := mc.NewHistogram("db_query_duration_seconds", "Database query duration", []string{"query_type"}, nil)
	connections := mc.NewGauge("db_connections_active", "Active database connections", []string{"database"})

	return queries, duration, connections
}
