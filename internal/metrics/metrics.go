package metrics

import (
	"context"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

var defaultRegistry = prometheus.DefaultRegisterer

// Config holds metrics configuration.
type Config struct {
	EnableDepotLabel bool
}

// Metrics holds every CDN-client metric this repo emits: control-plane call
// outcomes, server-pool health, chunk pipeline verification, the ephemeral
// cache, buffer pool efficiency, and hardware acceleration status, plus the
// generic HTTP request metrics recorded for the orchestrator's edge GETs.
type Metrics struct {
	config Config

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestBytes    *prometheus.CounterVec

	controlPlaneRequestsTotal   *prometheus.CounterVec
	controlPlaneRequestDuration *prometheus.HistogramVec
	controlPlaneErrors          *prometheus.CounterVec

	chunkFetchTotal          *prometheus.CounterVec
	chunkFetchDuration       *prometheus.HistogramVec
	chunkVerifyFailuresTotal *prometheus.CounterVec

	poolPenaltiesTotal *prometheus.CounterVec
	poolRefreshesTotal prometheus.Counter

	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec

	bufferPoolHits   *prometheus.CounterVec
	bufferPoolMisses *prometheus.CounterVec

	activeConnections prometheus.Gauge
	goroutines        prometheus.Gauge
	memoryAllocBytes  prometheus.Gauge
	memorySysBytes    prometheus.Gauge

	hardwareAccelerationEnabled *prometheus.GaugeVec
}

// NewMetrics creates a new metrics instance with default configuration.
func NewMetrics() *Metrics {
	return NewMetricsWithConfig(Config{EnableDepotLabel: true})
}

// NewMetricsWithConfig creates a new metrics instance with the provided configuration.
func NewMetricsWithConfig(cfg Config) *Metrics {
	return newMetricsWithRegistry(defaultRegistry, cfg)
}

// NewMetricsWithRegistry creates a new metrics instance with a custom registry.
// This is useful for testing to avoid metric registration conflicts.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetricsWithRegistry(reg, Config{EnableDepotLabel: true})
}

func newMetricsWithRegistry(reg prometheus.Registerer, cfg Config) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		config: cfg,
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "Total number of successful edge HTTP requests"},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds", Buckets: prometheus.DefBuckets},
			[]string{"method", "path", "status"},
		),
		httpRequestBytes: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "http_request_bytes_total", Help: "Total bytes transferred in HTTP requests"},
			[]string{"method", "path"},
		),
		controlPlaneRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "cdn_control_plane_requests_total", Help: "Total number of control-plane calls"},
			[]string{"operation"},
		),
		controlPlaneRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{Name: "cdn_control_plane_request_duration_seconds", Help: "Control-plane call duration in seconds", Buckets: prometheus.DefBuckets},
			[]string{"operation"},
		),
		controlPlaneErrors: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "cdn_control_plane_errors_total", Help: "Total number of control-plane call errors"},
			[]string{"operation", "error_type"},
		),
		chunkFetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "cdn_chunk_fetch_total", Help: "Total number of chunk fetches"},
			[]string{"depot_id"},
		),
		chunkFetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{Name: "cdn_chunk_fetch_duration_seconds", Help: "Chunk fetch duration in seconds", Buckets: prometheus.DefBuckets},
			[]string{"depot_id"},
		),
		chunkVerifyFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "cdn_chunk_verify_failures_total", Help: "Total number of chunk CRC or size verification failures"},
			[]string{"depot_id", "reason"},
		),
		poolPenaltiesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "cdn_pool_penalties_total", Help: "Total number of server-pool penalizations"},
			[]string{"host"},
		),
		poolRefreshesTotal: factory.NewCounter(
			prometheus.CounterOpts{Name: "cdn_pool_refreshes_total", Help: "Total number of server-directory refreshes"},
		),
		cacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "cdn_cache_hits_total", Help: "Total number of ephemeral cache hits"},
			[]string{"kind"},
		),
		cacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "cdn_cache_misses_total", Help: "Total number of ephemeral cache misses"},
			[]string{"kind"},
		),
		bufferPoolHits: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "buffer_pool_hits_total", Help: "Total number of buffer pool hits"},
			[]string{"size_class"},
		),
		bufferPoolMisses: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "buffer_pool_misses_total", Help: "Total number of buffer pool misses"},
			[]string{"size_class"},
		),
		activeConnections: factory.NewGauge(
			prometheus.GaugeOpts{Name: "active_connections", Help: "Number of active HTTP connections"},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{Name: "goroutines_total", Help: "Number of goroutines"},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{Name: "memory_alloc_bytes", Help: "Number of bytes allocated and not yet freed"},
		),
		memorySysBytes: factory.NewGauge(
			prometheus.GaugeOpts{Name: "memory_sys_bytes", Help: "Total bytes of memory obtained from OS"},
		),
		hardwareAccelerationEnabled: factory.NewGaugeVec(
			prometheus.GaugeOpts{Name: "hardware_acceleration_enabled", Help: "Hardware acceleration status (1=enabled, 0=disabled)"},
			[]string{"type"},
		),
	}
}

// SetHardwareAccelerationStatus sets the hardware acceleration status metric.
func (m *Metrics) SetHardwareAccelerationStatus(accelType string, enabled bool) {
	val := 0.0
	if enabled {
		val = 1.0
	}
	m.hardwareAccelerationEnabled.WithLabelValues(accelType).Set(val)
}

// RecordHTTPRequest records one successful edge GET issued by the orchestrator.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration, bytes int64) {
	label := sanitizePathLabel(path)
	labels := prometheus.Labels{"method": method, "path": label, "status": http.StatusText(status)}

	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.httpRequestsTotal.With(labels).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.httpRequestsTotal.With(labels).Inc()
		}
		if observer, ok := m.httpRequestDuration.With(labels).(prometheus.ExemplarObserver); ok {
			observer.ObserveWithExemplar(duration.Seconds(), exemplar)
		} else {
			m.httpRequestDuration.With(labels).Observe(duration.Seconds())
		}
	} else {
		m.httpRequestsTotal.With(labels).Inc()
		m.httpRequestDuration.With(labels).Observe(duration.Seconds())
	}
	m.httpRequestBytes.WithLabelValues(method, label).Add(float64(bytes))
}

func sanitizePathLabel(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segs := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segs) <= 1 {
		return "/" + segs[0]
	}
	return "/" + segs[0] + "/*"
}

// RecordControlPlaneCall records one control-plane round trip.
func (m *Metrics) RecordControlPlaneCall(ctx context.Context, operation string, duration time.Duration) {
	m.controlPlaneRequestsTotal.WithLabelValues(operation).Inc()
	m.controlPlaneRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordControlPlaneError records a control-plane call failure.
func (m *Metrics) RecordControlPlaneError(ctx context.Context, operation, errorType string) {
	m.controlPlaneErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordChunkFetch records one chunk fetch against an edge server.
func (m *Metrics) RecordChunkFetch(ctx context.Context, depotID string, duration time.Duration) {
	m.chunkFetchTotal.WithLabelValues(depotID).Inc()
	m.chunkFetchDuration.WithLabelValues(depotID).Observe(duration.Seconds())
}

// RecordChunkVerifyFailure records a CRC or size mismatch after decompression.
func (m *Metrics) RecordChunkVerifyFailure(depotID, reason string) {
	m.chunkVerifyFailuresTotal.WithLabelValues(depotID, reason).Inc()
}

// RecordPoolPenalty records a server-pool penalization.
func (m *Metrics) RecordPoolPenalty(host string) {
	m.poolPenaltiesTotal.WithLabelValues(host).Inc()
}

// RecordPoolRefresh records a server-directory refresh.
func (m *Metrics) RecordPoolRefresh() {
	m.poolRefreshesTotal.Inc()
}

// RecordCacheHit records an ephemeral cache hit, by kind ("server_directory"
// or "manifest_request_code").
func (m *Metrics) RecordCacheHit(kind string) {
	m.cacheHitsTotal.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records an ephemeral cache miss.
func (m *Metrics) RecordCacheMiss(kind string) {
	m.cacheMissesTotal.WithLabelValues(kind).Inc()
}

// RecordBufferPoolHit records a buffer pool hit.
func (m *Metrics) RecordBufferPoolHit(sizeClass string) {
	m.bufferPoolHits.WithLabelValues(sizeClass).Inc()
}

// RecordBufferPoolMiss records a buffer pool miss.
func (m *Metrics) RecordBufferPoolMiss(sizeClass string) {
	m.bufferPoolMisses.WithLabelValues(sizeClass).Inc()
}

// UpdateSystemMetrics updates system-level metrics (goroutines, memory).
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
	m.memorySysBytes.Set(float64(memStats.Sys))
}

// IncrementActiveConnections increments the active connections counter.
func (m *Metrics) IncrementActiveConnections() {
	m.activeConnections.Inc()
}

// DecrementActiveConnections decrements the active connections counter.
func (m *Metrics) DecrementActiveConnections() {
	m.activeConnections.Dec()
}

// StartSystemMetricsCollector starts a goroutine that periodically updates system metrics.
func (m *Metrics) StartSystemMetricsCollector() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for range ticker.C {
			m.UpdateSystemMetrics()
		}
	}()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

func getExemplar(ctx context.Context) prometheus.Labels {
	if ctx == nil {
		return nil
	}
	spanContext := trace.SpanFromContext(ctx).SpanContext()
	if spanContext.IsValid() {
		return prometheus.Labels{"trace_id": spanContext.TraceID().String()}
	}
	return nil
}
