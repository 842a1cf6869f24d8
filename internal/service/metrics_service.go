package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface,
// the registry cache, the session engine and the realtime channel.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheLookups    *prometheus.CounterVec
	presenceTotal   *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	sessionsTotal   *prometheus.CounterVec
	realtimeFrames  *prometheus.CounterVec
	realtimePeers   prometheus.Gauge
	realtimeDropped prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Registry cache lookups by result",
	}, []string{"result"})

	presenceTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_presence_total",
		Help: "Presence attempts by method and outcome",
	}, []string{"method", "outcome"})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "attendance_active_sessions",
		Help: "Sessions currently accepting presence",
	})

	sessionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_sessions_total",
		Help: "Session lifecycle transitions",
	}, []string{"status"})

	realtimeFrames := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_frames_total",
		Help: "Frames handled by the presence channel",
	}, []string{"direction", "type"})

	realtimePeers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections",
		Help: "Open presence channel connections",
	})

	realtimeDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_dropped_frames_total",
		Help: "Outbound frames dropped because a peer buffer was full",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups,
		presenceTotal, activeSessions, sessionsTotal, realtimeFrames, realtimePeers, realtimeDropped, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheLookups:    cacheLookups,
		presenceTotal:   presenceTotal,
		activeSessions:  activeSessions,
		sessionsTotal:   sessionsTotal,
		realtimeFrames:  realtimeFrames,
		realtimePeers:   realtimePeers,
		realtimeDropped: realtimeDropped,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObservePresence counts a presence attempt. Outcome is "recorded" or the rejection code.
func (m *MetricsService) ObservePresence(method, outcome string) {
	if m == nil {
		return
	}
	m.presenceTotal.WithLabelValues(method, outcome).Inc()
}

// ObserveSessionTransition counts a session entering status and refreshes the active gauge.
func (m *MetricsService) ObserveSessionTransition(status string, active int) {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues(status).Inc()
	m.activeSessions.Set(float64(active))
}

// ObserveFrame counts a realtime frame; direction is "in" or "out".
func (m *MetricsService) ObserveFrame(direction, frameType string) {
	if m == nil {
		return
	}
	m.realtimeFrames.WithLabelValues(direction, frameType).Inc()
}

// AddConnections adjusts the open connection gauge.
func (m *MetricsService) AddConnections(delta int) {
	if m == nil {
		return
	}
	m.realtimePeers.Add(float64(delta))
}

// ObserveDroppedFrame counts a frame discarded for a slow peer.
func (m *MetricsService) ObserveDroppedFrame() {
	if m == nil {
		return
	}
	m.realtimeDropped.Inc()
}
