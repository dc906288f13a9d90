package turbofetch

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the call pipeline, the
// call log and the offline cache. It is safe for concurrent use and every
// Record method is a no-op on a nil collector.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge

	errorsTotal *prometheus.CounterVec

	callLogWrites *prometheus.CounterVec

	offlineHits   *prometheus.CounterVec
	offlineMisses *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)
	return &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turbofetch_requests_total",
				Help: "Total number of HTTP calls dispatched",
			},
			[]string{"method", "status_code"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "turbofetch_request_duration_seconds",
				Help:    "Duration of HTTP calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code"},
		),
		requestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "turbofetch_requests_in_flight",
				Help: "Number of HTTP calls currently in flight",
			},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turbofetch_errors_total",
				Help: "Total number of failed calls by error type",
			},
			[]string{"type", "method"},
		),
		callLogWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turbofetch_calllog_writes_total",
				Help: "Call log writes by operation (insert, update, error)",
			},
			[]string{"op"},
		),
		offlineHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turbofetch_offline_cache_hits_total",
				Help: "Responses served from the offline cache",
			},
			[]string{"source"},
		),
		offlineMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turbofetch_offline_cache_misses_total",
				Help: "Offline cache lookups that went to the network",
			},
			[]string{"method"},
		),
		registry: registry,
	}
}

// RecordRequest records request count and duration. statusCode is 0 when no
// response was produced.
func (mc *MetricsCollector) RecordRequest(method string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, statusCodeStr).Inc()
	mc.requestDuration.WithLabelValues(method, statusCodeStr).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart() {
	if mc == nil {
		return
	}

	mc.requestsInFlight.Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd() {
	if mc == nil {
		return
	}

	mc.requestsInFlight.Dec()
}

// RecordError increments error counter by type.
func (mc *MetricsCollector) RecordError(errorType, method string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, method).Inc()
}

// RecordCallLogWrite counts a call log write. op is "insert", "update" or
// "error".
func (mc *MetricsCollector) RecordCallLogWrite(op string) {
	if mc == nil {
		return
	}

	mc.callLogWrites.WithLabelValues(op).Inc()
}

// RecordOfflineHit counts a response served from the offline cache. source
// is "cache" or "fallback".
func (mc *MetricsCollector) RecordOfflineHit(source string) {
	if mc == nil {
		return
	}

	mc.offlineHits.WithLabelValues(source).Inc()
}

// RecordOfflineMiss counts a lookup that went to the network.
func (mc *MetricsCollector) RecordOfflineMiss(method string) {
	if mc == nil {
		return
	}

	mc.offlineMisses.WithLabelValues(method).Inc()
}

// GetRegistry exposes the underlying prometheus registry, or nil when the
// collector was built on a plain Registerer.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	reg, _ := mc.registry.(*prometheus.Registry)
	return reg
}
