// Package metrics provides Prometheus-based metrics collection for hostsweep.
// The collector owns its own registry so the exposition endpoint only serves
// hostsweep series plus the standard Go and process collectors.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Namespace for all hostsweep metrics
	namespace = "hostsweep"
)

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	scansTotal      *prometheus.CounterVec
	scanErrors      *prometheus.CounterVec
	scanDuration    *prometheus.HistogramVec
	hostsDiscovered prometheus.Gauge
	portsFound      prometheus.Counter

	startTime time.Time
	registry  *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	pm.initScanMetrics()
	pm.registerMetrics()

	// Register standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

// initScanMetrics initializes scan-related metrics
func (pm *PrometheusMetrics) initScanMetrics() {
	pm.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Total number of scans performed by profile and status",
		},
		[]string{"profile", "status"},
	)

	pm.scanErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_errors_total",
			Help:      "Total number of failed scans by profile and error type",
		},
		[]string{"profile", "error_type"},
	)

	pm.scanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of completed scans in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0, 600.0, 1800.0},
		},
		[]string{"profile"},
	)

	pm.hostsDiscovered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hosts_discovered",
			Help:      "Number of hosts discovered by the most recent scan",
		},
	)

	pm.portsFound = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ports_found_total",
			Help:      "Total number of ports found across all scans",
		},
	)
}

// registerMetrics registers all metrics with the Prometheus registry
func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(pm.scansTotal)
	pm.registry.MustRegister(pm.scanErrors)
	pm.registry.MustRegister(pm.scanDuration)
	pm.registry.MustRegister(pm.hostsDiscovered)
	pm.registry.MustRegister(pm.portsFound)
}

// GetRegistry returns the Prometheus registry for HTTP handler
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// IncrementScansTotal increments the total scan counter
func (pm *PrometheusMetrics) IncrementScansTotal(profile, status string) {
	pm.scansTotal.WithLabelValues(profile, status).Inc()
}

// IncrementScanErrors increments the scan error counter
func (pm *PrometheusMetrics) IncrementScanErrors(profile, errorType string) {
	pm.scanErrors.WithLabelValues(profile, errorType).Inc()
}

// SetHostsDiscovered sets the hosts gauge to the latest scan's host count
func (pm *PrometheusMetrics) SetHostsDiscovered(count int) {
	pm.hostsDiscovered.Set(float64(count))
}

// IncrementPortsFound increments the ports found counter by one
func (pm *PrometheusMetrics) IncrementPortsFound() {
	pm.portsFound.Inc()
}

// RecordScanDuration records scan duration
func (pm *PrometheusMetrics) RecordScanDuration(profile string, duration time.Duration) {
	pm.scanDuration.WithLabelValues(profile).Observe(duration.Seconds())
}

// GetUptime returns the application uptime
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// Global instance for easy access
var globalMetrics *PrometheusMetrics
var metricsOnce sync.Once

// GetGlobalMetrics returns the global Prometheus metrics instance
func GetGlobalMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPrometheusMetrics()
	})
	return globalMetrics
}
