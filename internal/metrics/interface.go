// Package metrics provides interfaces for metrics collection and monitoring.
package metrics

import "time"

// Sink receives scan lifecycle measurements. Two variants exist: the
// Prometheus-backed collector and Discard, selected once at startup.
type Sink interface {
	// IncrementScansTotal counts one scan invocation with its outcome.
	IncrementScansTotal(profile, status string)

	// IncrementScanErrors counts one failed scan by error type.
	IncrementScanErrors(profile, errorType string)

	// SetHostsDiscovered overwrites the hosts gauge with the latest scan's host count.
	SetHostsDiscovered(count int)

	// IncrementPortsFound counts one port attached to a host.
	IncrementPortsFound()

	// RecordScanDuration observes the duration of one completed scan.
	RecordScanDuration(profile string, duration time.Duration)
}

// Ensure both variants implement Sink.
var (
	_ Sink = (*PrometheusMetrics)(nil)
	_ Sink = Discard{}
)
