package metrics

import (
	"sync"
	"time"
)

// Scan outcome label values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Discard is the disabled Sink variant; every update is a no-op.
type Discard struct{}

// IncrementScansTotal implements Sink.
func (Discard) IncrementScansTotal(string, string) {}

// IncrementScanErrors implements Sink.
func (Discard) IncrementScanErrors(string, string) {}

// SetHostsDiscovered implements Sink.
func (Discard) SetHostsDiscovered(int) {}

// IncrementPortsFound implements Sink.
func (Discard) IncrementPortsFound() {}

// RecordScanDuration implements Sink.
func (Discard) RecordScanDuration(string, time.Duration) {}

var (
	defaultMu   sync.RWMutex
	defaultSink Sink
)

// SetDefault replaces the process-wide sink. Passing nil restores the
// global Prometheus collector.
func SetDefault(sink Sink) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultSink = sink
}

// Default returns the process-wide sink, which is the global Prometheus
// collector unless SetDefault installed another one.
func Default() Sink {
	defaultMu.RLock()
	sink := defaultSink
	defaultMu.RUnlock()
	if sink == nil {
		return GetGlobalMetrics()
	}
	return sink
}
