// Package metrics provides the observability port for the triage core and a
// Prometheus-backed implementation. Handlers depend on the small Metrics
// interface so tests can run with the no-op collector.
package metrics

// Metrics collects counters, histograms, and gauges with tag-based
// dimensionality.
type Metrics interface {
	IncrementCounter(name string, tags map[string]string, value float64)
	RecordHistogram(name string, tags map[string]string, value float64)
	SetGauge(name string, tags map[string]string, value float64)
}

// NoOp discards all metrics. Used in tests and development.
type NoOp struct{}

// NewNoOp creates a no-op metrics collector.
func NewNoOp() *NoOp { return &NoOp{} }

func (n *NoOp) IncrementCounter(_ string, _ map[string]string, _ float64) {}

func (n *NoOp) RecordHistogram(_ string, _ map[string]string, _ float64) {}

func (n *NoOp) SetGauge(_ string, _ map[string]string, _ float64) {}
