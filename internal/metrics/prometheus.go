package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Metrics over a prometheus registry. Collectors are
// created lazily per metric name with a stable label set derived from the
// first observation's tags.
type Prometheus struct {
	mu         sync.Mutex
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewPrometheus creates a Prometheus-backed collector on its own registry.
func NewPrometheus() *Prometheus {
	return &Prometheus{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

// Registry exposes the underlying registry for HTTP scraping wiring.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for k := range tags {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// IncrementCounter adds value to the named counter.
func (p *Prometheus) IncrementCounter(name string, tags map[string]string, value float64) {
	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labelNames(tags))
		p.registry.MustRegister(vec)
		p.counters[name] = vec
	}
	p.mu.Unlock()
	vec.With(prometheus.Labels(tags)).Add(value)
}

// RecordHistogram observes value on the named histogram.
func (p *Prometheus) RecordHistogram(name string, tags map[string]string, value float64) {
	p.mu.Lock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name}, labelNames(tags))
		p.registry.MustRegister(vec)
		p.histograms[name] = vec
	}
	p.mu.Unlock()
	vec.With(prometheus.Labels(tags)).Observe(value)
}

// SetGauge sets the named gauge.
func (p *Prometheus) SetGauge(name string, tags map[string]string, value float64) {
	p.mu.Lock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, labelNames(tags))
		p.registry.MustRegister(vec)
		p.gauges[name] = vec
	}
	p.mu.Unlock()
	vec.With(prometheus.Labels(tags)).Set(value)
}
