// Package metrics defines the Metrics sink the evaluate handler emits
// through (SPEC_FULL.md §11: "the Metrics trait... backed by a concrete
// Prometheus adapter") and a concrete github.com/prometheus/client_golang
// implementation of it. Every call site in pkg/scheduler depends only on
// the Metrics interface, never on prometheus directly, so a test can swap
// in a recording fake without pulling in a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the narrow emission surface the evaluate handler needs: one
// counter increment, one gauge set, and one histogram observation, each
// keyed by a label set. Every call in this package passes effect_type
// (spec.md §6.4) and, for worker-scoped metrics, worker_id alongside it.
type Metrics interface {
	CounterAdd(name string, labels map[string]string, delta float64)
	GaugeSet(name string, labels map[string]string, value float64)
	HistogramObserve(name string, labels map[string]string, value float64)
}

// Noop discards every call. Useful as the default Metrics for tests and
// callers that have not wired a registry yet.
type Noop struct{}

func (Noop) CounterAdd(string, map[string]string, float64)       {}
func (Noop) GaugeSet(string, map[string]string, float64)         {}
func (Noop) HistogramObserve(string, map[string]string, float64) {}

// Prometheus adapts a prometheus.Registerer into Metrics. Collectors are
// created lazily, one per metric name, and cached; a collector's label
// names are taken from the first call for that name. This is because the
// evaluate handler only learns its label values (a given effect_type,
// worker_id) at call time, not at construction.
type Prometheus struct {
	reg prometheus.Registerer

	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheus builds a Prometheus adapter registering every collector it
// creates against reg (typically prometheus.DefaultRegisterer, or a
// dedicated prometheus.NewRegistry() in tests).
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	return &Prometheus{
		reg:        reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	return names
}

func (p *Prometheus) counterVec(name string, labels map[string]string) *prometheus.CounterVec {
	if cv, ok := p.counters[name]; ok {
		return cv
	}
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: name}, labelNames(labels))
	p.reg.MustRegister(cv)
	p.counters[name] = cv
	return cv
}

func (p *Prometheus) gaugeVec(name string, labels map[string]string) *prometheus.GaugeVec {
	if gv, ok := p.gauges[name]; ok {
		return gv
	}
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: name}, labelNames(labels))
	p.reg.MustRegister(gv)
	p.gauges[name] = gv
	return gv
}

func (p *Prometheus) histogramVec(name string, labels map[string]string) *prometheus.HistogramVec {
	if hv, ok := p.histograms[name]; ok {
		return hv
	}
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: name}, labelNames(labels))
	p.reg.MustRegister(hv)
	p.histograms[name] = hv
	return hv
}

func (p *Prometheus) CounterAdd(name string, labels map[string]string, delta float64) {
	p.counterVec(name, labels).With(labels).Add(delta)
}

func (p *Prometheus) GaugeSet(name string, labels map[string]string, value float64) {
	p.gaugeVec(name, labels).With(labels).Set(value)
}

func (p *Prometheus) HistogramObserve(name string, labels map[string]string, value float64) {
	p.histogramVec(name, labels).With(labels).Observe(value)
}
