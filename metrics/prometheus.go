package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusProvider maps instruments onto Prometheus collectors registered
// in a single registry: counters to Counter, up/down counters to Gauge and
// histograms to Histogram with the default buckets.
type PrometheusProvider struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	namespace  string
	counters   map[string]prometheus.Counter
	gauges     map[string]prometheus.Gauge
	histograms map[string]prometheus.Histogram
}

// NewPrometheusProvider constructs a provider registering into reg under namespace.
func NewPrometheusProvider(reg prometheus.Registerer, namespace string) *PrometheusProvider {
	return &PrometheusProvider{
		registerer: reg,
		namespace:  namespace,
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
		histograms: make(map[string]prometheus.Histogram),
	}
}

func (p *PrometheusProvider) Counter(name string, opts ...InstrumentOption) Counter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[name]; ok {
		return promCounter{c}
	}
	cfg := applyOptions(opts)
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   p.namespace,
		Name:        name + "_total",
		Help:        help(name, cfg),
		ConstLabels: cfg.Attributes,
	})
	p.counters[name] = register(p.registerer, c)
	return promCounter{p.counters[name]}
}

func (p *PrometheusProvider) UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if g, ok := p.gauges[name]; ok {
		return promGauge{g}
	}
	cfg := applyOptions(opts)
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   p.namespace,
		Name:        name,
		Help:        help(name, cfg),
		ConstLabels: cfg.Attributes,
	})
	p.gauges[name] = register(p.registerer, g)
	return promGauge{p.gauges[name]}
}

func (p *PrometheusProvider) Histogram(name string, opts ...InstrumentOption) Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.histograms[name]; ok {
		return promHistogram{h}
	}
	cfg := applyOptions(opts)
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   p.namespace,
		Name:        name,
		Help:        help(name, cfg),
		ConstLabels: cfg.Attributes,
		Buckets:     prometheus.DefBuckets,
	})
	p.histograms[name] = register(p.registerer, h)
	return promHistogram{p.histograms[name]}
}

// register adds c to reg, reusing an identical collector a previous
// provider already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func help(name string, cfg InstrumentConfig) string {
	if cfg.Description != "" {
		return cfg.Description
	}
	return name
}

type promCounter struct{ c prometheus.Counter }

func (p promCounter) Add(n int64) {
	if n > 0 {
		p.c.Add(float64(n))
	}
}

type promGauge struct{ g prometheus.Gauge }

func (p promGauge) Add(n int64) { p.g.Add(float64(n)) }

type promHistogram struct{ h prometheus.Histogram }

func (p promHistogram) Record(v float64) { p.h.Observe(v) }
