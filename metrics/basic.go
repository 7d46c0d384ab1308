package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
)

// BasicProvider is a concurrency-safe in-memory Provider. Instruments are
// created on demand by name and reused.
type BasicProvider struct {
	mu         sync.RWMutex
	counters   map[string]*BasicCounter
	updowns    map[string]*BasicUpDownCounter
	histograms map[string]*BasicHistogram
	meta       map[string]InstrumentConfig
}

// NewBasicProvider constructs a new BasicProvider.
func NewBasicProvider() *BasicProvider {
	return &BasicProvider{
		counters:   make(map[string]*BasicCounter),
		updowns:    make(map[string]*BasicUpDownCounter),
		histograms: make(map[string]*BasicHistogram),
		meta:       make(map[string]InstrumentConfig),
	}
}

// getOrCreate looks name up under the read lock and falls back to creating
// it under the write lock, re-checking in between.
func getOrCreate[T any](p *BasicProvider, m map[string]*T, name string, opts []InstrumentOption, mk func() *T) *T {
	p.mu.RLock()
	v, ok := m[name]
	p.mu.RUnlock()
	if ok {
		return v
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok = m[name]; ok {
		return v
	}
	p.meta[name] = applyOptions(opts)
	v = mk()
	m[name] = v
	return v
}

// Counter returns a monotonic counter instrument for the given name (created once).
func (p *BasicProvider) Counter(name string, opts ...InstrumentOption) Counter {
	return getOrCreate(p, p.counters, name, opts, func() *BasicCounter { return &BasicCounter{} })
}

// UpDownCounter returns an up/down counter instrument for the given name (created once).
func (p *BasicProvider) UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter {
	return getOrCreate(p, p.updowns, name, opts, func() *BasicUpDownCounter { return &BasicUpDownCounter{} })
}

// Histogram returns a histogram instrument for the given name (created once).
func (p *BasicProvider) Histogram(name string, opts ...InstrumentOption) Histogram {
	return getOrCreate(p, p.histograms, name, opts, func() *BasicHistogram { return &BasicHistogram{} })
}

// Value returns the current value of the counter or up/down counter called
// name, and whether such an instrument exists.
func (p *BasicProvider) Value(name string) (int64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if c, ok := p.counters[name]; ok {
		return c.Snapshot(), true
	}
	if u, ok := p.updowns[name]; ok {
		return u.Snapshot(), true
	}
	return 0, false
}

// Names returns the sorted names of all counters and up/down counters.
func (p *BasicProvider) Names() []string {
	p.mu.RLock()
	names := make([]string, 0, len(p.counters)+len(p.updowns))
	for n := range p.counters {
		names = append(names, n)
	}
	for n := range p.updowns {
		names = append(names, n)
	}
	p.mu.RUnlock()
	sort.Strings(names)
	return names
}

// BasicCounter is a thread-safe monotonic counter.
type BasicCounter struct {
	val atomic.Int64
}

func (c *BasicCounter) Add(n int64) { c.val.Add(n) }

// Snapshot returns the current value.
func (c *BasicCounter) Snapshot() int64 { return c.val.Load() }

// BasicUpDownCounter is a thread-safe up/down counter.
type BasicUpDownCounter struct {
	val atomic.Int64
}

func (u *BasicUpDownCounter) Add(n int64) { u.val.Add(n) }

// Snapshot returns the current value.
func (u *BasicUpDownCounter) Snapshot() int64 { return u.val.Load() }

// BasicHistogram tracks count, sum, min and max. It keeps no buckets.
type BasicHistogram struct {
	mu    sync.Mutex
	count int64
	sum   float64
	min   float64
	max   float64
}

// Record adds a measurement to the histogram.
func (h *BasicHistogram) Record(v float64) {
	h.mu.Lock()
	if h.count == 0 {
		h.min, h.max = v, v
	} else {
		if v < h.min {
			h.min = v
		}
		if v > h.max {
			h.max = v
		}
	}
	h.count++
	h.sum += v
	h.mu.Unlock()
}

// HistSnapshot is an immutable snapshot of a BasicHistogram.
type HistSnapshot struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
	Mean  float64
}

// Snapshot returns a copy of the histogram state at the time of call.
func (h *BasicHistogram) Snapshot() HistSnapshot {
	h.mu.Lock()
	s := HistSnapshot{Count: h.count, Sum: h.sum, Min: h.min, Max: h.max}
	h.mu.Unlock()
	if s.Count > 0 {
		s.Mean = s.Sum / float64(s.Count)
	}
	return s
}
