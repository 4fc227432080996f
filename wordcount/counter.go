package wordcount

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// TotalWords is the counter incremented once per pair emitted by the word
// count mapper.
const TotalWords = "TOTAL_WORDS"

// Counter is a named metric that is safe for concurrent increments.
type Counter struct {
	name  string
	value atomic.Int64
}

func MakeCounter(name string) *Counter {
	return &Counter{name: name}
}

func (c *Counter) Name() string { return c.name }

func (c *Counter) Increment(n int64) { c.value.Add(n) }

func (c *Counter) Value() int64 { return c.value.Load() }

func (c *Counter) Reset() { c.value.Store(0) }

// Metrics is the run-scoped set of counters owned by a Driver.
type Metrics struct {
	mu       sync.RWMutex
	counters map[string]*Counter
}

func MakeMetrics(names ...string) *Metrics {
	m := &Metrics{counters: make(map[string]*Counter, len(names))}
	for _, name := range names {
		m.Counter(name)
	}
	return m
}

// Counter returns the counter registered under name, creating it on first use.
func (m *Metrics) Counter(name string) *Counter {
	m.mu.RLock()
	c, ok := m.counters[name]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.counters[name]; !ok {
		c = MakeCounter(name)
		m.counters[name] = c
	}
	return c
}

// Lookup reads a counter without registering it.
func (m *Metrics) Lookup(name string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.counters[name]
	if !ok {
		return 0, false
	}
	return c.Value(), true
}

func (m *Metrics) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.counters))
	for name := range m.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Metrics) Snapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := make(map[string]int64, len(m.counters))
	for name, c := range m.counters {
		snap[name] = c.Value()
	}
	return snap
}

// Reset zeroes every registered counter.
func (m *Metrics) Reset() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.counters {
		c.Reset()
	}
}

// CounterPublisher exports the final counter values of a successful run.
type CounterPublisher interface {
	PublishCounters(ctx context.Context, runID string, counters map[string]int64) error
}
