package metricstest

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fundflow/gateway/metrics"
)

// MockMetrics records the measurements in maps keyed by the metrics.Key*
// formats.
type MockMetrics struct {
	Prefix string

	mu sync.Mutex

	// Metrics gathering
	counters map[string]int64
	gauges   map[string]float64
	measures map[string][]time.Duration
	Now      time.Time
}

var _ metrics.Metrics = &MockMetrics{}

//
// Public thread safe access to metrics
//

func (m *MockMetrics) WithCounters(f func(counters map[string]int64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}
	f(m.counters)
}

func (m *MockMetrics) WithMeasures(f func(measures map[string][]time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.measures == nil {
		m.measures = make(map[string][]time.Duration)
	}
	f(m.measures)
}

func (m *MockMetrics) WithGauges(f func(map[string]float64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gauges == nil {
		m.gauges = make(map[string]float64)
	}

	f(m.gauges)
}

// Counter returns the value of a counter, zero when it was never
// incremented.
func (m *MockMetrics) Counter(key string) (v int64) {
	m.WithCounters(func(counters map[string]int64) {
		v = counters[m.Prefix+key]
	})

	return
}

// Gauge returns the value of a gauge and whether it was set.
func (m *MockMetrics) Gauge(key string) (v float64, ok bool) {
	m.WithGauges(func(gauges map[string]float64) {
		v, ok = gauges[m.Prefix+key]
	})

	return
}

// Measures returns the measured durations of a key.
func (m *MockMetrics) Measures(key string) (d []time.Duration) {
	m.WithMeasures(func(measures map[string][]time.Duration) {
		d = append(d, measures[m.Prefix+key]...)
	})

	return
}

func (m *MockMetrics) since(start time.Time) time.Duration {
	now := m.Now
	if now.IsZero() {
		now = time.Now()
	}

	return now.Sub(start)
}

func (m *MockMetrics) measureSince(key string, start time.Time) {
	key = m.Prefix + key
	d := m.since(start)
	m.WithMeasures(func(measures map[string][]time.Duration) {
		measures[key] = append(measures[key], d)
	})
}

func (m *MockMetrics) incCounter(key string) {
	key = m.Prefix + key
	m.WithCounters(func(counters map[string]int64) {
		counters[key]++
	})
}

//
// Interface Metrics
//

func (m *MockMetrics) MeasureServe(routeID, method string, code int, start time.Time) {
	m.measureSince(fmt.Sprintf(metrics.KeyServe, routeID, method, code), start)
}

func (m *MockMetrics) MeasureBackend(target string, start time.Time) {
	m.measureSince(fmt.Sprintf(metrics.KeyBackend, target), start)
}

func (m *MockMetrics) IncErrorsBackend(target string) {
	m.incCounter(fmt.Sprintf(metrics.KeyErrorsBackend, target))
}

func (m *MockMetrics) IncRoutingFailures() {
	m.incCounter(metrics.KeyRoutingFailures)
}

func (m *MockMetrics) SetBreakerState(target string, state int) {
	key := m.Prefix + fmt.Sprintf(metrics.KeyBreakerState, target)
	m.WithGauges(func(gauges map[string]float64) {
		gauges[key] = float64(state)
	})
}

func (m *MockMetrics) IncBreakerTransition(target, from, to string) {
	m.incCounter(fmt.Sprintf(metrics.KeyBreakerTransition, target, from, to))
}

func (m *MockMetrics) IncHealthProbe(target string, healthy bool) {
	m.incCounter(fmt.Sprintf(metrics.KeyHealthProbe, target, healthy))
}

func (m *MockMetrics) IncRatelimited(routeID string) {
	m.incCounter(fmt.Sprintf(metrics.KeyRatelimited, routeID))
}

func (*MockMetrics) RegisterHandler(string, *http.ServeMux) {}
