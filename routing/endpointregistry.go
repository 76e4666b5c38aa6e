package routing

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// HealthReader is the read-only view of the registry used by the load
// balancer.
type HealthReader interface {
	Healthy(target string) bool
}

// EndpointState is a point in time copy of a registry entry.
type EndpointState struct {
	Healthy          bool      `json:"healthy"`
	Since            time.Time `json:"since"`
	InflightRequests int64     `json:"inflight"`
	TotalRequests    int64     `json:"total"`
	FailedRequests   int64     `json:"failed"`
}

type entry struct {
	// the flag and the change time are updated together
	mx      sync.Mutex
	healthy bool
	since   time.Time

	inflightRequests atomic.Int64
	totalRequests    atomic.Int64
	failedRequests   atomic.Int64
}

func newEntry(now time.Time) *entry {
	return &entry{healthy: true, since: now}
}

// EndpointRegistry tracks the health of the upstream targets. Unknown
// targets are considered healthy.
type EndpointRegistry struct {
	now  func() time.Time
	data sync.Map // map[string]*entry
}

var _ HealthReader = &EndpointRegistry{}

// NewEndpointRegistry creates a registry with an entry for each target.
func NewEndpointRegistry(targets ...string) *EndpointRegistry {
	r := &EndpointRegistry{now: time.Now}
	now := r.now()
	for _, t := range targets {
		r.data.Store(t, newEntry(now))
	}

	return r
}

func (r *EndpointRegistry) get(target string) *entry {
	// https://github.com/golang/go/issues/44159#issuecomment-780774977
	e, ok := r.data.Load(target)
	if !ok {
		e, _ = r.data.LoadOrStore(target, newEntry(r.now()))
	}

	return e.(*entry)
}

// Healthy returns the health flag of the target.
func (r *EndpointRegistry) Healthy(target string) bool {
	e, ok := r.data.Load(target)
	if !ok {
		return true
	}

	en := e.(*entry)
	en.mx.Lock()
	defer en.mx.Unlock()
	return en.healthy
}

// SetHealthy sets the health flag of the target and reports whether it
// changed.
func (r *EndpointRegistry) SetHealthy(target string, healthy bool) bool {
	e := r.get(target)
	e.mx.Lock()
	defer e.mx.Unlock()

	if e.healthy == healthy {
		return false
	}

	e.healthy = healthy
	e.since = r.now()
	return true
}

// Unhealthy returns the sorted list of targets currently marked as
// unhealthy.
func (r *EndpointRegistry) Unhealthy() []string {
	var targets []string
	r.data.Range(func(k, v any) bool {
		e := v.(*entry)
		e.mx.Lock()
		healthy := e.healthy
		e.mx.Unlock()
		if !healthy {
			targets = append(targets, k.(string))
		}

		return true
	})

	sort.Strings(targets)
	return targets
}

// IncInflightRequest increments the number of requests in flight to the
// target and counts the request in the totals.
func (r *EndpointRegistry) IncInflightRequest(target string) {
	e := r.get(target)
	e.inflightRequests.Add(1)
	e.totalRequests.Add(1)
}

// DecInflightRequest decrements the number of requests in flight to the
// target.
func (r *EndpointRegistry) DecInflightRequest(target string) {
	r.get(target).inflightRequests.Add(-1)
}

// IncFailedRequests counts a failed call to the target.
func (r *EndpointRegistry) IncFailedRequests(target string) {
	r.get(target).failedRequests.Add(1)
}

// State returns a copy of the registry entry of the target.
func (r *EndpointRegistry) State(target string) EndpointState {
	e := r.get(target)
	e.mx.Lock()
	s := EndpointState{Healthy: e.healthy, Since: e.since}
	e.mx.Unlock()

	s.InflightRequests = e.inflightRequests.Load()
	s.TotalRequests = e.totalRequests.Load()
	s.FailedRequests = e.failedRequests.Load()
	return s
}

// Snapshot returns the state of every known target.
func (r *EndpointRegistry) Snapshot() map[string]EndpointState {
	result := make(map[string]EndpointState)
	r.data.Range(func(k, _ any) bool {
		result[k.(string)] = r.State(k.(string))
		return true
	})

	return result
}
