package loadbalancer

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/fundflow/gateway/routing"
)

// ErrNoHealthyTarget is returned when every target of a route is marked
// unhealthy.
var ErrNoHealthyTarget = errors.New("no healthy target")

// RoundRobin selects the targets of a route round robin, among the targets
// currently marked healthy.
//
// The counters are keyed by the sorted set of the healthy targets of a pool,
// so when the healthy set changes, the selection starts again from the first
// target of the new set. The counters are never evicted.
type RoundRobin struct {
	mx       sync.Mutex
	counters map[string]uint64
}

// NewRoundRobin creates a round robin balancer without counters.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{counters: make(map[string]uint64)}
}

func healthyTargets(targets []string, health routing.HealthReader) []string {
	healthy := make([]string, 0, len(targets))
	for _, t := range targets {
		if health.Healthy(t) {
			healthy = append(healthy, t)
		}
	}

	return healthy
}

func poolKey(healthy []string) string {
	sorted := append([]string(nil), healthy...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// Select returns the next healthy target of the route, or
// ErrNoHealthyTarget.
func (r *RoundRobin) Select(route *routing.Route, health routing.HealthReader) (string, error) {
	healthy := healthyTargets(route.Targets, health)
	if len(healthy) == 0 {
		return "", ErrNoHealthyTarget
	}

	if len(healthy) == 1 {
		return healthy[0], nil
	}

	key := poolKey(healthy)

	r.mx.Lock()
	defer r.mx.Unlock()
	c := r.counters[key]
	r.counters[key] = c + 1
	return healthy[c%uint64(len(healthy))], nil
}

// Len returns the number of counters, one for each healthy set seen.
func (r *RoundRobin) Len() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.counters)
}
