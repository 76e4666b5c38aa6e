package proxy

import (
	"github.com/fundflow/gateway/circuit"
	"github.com/fundflow/gateway/routing"
)

// HealthUpdater returns the breaker hook that keeps the health of the
// targets in sync with their breakers: a target is unhealthy from the
// opening of its breaker until it closes again.
func HealthUpdater(health *routing.EndpointRegistry) circuit.StateChangeFunc {
	return func(target string, _, to circuit.State) {
		switch to {
		case circuit.StateOpen:
			health.SetHealthy(target, false)
		case circuit.StateClosed:
			health.SetHealthy(target, true)
		}
	}
}

// selectable is the health view of the load balancer: the targets marked
// healthy, and the unhealthy ones whose breaker is ready for a trial call.
type selectable struct {
	health   *routing.EndpointRegistry
	breakers *circuit.Registry
}

var _ routing.HealthReader = selectable{}

func (s selectable) Healthy(target string) bool {
	if s.health.Healthy(target) {
		return true
	}

	b := s.breakers.Get(target)
	return b != nil && b.Ready()
}

// excluding hides a single target from the wrapped health view.
type excluding struct {
	routing.HealthReader
	target string
}

func (e excluding) Healthy(target string) bool {
	return target != e.target && e.HealthReader.Healthy(target)
}
