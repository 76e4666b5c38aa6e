package circuit

import (
	"fmt"
	"sort"
	"time"
)

// Options to create a Registry.
type Options struct {
	// Defaults apply to every target without host specific settings.
	Defaults BreakerSettings

	// HostSettings override the defaults for the targets set in their Host
	// field. Settings with the same host are merged, the first one wins.
	HostSettings []BreakerSettings

	// OnStateChange hooks are called on every transition of any breaker in
	// the registry, in the order they are set.
	OnStateChange []StateChangeFunc

	// Now is used by the rate breakers. Defaults to time.Now.
	Now func() time.Time
}

// Registry holds one circuit breaker per upstream target. The breakers are
// created once, when the registry is created, and are never replaced.
type Registry struct {
	breakers map[string]*Breaker
	targets  []string
}

// BreakerState is the point in time view of a breaker.
type BreakerState struct {
	State    State     `json:"state"`
	OpenedAt time.Time `json:"openedAt,omitzero"`
	Counts   Counts    `json:"counts"`
}

// NewRegistry creates a breaker for every target. Settings with an empty
// Host field among the host settings are merged into the defaults.
func NewRegistry(o Options, targets ...string) (*Registry, error) {
	defaults := o.Defaults
	var hostSettings []BreakerSettings
	for _, s := range o.HostSettings {
		if s.Host == "" {
			defaults = defaults.mergeSettings(s)
			continue
		}

		hostSettings = append(hostSettings, s)
	}

	defaults = defaults.withDefaults()
	if err := defaults.Validate(); err != nil {
		return nil, err
	}

	hs := make(map[string]BreakerSettings)
	for _, s := range hostSettings {
		if sh, ok := hs[s.Host]; ok {
			hs[s.Host] = sh.mergeSettings(s)
		} else {
			hs[s.Host] = s
		}
	}

	for h, s := range hs {
		s = s.mergeSettings(defaults)
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("breaker settings for %s: %w", h, err)
		}

		hs[h] = s
	}

	now := o.Now
	if now == nil {
		now = time.Now
	}

	onChange := func(host string, from, to State) {
		for _, f := range o.OnStateChange {
			f(host, from, to)
		}
	}

	r := &Registry{breakers: make(map[string]*Breaker)}
	for _, t := range targets {
		if _, ok := r.breakers[t]; ok {
			continue
		}

		s, ok := hs[t]
		if !ok {
			s = defaults
		}

		s.Host = t
		b := newBreaker(s, onChange)
		if rb, ok := b.impl.(*rateBreaker); ok {
			rb.now = now
		}

		r.breakers[t] = b
		r.targets = append(r.targets, t)
	}

	return r, nil
}

// Get returns the breaker of a target, or nil if the target was not known
// when the registry was created.
func (r *Registry) Get(target string) *Breaker {
	return r.breakers[target]
}

// Targets returns the targets of the registry, in the order of creation.
func (r *Registry) Targets() []string {
	return append([]string(nil), r.targets...)
}

// Snapshot returns the current state of every breaker, by target.
func (r *Registry) Snapshot() map[string]BreakerState {
	s := make(map[string]BreakerState, len(r.breakers))
	for t, b := range r.breakers {
		s[t] = BreakerState{
			State:    b.State(),
			OpenedAt: b.OpenedAt(),
			Counts:   b.Counts(),
		}
	}

	return s
}

// Open returns the sorted list of the targets whose breaker is not closed.
func (r *Registry) Open() []string {
	var open []string
	for t, b := range r.breakers {
		if b.State() != StateClosed {
			open = append(open, t)
		}
	}

	sort.Strings(open)
	return open
}
