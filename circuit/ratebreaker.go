package circuit

import (
	"sync"
	"time"
)

type rateBreaker struct {
	settings BreakerSettings
	now      func() time.Time
	onChange StateChangeFunc

	mx               sync.Mutex
	state            State
	window           *window
	openedAt         time.Time
	expired          bool
	halfOpenInFlight int

	// incremented on every transition, outcomes of calls admitted in an
	// earlier state are dropped
	generation uint64
}

func newRate(s BreakerSettings, onChange StateChangeFunc, now func() time.Time) *rateBreaker {
	return &rateBreaker{
		settings: s,
		now:      now,
		onChange: onChange,
		window:   newWindow(s.Window),
	}
}

// must be called with the lock held
func (b *rateBreaker) setState(to State, now time.Time) {
	from := b.state
	b.state = to
	b.generation++
	b.halfOpenInFlight = 0
	b.expired = false

	switch to {
	case StateOpen:
		b.openedAt = now
	case StateClosed:
		b.openedAt = time.Time{}
		b.window.reset()
	}

	if b.onChange != nil {
		b.onChange(b.settings.Host, from, to)
	}
}

func (b *rateBreaker) readyToTrip(now time.Time) bool {
	c := b.window.counts(now)
	return c.Requests >= b.settings.VolumeThreshold &&
		c.Failures*100 >= b.settings.FailureRate*c.Requests
}

func (b *rateBreaker) Allow() (func(bool), bool) {
	b.mx.Lock()
	defer b.mx.Unlock()

	now := b.now()
	if b.state == StateOpen {
		if !b.expired && now.Sub(b.openedAt) < b.settings.Timeout {
			return nil, false
		}

		b.setState(StateHalfOpen, now)
	}

	if b.state == StateHalfOpen {
		if b.halfOpenInFlight >= b.settings.HalfOpenRequests {
			return nil, false
		}

		b.halfOpenInFlight++
	}

	generation := b.generation
	var reported bool
	return func(success bool) {
		b.mx.Lock()
		defer b.mx.Unlock()

		if reported {
			return
		}

		reported = true
		b.report(generation, success)
	}, true
}

// must be called with the lock held
func (b *rateBreaker) report(generation uint64, success bool) {
	if generation != b.generation {
		return
	}

	now := b.now()
	switch b.state {
	case StateClosed:
		b.window.add(now, success)
		if b.readyToTrip(now) {
			b.setState(StateOpen, now)
		}
	case StateHalfOpen:
		b.halfOpenInFlight--
		b.window.add(now, success)
		if success {
			b.setState(StateClosed, now)
		} else {
			b.setState(StateOpen, now)
		}
	}
}

func (b *rateBreaker) State() State {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.state
}

func (b *rateBreaker) Counts() Counts {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.window.counts(b.now())
}

func (b *rateBreaker) OpenedAt() time.Time {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.openedAt
}

func (b *rateBreaker) ready() bool {
	b.mx.Lock()
	defer b.mx.Unlock()

	switch b.state {
	case StateOpen:
		return b.expired || b.now().Sub(b.openedAt) >= b.settings.Timeout
	case StateHalfOpen:
		return b.halfOpenInFlight < b.settings.HalfOpenRequests
	default:
		return false
	}
}

func (b *rateBreaker) expire() bool {
	b.mx.Lock()
	defer b.mx.Unlock()

	if b.state != StateOpen {
		return false
	}

	b.expired = true
	return true
}
