package circuit

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

type consecutiveBreaker struct {
	settings BreakerSettings
	gb       *gobreaker.TwoStepCircuitBreaker

	mx       sync.Mutex
	openedAt time.Time
}

func newConsecutive(s BreakerSettings, onChange StateChangeFunc) *consecutiveBreaker {
	b := &consecutiveBreaker{
		settings: s,
	}

	b.gb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        s.Host,
		MaxRequests: uint32(s.HalfOpenRequests),
		Timeout:     s.Timeout,
		ReadyToTrip: b.readyToTrip,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.mx.Lock()
			if to == gobreaker.StateOpen {
				b.openedAt = time.Now()
			} else if to == gobreaker.StateClosed {
				b.openedAt = time.Time{}
			}
			b.mx.Unlock()

			if onChange != nil {
				onChange(name, fromGobreaker(from), fromGobreaker(to))
			}
		},
	})

	return b
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

func (b *consecutiveBreaker) readyToTrip(c gobreaker.Counts) bool {
	return int(c.ConsecutiveFailures) >= b.settings.Failures
}

func (b *consecutiveBreaker) Allow() (func(bool), bool) {
	done, err := b.gb.Allow()

	// this error can only indicate that the breaker is not closed
	closed := err == nil

	if !closed {
		return nil, false
	}

	var once sync.Once
	return func(success bool) {
		once.Do(func() { done(success) })
	}, true
}

func (b *consecutiveBreaker) State() State {
	return fromGobreaker(b.gb.State())
}

// Counts is not tracked in a time window by this breaker type.
func (b *consecutiveBreaker) Counts() Counts { return Counts{} }

func (b *consecutiveBreaker) OpenedAt() time.Time {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.openedAt
}

// gobreaker moves to half-open on reading the state, once the timeout has
// elapsed
func (b *consecutiveBreaker) ready() bool { return b.State() == StateHalfOpen }

func (b *consecutiveBreaker) expire() bool { return false }
