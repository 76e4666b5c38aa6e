package circuit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrCircuitOpen is returned by the proxy when a breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerType defines the type of the used breaker: consecutive, rate or disabled.
type BreakerType int

func (b *BreakerType) UnmarshalYAML(unmarshal func(any) error) error {
	var value string
	if err := unmarshal(&value); err != nil {
		return err
	}

	t, err := ParseBreakerType(value)
	if err != nil {
		return err
	}

	*b = t
	return nil
}

const (
	BreakerNone BreakerType = iota
	ConsecutiveFailures
	FailureRate
	BreakerDisabled
)

// ParseBreakerType parses the command line representation of a breaker type.
func ParseBreakerType(value string) (BreakerType, error) {
	switch value {
	case "consecutive":
		return ConsecutiveFailures, nil
	case "rate":
		return FailureRate, nil
	case "disabled":
		return BreakerDisabled, nil
	default:
		return BreakerNone, fmt.Errorf("invalid breaker type %v (allowed values are: consecutive, rate or disabled)", value)
	}
}

// State of a breaker.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown state: %d", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateChangeFunc is called on every state transition of a breaker.
type StateChangeFunc func(host string, from, to State)

const (
	DefaultWindow           = 10 * time.Second
	DefaultVolumeThreshold  = 5
	DefaultFailureRate      = 50
	DefaultFailures         = 5
	DefaultTimeout          = 30 * time.Second
	DefaultHalfOpenRequests = 1
)

// BreakerSettings contains the settings for individual circuit breakers.
//
// See the package overview for the merging rules of the settings and for the meaning of the individual fields.
type BreakerSettings struct {
	Type             BreakerType   `yaml:"type"`
	Host             string        `yaml:"host"`
	Window           time.Duration `yaml:"window"`
	VolumeThreshold  int           `yaml:"volume-threshold"`
	FailureRate      int           `yaml:"failure-rate"`
	Failures         int           `yaml:"failures"`
	Timeout          time.Duration `yaml:"timeout"`
	HalfOpenRequests int           `yaml:"half-open-requests"`
}

// Counts contains the content of the rolling window of a breaker.
type Counts struct {
	Requests int `json:"requests"`
	Failures int `json:"failures"`
}

type breakerImplementation interface {
	Allow() (func(bool), bool)
	State() State
	Counts() Counts
	OpenedAt() time.Time
	ready() bool
	expire() bool
}

type voidBreaker struct{}

// Breaker represents the circuit breaker of a single upstream target.
//
// Use the Get() method of the Registry to request fully initialized breakers.
type Breaker struct {
	settings BreakerSettings
	impl     breakerImplementation
}

func (to BreakerSettings) mergeSettings(from BreakerSettings) BreakerSettings {
	if to.Type == BreakerNone {
		to.Type = from.Type
	}

	if to.Window == 0 {
		to.Window = from.Window
	}

	if to.VolumeThreshold == 0 {
		to.VolumeThreshold = from.VolumeThreshold
	}

	if to.FailureRate == 0 {
		to.FailureRate = from.FailureRate
	}

	if to.Failures == 0 {
		to.Failures = from.Failures
	}

	if to.Timeout == 0 {
		to.Timeout = from.Timeout
	}

	if to.HalfOpenRequests == 0 {
		to.HalfOpenRequests = from.HalfOpenRequests
	}

	return to
}

// withDefaults fills the missing values with the package defaults.
func (s BreakerSettings) withDefaults() BreakerSettings {
	return s.mergeSettings(BreakerSettings{
		Type:             FailureRate,
		Window:           DefaultWindow,
		VolumeThreshold:  DefaultVolumeThreshold,
		FailureRate:      DefaultFailureRate,
		Failures:         DefaultFailures,
		Timeout:          DefaultTimeout,
		HalfOpenRequests: DefaultHalfOpenRequests,
	})
}

// Validate checks the value ranges of the settings.
func (s BreakerSettings) Validate() error {
	switch {
	case s.Window < 0:
		return fmt.Errorf("invalid breaker window: %v", s.Window)
	case s.VolumeThreshold < 0:
		return fmt.Errorf("invalid breaker volume threshold: %d", s.VolumeThreshold)
	case s.FailureRate < 0 || s.FailureRate > 100:
		return fmt.Errorf("invalid breaker failure rate: %d, must be between 1 and 100", s.FailureRate)
	case s.Failures < 0:
		return fmt.Errorf("invalid breaker failures: %d", s.Failures)
	case s.Timeout < 0:
		return fmt.Errorf("invalid breaker timeout: %v", s.Timeout)
	case s.HalfOpenRequests < 0:
		return fmt.Errorf("invalid breaker half-open requests: %d", s.HalfOpenRequests)
	}

	return nil
}

// String returns the string representation of a particular set of settings.
//
//lint:ignore ST1016 "s" makes sense here and mergeSettings has "to"
func (s BreakerSettings) String() string {
	var ss []string

	switch s.Type {
	case ConsecutiveFailures:
		ss = append(ss, "type=consecutive")
	case FailureRate:
		ss = append(ss, "type=rate")
	case BreakerDisabled:
		return "disabled"
	default:
		return "none"
	}

	if s.Host != "" {
		ss = append(ss, "host="+s.Host)
	}

	if s.Type == FailureRate {
		if s.Window > 0 {
			ss = append(ss, "window="+s.Window.String())
		}

		if s.VolumeThreshold > 0 {
			ss = append(ss, "volume-threshold="+strconv.Itoa(s.VolumeThreshold))
		}

		if s.FailureRate > 0 {
			ss = append(ss, "failure-rate="+strconv.Itoa(s.FailureRate))
		}
	}

	if s.Type == ConsecutiveFailures && s.Failures > 0 {
		ss = append(ss, "failures="+strconv.Itoa(s.Failures))
	}

	if s.Timeout > 0 {
		ss = append(ss, "timeout="+s.Timeout.String())
	}

	if s.HalfOpenRequests > 0 {
		ss = append(ss, "half-open-requests="+strconv.Itoa(s.HalfOpenRequests))
	}

	return strings.Join(ss, ",")
}

func (voidBreaker) Allow() (func(bool), bool) { return func(bool) {}, true }
func (voidBreaker) State() State              { return StateClosed }
func (voidBreaker) Counts() Counts            { return Counts{} }
func (voidBreaker) OpenedAt() time.Time       { return time.Time{} }
func (voidBreaker) ready() bool               { return false }
func (voidBreaker) expire() bool              { return false }

func newBreaker(s BreakerSettings, onChange StateChangeFunc) *Breaker {
	var impl breakerImplementation
	switch s.Type {
	case ConsecutiveFailures:
		impl = newConsecutive(s, onChange)
	case FailureRate:
		impl = newRate(s, onChange, time.Now)
	default:
		impl = voidBreaker{}
	}

	return &Breaker{
		settings: s,
		impl:     impl,
	}
}

// Allow returns true if the call may proceed, and a callback function for reporting the outcome of the call. The
// callback expects true values if the outcome of the call was successful. Calling the callback more than once
// has no effect. Allow doesn't return a callback function when the call was rejected.
func (b *Breaker) Allow() (func(bool), bool) {
	return b.impl.Allow()
}

// State returns the current state of the breaker. An open breaker whose timeout has elapsed stays open until
// the next call.
func (b *Breaker) State() State {
	return b.impl.State()
}

// Counts returns the number of calls and failures in the current window.
func (b *Breaker) Counts() Counts {
	return b.impl.Counts()
}

// OpenedAt returns the time when the breaker opened the last time, or the zero time when it is not open.
func (b *Breaker) OpenedAt() time.Time {
	return b.impl.OpenedAt()
}

// Settings returns the effective settings of the breaker.
func (b *Breaker) Settings() BreakerSettings {
	return b.settings
}

// Ready tells whether the breaker, while not closed, would admit the next call as a trial. Targets with a ready
// breaker are selected by the load balancer even when marked unhealthy, this is how they get their trial call.
func (b *Breaker) Ready() bool {
	return b.impl.ready()
}

// Expire treats the timeout of an open breaker as elapsed, so that the next call becomes a half-open trial. It
// returns false when the breaker was not open or doesn't support it.
func (b *Breaker) Expire() bool {
	return b.impl.expire()
}
