package config

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/fundflow/gateway/circuit"
)

const breakerUsage = `set custom or default circuit breaker settings, e.g. -breaker type=rate,window=10s,volume-threshold=5,failure-rate=50,timeout=30s
	possible keys:
		type: consecutive, rate or disabled, defaults to rate
		host: the target host the settings apply to, when not set, the settings are the defaults of every target
		window: length of the rolling window of the rate breaker, e.g. 10s
		volume-threshold: minimum number of requests in the window before the rate breaker can trip
		failure-rate: failure percentage in the window that trips the rate breaker, 1-100
		failures: number of consecutive failures that trip the consecutive breaker
		timeout: time spent in the open state before a trial call is allowed
		half-open-requests: number of trial calls allowed in the half-open state
	this flag can be used multiple times`

type breakerFlags []circuit.BreakerSettings

var errInvalidBreakerConfig = errors.New("invalid breaker config (allowed values are: consecutive, rate or disabled)")

func (b breakerFlags) String() string {
	s := make([]string, len(b))
	for i, bi := range b {
		s[i] = bi.String()
	}

	return strings.Join(s, "\n")
}

func (b *breakerFlags) Set(value string) error {
	var s circuit.BreakerSettings

	vs := strings.Split(value, ",")
	for _, vi := range vs {
		k, v, found := strings.Cut(vi, "=")
		if !found {
			return errInvalidBreakerConfig
		}

		var err error
		switch k {
		case "type":
			s.Type, err = circuit.ParseBreakerType(v)
			if err != nil {
				return errInvalidBreakerConfig
			}
		case "host":
			s.Host = v
		case "window":
			s.Window, err = time.ParseDuration(v)
		case "volume-threshold":
			s.VolumeThreshold, err = strconv.Atoi(v)
		case "failure-rate":
			s.FailureRate, err = strconv.Atoi(v)
		case "failures":
			s.Failures, err = strconv.Atoi(v)
		case "timeout":
			s.Timeout, err = time.ParseDuration(v)
		case "half-open-requests":
			s.HalfOpenRequests, err = strconv.Atoi(v)
		default:
			return errInvalidBreakerConfig
		}

		if err != nil {
			return err
		}
	}

	if err := s.Validate(); err != nil {
		return err
	}

	*b = append(*b, s)
	return nil
}

// UnmarshalYAML accepts a single breaker or a list of breakers.
func (b *breakerFlags) UnmarshalYAML(unmarshal func(any) error) error {
	var list []circuit.BreakerSettings
	if err := unmarshal(&list); err != nil {
		var s circuit.BreakerSettings
		if err := unmarshal(&s); err != nil {
			return err
		}

		list = []circuit.BreakerSettings{s}
	}

	for _, s := range list {
		if err := s.Validate(); err != nil {
			return err
		}
	}

	*b = append(*b, list...)
	return nil
}
