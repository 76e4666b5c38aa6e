package metrics

import (
	"net/http"
	"time"
)

const (
	KeyServe             = "serve.%s.%s.%d"
	KeyBackend           = "backend.%s"
	KeyErrorsBackend     = "errors.backend.%s"
	KeyRoutingFailures   = "routing.failures"
	KeyBreakerState      = "breaker.state.%s"
	KeyBreakerTransition = "breaker.transition.%s.%s.%s"
	KeyHealthProbe       = "health.probe.%s.%t"
	KeyRatelimited       = "ratelimited.%s"
)

// Metrics is the interface used by the gateway components to report their
// measurements.
type Metrics interface {
	MeasureServe(routeID, method string, code int, start time.Time)
	MeasureBackend(target string, start time.Time)
	IncErrorsBackend(target string)
	IncRoutingFailures()
	SetBreakerState(target string, state int)
	IncBreakerTransition(target, from, to string)
	IncHealthProbe(target string, healthy bool)
	IncRatelimited(routeID string)
	RegisterHandler(path string, mux *http.ServeMux)
}

// Options for initializing metrics collection.
type Options struct {
	// Prefix is used as the Prometheus namespace. Defaults to "gateway".
	Prefix string

	// If set, Go runtime and process collectors are registered in
	// addition to the gateway metrics.
	EnableRuntimeMetrics bool

	// HistogramBuckets of the duration histograms. Defaults to the
	// Prometheus default buckets.
	HistogramBuckets []float64
}

// Void discards every measurement.
type Void struct{}

var _ Metrics = Void{}

func (Void) MeasureServe(string, string, int, time.Time) {}
func (Void) MeasureBackend(string, time.Time)            {}
func (Void) IncErrorsBackend(string)                     {}
func (Void) IncRoutingFailures()                         {}
func (Void) SetBreakerState(string, int)                 {}
func (Void) IncBreakerTransition(string, string, string) {}
func (Void) IncHealthProbe(string, bool)                 {}
func (Void) IncRatelimited(string)                       {}
func (Void) RegisterHandler(string, *http.ServeMux)      {}
