package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	promNamespace          = "gateway"
	promServeSubsystem     = "serve"
	promBackendSubsystem   = "backend"
	promRouteSubsystem     = "route"
	promBreakerSubsystem   = "breaker"
	promHealthSubsystem    = "health"
	promRatelimitSubsystem = "ratelimit"
)

// Prometheus implements the prometheus metrics backend.
type Prometheus struct {
	serveRouteM        *prometheus.HistogramVec
	serveRouteCounterM *prometheus.CounterVec
	backendM           *prometheus.HistogramVec
	backendErrorsM     *prometheus.CounterVec
	routeErrorsM       prometheus.Counter
	breakerStateM      *prometheus.GaugeVec
	breakerTransitionM *prometheus.CounterVec
	healthProbeM       *prometheus.CounterVec
	ratelimitedM       *prometheus.CounterVec

	opts     Options
	registry *prometheus.Registry
	handler  http.Handler
}

var _ Metrics = &Prometheus{}

// NewPrometheus returns a new Prometheus metric backend.
func NewPrometheus(opts Options) *Prometheus {
	namespace := promNamespace
	if opts.Prefix != "" {
		namespace = strings.TrimSuffix(opts.Prefix, ".")
	}

	buckets := opts.HistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	serveRoute := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: promServeSubsystem,
		Name:      "route_duration_seconds",
		Help:      "Duration in seconds of serving a route.",
		Buckets:   buckets,
	}, []string{"code", "method", "route"})

	serveRouteCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promServeSubsystem,
		Name:      "route_count",
		Help:      "Total number of requests of serving a route.",
	}, []string{"code", "method", "route"})

	backend := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: promBackendSubsystem,
		Name:      "duration_seconds",
		Help:      "Duration in seconds of an upstream call until the response headers.",
		Buckets:   buckets,
	}, []string{"target"})

	backendErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promBackendSubsystem,
		Name:      "error_total",
		Help:      "Total number of failed upstream calls.",
	}, []string{"target"})

	routeErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promRouteSubsystem,
		Name:      "error_total",
		Help:      "The total of route lookup errors.",
	})

	breakerState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: promBreakerSubsystem,
		Name:      "state",
		Help:      "State of the circuit breaker of an upstream target: 0 closed, 1 half-open, 2 open.",
	}, []string{"target"})

	breakerTransition := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promBreakerSubsystem,
		Name:      "transition_total",
		Help:      "Total number of circuit breaker state transitions.",
	}, []string{"target", "from", "to"})

	healthProbe := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promHealthSubsystem,
		Name:      "probe_total",
		Help:      "Total number of health probes of unhealthy targets.",
	}, []string{"target", "result"})

	ratelimited := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promRatelimitSubsystem,
		Name:      "rejected_total",
		Help:      "Total number of rate limited requests.",
	}, []string{"route"})

	p := &Prometheus{
		serveRouteM:        serveRoute,
		serveRouteCounterM: serveRouteCounter,
		backendM:           backend,
		backendErrorsM:     backendErrors,
		routeErrorsM:       routeErrors,
		breakerStateM:      breakerState,
		breakerTransitionM: breakerTransition,
		healthProbeM:       healthProbe,
		ratelimitedM:       ratelimited,
		opts:               opts,
		registry:           prometheus.NewRegistry(),
	}

	// Register all metrics.
	p.registerMetrics()
	return p
}

// sinceS returns the seconds passed since the start time until now.
func (p *Prometheus) sinceS(start time.Time) float64 {
	return time.Since(start).Seconds()
}

func (p *Prometheus) registerMetrics() {
	p.registry.MustRegister(p.serveRouteM)
	p.registry.MustRegister(p.serveRouteCounterM)
	p.registry.MustRegister(p.backendM)
	p.registry.MustRegister(p.backendErrorsM)
	p.registry.MustRegister(p.routeErrorsM)
	p.registry.MustRegister(p.breakerStateM)
	p.registry.MustRegister(p.breakerTransitionM)
	p.registry.MustRegister(p.healthProbeM)
	p.registry.MustRegister(p.ratelimitedM)

	// Register prometheus runtime collectors if required.
	if p.opts.EnableRuntimeMetrics {
		p.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		p.registry.MustRegister(collectors.NewGoCollector())
	}
}

func (p *Prometheus) CreateHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) getHandler() http.Handler {
	if p.handler != nil {
		return p.handler
	}

	p.handler = p.CreateHandler()
	return p.handler
}

// RegisterHandler satisfies Metrics interface.
func (p *Prometheus) RegisterHandler(path string, mux *http.ServeMux) {
	promHandler := p.getHandler()
	mux.Handle(path, promHandler)
}

// MeasureServe satisfies Metrics interface.
func (p *Prometheus) MeasureServe(routeID, method string, code int, start time.Time) {
	method = measuredMethod(method)
	t := p.sinceS(start)
	p.serveRouteM.WithLabelValues(fmt.Sprint(code), method, routeID).Observe(t)
	p.serveRouteCounterM.WithLabelValues(fmt.Sprint(code), method, routeID).Inc()
}

// MeasureBackend satisfies Metrics interface.
func (p *Prometheus) MeasureBackend(target string, start time.Time) {
	p.backendM.WithLabelValues(target).Observe(p.sinceS(start))
}

// IncErrorsBackend satisfies Metrics interface.
func (p *Prometheus) IncErrorsBackend(target string) {
	p.backendErrorsM.WithLabelValues(target).Inc()
}

// IncRoutingFailures satisfies Metrics interface.
func (p *Prometheus) IncRoutingFailures() {
	p.routeErrorsM.Inc()
}

// SetBreakerState satisfies Metrics interface.
func (p *Prometheus) SetBreakerState(target string, state int) {
	p.breakerStateM.WithLabelValues(target).Set(float64(state))
}

// IncBreakerTransition satisfies Metrics interface.
func (p *Prometheus) IncBreakerTransition(target, from, to string) {
	p.breakerTransitionM.WithLabelValues(target, from, to).Inc()
}

// IncHealthProbe satisfies Metrics interface.
func (p *Prometheus) IncHealthProbe(target string, healthy bool) {
	result := "failure"
	if healthy {
		result = "success"
	}

	p.healthProbeM.WithLabelValues(target, result).Inc()
}

// IncRatelimited satisfies Metrics interface.
func (p *Prometheus) IncRatelimited(routeID string) {
	p.ratelimitedM.WithLabelValues(routeID).Inc()
}
