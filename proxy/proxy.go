package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/fundflow/gateway/auth"
	"github.com/fundflow/gateway/circuit"
	"github.com/fundflow/gateway/flowid"
	"github.com/fundflow/gateway/loadbalancer"
	"github.com/fundflow/gateway/logging"
	"github.com/fundflow/gateway/metrics"
	"github.com/fundflow/gateway/ratelimit"
	"github.com/fundflow/gateway/routing"
)

const unknownRouteID = "_unknownroute_"

var errMissingAuthGate = errors.New("route requires authentication, no gateway configured")

// Params are the collaborators of the proxy. Routes and Breakers are
// required, a breaker has to exist for every target of the routes.
type Params struct {
	Routes   *routing.Table
	Breakers *circuit.Registry

	// Health is read by the load balancer. Defaults to a registry of
	// the route targets, all healthy.
	Health *routing.EndpointRegistry

	// Balancer defaults to a new round robin balancer.
	Balancer *loadbalancer.RoundRobin

	// Executor defaults to an executor with the default options.
	Executor *Executor

	// Auth authenticates the requests of the routes requiring it.
	Auth auth.Gate

	// Limiter, when set, rate limits the clients.
	Limiter *ratelimit.Registry

	// RequestID defaults to the UUID generator.
	RequestID flowid.Generator

	Metrics metrics.Metrics
	Log     logging.Logger

	TracerProvider trace.TracerProvider
	Propagator     propagation.TextMapPropagator

	// AccessLogDisabled prevents calling logging.LogAccess.
	AccessLogDisabled bool

	// Now defaults to time.Now.
	Now func() time.Time
}

// Proxy instances implement the gateway proxying functionality. For
// initializing, see WithParams and Params.
type Proxy struct {
	routes            *routing.Table
	breakers          *circuit.Registry
	health            *routing.EndpointRegistry
	selectable        selectable
	balancer          *loadbalancer.RoundRobin
	executor          *Executor
	auth              auth.Gate
	limiter           *ratelimit.Registry
	requestID         flowid.Generator
	metrics           metrics.Metrics
	log               logging.Logger
	tracing           *proxyTracing
	accessLogDisabled bool
	now               func() time.Time
}

// request scoped values used in the logs and metrics
type serveState struct {
	start     time.Time
	routeID   string
	target    string
	requestID string
}

func WithParams(p Params) *Proxy {
	if p.Health == nil {
		p.Health = routing.NewEndpointRegistry(p.Routes.Targets()...)
	}

	if p.Balancer == nil {
		p.Balancer = loadbalancer.NewRoundRobin()
	}

	if p.RequestID == nil {
		p.RequestID = flowid.NewUUIDGenerator()
	}

	if p.Metrics == nil {
		p.Metrics = metrics.Void{}
	}

	if p.Log == nil {
		p.Log = &logging.DefaultLog{}
	}

	if p.Now == nil {
		p.Now = time.Now
	}

	if p.Executor == nil {
		p.Executor = NewExecutor(ExecutorOptions{
			RequestID:      p.RequestID,
			TracerProvider: p.TracerProvider,
			Propagator:     p.Propagator,
			Log:            p.Log,
			Now:            p.Now,
		})
	}

	return &Proxy{
		routes:            p.Routes,
		breakers:          p.Breakers,
		health:            p.Health,
		selectable:        selectable{health: p.Health, breakers: p.Breakers},
		balancer:          p.Balancer,
		executor:          p.Executor,
		auth:              p.Auth,
		limiter:           p.Limiter,
		requestID:         p.RequestID,
		metrics:           p.Metrics,
		log:               p.Log,
		tracing:           newProxyTracing(p.TracerProvider, p.Propagator),
		accessLogDisabled: p.AccessLogDisabled,
		now:               p.Now,
	}
}

// withCleanPath returns a shallow copy of the request with the dot segments
// of the path resolved, so that routing and forwarding see the same path.
func withCleanPath(r *http.Request) *http.Request {
	cp := routing.CleanPath(r.URL.Path)
	if cp == r.URL.Path {
		return r
	}

	u := *r.URL
	u.Path = cp
	u.RawPath = ""

	r = r.WithContext(r.Context())
	r.URL = &u
	return r
}

func (p *Proxy) do(w http.ResponseWriter, r *http.Request, st *serveState) error {
	r = withCleanPath(r)
	route, err := p.routes.Resolve(r.URL.Path)
	if err != nil {
		p.metrics.IncRoutingFailures()
		p.log.Debugf("could not find a route for %v", r.URL)
		return newProxyError(routing.ErrRouteNotFound, nil)
	}

	st.routeID = route.Id
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String(RouteIDTag, route.Id))

	if route.AuthRequired {
		if p.auth == nil {
			return newProxyError(ErrGatewayInternal, errMissingAuthGate)
		}

		principal, err := p.auth.Authenticate(r)
		if err != nil {
			p.log.Debugf("Rejected request %s on route %s: %v", st.requestID, route.Id, err)
			return newUnauthorizedError(err)
		}

		r = r.WithContext(auth.WithPrincipal(r.Context(), principal))
	}

	if ok, retryAfter := p.limiter.Check(r); !ok {
		p.metrics.IncRatelimited(route.Id)
		return newRatelimitError(retryAfter)
	}

	target, done, err := p.admit(route, span)
	st.target = target
	if err != nil {
		return err
	}

	p.health.IncInflightRequest(target)
	defer p.health.DecInflightRequest(target)

	ctx := withStart(r.Context(), st.start)
	if route.Timeout > 0 {
		ctx = WithTimeout(ctx, route.Timeout)
	}

	backendStart := p.now()
	err = p.executor.Forward(ctx, w, r, target, route.Rewrite)

	failed := breakerFailure(err)
	done(!failed)
	if failed {
		p.health.IncFailedRequests(target)
		p.metrics.IncErrorsBackend(target)
	} else if err == nil {
		p.metrics.MeasureBackend(target, backendStart)
	}

	return err
}

// admit selects a target of the route and takes a call from its breaker.
// A target selected only for a trial call may lose the trial to a
// concurrent request, then the selection is repeated once without it.
func (p *Proxy) admit(route *routing.Route, span trace.Span) (string, func(bool), error) {
	var health routing.HealthReader = p.selectable
	for retried := false; ; retried = true {
		target, err := p.balancer.Select(route, health)
		if err != nil {
			p.log.Debugf("No healthy target for route %s", route.Id)
			return "", nil, newProxyError(loadbalancer.ErrNoHealthyTarget, nil)
		}

		span.SetAttributes(attribute.String(TargetTag, target))

		breaker := p.breakers.Get(target)
		if breaker == nil {
			return target, nil, newProxyError(ErrGatewayInternal, fmt.Errorf("no circuit breaker for target %s", target))
		}

		if done, ok := breaker.Allow(); ok {
			return target, done, nil
		}

		if retried || p.health.Healthy(target) {
			span.SetAttributes(attribute.String(BreakerStateTag, breaker.State().String()))
			return target, nil, newProxyError(circuit.ErrCircuitOpen, nil)
		}

		health = excluding{HealthReader: health, target: target}
	}
}

func (p *Proxy) errorResponse(w *logging.LoggingWriter, st *serveState, err error) int {
	code, _ := ErrorStatus(err)
	if code == StatusClientClosedRequest {
		p.log.Infof("Client request %s: %v", st.requestID, err)
		return code
	}

	if w.HeaderWritten() {
		p.log.Errorf("error after the response was sent, route %s, target %s: %v", st.routeID, st.target, err)
		return w.GetCode()
	}

	if code >= http.StatusInternalServerError {
		p.log.Errorf("error while proxying, route %s, target %s, status code %d: %v", st.routeID, st.target, code, err)
	}

	setGatewayHeaders(w.Header(), st.start, p.now())
	sendError(w, err)
	return code
}

// http.Handler implementation
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := &serveState{start: p.now(), routeID: unknownRouteID}
	lw := logging.NewLoggingWriter(w)

	r, span := p.tracing.startServerSpan(r)
	defer span.End()

	id, err := flowid.Ensure(p.requestID, r)
	if err != nil {
		p.log.Errorf("Failed to generate request id: %v", err)
	}

	st.requestID = id
	span.SetAttributes(attribute.String(RequestIDTag, id))

	var code int
	if err := p.do(lw, r, st); err != nil {
		setSpanError(span, err)
		code = p.errorResponse(lw, st, err)
	} else {
		code = lw.GetCode()
	}

	if code == StatusClientClosedRequest {
		span.SetAttributes(attribute.String(ClientRequestStateTag, ClientRequestCanceled))
	}

	setSpanStatus(span, code)
	p.metrics.MeasureServe(st.routeID, r.Method, code, st.start)

	if !p.accessLogDisabled {
		logging.LogAccess(&logging.AccessEntry{
			Request:      r,
			StatusCode:   code,
			ResponseSize: lw.GetBytes(),
			Duration:     p.now().Sub(st.start),
			RequestTime:  st.start,
			RequestID:    st.requestID,
			Target:       st.target,
		})
	}
}
