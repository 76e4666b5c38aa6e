package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/fundflow/gateway/auth"
	"github.com/fundflow/gateway/circuit"
	"github.com/fundflow/gateway/flowid"
	"github.com/fundflow/gateway/loadbalancer"
	"github.com/fundflow/gateway/logging"
	"github.com/fundflow/gateway/metrics"
	snet "github.com/fundflow/gateway/net"
	"github.com/fundflow/gateway/otel"
	"github.com/fundflow/gateway/proxy"
	"github.com/fundflow/gateway/proxylistener"
	"github.com/fundflow/gateway/ratelimit"
	"github.com/fundflow/gateway/routing"
)

const (
	DefaultAddress         = ":9090"
	DefaultSupportListener = ":9911"
	DefaultDrainTimeout    = 10 * time.Second

	defaultReadHeaderTimeoutServer = 60 * time.Second
)

var errNoRoutes = errors.New("no routes configured")

// Options to start the gateway.
type Options struct {
	// Network address that the gateway should listen on.
	Address string

	// Network address of the support endpoints: /metrics, /healthz and
	// /targets. When empty, no support listener is started.
	SupportListener string

	// EnableProxyProtocol accepts PROXY protocol headers on the
	// connections of the main listener.
	EnableProxyProtocol bool

	// ProxyProtocolTrustedCIDRs are the networks whose PROXY headers are
	// used. When empty, every peer is trusted.
	ProxyProtocolTrustedCIDRs []string

	// ProxyProtocolRequireHeader rejects the connections of the trusted
	// peers without a PROXY header.
	ProxyProtocolRequireHeader bool

	// ProxyProtocolSkipCIDRs are accepted without reading the PROXY header.
	ProxyProtocolSkipCIDRs []string

	// ProxyProtocolDenyCIDRs are rejected.
	ProxyProtocolDenyCIDRs []string

	// MaxConnections limits the number of concurrently accepted
	// connections on the main listener. Zero means no limit.
	MaxConnections int

	// Server timeouts, see net/http.Server.
	ReadTimeoutServer       time.Duration
	ReadHeaderTimeoutServer time.Duration
	WriteTimeoutServer      time.Duration
	IdleTimeoutServer       time.Duration

	// MaxHeaderBytes of the incoming requests, see net/http.Server.
	MaxHeaderBytes int

	// DrainTimeout is the time given to the in-flight requests to finish
	// on shutdown. Defaults to DefaultDrainTimeout.
	DrainTimeout time.Duration

	// Routes of the gateway.
	Routes []*routing.Route

	// DefaultRouteTimeout applies to the routes without a timeout.
	DefaultRouteTimeout time.Duration

	// Backend connection settings.
	TimeoutBackend             time.Duration
	KeepAliveBackend           time.Duration
	IdleConnTimeoutBackend     time.Duration
	MaxIdleConnsBackend        int
	MaxIdleConnsPerHostBackend int
	MaxConnsPerHostBackend     int
	DisableHTTPKeepalives      bool

	// BreakerSettings with an empty host are the defaults of every
	// target, the others apply to the targets of their host.
	BreakerSettings []circuit.BreakerSettings

	// Health monitor settings, see loadbalancer.MonitorOptions.
	DisableHealthMonitor   bool
	HealthCheckInterval    time.Duration
	HealthCheckTimeout     time.Duration
	HealthCheckPath        string
	HealthCheckStatusField string
	HealthCheckPrewarm     bool

	// EnableRatelimiters limits the request rate per client IP.
	EnableRatelimiters bool
	Ratelimit          ratelimit.Settings

	// JWTSecret validates the bearer tokens of the routes requiring
	// authentication.
	JWTSecret []byte
	JWTIssuer string

	// RequestIDGenerator is one of uuid, ulid or standard. Defaults to
	// uuid.
	RequestIDGenerator string

	// Prometheus metrics settings.
	MetricsPrefix        string
	EnableRuntimeMetrics bool
	HistogramBuckets     []float64

	// Output for the application log entries: stderr, stdout or a file
	// path. Defaults to stderr.
	ApplicationLogOutput      string
	ApplicationLogPrefix      string
	ApplicationLogLevel       log.Level
	ApplicationLogJSONEnabled bool

	// Output for the access log entries: stderr, stdout or a file path.
	// Defaults to stderr.
	AccessLogOutput      string
	AccessLogDisabled    bool
	AccessLogJSONEnabled bool

	// OpenTelemetry settings. When nil, the tracing pipeline is not
	// initialized by Run.
	OpenTelemetry *otel.Options
}

// Gateway holds the initialized components of the gateway.
type Gateway struct {
	options  Options
	routes   *routing.Table
	health   *routing.EndpointRegistry
	breakers *circuit.Registry
	monitor  *loadbalancer.Monitor
	limiter  *ratelimit.Registry
	metrics  *metrics.Prometheus
	proxy    *proxy.Proxy
	support  *http.ServeMux
	log      *log.Entry
}

func breakerLogger(l *log.Entry) circuit.StateChangeFunc {
	return func(target string, from, to circuit.State) {
		if to == circuit.StateOpen {
			l.Warnf("Circuit breaker of %s: %s -> %s", target, from, to)
			return
		}

		l.Infof("Circuit breaker of %s: %s -> %s", target, from, to)
	}
}

func breakerMetrics(m metrics.Metrics) circuit.StateChangeFunc {
	return func(target string, from, to circuit.State) {
		m.SetBreakerState(target, int(to))
		m.IncBreakerTransition(target, from.String(), to.String())
	}
}

func splitBreakerSettings(settings []circuit.BreakerSettings) (defaults circuit.BreakerSettings, hosts []circuit.BreakerSettings) {
	for _, s := range settings {
		if s.Host == "" {
			defaults = s
			continue
		}

		hosts = append(hosts, s)
	}

	return
}

func requiresAuth(routes []*routing.Route) bool {
	for _, r := range routes {
		if r.AuthRequired {
			return true
		}
	}

	return false
}

// New validates the options and creates the components of the gateway.
// Invalid routes, targets or breaker settings fail the startup.
func New(o Options) (*Gateway, error) {
	if len(o.Routes) == 0 {
		return nil, errNoRoutes
	}

	if o.DrainTimeout <= 0 {
		o.DrainTimeout = DefaultDrainTimeout
	}

	if o.ReadHeaderTimeoutServer <= 0 {
		o.ReadHeaderTimeoutServer = defaultReadHeaderTimeoutServer
	}

	for _, s := range o.BreakerSettings {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}

	routes, err := routing.NewTable(o.Routes...)
	if err != nil {
		return nil, err
	}

	requestID, err := flowid.New(o.RequestIDGenerator)
	if err != nil {
		return nil, err
	}

	var gate auth.Gate
	if len(o.JWTSecret) > 0 {
		gate, err = auth.NewJWTGate(auth.JWTOptions{Secret: o.JWTSecret, Issuer: o.JWTIssuer})
		if err != nil {
			return nil, err
		}
	} else if requiresAuth(routes.Routes()) {
		return nil, fmt.Errorf("routes require authentication, no JWT secret configured")
	}

	g := &Gateway{
		options: o,
		routes:  routes,
		log:     log.WithField("package", "gateway"),
	}

	g.metrics = metrics.NewPrometheus(metrics.Options{
		Prefix:               o.MetricsPrefix,
		EnableRuntimeMetrics: o.EnableRuntimeMetrics,
		HistogramBuckets:     o.HistogramBuckets,
	})

	targets := routes.Targets()
	g.health = routing.NewEndpointRegistry(targets...)

	defaults, hosts := splitBreakerSettings(o.BreakerSettings)
	g.breakers, err = circuit.NewRegistry(circuit.Options{
		Defaults:     defaults,
		HostSettings: hosts,
		OnStateChange: []circuit.StateChangeFunc{
			proxy.HealthUpdater(g.health),
			breakerMetrics(g.metrics),
			breakerLogger(g.log),
		},
	}, targets...)
	if err != nil {
		return nil, err
	}

	if !o.DisableHealthMonitor {
		g.monitor = loadbalancer.NewMonitor(loadbalancer.MonitorOptions{
			Interval:    o.HealthCheckInterval,
			Timeout:     o.HealthCheckTimeout,
			Path:        o.HealthCheckPath,
			StatusField: o.HealthCheckStatusField,
			Prewarm:     o.HealthCheckPrewarm,
			Metrics:     g.metrics,
		}, g.health, g.breakers)
	}

	if o.EnableRatelimiters {
		g.limiter = ratelimit.NewRegistry(o.Ratelimit)
	}

	executor := proxy.NewExecutor(proxy.ExecutorOptions{
		Transport: snet.NewTransport(snet.Options{
			DisableKeepAlives:   o.DisableHTTPKeepalives,
			MaxIdleConns:        o.MaxIdleConnsBackend,
			MaxIdleConnsPerHost: o.MaxIdleConnsPerHostBackend,
			MaxConnsPerHost:     o.MaxConnsPerHostBackend,
			Timeout:             o.TimeoutBackend,
			KeepAlive:           o.KeepAliveBackend,
			IdleConnTimeout:     o.IdleConnTimeoutBackend,
		}),
		Timeout:   o.DefaultRouteTimeout,
		RequestID: requestID,
	})

	g.proxy = proxy.WithParams(proxy.Params{
		Routes:            routes,
		Breakers:          g.breakers,
		Health:            g.health,
		Executor:          executor,
		Auth:              gate,
		Limiter:           g.limiter,
		RequestID:         requestID,
		Metrics:           g.metrics,
		AccessLogDisabled: o.AccessLogDisabled,
	})

	g.support = http.NewServeMux()
	g.metrics.RegisterHandler("/metrics", g.support)
	g.support.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	g.support.HandleFunc("/targets", g.serveTargets)

	for _, r := range routes.Routes() {
		g.log.Infof("route %s: %s", r.Id, r)
	}

	return g, nil
}

// TargetState is the state of an upstream target served on /targets.
type TargetState struct {
	Target string `json:"target"`
	routing.EndpointState
	Breaker circuit.BreakerState `json:"breaker"`
}

// Targets returns the current state of every upstream target, sorted by
// target.
func (g *Gateway) Targets() []TargetState {
	health := g.health.Snapshot()
	breakers := g.breakers.Snapshot()

	targets := g.routes.Targets()
	sort.Strings(targets)

	states := make([]TargetState, 0, len(targets))
	for _, t := range targets {
		states = append(states, TargetState{
			Target:        t,
			EndpointState: health[t],
			Breaker:       breakers[t],
		})
	}

	return states
}

func (g *Gateway) serveTargets(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(g.Targets()); err != nil {
		g.log.Errorf("Failed to encode the target states: %v", err)
	}
}

// Handler returns the proxy handler of the gateway.
func (g *Gateway) Handler() http.Handler { return g.proxy }

// SupportHandler returns the handler of the support endpoints.
func (g *Gateway) SupportHandler() http.Handler { return g.support }

func (g *Gateway) listener(l net.Listener) (net.Listener, error) {
	o := g.options
	if o.MaxConnections > 0 {
		l = netutil.LimitListener(l, o.MaxConnections)
	}

	if o.EnableProxyProtocol {
		var err error
		l, err = proxylistener.NewListener(proxylistener.Options{
			Listener:      l,
			TrustedCIDRs:  o.ProxyProtocolTrustedCIDRs,
			RequireHeader: o.ProxyProtocolRequireHeader,
			SkipCIDRs:     o.ProxyProtocolSkipCIDRs,
			DenyCIDRs:     o.ProxyProtocolDenyCIDRs,
		})
		if err != nil {
			return nil, err
		}
	}

	return l, nil
}

func serverError(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// Serve serves the proxy on l and the support endpoints on support, when
// not nil, until ctx is done. Then it stops accepting connections and
// waits for the in-flight requests until the drain timeout.
func (g *Gateway) Serve(ctx context.Context, l, support net.Listener) error {
	pl, err := g.listener(l)
	if err != nil {
		return err
	}

	sl := snet.NewShutdownListener(pl)
	o := g.options
	server := &http.Server{
		Handler:           g.proxy,
		ReadTimeout:       o.ReadTimeoutServer,
		ReadHeaderTimeout: o.ReadHeaderTimeoutServer,
		WriteTimeout:      o.WriteTimeoutServer,
		IdleTimeout:       o.IdleTimeoutServer,
		MaxHeaderBytes:    o.MaxHeaderBytes,
	}

	var supportServer *http.Server
	if support != nil {
		supportServer = &http.Server{
			Handler:           g.support,
			ReadHeaderTimeout: o.ReadHeaderTimeoutServer,
		}
	}

	if g.monitor != nil {
		g.monitor.Start(ctx)
		defer g.monitor.Close()
	}

	if g.limiter != nil {
		defer g.limiter.Close()
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		g.log.Infof("Listening on %v", l.Addr())
		return serverError(server.Serve(sl))
	})

	if supportServer != nil {
		group.Go(func() error {
			g.log.Infof("Support listener on %v", support.Addr())
			return serverError(supportServer.Serve(support))
		})
	}

	group.Go(func() error {
		<-gctx.Done()
		g.log.Infof("Shutting down, draining for at most %v", o.DrainTimeout)

		dctx, cancel := context.WithTimeout(context.Background(), o.DrainTimeout)
		defer cancel()

		err := server.Shutdown(dctx)
		if supportServer != nil {
			err = errors.Join(err, supportServer.Shutdown(dctx))
		}

		return errors.Join(err, sl.Shutdown(dctx))
	})

	return group.Wait()
}

func openLogOutput(name string) (io.Writer, error) {
	switch name {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	default:
		return os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	}
}

func initLog(o Options) error {
	appOut, err := openLogOutput(o.ApplicationLogOutput)
	if err != nil {
		return fmt.Errorf("failed to open the application log: %w", err)
	}

	accessOut, err := openLogOutput(o.AccessLogOutput)
	if err != nil {
		return fmt.Errorf("failed to open the access log: %w", err)
	}

	logging.Init(logging.Options{
		ApplicationLogPrefix:      o.ApplicationLogPrefix,
		ApplicationLogOutput:      appOut,
		ApplicationLogLevel:       o.ApplicationLogLevel,
		ApplicationLogJSONEnabled: o.ApplicationLogJSONEnabled,
		AccessLogOutput:           accessOut,
		AccessLogDisabled:         o.AccessLogDisabled,
		AccessLogJSONEnabled:      o.AccessLogJSONEnabled,
	})

	return nil
}

// Run starts the gateway with the provided options, and blocks until it
// receives SIGTERM or SIGINT and the in-flight requests are drained.
func Run(o Options) (err error) {
	if err := initLog(o); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if o.OpenTelemetry != nil {
		shutdown, err := otel.Init(ctx, o.OpenTelemetry)
		if err != nil {
			return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
		}

		defer func() {
			err = errors.Join(err, shutdown(context.Background()))
		}()
	}

	g, err := New(o)
	if err != nil {
		return err
	}

	if o.Address == "" {
		o.Address = DefaultAddress
	}

	l, err := net.Listen("tcp", o.Address)
	if err != nil {
		return err
	}

	var sl net.Listener
	if o.SupportListener != "" {
		sl, err = net.Listen("tcp", o.SupportListener)
		if err != nil {
			l.Close()
			return err
		}
	}

	return g.Serve(ctx, l, sl)
}
