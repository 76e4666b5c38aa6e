package config

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go4.org/netipx"
	"gopkg.in/yaml.v2"

	"github.com/fundflow/gateway"
	"github.com/fundflow/gateway/flowid"
	"github.com/fundflow/gateway/loadbalancer"
	snet "github.com/fundflow/gateway/net"
	"github.com/fundflow/gateway/otel"
	"github.com/fundflow/gateway/proxy"
	"github.com/fundflow/gateway/ratelimit"
	"github.com/fundflow/gateway/routing"
)

type Config struct {
	ConfigFile string
	Flags      *flag.FlagSet

	// generic:
	Address                    string        `yaml:"address"`
	SupportListener            string        `yaml:"support-listener"`
	EnableProxyProtocol        bool          `yaml:"enable-proxy-protocol"`
	ProxyProtocolTrustedCIDRs  *listFlag     `yaml:"proxy-protocol-trusted-cidrs"`
	ProxyProtocolRequireHeader bool          `yaml:"proxy-protocol-require-header"`
	ProxyProtocolSkipCIDRs     *listFlag     `yaml:"proxy-protocol-skip-cidrs"`
	ProxyProtocolDenyCIDRs     *listFlag     `yaml:"proxy-protocol-deny-cidrs"`
	MaxConnections             int           `yaml:"max-connections"`
	DrainTimeout               time.Duration `yaml:"drain-timeout"`
	PrintVersion               bool          `yaml:"version"`

	// routes:
	Routes              routeFlags    `yaml:"route"`
	PublicTargets       *listFlag     `yaml:"public-targets"`
	AuthTargets         *listFlag     `yaml:"auth-targets"`
	PrivateTargets      *listFlag     `yaml:"private-targets"`
	DefaultRouteTimeout time.Duration `yaml:"route-timeout"`

	// circuit breakers:
	EnableBreakers bool         `yaml:"enable-breakers"`
	Breakers       breakerFlags `yaml:"breaker"`

	// health monitor:
	DisableHealthMonitor   bool          `yaml:"disable-health-monitor"`
	HealthCheckInterval    time.Duration `yaml:"healthcheck-interval"`
	HealthCheckTimeout     time.Duration `yaml:"healthcheck-timeout"`
	HealthCheckPath        string        `yaml:"healthcheck-path"`
	HealthCheckStatusField string        `yaml:"healthcheck-status-field"`
	HealthCheckPrewarm     bool          `yaml:"healthcheck-prewarm"`

	// rate limits:
	EnableRatelimiters  bool          `yaml:"enable-ratelimits"`
	RatelimitMaxHits    int           `yaml:"ratelimit-max-hits"`
	RatelimitTimeWindow time.Duration `yaml:"ratelimit-time-window"`
	RatelimitBurst      int           `yaml:"ratelimit-burst"`
	RatelimitExclude    multiFlag     `yaml:"ratelimit-exclude"`
	ratelimitExclude    *netipx.IPSet

	// authentication:
	JWTSecret     string `yaml:"jwt-secret"`
	JWTSecretFile string `yaml:"jwt-secret-file"`
	JWTIssuer     string `yaml:"jwt-issuer"`

	RequestIDGenerator string `yaml:"request-id-generator"`

	// logging, metrics, tracing:
	MetricsPrefix                string    `yaml:"metrics-prefix"`
	RuntimeMetrics               bool      `yaml:"runtime-metrics"`
	HistogramMetricBucketsString string    `yaml:"histogram-metric-buckets"`
	HistogramMetricBuckets       []float64 `yaml:"-"`
	ApplicationLog               string    `yaml:"application-log"`
	ApplicationLogLevel          log.Level `yaml:"-"`
	ApplicationLogLevelString    string    `yaml:"application-log-level"`
	ApplicationLogPrefix         string    `yaml:"application-log-prefix"`
	ApplicationLogJSONEnabled    bool      `yaml:"application-log-json-enabled"`
	AccessLog                    string    `yaml:"access-log"`
	AccessLogDisabled            bool      `yaml:"access-log-disabled"`
	AccessLogJSONEnabled         bool      `yaml:"access-log-json-enabled"`

	OpenTelemetry *otel.Options `yaml:"open-telemetry"`

	// connections, timeouts:
	ReadTimeoutServer          time.Duration `yaml:"read-timeout-server"`
	ReadHeaderTimeoutServer    time.Duration `yaml:"read-header-timeout-server"`
	WriteTimeoutServer         time.Duration `yaml:"write-timeout-server"`
	IdleTimeoutServer          time.Duration `yaml:"idle-timeout-server"`
	MaxHeaderBytes             int           `yaml:"max-header-bytes"`
	TimeoutBackend             time.Duration `yaml:"timeout-backend"`
	KeepaliveBackend           time.Duration `yaml:"keepalive-backend"`
	IdleConnTimeoutBackend     time.Duration `yaml:"idle-conn-timeout-backend"`
	MaxIdleConnsBackend        int           `yaml:"max-idle-connection-backend"`
	MaxIdleConnsPerHostBackend int           `yaml:"max-idle-connection-per-host-backend"`
	MaxConnsPerHostBackend     int           `yaml:"max-connection-per-host-backend"`
	DisableHTTPKeepalives      bool          `yaml:"disable-http-keepalives"`
}

const (
	defaultApplicationLogPrefix = "[APP]"
	defaultMetricsPrefix        = "gateway"

	// environment keys:
	jwtSecretEnv = "GATEWAY_JWT_SECRET"

	enableBreakersUsage = "*Deprecated*: the circuit breakers are always enabled, use -breaker type=disabled to disable them"
	publicTargetsUsage  = "comma separated upstream targets of the default /api/public route"
	authTargetsUsage    = "comma separated upstream targets of the default /api/auth route"
	privateTargetsUsage = "comma separated upstream targets of the default /api/private route, requiring authentication"
)

func NewConfig() *Config {
	cfg := new(Config)
	cfg.ProxyProtocolTrustedCIDRs = commaListFlag()
	cfg.ProxyProtocolSkipCIDRs = commaListFlag()
	cfg.ProxyProtocolDenyCIDRs = commaListFlag()
	cfg.PublicTargets = commaListFlag()
	cfg.AuthTargets = commaListFlag()
	cfg.PrivateTargets = commaListFlag()

	flag := flag.NewFlagSet("", flag.ExitOnError)
	flag.StringVar(&cfg.ConfigFile, "config-file", "", "if provided the flags will be loaded/overwritten by the values on the file (yaml)")

	// generic:
	flag.StringVar(&cfg.Address, "address", gateway.DefaultAddress, "network address that the gateway should listen on")
	flag.StringVar(&cfg.SupportListener, "support-listener", gateway.DefaultSupportListener, "network address used for exposing the /metrics, /healthz and /targets endpoints. An empty value disables the support endpoints.")
	flag.BoolVar(&cfg.EnableProxyProtocol, "enable-proxy-protocol", false, "accept PROXY protocol headers on the connections of the main listener")
	flag.Var(cfg.ProxyProtocolTrustedCIDRs, "proxy-protocol-trusted-cidrs", "comma separated networks of the load balancers sending PROXY protocol headers, when empty every peer is trusted")
	flag.BoolVar(&cfg.ProxyProtocolRequireHeader, "proxy-protocol-require-header", false, "reject the connections of the trusted peers without a PROXY protocol header")
	flag.Var(cfg.ProxyProtocolSkipCIDRs, "proxy-protocol-skip-cidrs", "comma separated networks accepted without reading the PROXY protocol header")
	flag.Var(cfg.ProxyProtocolDenyCIDRs, "proxy-protocol-deny-cidrs", "comma separated networks whose connections are rejected")
	flag.IntVar(&cfg.MaxConnections, "max-connections", 0, "maximum number of concurrently accepted connections, 0 means no limit")
	flag.DurationVar(&cfg.DrainTimeout, "drain-timeout", gateway.DefaultDrainTimeout, "time given to the in-flight requests to finish on shutdown")
	flag.BoolVar(&cfg.PrintVersion, "version", false, "print the gateway version")

	// routes:
	flag.Var(&cfg.Routes, "route", routeUsage)
	flag.Var(cfg.PublicTargets, "public-targets", publicTargetsUsage)
	flag.Var(cfg.AuthTargets, "auth-targets", authTargetsUsage)
	flag.Var(cfg.PrivateTargets, "private-targets", privateTargetsUsage)
	flag.DurationVar(&cfg.DefaultRouteTimeout, "route-timeout", proxy.DefaultTimeout, "deadline of the upstream calls of the routes without a timeout, until the response headers arrive")

	// circuit breakers:
	flag.BoolVar(&cfg.EnableBreakers, "enable-breakers", false, enableBreakersUsage)
	flag.Var(&cfg.Breakers, "breaker", breakerUsage)

	// health monitor:
	flag.BoolVar(&cfg.DisableHealthMonitor, "disable-health-monitor", false, "disables the probes of the unhealthy targets")
	flag.DurationVar(&cfg.HealthCheckInterval, "healthcheck-interval", loadbalancer.DefaultHealthCheckInterval, "interval between the probes of the unhealthy targets")
	flag.DurationVar(&cfg.HealthCheckTimeout, "healthcheck-timeout", loadbalancer.DefaultHealthCheckTimeout, "timeout of a single probe")
	flag.StringVar(&cfg.HealthCheckPath, "healthcheck-path", loadbalancer.DefaultHealthCheckPath, "path of the liveness endpoint of the targets")
	flag.StringVar(&cfg.HealthCheckStatusField, "healthcheck-status-field", "", "JSON field of the probe responses holding the status of the target, e.g. status")
	flag.BoolVar(&cfg.HealthCheckPrewarm, "healthcheck-prewarm", false, "after a successful probe, allow the next call to a target with an open breaker as a trial call")

	// rate limits:
	flag.BoolVar(&cfg.EnableRatelimiters, "enable-ratelimits", false, "enable the rate limit of the requests per client IP")
	flag.IntVar(&cfg.RatelimitMaxHits, "ratelimit-max-hits", ratelimit.DefaultMaxHits, "number of requests allowed per client in the time window")
	flag.DurationVar(&cfg.RatelimitTimeWindow, "ratelimit-time-window", ratelimit.DefaultTimeWindow, "time window of the rate limit")
	flag.IntVar(&cfg.RatelimitBurst, "ratelimit-burst", 0, "burst size of the rate limit, defaults to the max hits")
	flag.Var(&cfg.RatelimitExclude, "ratelimit-exclude", "client network excluded from the rate limit, this flag can be used multiple times")

	// authentication:
	flag.StringVar(&cfg.JWTSecret, "jwt-secret", "", "HMAC secret of the bearer tokens. Use "+jwtSecretEnv+" environment variable or -jwt-secret-file instead of passing it on the command line")
	flag.StringVar(&cfg.JWTSecretFile, "jwt-secret-file", "", "file containing the HMAC secret of the bearer tokens")
	flag.StringVar(&cfg.JWTIssuer, "jwt-issuer", "", "when set, the iss claim of the bearer tokens must match it")

	flag.StringVar(&cfg.RequestIDGenerator, "request-id-generator", flowid.UUID, "generator of the missing X-Request-ID headers: uuid, ulid or standard")

	// logging, metrics, tracing:
	flag.StringVar(&cfg.MetricsPrefix, "metrics-prefix", defaultMetricsPrefix, "namespace of the Prometheus metrics")
	flag.BoolVar(&cfg.RuntimeMetrics, "runtime-metrics", true, "enables reporting of the Go runtime and process metrics")
	flag.StringVar(&cfg.HistogramMetricBucketsString, "histogram-metric-buckets", "", "use custom buckets for prometheus histograms, must be a comma-separated list of numbers")
	flag.StringVar(&cfg.ApplicationLog, "application-log", "", "output file for the application log. When not set, /dev/stderr is used")
	flag.StringVar(&cfg.ApplicationLogLevelString, "application-log-level", "INFO", "log level for application logs, possible values: PANIC, FATAL, ERROR, WARN, INFO, DEBUG")
	flag.StringVar(&cfg.ApplicationLogPrefix, "application-log-prefix", defaultApplicationLogPrefix, "prefix for each log entry")
	flag.BoolVar(&cfg.ApplicationLogJSONEnabled, "application-log-json-enabled", false, "when this flag is set, log in JSON format is used")
	flag.StringVar(&cfg.AccessLog, "access-log", "", "output file for the access log, When not set, /dev/stderr is used")
	flag.BoolVar(&cfg.AccessLogDisabled, "access-log-disabled", false, "when this flag is set, no access log is printed")
	flag.BoolVar(&cfg.AccessLogJSONEnabled, "access-log-json-enabled", false, "when this flag is set, log in JSON format is used")

	flag.Var(newYamlFlag(&cfg.OpenTelemetry), "open-telemetry", "OpenTelemetry configuration in YAML format, use flow-style for convenience")

	// connections, timeouts:
	flag.DurationVar(&cfg.ReadTimeoutServer, "read-timeout-server", 5*time.Minute, "set ReadTimeout for http server connections")
	flag.DurationVar(&cfg.ReadHeaderTimeoutServer, "read-header-timeout-server", 60*time.Second, "set ReadHeaderTimeout for http server connections")
	flag.DurationVar(&cfg.WriteTimeoutServer, "write-timeout-server", 60*time.Second, "set WriteTimeout for http server connections")
	flag.DurationVar(&cfg.IdleTimeoutServer, "idle-timeout-server", 60*time.Second, "set IdleTimeout for http server connections")
	flag.IntVar(&cfg.MaxHeaderBytes, "max-header-bytes", 1<<20, "set MaxHeaderBytes for http server connections")
	flag.DurationVar(&cfg.TimeoutBackend, "timeout-backend", 60*time.Second, "sets the TCP client connection timeout for backend connections")
	flag.DurationVar(&cfg.KeepaliveBackend, "keepalive-backend", 30*time.Second, "sets the keepalive for backend connections")
	flag.DurationVar(&cfg.IdleConnTimeoutBackend, "idle-conn-timeout-backend", 60*time.Second, "sets the idle timeout of the pooled backend connections")
	flag.IntVar(&cfg.MaxIdleConnsBackend, "max-idle-connection-backend", 0, "sets the maximum idle connections for all backend connections")
	flag.IntVar(&cfg.MaxIdleConnsPerHostBackend, "max-idle-connection-per-host-backend", 64, "sets the maximum idle connections per backend target")
	flag.IntVar(&cfg.MaxConnsPerHostBackend, "max-connection-per-host-backend", 0, "sets the maximum connections per backend target, 0 means no limit")
	flag.BoolVar(&cfg.DisableHTTPKeepalives, "disable-http-keepalives", false, "forces backend to always create a new connection")

	cfg.Flags = flag
	return cfg
}

func validate(c *Config) error {
	_, err := log.ParseLevel(c.ApplicationLogLevelString)
	if err != nil {
		return err
	}

	_, err = c.parseHistogramBuckets(c.HistogramMetricBucketsString, prometheus.DefBuckets)
	if err != nil {
		return err
	}

	if _, err := flowid.New(c.RequestIDGenerator); err != nil {
		return err
	}

	for _, l := range []*listFlag{c.ProxyProtocolTrustedCIDRs, c.ProxyProtocolSkipCIDRs, c.ProxyProtocolDenyCIDRs} {
		if _, err := snet.ParseIPCIDRs(l.values); err != nil {
			return fmt.Errorf("invalid proxy protocol networks: %w", err)
		}
	}

	if c.JWTSecret != "" && c.JWTSecretFile != "" {
		return fmt.Errorf("only one of jwt-secret and jwt-secret-file can be set")
	}

	return nil
}

func (c *Config) Parse() error {
	return c.ParseArgs(os.Args[0], os.Args[1:])
}

func (c *Config) ParseArgs(progname string, args []string) error {
	c.Flags.Init(progname, flag.ExitOnError)
	err := c.Flags.Parse(args)
	if err != nil {
		return err
	}

	// check if arguments were correctly parsed.
	if len(c.Flags.Args()) != 0 {
		return fmt.Errorf("invalid arguments: %s", c.Flags.Args())
	}

	configKeys := make(map[string]interface{})
	if c.ConfigFile != "" {
		yamlFile, err := os.ReadFile(c.ConfigFile)
		if err != nil {
			return fmt.Errorf("invalid config file: %w", err)
		}

		// the repeatable flags are collected again from the command line
		c.Routes = nil
		c.Breakers = nil
		c.RatelimitExclude = nil

		err = yaml.Unmarshal(yamlFile, c)
		if err != nil {
			return fmt.Errorf("unmarshalling config file error: %w", err)
		}

		_ = yaml.Unmarshal(yamlFile, configKeys)

		err = c.Flags.Parse(args)
		if err != nil {
			return err
		}
	}

	c.checkDeprecated(configKeys,
		"enable-breakers",
	)

	if err := validate(c); err != nil {
		return err
	}

	c.ApplicationLogLevel, _ = log.ParseLevel(c.ApplicationLogLevelString)
	c.HistogramMetricBuckets, _ = c.parseHistogramBuckets(c.HistogramMetricBucketsString, prometheus.DefBuckets)

	c.ratelimitExclude, err = snet.ParseIPCIDRs(c.RatelimitExclude)
	if err != nil {
		return fmt.Errorf("invalid ratelimit exclude networks: %w", err)
	}

	if c.JWTSecretFile != "" {
		b, err := os.ReadFile(c.JWTSecretFile)
		if err != nil {
			return fmt.Errorf("invalid jwt secret file: %w", err)
		}

		c.JWTSecret = strings.TrimSpace(string(b))
	}

	c.parseEnv()
	return nil
}

// defaultRoutes returns the routes of the fundflow services, for the
// target lists that are set.
func (c *Config) defaultRoutes() []*routing.Route {
	var routes []*routing.Route
	if len(c.PublicTargets.values) > 0 {
		routes = append(routes, &routing.Route{
			Id:      "public",
			Prefix:  "/api/public",
			Targets: c.PublicTargets.values,
			Rewrite: routing.StripPrefix("/api"),
		})
	}

	if len(c.AuthTargets.values) > 0 {
		routes = append(routes, &routing.Route{
			Id:      "auth",
			Prefix:  "/api/auth",
			Targets: c.AuthTargets.values,
			Rewrite: routing.ReplacePrefix("/api/auth", "/auth"),
		})
	}

	if len(c.PrivateTargets.values) > 0 {
		routes = append(routes, &routing.Route{
			Id:           "private",
			Prefix:       "/api/private",
			Targets:      c.PrivateTargets.values,
			Rewrite:      routing.StripPrefix("/api"),
			AuthRequired: true,
		})
	}

	return routes
}

func (c *Config) ToOptions() gateway.Options {
	routes := []*routing.Route(c.Routes)
	if len(routes) == 0 {
		routes = c.defaultRoutes()
	}

	options := gateway.Options{
		// generic:
		Address:                    c.Address,
		SupportListener:            c.SupportListener,
		EnableProxyProtocol:        c.EnableProxyProtocol,
		ProxyProtocolTrustedCIDRs:  c.ProxyProtocolTrustedCIDRs.values,
		ProxyProtocolRequireHeader: c.ProxyProtocolRequireHeader,
		ProxyProtocolSkipCIDRs:     c.ProxyProtocolSkipCIDRs.values,
		ProxyProtocolDenyCIDRs:     c.ProxyProtocolDenyCIDRs.values,
		MaxConnections:             c.MaxConnections,
		DrainTimeout:               c.DrainTimeout,

		// routes:
		Routes:              routes,
		DefaultRouteTimeout: c.DefaultRouteTimeout,

		// circuit breakers:
		BreakerSettings: c.Breakers,

		// health monitor:
		DisableHealthMonitor:   c.DisableHealthMonitor,
		HealthCheckInterval:    c.HealthCheckInterval,
		HealthCheckTimeout:     c.HealthCheckTimeout,
		HealthCheckPath:        c.HealthCheckPath,
		HealthCheckStatusField: c.HealthCheckStatusField,
		HealthCheckPrewarm:     c.HealthCheckPrewarm,

		// rate limits:
		EnableRatelimiters: c.EnableRatelimiters,
		Ratelimit: ratelimit.Settings{
			MaxHits:    c.RatelimitMaxHits,
			TimeWindow: c.RatelimitTimeWindow,
			Burst:      c.RatelimitBurst,
			Exclude:    c.ratelimitExclude,
		},

		// authentication:
		JWTIssuer: c.JWTIssuer,

		RequestIDGenerator: c.RequestIDGenerator,

		// logging, metrics, tracing:
		MetricsPrefix:             c.MetricsPrefix,
		EnableRuntimeMetrics:      c.RuntimeMetrics,
		HistogramBuckets:          c.HistogramMetricBuckets,
		ApplicationLogOutput:      c.ApplicationLog,
		ApplicationLogPrefix:      c.ApplicationLogPrefix,
		ApplicationLogLevel:       c.ApplicationLogLevel,
		ApplicationLogJSONEnabled: c.ApplicationLogJSONEnabled,
		AccessLogOutput:           c.AccessLog,
		AccessLogDisabled:         c.AccessLogDisabled,
		AccessLogJSONEnabled:      c.AccessLogJSONEnabled,
		OpenTelemetry:             c.OpenTelemetry,

		// connections, timeouts:
		ReadTimeoutServer:          c.ReadTimeoutServer,
		ReadHeaderTimeoutServer:    c.ReadHeaderTimeoutServer,
		WriteTimeoutServer:         c.WriteTimeoutServer,
		IdleTimeoutServer:          c.IdleTimeoutServer,
		MaxHeaderBytes:             c.MaxHeaderBytes,
		TimeoutBackend:             c.TimeoutBackend,
		KeepAliveBackend:           c.KeepaliveBackend,
		IdleConnTimeoutBackend:     c.IdleConnTimeoutBackend,
		MaxIdleConnsBackend:        c.MaxIdleConnsBackend,
		MaxIdleConnsPerHostBackend: c.MaxIdleConnsPerHostBackend,
		MaxConnsPerHostBackend:     c.MaxConnsPerHostBackend,
		DisableHTTPKeepalives:      c.DisableHTTPKeepalives,
	}

	if c.JWTSecret != "" {
		options.JWTSecret = []byte(c.JWTSecret)
	}

	return options
}

func (c *Config) parseHistogramBuckets(bucketString string, defaultBuckets []float64) ([]float64, error) {
	if bucketString == "" {
		return defaultBuckets, nil
	}

	var result []float64
	thresholds := strings.Split(bucketString, ",")
	for _, v := range thresholds {
		bucket, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("unable to parse histogram-metric-buckets: %w", err)
		}
		result = append(result, bucket)
	}
	sort.Float64s(result)
	return result, nil
}

func (c *Config) parseEnv() {
	// Set the JWT secret from environment variable if not set earlier (flag, file or configuration file)
	if c.JWTSecret == "" {
		c.JWTSecret = os.Getenv(jwtSecretEnv)
	}
}

func (c *Config) checkDeprecated(configKeys map[string]interface{}, options ...string) {
	flagKeys := make(map[string]bool)
	c.Flags.Visit(func(f *flag.Flag) { flagKeys[f.Name] = true })

	for _, name := range options {
		_, ck := configKeys[name]
		_, fk := flagKeys[name]
		if ck || fk {
			f := c.Flags.Lookup(name)
			log.Warnf("%s: %s", f.Name, f.Usage)
		}
	}
}
