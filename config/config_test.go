package config

import (
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/fundflow/gateway/circuit"
	"github.com/fundflow/gateway/routing"
)

func TestEnvOverrides_JWTSecret(t *testing.T) {
	for _, tt := range []struct {
		name string
		args []string
		env  string
		want string
	}{
		{
			name: "don't set jwt secret either from file nor environment",
			args: []string{"gateway"},
			env:  "",
			want: "",
		},
		{
			name: "set jwt secret from environment",
			args: []string{"gateway"},
			env:  "set_from_env",
			want: "set_from_env",
		},
		{
			name: "set jwt secret from config file and ignore environment",
			args: []string{"gateway", "-config-file=testdata/test.yaml"},
			env:  "set_from_env",
			want: "set_from_file",
		},
		{
			name: "set jwt secret from flag and ignore environment",
			args: []string{"gateway", "-jwt-secret=set_from_flag"},
			env:  "set_from_env",
			want: "set_from_flag",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if tt.env != "" {
				t.Setenv(jwtSecretEnv, tt.env)
			}
			cfg := NewConfig()
			err := cfg.ParseArgs(tt.args[0], tt.args[1:])
			if err != nil {
				t.Errorf("config.NewConfig() error = %v", err)
			}

			if cfg.JWTSecret != tt.want {
				t.Errorf("cfg.JWTSecret didn't set correctly: Want '%s', got '%s'", tt.want, cfg.JWTSecret)
			}
		})
	}
}

func TestJWTSecretFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(name, []byte("from_secret_file\n"), 0o600))

	cfg := NewConfig()
	require.NoError(t, cfg.ParseArgs("gateway", []string{"-jwt-secret-file", name}))
	assert.Equal(t, "from_secret_file", cfg.JWTSecret)
	assert.Equal(t, []byte("from_secret_file"), cfg.ToOptions().JWTSecret)

	cfg = NewConfig()
	assert.Error(t, cfg.ParseArgs("gateway", []string{"-jwt-secret-file", name + ".missing"}))
}

func defaultConfig(with func(*Config)) *Config {
	cfg := &Config{
		Flags:                      nil,
		Address:                    ":9090",
		SupportListener:            ":9911",
		ProxyProtocolTrustedCIDRs:  commaListFlag(),
		ProxyProtocolSkipCIDRs:     commaListFlag(),
		ProxyProtocolDenyCIDRs:     commaListFlag(),
		DrainTimeout:               10 * time.Second,
		PublicTargets:              commaListFlag(),
		AuthTargets:                commaListFlag(),
		PrivateTargets:             commaListFlag(),
		DefaultRouteTimeout:        30 * time.Second,
		HealthCheckInterval:        30 * time.Second,
		HealthCheckTimeout:         2 * time.Second,
		HealthCheckPath:            "/health",
		RatelimitMaxHits:           20,
		RatelimitTimeWindow:        time.Second,
		RequestIDGenerator:         "uuid",
		MetricsPrefix:              "gateway",
		RuntimeMetrics:             true,
		HistogramMetricBuckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ApplicationLogLevel:        log.InfoLevel,
		ApplicationLogLevelString:  "INFO",
		ApplicationLogPrefix:       "[APP]",
		ReadTimeoutServer:          5 * time.Minute,
		ReadHeaderTimeoutServer:    1 * time.Minute,
		WriteTimeoutServer:         1 * time.Minute,
		IdleTimeoutServer:          1 * time.Minute,
		MaxHeaderBytes:             1048576,
		TimeoutBackend:             1 * time.Minute,
		KeepaliveBackend:           30 * time.Second,
		IdleConnTimeoutBackend:     1 * time.Minute,
		MaxIdleConnsPerHostBackend: 64,
	}
	with(cfg)
	return cfg
}

func Test_NewConfigWithArgs(t *testing.T) {
	for _, tt := range []struct {
		name    string
		args    []string
		want    *Config
		wantErr bool
	}{
		{
			name:    "test args len bigger than 0 throws an error",
			args:    []string{"gateway", "arg1"},
			wantErr: true,
		},
		{
			name: "test only valid flag overwrite yaml file",
			args: []string{"gateway", "-config-file=testdata/test.yaml", "-address=localhost:8090", "-max-connections=10"},
			want: defaultConfig(func(c *Config) {
				c.ConfigFile = "testdata/test.yaml"
				c.Address = "localhost:8090"
				c.SupportListener = "localhost:8081"
				c.MaxConnections = 10
				c.Routes = routeFlags{{
					Id:      "campaigns",
					Prefix:  "/api/public/campaigns",
					Targets: []string{"http://campaign-1:3001", "http://campaign-2:3001"},
					Rewrite: routing.StripPrefix("/api"),
					Timeout: 5 * time.Second,
				}}
				c.Breakers = breakerFlags{{
					Type:            circuit.FailureRate,
					Window:          20 * time.Second,
					VolumeThreshold: 10,
					FailureRate:     40,
					Timeout:         time.Minute,
				}, {
					Type:     circuit.ConsecutiveFailures,
					Host:     "campaign-2",
					Failures: 3,
				}}
				c.RatelimitExclude = multiFlag{"10.0.0.0/8"}
				c.JWTSecret = "set_from_file"
				c.ApplicationLogLevel = log.WarnLevel
				c.ApplicationLogLevelString = "warn"
			}),
			wantErr: false,
		},
		{
			name: "test repeatable flags are not duplicated by the config file",
			args: []string{"gateway", "-config-file=testdata/test.yaml", "-breaker=type=disabled,host=campaign-1"},
			want: defaultConfig(func(c *Config) {
				c.ConfigFile = "testdata/test.yaml"
				c.Address = "localhost:8080"
				c.SupportListener = "localhost:8081"
				c.MaxConnections = 1000
				c.Routes = routeFlags{{
					Id:      "campaigns",
					Prefix:  "/api/public/campaigns",
					Targets: []string{"http://campaign-1:3001", "http://campaign-2:3001"},
					Rewrite: routing.StripPrefix("/api"),
					Timeout: 5 * time.Second,
				}}
				c.Breakers = breakerFlags{{
					Type:            circuit.FailureRate,
					Window:          20 * time.Second,
					VolumeThreshold: 10,
					FailureRate:     40,
					Timeout:         time.Minute,
				}, {
					Type:     circuit.ConsecutiveFailures,
					Host:     "campaign-2",
					Failures: 3,
				}, {
					Type: circuit.BreakerDisabled,
					Host: "campaign-1",
				}}
				c.RatelimitExclude = multiFlag{"10.0.0.0/8"}
				c.JWTSecret = "set_from_file"
				c.ApplicationLogLevel = log.WarnLevel
				c.ApplicationLogLevelString = "warn"
			}),
			wantErr: false,
		},
		{
			name:    "test invalid yaml file",
			args:    []string{"gateway", "-config-file=testdata/invalid.yaml"},
			wantErr: true,
		},
		{
			name:    "test missing yaml file",
			args:    []string{"gateway", "-config-file=testdata/missing.yaml"},
			wantErr: true,
		},
		{
			name:    "test invalid ratelimit exclude",
			args:    []string{"gateway", "-ratelimit-exclude=10.0.0.0/33"},
			wantErr: true,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := cfg.ParseArgs(tt.args[0], tt.args[1:])
			if (err != nil) != tt.wantErr {
				t.Errorf("config.NewConfig() error = %v, wantErr %v", err, tt.wantErr)
			}

			if !tt.wantErr {
				d := cmp.Diff(cfg, tt.want,
					cmp.AllowUnexported(listFlag{}),
					cmpopts.IgnoreUnexported(Config{}), cmpopts.IgnoreFields(Config{}, "Flags"),
				)
				if d != "" {
					t.Errorf("config.NewConfig() want vs got:\n%s", d)
				}
			}
		})
	}
}

func Test_Validate(t *testing.T) {
	for _, tt := range []struct {
		name    string
		change  func(c *Config)
		want    error
		wantErr bool
	}{
		{
			name: "test wrong loglevel",
			change: func(c *Config) {
				c.ApplicationLogLevelString = "wrongLevel"
			},
			want:    errors.New(`not a valid logrus Level: "wrongLevel"`),
			wantErr: true,
		},
		{
			name: "test valid config",
			change: func(c *Config) {
				c.HistogramMetricBucketsString = ""
				c.ApplicationLogLevel = log.InfoLevel
				c.ApplicationLogLevelString = "INFO"
			},
			want:    nil,
			wantErr: false,
		},
		{
			name: "test wrong HistoGramBuckets",
			change: func(c *Config) {
				c.HistogramMetricBucketsString = "5,10,abc"
			},
			wantErr: true,
			want:    errors.New(`unable to parse histogram-metric-buckets: strconv.ParseFloat: parsing "abc": invalid syntax`),
		},
		{
			name: "test wrong request id generator",
			change: func(c *Config) {
				c.RequestIDGenerator = "sequence"
			},
			wantErr: true,
			want:    errors.New(`invalid request id generator: "sequence"`),
		},
		{
			name: "test wrong proxy protocol networks",
			change: func(c *Config) {
				_ = c.ProxyProtocolTrustedCIDRs.Set("10.0.0.0/8,not-a-network")
			},
			wantErr: true,
			want:    errors.New(`invalid proxy protocol networks: ParseAddr("not-a-network"): unable to parse IP`),
		},
		{
			name: "test jwt secret and secret file",
			change: func(c *Config) {
				c.JWTSecret = "secret"
				c.JWTSecretFile = "/run/secrets/jwt"
			},
			wantErr: true,
			want:    errors.New("only one of jwt-secret and jwt-secret-file can be set"),
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			require.NoError(t, cfg.Flags.Parse(nil))
			tt.change(cfg)
			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("config.NewConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && err != nil && err.Error() != tt.want.Error() {
				t.Errorf("Failed to get wanted error, got: %v, want: %v", err, tt.want)
			}
		})
	}
}

func TestToOptionsDefaultRoutes(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.ParseArgs("gateway", []string{
		"-public-targets", "http://public-1:3001,http://public-2:3001",
		"-auth-targets", "http://auth-1:3002",
		"-private-targets", "http://private-1:3003",
		"-jwt-secret", "secret",
	}))

	o := cfg.ToOptions()
	want := []*routing.Route{{
		Id:      "public",
		Prefix:  "/api/public",
		Targets: []string{"http://public-1:3001", "http://public-2:3001"},
		Rewrite: routing.StripPrefix("/api"),
	}, {
		Id:      "auth",
		Prefix:  "/api/auth",
		Targets: []string{"http://auth-1:3002"},
		Rewrite: routing.ReplacePrefix("/api/auth", "/auth"),
	}, {
		Id:           "private",
		Prefix:       "/api/private",
		Targets:      []string{"http://private-1:3003"},
		Rewrite:      routing.StripPrefix("/api"),
		AuthRequired: true,
	}}

	if d := cmp.Diff(want, o.Routes); d != "" {
		t.Errorf("unexpected default routes:\n%s", d)
	}

	assert.Equal(t, []byte("secret"), o.JWTSecret)
	assert.Equal(t, "/public/x", o.Routes[0].Rewrite.Apply("/api/public/x"))
	assert.Equal(t, "/auth/x", o.Routes[1].Rewrite.Apply("/api/auth/x"))
	assert.Equal(t, "/private/x", o.Routes[2].Rewrite.Apply("/api/private/x"))
}

func TestToOptions(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.ParseArgs("gateway", []string{
		"-route", "prefix=/api/public,targets=http://public-1:3001,rewrite=/api:",
		"-public-targets", "http://ignored:3001",
		"-breaker", "type=rate,window=10s,volume-threshold=5,failure-rate=50,timeout=30s",
		"-enable-proxy-protocol",
		"-proxy-protocol-trusted-cidrs", "10.0.0.0/8,192.168.0.0/16",
		"-enable-ratelimits",
		"-ratelimit-max-hits", "100",
		"-ratelimit-exclude", "10.0.0.0/8",
		"-ratelimit-exclude", "127.0.0.1",
		"-request-id-generator", "ulid",
		"-healthcheck-prewarm",
		"-application-log-level", "DEBUG",
		"-access-log-disabled",
		"-open-telemetry", "{servicename: gateway-test}",
	}))

	o := cfg.ToOptions()

	require.Len(t, o.Routes, 1)
	assert.Equal(t, "/api/public", o.Routes[0].Prefix)
	assert.Equal(t, []circuit.BreakerSettings{{
		Type:            circuit.FailureRate,
		Window:          10 * time.Second,
		VolumeThreshold: 5,
		FailureRate:     50,
		Timeout:         30 * time.Second,
	}}, o.BreakerSettings)

	assert.True(t, o.EnableProxyProtocol)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.0.0/16"}, o.ProxyProtocolTrustedCIDRs)

	assert.True(t, o.EnableRatelimiters)
	assert.Equal(t, 100, o.Ratelimit.MaxHits)
	assert.Equal(t, time.Second, o.Ratelimit.TimeWindow)
	require.NotNil(t, o.Ratelimit.Exclude)
	assert.True(t, o.Ratelimit.Exclude.Contains(netip.MustParseAddr("10.1.2.3")))
	assert.True(t, o.Ratelimit.Exclude.Contains(netip.MustParseAddr("127.0.0.1")))
	assert.False(t, o.Ratelimit.Exclude.Contains(netip.MustParseAddr("192.0.2.1")))

	assert.Equal(t, "ulid", o.RequestIDGenerator)
	assert.True(t, o.HealthCheckPrewarm)
	assert.Equal(t, log.DebugLevel, o.ApplicationLogLevel)
	assert.True(t, o.AccessLogDisabled)
	require.NotNil(t, o.OpenTelemetry)
	assert.Equal(t, "gateway-test", o.OpenTelemetry.ServiceName)
	assert.Nil(t, o.JWTSecret)
}
