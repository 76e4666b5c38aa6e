package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/google/go-cmp/cmp"

	"github.com/fundflow/gateway/circuit"
)

func Test_breakerFlags_String(t *testing.T) {
	tests := []struct {
		name string
		b    *breakerFlags
		want string
	}{
		{
			name: "test consecutive breaker",
			b: &breakerFlags{
				circuit.BreakerSettings{
					Type:             circuit.ConsecutiveFailures,
					Host:             "example.com",
					Failures:         4,
					Timeout:          3 * time.Second,
					HalfOpenRequests: 3,
				},
			},
			want: "type=consecutive,host=example.com,failures=4,timeout=3s,half-open-requests=3",
		},
		{
			name: "test rate breakers",
			b: &breakerFlags{
				circuit.BreakerSettings{
					Type:            circuit.FailureRate,
					Window:          10 * time.Second,
					VolumeThreshold: 5,
					FailureRate:     50,
					Timeout:         30 * time.Second,
				},
				circuit.BreakerSettings{
					Type: circuit.BreakerDisabled,
					Host: "example.org",
				},
			},
			want: "type=rate,window=10s,volume-threshold=5,failure-rate=50,timeout=30s\ndisabled",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.String(); got != tt.want {
				t.Errorf("breakerFlags.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_breakerFlags_Set(t *testing.T) {
	tests := []struct {
		name      string
		args      string
		wantErr   bool
		errString string
		want      circuit.BreakerSettings
	}{
		{
			name:    "test breaker settings",
			args:    "type=consecutive,host=example.com,timeout=3s,half-open-requests=3",
			wantErr: false,
			want: circuit.BreakerSettings{
				Type:             circuit.ConsecutiveFailures,
				Host:             "example.com",
				Timeout:          3 * time.Second,
				HalfOpenRequests: 3,
			},
		},
		{
			name:    "test breaker settings with failures",
			args:    "type=consecutive,host=example.com,timeout=3s,half-open-requests=3,failures=2",
			wantErr: false,
			want: circuit.BreakerSettings{
				Type:             circuit.ConsecutiveFailures,
				Host:             "example.com",
				Timeout:          3 * time.Second,
				HalfOpenRequests: 3,
				Failures:         2,
			},
		},
		{
			name:    "test breaker settings failurerate",
			args:    "type=rate,host=example.com,window=10s,volume-threshold=5,failure-rate=50,timeout=3s,half-open-requests=1",
			wantErr: false,
			want: circuit.BreakerSettings{
				Type:             circuit.FailureRate,
				Host:             "example.com",
				Window:           10 * time.Second,
				VolumeThreshold:  5,
				FailureRate:      50,
				Timeout:          3 * time.Second,
				HalfOpenRequests: 1,
			},
		},
		{
			name:    "test default breaker settings",
			args:    "window=1m,failure-rate=30",
			wantErr: false,
			want: circuit.BreakerSettings{
				Window:      time.Minute,
				FailureRate: 30,
			},
		},
		{
			name:    "test breaker settings disabled",
			args:    "type=disabled,host=example.com,timeout=3s,half-open-requests=3",
			wantErr: false,
			want: circuit.BreakerSettings{
				Type:             circuit.BreakerDisabled,
				Host:             "example.com",
				Timeout:          3 * time.Second,
				HalfOpenRequests: 3,
			},
		},
		{
			name:      "test breaker settings with wrong window",
			args:      "type=rate,window=4,host=example.com",
			wantErr:   true,
			errString: `time: missing unit in duration "4"`,
		},
		{
			name:      "test breaker settings invalid type",
			args:      "type=invalid,host=example.com,timeout=3s,half-open-requests=3",
			wantErr:   true,
			errString: errInvalidBreakerConfig.Error(),
		},
		{
			name:      "test breaker settings invalid half-open",
			args:      "type=consecutive,host=example.com,timeout=3s,half-open-requests=a",
			wantErr:   true,
			errString: `strconv.Atoi: parsing "a": invalid syntax`,
		},
		{
			name:      "test breaker settings invalid timeout",
			args:      "type=consecutive,host=example.com,timeout=3n,half-open-requests=3",
			wantErr:   true,
			errString: `time: unknown unit "n" in duration "3n"`,
		},
		{
			name:      "test breaker settings invalid failures",
			args:      "type=consecutive,host=example.com,timeout=3s,half-open-requests=3,failures=n",
			wantErr:   true,
			errString: `strconv.Atoi: parsing "n": invalid syntax`,
		},
		{
			name:      "test breaker settings failure rate out of range",
			args:      "type=rate,failure-rate=101",
			wantErr:   true,
			errString: "invalid breaker failure rate: 101, must be between 1 and 100",
		},
		{
			name:      "test breaker settings invalid volume threshold",
			args:      "type=rate,volume-threshold=x",
			wantErr:   true,
			errString: `strconv.Atoi: parsing "x": invalid syntax`,
		},
		{
			name:      "test breaker settings invalid config",
			args:      "type=consecutive,foo=bar",
			wantErr:   true,
			errString: errInvalidBreakerConfig.Error(),
		},
		{
			name:      "test breaker settings missing value",
			args:      "type=consecutive,timeout",
			wantErr:   true,
			errString: errInvalidBreakerConfig.Error(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bp := &breakerFlags{}

			err := bp.Set(tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("breakerFlags.Set() error = %v, wantErr %v", err, tt.wantErr)
			}

			if !tt.wantErr {
				b := *bp
				if len(b) != 1 {
					t.Errorf("Failed to have breaker created: %d != 1", len(b))
				}

				if cmp.Equal(b[0], tt.want) == false {
					t.Errorf("breakerFlags.Set() got v, want v, %v", cmp.Diff(b[0], tt.want))
				}
			} else if tt.errString != err.Error() {
				t.Errorf("Failed to get error string want: %v, got: %v", tt.errString, err)
			}

		})
	}
}

func Test_breakerFlags_SetMultiple(t *testing.T) {
	var b breakerFlags
	if err := b.Set("type=rate,window=10s"); err != nil {
		t.Fatal(err)
	}

	if err := b.Set("type=consecutive,host=example.org,failures=3"); err != nil {
		t.Fatal(err)
	}

	if len(b) != 2 || b[1].Host != "example.org" {
		t.Errorf("failed to collect the breakers: %v", b)
	}
}

func Test_breakerFlags_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		yml     string
		wantErr bool
		want    []circuit.BreakerSettings
	}{
		{
			name: "test breaker settings",
			yml: `type: consecutive
host: example.com
timeout: 3s
half-open-requests: 3`,
			wantErr: false,
			want: []circuit.BreakerSettings{{
				Type:             circuit.ConsecutiveFailures,
				Host:             "example.com",
				Timeout:          3 * time.Second,
				HalfOpenRequests: 3,
			}},
		},
		{
			name: "test breaker settings with window",
			yml: `type: rate
window: 10s
volume-threshold: 5
failure-rate: 50
host: example.com
timeout: 3s`,
			wantErr: false,
			want: []circuit.BreakerSettings{{
				Type:            circuit.FailureRate,
				Host:            "example.com",
				Window:          10 * time.Second,
				VolumeThreshold: 5,
				FailureRate:     50,
				Timeout:         3 * time.Second,
			}},
		},
		{
			name: "test breaker list",
			yml: `- type: rate
  window: 10s
- type: disabled
  host: example.org`,
			wantErr: false,
			want: []circuit.BreakerSettings{{
				Type:   circuit.FailureRate,
				Window: 10 * time.Second,
			}, {
				Type: circuit.BreakerDisabled,
				Host: "example.org",
			}},
		},
		{
			name: "test breaker settings with wrong window",
			yml: `type: rate
window: 4x
host: example.com`,
			wantErr: true,
		},
		{
			name: "test breaker settings invalid type",
			yml: `type: invalid
host: example.com
timeout: 3s
half-open-requests: 3`,
			wantErr: true,
		},
		{
			name: "test breaker settings invalid failure rate",
			yml: `type: rate
failure-rate: 120`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bp := &breakerFlags{}

			if err := yaml.Unmarshal([]byte(tt.yml), bp); (err != nil) != tt.wantErr {
				t.Errorf("breakerFlags.UnmarshalYAML() error = %v, wantErr %v", err, tt.wantErr)
			}

			if !tt.wantErr {
				if cmp.Equal([]circuit.BreakerSettings(*bp), tt.want) == false {
					t.Errorf("breakerFlags.UnmarshalYAML() got v, want v, %v", cmp.Diff([]circuit.BreakerSettings(*bp), tt.want))
				}
			}

		})
	}
}
