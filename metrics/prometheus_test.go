package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fundflow/gateway/metrics"
)

func TestPrometheusMetrics(t *testing.T) {
	tests := []struct {
		name       string
		opts       metrics.Options
		addMetrics func(*metrics.Prometheus)
		expMetrics []string
		expCode    int
	}{
		{
			name: "Incrementing the routing failures should get the total of routing failures.",
			addMetrics: func(pm *metrics.Prometheus) {
				pm.IncRoutingFailures()
				pm.IncRoutingFailures()
				pm.IncRoutingFailures()
			},
			expMetrics: []string{
				`gateway_route_error_total 3`,
			},
			expCode: http.StatusOK,
		},
		{
			name: "Incrementing the backend failures should get the total of backend failures.",
			addMetrics: func(pm *metrics.Prometheus) {
				pm.IncErrorsBackend("http://campaign-1:3002")
				pm.IncErrorsBackend("http://campaign-2:3002")
				pm.IncErrorsBackend("http://campaign-1:3002")
			},
			expMetrics: []string{
				`gateway_backend_error_total{target="http://campaign-1:3002"} 2`,
				`gateway_backend_error_total{target="http://campaign-2:3002"} 1`,
			},
			expCode: http.StatusOK,
		},
		{
			name: "Measuring the backend should get the duration of the upstream calls.",
			addMetrics: func(pm *metrics.Prometheus) {
				pm.MeasureBackend("http://auth:3001", time.Now().Add(-15*time.Millisecond))
				pm.MeasureBackend("http://auth:3001", time.Now().Add(-3*time.Millisecond))
			},
			expMetrics: []string{
				`gateway_backend_duration_seconds_bucket{target="http://auth:3001",le="0.005"} 1`,
				`gateway_backend_duration_seconds_bucket{target="http://auth:3001",le="0.01"} 1`,
				`gateway_backend_duration_seconds_bucket{target="http://auth:3001",le="0.025"} 2`,
				`gateway_backend_duration_seconds_bucket{target="http://auth:3001",le="+Inf"} 2`,
				`gateway_backend_duration_seconds_count{target="http://auth:3001"} 2`,
			},
			expCode: http.StatusOK,
		},
		{
			name: "Measuring the serve time should get the duration and the count by route.",
			addMetrics: func(pm *metrics.Prometheus) {
				pm.MeasureServe("public", "GET", 200, time.Now().Add(-15*time.Millisecond))
				pm.MeasureServe("public", "GET", 200, time.Now().Add(-3*time.Millisecond))
				pm.MeasureServe("private", "WHATEVER", 503, time.Now().Add(-3*time.Millisecond))
			},
			expMetrics: []string{
				`gateway_serve_route_duration_seconds_count{code="200",method="GET",route="public"} 2`,
				`gateway_serve_route_count{code="200",method="GET",route="public"} 2`,
				`gateway_serve_route_count{code="503",method="_unknownmethod_",route="private"} 1`,
			},
			expCode: http.StatusOK,
		},
		{
			name: "Breaker state and transitions.",
			addMetrics: func(pm *metrics.Prometheus) {
				pm.SetBreakerState("http://campaign-1:3002", 2)
				pm.SetBreakerState("http://campaign-2:3002", 0)
				pm.IncBreakerTransition("http://campaign-1:3002", "closed", "open")
			},
			expMetrics: []string{
				`gateway_breaker_state{target="http://campaign-1:3002"} 2`,
				`gateway_breaker_state{target="http://campaign-2:3002"} 0`,
				`gateway_breaker_transition_total{from="closed",target="http://campaign-1:3002",to="open"} 1`,
			},
			expCode: http.StatusOK,
		},
		{
			name: "Health probes and rate limited requests.",
			addMetrics: func(pm *metrics.Prometheus) {
				pm.IncHealthProbe("http://campaign-1:3002", true)
				pm.IncHealthProbe("http://campaign-1:3002", false)
				pm.IncHealthProbe("http://campaign-1:3002", false)
				pm.IncRatelimited("public")
			},
			expMetrics: []string{
				`gateway_health_probe_total{result="failure",target="http://campaign-1:3002"} 2`,
				`gateway_health_probe_total{result="success",target="http://campaign-1:3002"} 1`,
				`gateway_ratelimit_rejected_total{route="public"} 1`,
			},
			expCode: http.StatusOK,
		},
		{
			name: "Custom prefix.",
			opts: metrics.Options{Prefix: "fundflow."},
			addMetrics: func(pm *metrics.Prometheus) {
				pm.IncRoutingFailures()
			},
			expMetrics: []string{
				`fundflow_route_error_total 1`,
			},
			expCode: http.StatusOK,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			pm := metrics.NewPrometheus(test.opts)
			path := "/awesome-metrics"

			// Create the muxer and register as handler on the Metrics service.
			mux := http.NewServeMux()
			pm.RegisterHandler(path, mux)

			// Add the required metrics.
			test.addMetrics(pm)

			// Make the request to the metrics.
			req := httptest.NewRequest("GET", path, nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			// Check.
			resp := w.Result()
			if test.expCode != resp.StatusCode {
				t.Errorf("metrics service returned an incorrect status code, should be: %d, got: %d", test.expCode, resp.StatusCode)
			} else {
				body, _ := io.ReadAll(resp.Body)
				// Check all the metrics are present.
				for _, expMetric := range test.expMetrics {
					if ok := strings.Contains(string(body), expMetric); !ok {
						t.Errorf("'%s' metric not present on the result of metrics service", expMetric)
					}
				}
			}
		})
	}
}
