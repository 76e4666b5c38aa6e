package loadbalancer

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/fundflow/gateway/circuit"
	"github.com/fundflow/gateway/metrics"
	"github.com/fundflow/gateway/routing"
)

const (
	DefaultHealthCheckInterval = 30 * time.Second
	DefaultHealthCheckTimeout  = 2 * time.Second
	DefaultHealthCheckPath     = "/health"

	maxProbeBody = 1 << 16
)

// MonitorOptions configure the health Monitor.
type MonitorOptions struct {
	// Interval between two probe rounds. Defaults to 30s.
	Interval time.Duration

	// Timeout of a single probe. Defaults to 2s.
	Timeout time.Duration

	// Path of the liveness endpoint of the targets. Defaults to /health.
	Path string

	// StatusField, when set, is looked up in JSON probe responses with
	// gjson path syntax. The values down, unhealthy and error fail the
	// probe.
	StatusField string

	// Prewarm makes the next live call to a target with an open breaker
	// a trial call, after a successful probe.
	Prewarm bool

	// Transport used for the probes. Defaults to a dedicated transport
	// with short timeouts.
	Transport http.RoundTripper

	Metrics metrics.Metrics
}

// Monitor probes the targets marked unhealthy in the endpoint registry.
//
// The probe results are logged and counted in the metrics, but they never
// change the registry or the breakers. The recovery of a target happens only
// through a successful trial call of its breaker.
type Monitor struct {
	options   MonitorOptions
	health    *routing.EndpointRegistry
	breakers  *circuit.Registry
	client    *http.Client
	transport *http.Transport
	log       *log.Entry

	mx       sync.Mutex
	inflight map[string]bool
	idle     *sync.Cond

	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

func newTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   500 * time.Millisecond,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   500 * time.Millisecond,
		ResponseHeaderTimeout: time.Second,
		ExpectContinueTimeout: 500 * time.Millisecond,
		MaxIdleConns:          20, // 0 -> no limit
		MaxIdleConnsPerHost:   1,  // http.DefaultMaxIdleConnsPerHost=2
		IdleConnTimeout:       10 * time.Second,
	}
}

// NewMonitor creates a monitor. It doesn't probe until started.
func NewMonitor(o MonitorOptions, health *routing.EndpointRegistry, breakers *circuit.Registry) *Monitor {
	if o.Interval <= 0 {
		o.Interval = DefaultHealthCheckInterval
	}

	if o.Timeout <= 0 {
		o.Timeout = DefaultHealthCheckTimeout
	}

	if o.Path == "" {
		o.Path = DefaultHealthCheckPath
	}

	if !strings.HasPrefix(o.Path, "/") {
		o.Path = "/" + o.Path
	}

	if o.Metrics == nil {
		o.Metrics = metrics.Void{}
	}

	m := &Monitor{
		options:  o,
		health:   health,
		breakers: breakers,
		log:      log.WithField("package", "loadbalancer"),
		inflight: make(map[string]bool),
		cancel:   func() {},
	}

	m.idle = sync.NewCond(&m.mx)

	rt := o.Transport
	if rt == nil {
		m.transport = newTransport()
		rt = m.transport
	}

	m.client = &http.Client{Transport: rt, Timeout: o.Timeout}
	return m
}

// Start runs the probe rounds in the background, until the context is
// canceled or the monitor is closed.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.options.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.Check(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close stops the monitor and waits for the running probes to return.
func (m *Monitor) Close() {
	m.once.Do(func() {
		m.cancel()
		m.wg.Wait()
		if m.transport != nil {
			m.transport.CloseIdleConnections()
		}
	})
}

func (m *Monitor) begin(target string) bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.inflight[target] {
		return false
	}

	m.inflight[target] = true
	return true
}

func (m *Monitor) end(target string) {
	m.mx.Lock()
	defer m.mx.Unlock()
	delete(m.inflight, target)
	if len(m.inflight) == 0 {
		m.idle.Broadcast()
	}
}

// Check starts a probe for every unhealthy target that doesn't have one in
// flight, and returns the targets it started probing.
func (m *Monitor) Check(ctx context.Context) []string {
	var started []string
	for _, target := range m.health.Unhealthy() {
		if !m.begin(target) {
			m.log.Debugf("Skipping health probe of %s, previous probe still in flight", target)
			continue
		}

		started = append(started, target)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			defer m.end(target)
			m.checkTarget(ctx, target)
		}()
	}

	return started
}

// Wait blocks until the probes started so far return.
func (m *Monitor) Wait() {
	m.mx.Lock()
	defer m.mx.Unlock()
	for len(m.inflight) > 0 {
		m.idle.Wait()
	}
}

func (m *Monitor) checkTarget(ctx context.Context, target string) {
	err := m.probe(ctx, target)
	m.options.Metrics.IncHealthProbe(target, err == nil)
	if err != nil {
		m.log.Infof("Health probe of %s failed: %v", target, err)
		return
	}

	m.log.Infof("Health probe of %s succeeded, waiting for a trial call to close the breaker", target)
	if !m.options.Prewarm || m.breakers == nil {
		return
	}

	if b := m.breakers.Get(target); b != nil && b.Expire() {
		m.log.Infof("Circuit breaker of %s expired, the next call is a trial", target)
	}
}

func (m *Monitor) probe(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", target+m.options.Path, nil)
	if err != nil {
		return err
	}

	rsp, err := m.client.Do(req)
	if err != nil {
		return err
	}

	defer rsp.Body.Close()
	if rsp.StatusCode < 200 || rsp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", rsp.StatusCode)
	}

	if m.options.StatusField == "" {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(rsp.Body, maxProbeBody))
	if err != nil {
		return err
	}

	if !gjson.ValidBytes(body) {
		return nil
	}

	status := gjson.GetBytes(body, m.options.StatusField)
	if !status.Exists() {
		return nil
	}

	switch strings.ToLower(status.String()) {
	case "down", "unhealthy", "error":
		return fmt.Errorf("reported status: %s", status.String())
	}

	return nil
}
