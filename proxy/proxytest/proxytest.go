// Package proxytest starts a gateway proxy on a test server.
package proxytest

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"

	"github.com/fundflow/gateway/circuit"
	"github.com/fundflow/gateway/logging/loggingtest"
	"github.com/fundflow/gateway/proxy"
	"github.com/fundflow/gateway/routing"
)

type TestProxy struct {
	URL  string
	Port string
	Log  *loggingtest.TestLogger

	Health   *routing.EndpointRegistry
	Breakers *circuit.Registry

	proxy  *proxy.Proxy
	server *httptest.Server
}

type TestClient struct {
	*http.Client
}

type Config struct {
	Routes []*routing.Route

	// Breaker is the default breaker of the targets. The breakers are
	// disabled when not set.
	Breaker circuit.BreakerSettings

	// ProxyParams are completed with the routes, the health registry,
	// the breakers and the logger.
	ProxyParams proxy.Params
}

func New(routes ...*routing.Route) *TestProxy {
	return Config{Routes: routes}.Create()
}

func (c Config) CreateUnstarted() *TestProxy {
	table, err := routing.NewTable(c.Routes...)
	if err != nil {
		panic(err)
	}

	if c.Breaker.Type == circuit.BreakerNone {
		c.Breaker.Type = circuit.BreakerDisabled
	}

	health := routing.NewEndpointRegistry(table.Targets()...)
	breakers, err := circuit.NewRegistry(circuit.Options{
		Defaults:      c.Breaker,
		OnStateChange: []circuit.StateChangeFunc{proxy.HealthUpdater(health)},
	}, table.Targets()...)
	if err != nil {
		panic(err)
	}

	tl := loggingtest.New()
	c.ProxyParams.Routes = table
	c.ProxyParams.Health = health
	c.ProxyParams.Breakers = breakers
	c.ProxyParams.Log = tl

	pr := proxy.WithParams(c.ProxyParams)
	tsp := httptest.NewUnstartedServer(pr)
	_, port, _ := net.SplitHostPort(tsp.Listener.Addr().String())

	return &TestProxy{
		Port:     port,
		Log:      tl,
		Health:   health,
		Breakers: breakers,
		proxy:    pr,
		server:   tsp,
	}
}

func (p *TestProxy) Start() {
	p.server.Start()
	p.URL = p.server.URL
}

func (c Config) Create() *TestProxy {
	p := c.CreateUnstarted()
	p.Start()
	return p
}

func (p *TestProxy) Client() *TestClient {
	return &TestClient{p.server.Client()}
}

func (p *TestProxy) Close() error {
	p.Log.Close()
	p.server.Close()
	return nil
}

// GetBody issues a GET to the specified URL, reads and closes response body and
// returns response, response body bytes and error if any.
func (c *TestClient) GetBody(url string) (rsp *http.Response, body []byte, err error) {
	rsp, err = c.Get(url)
	if err != nil {
		return
	}
	defer rsp.Body.Close()

	body, err = io.ReadAll(rsp.Body)
	return
}
