/*
Package gateway provides the API gateway of the fundflow services: an
HTTP reverse proxy forwarding the requests of the clients to the pools of
upstream services, based on a static route table.

The gateway matches the request path against the routes by longest
prefix, authenticates the requests of the protected routes, selects a
healthy target of the route round robin and forwards the request through
the circuit breaker of the target. Targets failing repeatedly are taken
out of the rotation by their breaker, and get back after a successful
trial call.

# Quickstart

Build and start the gateway with the default routes:

	go build ./cmd/gateway
	./gateway \
		-public-targets http://localhost:3001 \
		-auth-targets http://localhost:3002 \
		-private-targets http://localhost:3003 \
		-jwt-secret-file /run/secrets/jwt

The default routes are:

	/api/public   -> public targets,  /api/public/x -> /public/x
	/api/auth     -> auth targets,    /api/auth/x   -> /auth/x
	/api/private  -> private targets, /api/private/x -> /private/x, requires a bearer token

Custom routes can be set with the -route flag, or in a YAML config file
passed with -config-file:

	route:
	- prefix: /api/public
	  targets: [http://public-1:3001, http://public-2:3001]
	  rewrite: "/api:"
	breaker:
	- type: rate
	  window: 10s
	  volume-threshold: 5
	  failure-rate: 50
	  timeout: 30s

# Support Endpoints

The support listener, :9911 by default, serves the Prometheus metrics on
/metrics, the liveness of the gateway on /healthz, and the health and
circuit breaker state of every target on /targets.

# Packages

The proxy package contains the request pipeline, the routing package the
route table and the health registry of the targets, the circuit package
the circuit breakers, and the loadbalancer package the round robin
algorithm and the health monitor. The config package parses the command
line flags and the config file into the Options of this package.
*/
package gateway
