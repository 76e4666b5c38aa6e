/*
Package metrics implements collection of the gateway performance metrics.

It uses the Prometheus Go client:

https://github.com/prometheus/client_golang

The collected metrics include the total request serving time per route,
the time waiting for the upstream targets, the number of upstream errors
and routing failures, the state and the transitions of the circuit
breakers, the health probe outcomes and the rate limited requests.

# Options

The metrics are exposed on the support listener of the gateway, under the
/metrics path. Runtime and process collectors are registered only when
enabled in the options.
*/
package metrics
