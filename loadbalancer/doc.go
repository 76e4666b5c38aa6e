/*
Package loadbalancer implements the target selection of the gateway and the
health monitor of the unhealthy targets.

roundRobin Algorithm

	The round robin algorithm selects the targets of a route in their
	configured order, skipping the targets marked unhealthy in the
	endpoint registry. It keeps a counter for each set of healthy
	targets, keyed by the sorted set, so a change in the healthy set
	restarts the selection from the first healthy target. When no
	target is healthy, the selection fails with ErrNoHealthyTarget.

Health Monitor

	The monitor runs in the background and, on every interval, sends a
	GET request to the liveness path of the targets marked unhealthy.
	It never starts a probe for a target while a previous one is still
	in flight. The outcome of the probes doesn't change the health of
	the targets: a target becomes healthy again only when the trial
	call of its circuit breaker succeeds. With prewarm enabled, a
	successful probe lets the next live call through as a trial
	without waiting for the breaker timeout.
*/
package loadbalancer
