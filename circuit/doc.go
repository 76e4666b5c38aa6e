/*
Package circuit implements the per-target circuit breakers of the gateway.

Every upstream target gets exactly one breaker, created at startup by the
Registry. The outcome of calls to one target never affects the breaker of
another target.

# Breaker Type - Failure Rate

The default breaker. It counts the outcome of the calls in a time based
rolling window. The window is split into buckets, and buckets older than the
window are evicted lazily, when the window is read or written.

In the closed state, every call is let through. When the window contains at
least volume-threshold calls, and the percentage of failed calls reaches
failure-rate, the breaker opens. An open breaker rejects all calls with
ErrCircuitOpen. The first call arriving after the timeout moves the breaker
into the half-open state, there is no timer behind this transition. In the
half-open state, at most half-open-requests trial calls are let through
concurrently, the rest is rejected. The first successful trial closes the
breaker and resets the window, the first failed trial opens it again.

# Breaker Type - Consecutive Failures

This breaker opens when N calls failed in a row, where N is the failures
setting. When open, it rejects the calls during the configured timeout. After
the timeout, it lets half-open-requests calls through, and closes only when
all of them succeed. It is backed by github.com/sony/gobreaker.

# Failures

The breakers don't decide what a failure is. The proxy reports the outcome
of a call: connection errors, timeouts and client disconnects are failures,
any response received from the upstream, including 5xx responses, is a
success.

# Usage

The breaker settings are passed to the gateway as command line flags or in
the config file. Settings with an empty host are the defaults, settings with
a host override the defaults for that target:

	gateway -breaker type=rate,window=10s,volume-threshold=5,failure-rate=50,timeout=30s \
		-breaker host=http://campaign-1:3002,failure-rate=30

# Settings

type: consecutive, rate or disabled. A disabled breaker never rejects.

host: the target the settings apply to, as configured in the routes.

window: duration of the rolling window of the rate breaker, e.g. 10s.

volume-threshold: minimum number of calls in the window before the rate
breaker may open.

failure-rate: failure percentage, between 1 and 100, opening the rate
breaker.

failures: number of consecutive failures opening the consecutive breaker.

timeout: how long the breaker stays open before letting trial calls through.

half-open-requests: number of concurrent trial calls in the half-open state.

# State Changes

The registry calls the OnStateChange hooks while the breaker holds its lock,
so that observers, like the endpoint health registry, see the transitions in
order. Hooks must not call back into the breaker.
*/
package circuit
