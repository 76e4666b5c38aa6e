/*
Package proxy implements the HTTP reverse proxy of the gateway, based on
the static route table.

# Proxy Mechanism

1. route matching:

The request path is matched against the route table, the route with the
longest matching prefix wins. When no route matches, the proxy responds
with 502 Bad Gateway.

2. authentication:

Routes marked as requiring authentication pass the request to the
authentication gate. Rejected requests get 401 Unauthorized. The user of
the accepted ones is forwarded to the upstream in the X-User-ID header.

3. rate limiting:

When enabled, the clients exceeding their rate get 429 Too Many
Requests, with a Retry-After header.

4. target selection:

The load balancer selects the next healthy target of the route, round
robin. When every target is unhealthy, the proxy responds with 503
Service Unavailable and a retry hint. A target marked unhealthy by its
circuit breaker becomes selectable again when the reset timeout of the
breaker elapsed, for a single trial call.

5. circuit breaking:

The call to the target has to be allowed by the circuit breaker of the
target. Rejected calls get 503 Service Unavailable and a retry hint.

6. upstream request:

The executor rewrites the path of the request, removes the hop-by-hop
headers, sets X-Forwarded-For, X-Request-ID, X-Gateway-Timestamp and the
trace context headers, and calls the target with the deadline of the
route. Failed connections and timeouts are answered with 502 Bad Gateway
and a retry hint.

7. downstream response:

The response of the target is streamed to the client, flushing after
each read. The response gets X-Gateway-Timestamp and
X-Gateway-Response-Time, in milliseconds. The outcome of the call is
reported to the circuit breaker after the streaming finished: failed
connections, timeouts and disconnected clients count as failures, every
upstream response, regardless of its status, counts as success.

# Error Responses

The errors generated by the gateway are sent as JSON:

	{"error": "no healthy target", "retry": true}

The retry field is omitted when the request should not be retried.
Nothing is sent when the client has disconnected, the access log
records these requests with the status 499. An error after the
response headers were sent aborts the response.
*/
package proxy
