/*
Package ratelimit implements the client rate limiting of the gateway.

It provides per process rate limiting, a token bucket per client. The
client is looked up by the first address of the X-Forwarded-For header,
or the remote IP of the request, when the header is not set. Requests of
excluded networks are never limited.

Rate limited requests are answered with 429 Too Many Requests and a
Retry-After header, in seconds.

Usage

The following command starts the gateway with rate limiting allowing 20
requests per second and client, with bursts up to 40 requests:

	gateway -enable-ratelimits -ratelimit-max-hits 20 -ratelimit-time-window 1s -ratelimit-burst 40

Idle buckets are removed after the clean interval, a client returning
after that starts with a full bucket.
*/
package ratelimit
