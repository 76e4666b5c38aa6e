/*
Package routing maps incoming request paths to the statically configured
upstream pools of the gateway.

# Route Table

A route is identified by its path prefix. The table is built once at
startup and never changes afterwards. When more than one prefix matches a
request path, the longest prefix wins, and a prefix only matches at a path
segment boundary:

	/api/auth     matches /api/auth and /api/auth/login
	/api/auth     does not match /api/authors

When no prefix matches, Resolve returns ErrRouteNotFound. The gateway never
falls back to an arbitrary pool.

# Path Rewrite

Every route carries a rewrite rule applied to the outgoing request path. A
rule replaces a leading path prefix with another one, or strips it when the
replacement is empty:

	{From: "/api"}                    /api/public/campaigns -> /public/campaigns
	{From: "/api/auth", To: "/auth"}  /api/auth/login       -> /auth/login

# Endpoint Registry

The EndpointRegistry keeps the health flag of every upstream target, plus a
few request counters used for diagnostics. Targets are healthy by default.
The circuit breakers are the writers of the health flag, the load balancer
only reads it.
*/
package routing
