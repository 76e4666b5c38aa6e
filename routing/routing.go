package routing

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

// Route binds a path prefix to a pool of upstream targets.
type Route struct {
	// Id is used in logs and metrics. Defaults to the prefix.
	Id string

	// Prefix is matched against the request path on segment boundaries.
	Prefix string

	// Targets contains the base URLs of the upstream pool, e.g.
	// http://campaign-1:3002. The order is significant for the round
	// robin load balancing.
	Targets []string

	// Rewrite is applied to the path of the outgoing request.
	Rewrite Rule

	// AuthRequired marks the routes that need an authenticated principal
	// before being proxied.
	AuthRequired bool

	// Timeout is the deadline of a single upstream call, until the
	// response headers are received. Zero means the gateway default.
	Timeout time.Duration
}

// String returns a short representation of the route used in logs.
func (r *Route) String() string {
	return r.Prefix + " -> [" + strings.Join(r.Targets, ", ") + "]"
}

// Table holds the routes of the gateway sorted by matching priority.
type Table struct {
	routes []*Route
}

// NewTable validates the routes and creates a lookup table. Routes are
// copied, later changes of the arguments don't affect the table.
func NewTable(routes ...*Route) (*Table, error) {
	seen := make(map[string]bool)
	rs := make([]*Route, 0, len(routes))
	for _, r := range routes {
		rc, err := validate(r)
		if err != nil {
			return nil, err
		}

		if seen[rc.Prefix] {
			return nil, invalidRoute(errDuplicatePrefix, rc.Prefix, "prefix configured more than once")
		}

		seen[rc.Prefix] = true
		rs = append(rs, rc)
	}

	// longest prefix first, registration order otherwise
	sort.SliceStable(rs, func(i, j int) bool {
		return len(rs[i].Prefix) > len(rs[j].Prefix)
	})

	return &Table{routes: rs}, nil
}

func validate(r *Route) (*Route, error) {
	if r.Prefix == "" {
		return nil, invalidRoute(errEmptyPrefix, r.Id, "missing prefix")
	}

	if !strings.HasPrefix(r.Prefix, "/") {
		return nil, invalidRoute(errInvalidPrefix, r.Prefix, "prefix must start with /")
	}

	if len(r.Targets) == 0 {
		return nil, invalidRoute(errNoTargets, r.Prefix, "at least one target is required")
	}

	if r.Timeout < 0 {
		return nil, invalidRoute(errInvalidTimeout, r.Prefix, "negative timeout %v", r.Timeout)
	}

	rc := *r
	rc.Prefix = normalizePrefix(r.Prefix)
	if rc.Id == "" {
		rc.Id = rc.Prefix
	}

	rc.Targets = make([]string, len(r.Targets))
	for i, t := range r.Targets {
		nt, err := NormalizeTarget(t)
		if err != nil {
			return nil, invalidRoute(errInvalidTarget, rc.Prefix, "%v", err)
		}

		rc.Targets[i] = nt
	}

	return &rc, nil
}

// NormalizeTarget validates a target base URL and returns its canonical
// form used as the target identifier.
func NormalizeTarget(t string) (string, error) {
	u, err := url.ParseRequestURI(t)
	if err != nil {
		return "", err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", invalidDefinitionError("unsupported scheme in target " + t)
	}

	if u.Host == "" {
		return "", invalidDefinitionError("missing host in target " + t)
	}

	if u.RawQuery != "" || u.Fragment != "" {
		return "", invalidDefinitionError("query or fragment not allowed in target " + t)
	}

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u.String(), nil
}

// Resolve returns the route with the most specific prefix matching the
// path, or ErrRouteNotFound.
func (t *Table) Resolve(path string) (*Route, error) {
	for _, r := range t.routes {
		if hasPathPrefix(path, r.Prefix) {
			return r, nil
		}
	}

	return nil, ErrRouteNotFound
}

// Routes returns the routes in matching order.
func (t *Table) Routes() []*Route {
	return append([]*Route(nil), t.routes...)
}

// Targets returns every distinct target of the table, in the order of
// their first appearance.
func (t *Table) Targets() []string {
	var targets []string
	seen := make(map[string]bool)
	for _, r := range t.routes {
		for _, target := range r.Targets {
			if !seen[target] {
				seen[target] = true
				targets = append(targets, target)
			}
		}
	}

	return targets
}
