package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fundflow/gateway/routing"
)

const routeUsage = `set a route of the gateway, e.g. -route prefix=/api/public,targets=http://public-1:3001;http://public-2:3001,rewrite=/api:
	possible keys:
		id: the route ID used in logs and metrics, defaults to the prefix
		prefix: the path prefix matched by the route
		targets: the upstream base URLs separated by ';', in round robin order
		rewrite: the path rewrite rule in from:to format, an empty to part strips the prefix
		auth: true when the route requires an authenticated user
		timeout: the deadline of the upstream calls until the response headers arrive
	when set, the default routes are not used
	this flag can be used multiple times`

var errInvalidRouteConfig = errors.New("invalid route config")

type routeConfig struct {
	Id      string        `yaml:"id"`
	Prefix  string        `yaml:"prefix"`
	Targets []string      `yaml:"targets"`
	Rewrite string        `yaml:"rewrite"`
	Auth    bool          `yaml:"auth"`
	Timeout time.Duration `yaml:"timeout"`
}

type routeFlags []*routing.Route

func (rc routeConfig) route() (*routing.Route, error) {
	if rc.Prefix == "" || len(rc.Targets) == 0 {
		return nil, fmt.Errorf("%w: prefix and targets are required", errInvalidRouteConfig)
	}

	rule, err := routing.ParseRule(rc.Rewrite)
	if err != nil {
		return nil, err
	}

	return &routing.Route{
		Id:           rc.Id,
		Prefix:       rc.Prefix,
		Targets:      rc.Targets,
		Rewrite:      rule,
		AuthRequired: rc.Auth,
		Timeout:      rc.Timeout,
	}, nil
}

func routeString(r *routing.Route) string {
	ss := []string{"prefix=" + r.Prefix, "targets=" + strings.Join(r.Targets, ";")}
	if r.Id != "" {
		ss = append([]string{"id=" + r.Id}, ss...)
	}

	if rw := r.Rewrite.String(); rw != "" {
		ss = append(ss, "rewrite="+rw)
	}

	if r.AuthRequired {
		ss = append(ss, "auth=true")
	}

	if r.Timeout > 0 {
		ss = append(ss, "timeout="+r.Timeout.String())
	}

	return strings.Join(ss, ",")
}

func (r routeFlags) String() string {
	s := make([]string, len(r))
	for i, ri := range r {
		s[i] = routeString(ri)
	}

	return strings.Join(s, "\n")
}

func (r *routeFlags) Set(value string) error {
	var rc routeConfig
	for _, vi := range strings.Split(value, ",") {
		k, v, found := strings.Cut(vi, "=")
		if !found {
			return fmt.Errorf("%w: %q", errInvalidRouteConfig, vi)
		}

		var err error
		switch k {
		case "id":
			rc.Id = v
		case "prefix":
			rc.Prefix = v
		case "targets":
			rc.Targets = strings.Split(v, ";")
		case "rewrite":
			rc.Rewrite = v
		case "auth":
			rc.Auth, err = strconv.ParseBool(v)
		case "timeout":
			rc.Timeout, err = time.ParseDuration(v)
		default:
			return fmt.Errorf("%w: unknown key %q", errInvalidRouteConfig, k)
		}

		if err != nil {
			return err
		}
	}

	route, err := rc.route()
	if err != nil {
		return err
	}

	*r = append(*r, route)
	return nil
}

func (r *routeFlags) UnmarshalYAML(unmarshal func(any) error) error {
	var rcs []routeConfig
	if err := unmarshal(&rcs); err != nil {
		return err
	}

	for _, rc := range rcs {
		route, err := rc.route()
		if err != nil {
			return err
		}

		*r = append(*r, route)
	}

	return nil
}
