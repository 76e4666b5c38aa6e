package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"github.com/fundflow/gateway/routing"
)

func TestRouteFlagsSet(t *testing.T) {
	for _, tt := range []struct {
		name    string
		args    string
		want    *routing.Route
		wantErr bool
	}{{
		name: "public route",
		args: "prefix=/api/public,targets=http://public-1:3001;http://public-2:3001,rewrite=/api:",
		want: &routing.Route{
			Prefix:  "/api/public",
			Targets: []string{"http://public-1:3001", "http://public-2:3001"},
			Rewrite: routing.StripPrefix("/api"),
		},
	}, {
		name: "private route",
		args: "id=private,prefix=/api/private,targets=http://private-1:3003,rewrite=/api:,auth=true,timeout=5s",
		want: &routing.Route{
			Id:           "private",
			Prefix:       "/api/private",
			Targets:      []string{"http://private-1:3003"},
			Rewrite:      routing.StripPrefix("/api"),
			AuthRequired: true,
			Timeout:      5 * time.Second,
		},
	}, {
		name: "replace prefix",
		args: "prefix=/api/auth,targets=http://auth-1:3002,rewrite=/api/auth:/auth",
		want: &routing.Route{
			Prefix:  "/api/auth",
			Targets: []string{"http://auth-1:3002"},
			Rewrite: routing.ReplacePrefix("/api/auth", "/auth"),
		},
	}, {
		name:    "missing targets",
		args:    "prefix=/api/public",
		wantErr: true,
	}, {
		name:    "unknown key",
		args:    "prefix=/api/public,targets=http://a,foo=bar",
		wantErr: true,
	}, {
		name:    "missing value",
		args:    "prefix",
		wantErr: true,
	}, {
		name:    "invalid auth",
		args:    "prefix=/api,targets=http://a,auth=maybe",
		wantErr: true,
	}, {
		name:    "invalid timeout",
		args:    "prefix=/api,targets=http://a,timeout=5",
		wantErr: true,
	}, {
		name:    "invalid rewrite",
		args:    "prefix=/api,targets=http://a,rewrite=api:",
		wantErr: true,
	}} {
		t.Run(tt.name, func(t *testing.T) {
			var r routeFlags
			err := r.Set(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Len(t, r, 1)
			assert.Equal(t, tt.want, r[0])
		})
	}
}

func TestRouteFlagsErrors(t *testing.T) {
	var r routeFlags
	err := r.Set("prefix=/api")
	assert.True(t, errors.Is(err, errInvalidRouteConfig))
}

func TestRouteFlagsString(t *testing.T) {
	var r routeFlags
	require.NoError(t, r.Set("prefix=/api/public,targets=http://a;http://b,rewrite=/api:"))
	require.NoError(t, r.Set("id=private,prefix=/api/private,targets=http://c,auth=true,timeout=5s"))

	assert.Equal(t,
		"prefix=/api/public,targets=http://a;http://b,rewrite=/api:\n"+
			"id=private,prefix=/api/private,targets=http://c,auth=true,timeout=5s",
		r.String(),
	)
}

func TestRouteFlagsUnmarshalYAML(t *testing.T) {
	const routes = `- prefix: /api/public
  targets: [http://public-1:3001, http://public-2:3001]
  rewrite: "/api:"
- id: private
  prefix: /api/private
  targets: [http://private-1:3003]
  rewrite: "/api:"
  auth: true
  timeout: 2s`

	var r routeFlags
	require.NoError(t, yaml.Unmarshal([]byte(routes), &r))
	require.Len(t, r, 2)

	assert.Equal(t, "/api/public", r[0].Prefix)
	assert.Equal(t, routing.StripPrefix("/api"), r[0].Rewrite)
	assert.Equal(t, []string{"http://public-1:3001", "http://public-2:3001"}, r[0].Targets)
	assert.True(t, r[1].AuthRequired)
	assert.Equal(t, 2*time.Second, r[1].Timeout)

	var invalid routeFlags
	assert.Error(t, yaml.Unmarshal([]byte("- prefix: /api"), &invalid))
}
