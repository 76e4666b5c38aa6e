package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleApply(t *testing.T) {
	for _, tt := range []struct {
		name string
		rule Rule
		path string
		want string
	}{
		{"strip api", StripPrefix("/api"), "/api/public/campaigns", "/public/campaigns"},
		{"strip api private", StripPrefix("/api"), "/api/private/campaigns/42", "/private/campaigns/42"},
		{"replace auth", ReplacePrefix("/api/auth", "/auth"), "/api/auth/login", "/auth/login"},
		{"replace exact", ReplacePrefix("/api/auth", "/auth"), "/api/auth", "/auth"},
		{"strip everything", StripPrefix("/api"), "/api", "/"},
		{"no segment match", StripPrefix("/api"), "/apis/x", "/apis/x"},
		{"no match", StripPrefix("/api"), "/other", "/other"},
		{"empty rule", Rule{}, "/api/x", "/api/x"},
		{"trailing slash in rule", StripPrefix("/api/"), "/api/x", "/x"},
		{"replace with relative", Rule{From: "/api", To: "v1"}, "/api/x", "/v1/x"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.Apply(tt.path))
		})
	}
}

func TestParseRule(t *testing.T) {
	r, err := ParseRule("/api/auth:/auth")
	require.NoError(t, err)
	assert.Equal(t, ReplacePrefix("/api/auth", "/auth"), r)
	assert.Equal(t, "/api/auth:/auth", r.String())

	r, err = ParseRule("/api:")
	require.NoError(t, err)
	assert.Equal(t, StripPrefix("/api"), r)

	r, err = ParseRule("/api")
	require.NoError(t, err)
	assert.Equal(t, StripPrefix("/api"), r)

	r, err = ParseRule("")
	require.NoError(t, err)
	assert.Equal(t, Rule{}, r)
	assert.Equal(t, "", r.String())

	_, err = ParseRule("api:/x")
	assert.Error(t, err)

	_, err = ParseRule("/api:x")
	assert.Error(t, err)
}

func TestCleanPath(t *testing.T) {
	for _, tt := range []struct {
		path string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"/api/public/campaigns", "/api/public/campaigns"},
		{"/api/public/", "/api/public/"},
		{"/api/public/../private/campaigns/42", "/api/private/campaigns/42"},
		{"/api/public/./campaigns", "/api/public/campaigns"},
		{"/api//public", "/api/public"},
		{"/api/public/..", "/api"},
		{"/../../etc/passwd", "/etc/passwd"},
		{"api/public", "/api/public"},
	} {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanPath(tt.path))
		})
	}
}
