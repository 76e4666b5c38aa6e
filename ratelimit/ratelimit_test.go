package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestXForwardedForLookuper(t *testing.T) {
	for _, tt := range []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"remote addr", "1.2.3.4:5678", "", "1.2.3.4"},
		{"first forwarded", "1.2.3.4:5678", "5.6.7.8, 9.9.9.9", "5.6.7.8"},
		{"invalid forwarded", "1.2.3.4:5678", "unknown", "1.2.3.4"},
		{"mapped ipv4", "[::ffff:1.2.3.4]:5678", "", "1.2.3.4"},
		{"no address", "", "", ""},
	} {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: tt.remoteAddr, Header: make(http.Header)}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}

			assert.Equal(t, tt.want, XForwardedForLookuper{}.Lookup(r))
		})
	}
}

func TestSettingsDefaults(t *testing.T) {
	s := Settings{}.withDefaults()
	assert.Equal(t, DefaultMaxHits, s.MaxHits)
	assert.Equal(t, DefaultMaxHits, s.Burst)
	assert.Equal(t, DefaultTimeWindow, s.TimeWindow)
	assert.Equal(t, DefaultCleanInterval, s.CleanInterval)
	assert.IsType(t, XForwardedForLookuper{}, s.Lookuper)

	s = Settings{MaxHits: 10, TimeWindow: 2 * time.Second, Burst: 1}.withDefaults()
	assert.Equal(t, 1, s.Burst)
	assert.InDelta(t, 5.0, float64(s.limit()), 1e-9)
}

func request(addr string) *http.Request {
	r := httptest.NewRequest("GET", "/api/public/campaigns", nil)
	r.RemoteAddr = addr
	return r
}
