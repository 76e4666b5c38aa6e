package ratelimit

import (
	"fmt"
	"net/http"
	"time"

	"go4.org/netipx"
	"golang.org/x/time/rate"

	"github.com/fundflow/gateway/net"
)

const (
	// RetryAfterHeader is name of the header which will be used to indicate how
	// long a client should wait before making a new request
	RetryAfterHeader = "Retry-After"

	DefaultMaxHits       = 20
	DefaultTimeWindow    = 1 * time.Second
	DefaultCleanInterval = 60 * time.Second
)

// Lookuper makes it possible to be more flexible for ratelimiting.
type Lookuper interface {
	// Lookup returns the key of the bucket of the request. An empty key
	// is never limited.
	Lookup(*http.Request) string
}

// XForwardedForLookuper implements Lookuper interface and will
// select a bucket by X-Forwarded-For header or clientIP.
type XForwardedForLookuper struct{}

// Lookup returns the first address of the X-Forwarded-For header or
// the clientIP if not set.
func (XForwardedForLookuper) Lookup(req *http.Request) string {
	addr := net.RemoteAddr(req)
	if !addr.IsValid() {
		return ""
	}

	return addr.Unmap().String()
}

// Settings configures the rate limiter
type Settings struct {
	// MaxHits requests are allowed per TimeWindow.
	MaxHits int

	TimeWindow time.Duration

	// Burst is the size of the bucket, defaults to MaxHits.
	Burst int

	// CleanInterval is the idle time, after which the bucket of a
	// client is removed.
	CleanInterval time.Duration

	// Exclude lists the networks which are never limited.
	Exclude *netipx.IPSet

	Lookuper Lookuper
}

func (s Settings) withDefaults() Settings {
	if s.MaxHits <= 0 {
		s.MaxHits = DefaultMaxHits
	}

	if s.TimeWindow <= 0 {
		s.TimeWindow = DefaultTimeWindow
	}

	if s.Burst <= 0 {
		s.Burst = s.MaxHits
	}

	if s.CleanInterval <= 0 {
		s.CleanInterval = DefaultCleanInterval
	}

	if s.Lookuper == nil {
		s.Lookuper = XForwardedForLookuper{}
	}

	return s
}

func (s Settings) limit() rate.Limit {
	return rate.Limit(float64(s.MaxHits) / s.TimeWindow.Seconds())
}

func (s Settings) String() string {
	return fmt.Sprintf("maxHits=%d,timeWindow=%v,burst=%d", s.MaxHits, s.TimeWindow, s.Burst)
}
