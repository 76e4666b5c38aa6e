package ratelimit

import (
	"math"
	"net/http"
	"net/netip"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Registry objects hold the buckets of the clients, ensure
// synchronized access to them and recycle the idle ones.
type Registry struct {
	mu       sync.Mutex
	settings Settings
	buckets  map[string]*bucket
	now      func() time.Time
	quit     chan struct{}
	once     sync.Once
}

// NewRegistry creates a registry with the provided settings and starts
// the cleanup of the idle buckets. Close stops it.
func NewRegistry(s Settings) *Registry {
	r := newRegistry(s, time.Now)
	go r.cleanupLoop()
	return r
}

func newRegistry(s Settings, now func() time.Time) *Registry {
	s = s.withDefaults()
	log.Infof("Client rate limit: %s", s)
	return &Registry{
		settings: s,
		buckets:  make(map[string]*bucket),
		now:      now,
		quit:     make(chan struct{}),
	}
}

func (r *Registry) excluded(key string) bool {
	if r.settings.Exclude == nil {
		return false
	}

	addr, err := netip.ParseAddr(key)
	return err == nil && r.settings.Exclude.Contains(addr)
}

// Check returns true when the request is allowed. Otherwise it returns
// false and the number of seconds the client should wait before
// retrying.
func (r *Registry) Check(req *http.Request) (bool, int) {
	if r == nil {
		return true, 0
	}

	key := r.settings.Lookuper.Lookup(req)
	if key == "" || r.excluded(key) {
		return true, 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(r.settings.limit(), r.settings.Burst)}
		r.buckets[key] = b
	}

	b.lastSeen = now
	res := b.limiter.ReserveN(now, 1)
	delay := res.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}

	res.CancelAt(now)
	log.Debugf("Rate limited client %s for %v", key, delay)
	return false, int(math.Ceil(delay.Seconds()))
}

// Len returns the number of the active buckets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

func (r *Registry) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for key, b := range r.buckets {
		if now.Sub(b.lastSeen) > r.settings.CleanInterval {
			delete(r.buckets, key)
		}
	}
}

func (r *Registry) cleanupLoop() {
	ticker := time.NewTicker(r.settings.CleanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanup()
		case <-r.quit:
			return
		}
	}
}

// Close stops the cleanup of the idle buckets.
func (r *Registry) Close() {
	if r == nil {
		return
	}

	r.once.Do(func() { close(r.quit) })
}
