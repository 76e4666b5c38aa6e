package circuit

import "time"

const windowBuckets = 10

type bucket struct {
	slot     int64
	requests int
	failures int
}

// window counts the outcomes of the calls in the last duration, with the
// resolution of duration/windowBuckets. Expired buckets are dropped when they
// are reused or ignored when read. Not synchronized, the breaker holds the
// lock.
type window struct {
	width   int64
	buckets []bucket
}

func newWindow(d time.Duration) *window {
	width := int64(d) / windowBuckets
	if width <= 0 {
		width = 1
	}

	return &window{
		width:   width,
		buckets: make([]bucket, windowBuckets),
	}
}

func (w *window) slot(now time.Time) int64 {
	return now.UnixNano() / w.width
}

func (w *window) add(now time.Time, success bool) {
	s := w.slot(now)
	b := &w.buckets[s%int64(len(w.buckets))]
	if b.slot != s {
		*b = bucket{slot: s}
	}

	b.requests++
	if !success {
		b.failures++
	}
}

func (w *window) counts(now time.Time) Counts {
	var c Counts
	s := w.slot(now)
	for _, b := range w.buckets {
		if b.requests == 0 || s-b.slot >= int64(len(w.buckets)) || b.slot > s {
			continue
		}

		c.Requests += b.requests
		c.Failures += b.failures
	}

	return c
}

func (w *window) reset() {
	for i := range w.buckets {
		w.buckets[i] = bucket{}
	}
}
