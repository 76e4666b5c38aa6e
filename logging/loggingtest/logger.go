// Package loggingtest provides a logger recording the entries, for tests
// waiting for or counting specific log messages.
package loggingtest

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

var ErrWaitTimeout = errors.New("timeout")

type TestLogger struct {
	mx      sync.Mutex
	entries []string
	changed chan struct{}
	muted   bool
}

func New() *TestLogger {
	return &TestLogger{changed: make(chan struct{})}
}

func (tl *TestLogger) save(e string) {
	tl.mx.Lock()
	defer tl.mx.Unlock()
	if tl.muted {
		return
	}

	log.Println(e)
	tl.entries = append(tl.entries, e)
	close(tl.changed)
	tl.changed = make(chan struct{})
}

func (tl *TestLogger) count(exp string) (int, chan struct{}) {
	tl.mx.Lock()
	defer tl.mx.Unlock()
	var n int
	for _, e := range tl.entries {
		if strings.Contains(e, exp) {
			n++
		}
	}

	return n, tl.changed
}

// WaitForN waits until at least n entries contain exp.
func (tl *TestLogger) WaitForN(exp string, n int, to time.Duration) error {
	timeout := time.After(to)
	for {
		c, changed := tl.count(exp)
		if c >= n {
			return nil
		}

		select {
		case <-changed:
		case <-timeout:
			return ErrWaitTimeout
		}
	}
}

func (tl *TestLogger) WaitFor(exp string, to time.Duration) error {
	return tl.WaitForN(exp, 1, to)
}

// Count returns the number of entries containing exp.
func (tl *TestLogger) Count(exp string) int {
	n, _ := tl.count(exp)
	return n
}

func (tl *TestLogger) Reset() {
	tl.mx.Lock()
	defer tl.mx.Unlock()
	tl.entries = nil
}

// Mute stops recording the entries.
func (tl *TestLogger) Mute() {
	tl.mx.Lock()
	defer tl.mx.Unlock()
	tl.muted = true
}

func (tl *TestLogger) Unmute() {
	tl.mx.Lock()
	defer tl.mx.Unlock()
	tl.muted = false
}

func (tl *TestLogger) Close() {}

func (tl *TestLogger) Error(a ...any)            { tl.save(fmt.Sprint(a...)) }
func (tl *TestLogger) Errorf(f string, a ...any) { tl.save(fmt.Sprintf(f, a...)) }
func (tl *TestLogger) Warn(a ...any)             { tl.save(fmt.Sprint(a...)) }
func (tl *TestLogger) Warnf(f string, a ...any)  { tl.save(fmt.Sprintf(f, a...)) }
func (tl *TestLogger) Info(a ...any)             { tl.save(fmt.Sprint(a...)) }
func (tl *TestLogger) Infof(f string, a ...any)  { tl.save(fmt.Sprintf(f, a...)) }
func (tl *TestLogger) Debug(a ...any)            { tl.save(fmt.Sprint(a...)) }
func (tl *TestLogger) Debugf(f string, a ...any) { tl.save(fmt.Sprintf(f, a...)) }
