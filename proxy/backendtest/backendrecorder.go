// Package backendtest provides an upstream service for tests, recording
// the requests it receives.
package backendtest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type RecordedRequest struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   string
}

// BackendRecorderHandler echoes the request body after the configured
// delay. The response status can be changed with SetStatus.
type BackendRecorderHandler struct {
	server   *httptest.Server
	delay    time.Duration
	mutex    sync.RWMutex
	requests []RecordedRequest
	status   int
}

func (rec *BackendRecorderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("backendrecorder: error while reading request body")
	}

	rec.mutex.Lock()
	rec.requests = append(rec.requests, RecordedRequest{
		Method: r.Method,
		URL:    r.URL,
		Header: r.Header.Clone(),
		Body:   string(body),
	})
	status := rec.status
	rec.mutex.Unlock()

	if rec.delay > 0 {
		select {
		case <-time.After(rec.delay):
		case <-r.Context().Done():
			return
		}
	}

	w.WriteHeader(status)

	// return request body in the response
	if _, err := w.Write(body); err != nil {
		log.Error("backendrecorder: error while writing the response body")
	}
}

// SetStatus sets the status code of the following responses.
func (rec *BackendRecorderHandler) SetStatus(code int) {
	rec.mutex.Lock()
	defer rec.mutex.Unlock()
	rec.status = code
}

func (rec *BackendRecorderHandler) GetRequests() []RecordedRequest {
	rec.mutex.RLock()
	defer rec.mutex.RUnlock()
	return append([]RecordedRequest(nil), rec.requests...)
}

func (rec *BackendRecorderHandler) GetURL() string {
	return rec.server.URL
}

// Done closes the server, blocking until all the requests are finished.
func (rec *BackendRecorderHandler) Done() {
	rec.server.Close()
}

// NewBackendRecorder starts a recording backend, responding after delay.
func NewBackendRecorder(delay time.Duration) *BackendRecorderHandler {
	handler := &BackendRecorderHandler{delay: delay, status: http.StatusOK}
	handler.server = httptest.NewServer(handler)
	return handler
}
