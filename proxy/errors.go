package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fundflow/gateway/auth"
	"github.com/fundflow/gateway/circuit"
	"github.com/fundflow/gateway/loadbalancer"
	"github.com/fundflow/gateway/ratelimit"
	"github.com/fundflow/gateway/routing"
)

// StatusClientClosedRequest is logged for the requests whose client went
// away before the response was sent.
const StatusClientClosedRequest = 499

var (
	// ErrUpstreamConnection is the cause of failed dials, DNS errors and
	// broken upstream connections.
	ErrUpstreamConnection = errors.New("upstream connection failed")

	// ErrUpstreamTimeout is the cause of upstream calls exceeding the
	// deadline of the route.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrClientDisconnected is the cause of requests canceled by the
	// client. Nothing is sent to the client in this case.
	ErrClientDisconnected = errors.New("client disconnected")

	// ErrGatewayInternal is the cause of misconfiguration detected while
	// serving a request.
	ErrGatewayInternal = errors.New("internal gateway error")

	errRatelimited = errors.New("too many requests")
)

// proxyError wraps the errors of the request pipeline and holds the
// response status and the retry hint derived from its cause.
type proxyError struct {
	cause            error
	err              error
	code             int
	retry            bool
	additionalHeader http.Header
}

func newProxyError(cause, err error) *proxyError {
	code, retry := errorStatus(cause)
	return &proxyError{cause: cause, err: err, code: code, retry: retry}
}

func (e *proxyError) Error() string {
	if e.err == nil || e.err == e.cause {
		return e.cause.Error()
	}

	return fmt.Sprintf("%v: %v", e.cause, e.err)
}

func (e *proxyError) Unwrap() []error {
	if e.err == nil {
		return []error{e.cause}
	}

	return []error{e.cause, e.err}
}

func errorStatus(cause error) (int, bool) {
	switch {
	case errors.Is(cause, routing.ErrRouteNotFound):
		return http.StatusBadGateway, false
	case errors.Is(cause, loadbalancer.ErrNoHealthyTarget),
		errors.Is(cause, circuit.ErrCircuitOpen):
		return http.StatusServiceUnavailable, true
	case errors.Is(cause, ErrUpstreamConnection),
		errors.Is(cause, ErrUpstreamTimeout):
		return http.StatusBadGateway, true
	case errors.Is(cause, ErrClientDisconnected):
		return StatusClientClosedRequest, false
	case errors.Is(cause, auth.ErrUnauthorized):
		return http.StatusUnauthorized, false
	case errors.Is(cause, errRatelimited):
		return http.StatusTooManyRequests, false
	default:
		return http.StatusInternalServerError, false
	}
}

// ErrorStatus returns the response status and the retry hint sent for
// err by the proxy.
func ErrorStatus(err error) (code int, retry bool) {
	var perr *proxyError
	if errors.As(err, &perr) {
		return perr.code, perr.retry
	}

	return errorStatus(err)
}

// breakerFailure tells whether the error counts as a failed call of the
// upstream target. Upstream responses of any status are successes.
func breakerFailure(err error) bool {
	return errors.Is(err, ErrUpstreamConnection) ||
		errors.Is(err, ErrUpstreamTimeout) ||
		errors.Is(err, ErrClientDisconnected)
}

func newRatelimitError(retryAfter int) *proxyError {
	e := newProxyError(errRatelimited, nil)
	e.additionalHeader = http.Header{
		ratelimit.RetryAfterHeader: []string{strconv.Itoa(retryAfter)},
	}

	return e
}

func newUnauthorizedError(err error) *proxyError {
	e := newProxyError(auth.ErrUnauthorized, err)
	e.additionalHeader = http.Header{
		"Www-Authenticate": []string{"Bearer"},
	}

	return e
}

type errorBody struct {
	Error string `json:"error"`
	Retry bool   `json:"retry,omitempty"`
}

// sendError writes the JSON error response. Nothing is written when the
// client is gone or the response headers were already sent.
func sendError(w http.ResponseWriter, err error) {
	var perr *proxyError
	if !errors.As(err, &perr) {
		perr = newProxyError(ErrGatewayInternal, err)
	}

	if perr.code == StatusClientClosedRequest || headerWritten(w) {
		return
	}

	copyHeader(w.Header(), perr.additionalHeader)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(perr.code)
	_ = json.NewEncoder(w).Encode(errorBody{Error: perr.cause.Error(), Retry: perr.retry})
}

func headerWritten(w http.ResponseWriter) bool {
	hw, ok := w.(interface{ HeaderWritten() bool })
	return ok && hw.HeaderWritten()
}
