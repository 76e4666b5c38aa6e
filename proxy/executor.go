package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/fundflow/gateway/auth"
	"github.com/fundflow/gateway/flowid"
	"github.com/fundflow/gateway/logging"
	snet "github.com/fundflow/gateway/net"
	"github.com/fundflow/gateway/routing"
)

const (
	GatewayTimestampHeader    = "X-Gateway-Timestamp"
	GatewayResponseTimeHeader = "X-Gateway-Response-Time"

	// DefaultTimeout applies to the routes without a timeout.
	DefaultTimeout = 30 * time.Second

	proxyBufferSize = 8192
)

var (
	errUpstreamDeadline = errors.New("upstream deadline exceeded")

	hopHeaders = []string{
		"Te",
		"Connection",
		"Proxy-Connection",
		"Keep-Alive",
		"Proxy-Authenticate",
		"Proxy-Authorization",
		"Trailer",
		"Transfer-Encoding",
		"Upgrade",
	}
)

type ExecutorOptions struct {
	// Transport executes the upstream calls. Defaults to a transport
	// created with net.NewTransport.
	Transport http.RoundTripper

	// Timeout is used for the calls without a timeout in their context.
	// Defaults to DefaultTimeout.
	Timeout time.Duration

	// RequestID generates the X-Request-ID of the requests without a
	// valid one. Defaults to the UUID generator.
	RequestID flowid.Generator

	TracerProvider trace.TracerProvider
	Propagator     propagation.TextMapPropagator

	Log logging.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Executor forwards a single request to a single upstream target and
// streams the response back.
type Executor struct {
	transport http.RoundTripper
	timeout   time.Duration
	requestID flowid.Generator
	forwarded snet.ForwardedHeaders
	tracing   *proxyTracing
	log       logging.Logger
	now       func() time.Time
}

type (
	timeoutKey struct{}
	startKey   struct{}
)

// WithTimeout sets the deadline of the upstream call made with ctx. The
// deadline lasts until the response headers are received, the streaming
// of the response body is bounded only by the client.
func WithTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, timeoutKey{}, d)
}

func withStart(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, startKey{}, t)
}

func NewExecutor(o ExecutorOptions) *Executor {
	if o.Transport == nil {
		o.Transport = snet.NewTransport(snet.Options{
			Timeout:             10 * time.Second,
			KeepAlive:           30 * time.Second,
			MaxIdleConnsPerHost: 64,
			IdleConnTimeout:     90 * time.Second,
		})
	}

	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}

	if o.RequestID == nil {
		o.RequestID = flowid.NewUUIDGenerator()
	}

	if o.Log == nil {
		o.Log = &logging.DefaultLog{}
	}

	if o.Now == nil {
		o.Now = time.Now
	}

	return &Executor{
		transport: o.Transport,
		timeout:   o.Timeout,
		requestID: o.RequestID,
		forwarded: snet.ForwardedHeaders{For: true},
		tracing:   newProxyTracing(o.TracerProvider, o.Propagator),
		log:       o.Log,
		now:       o.Now,
	}
}

func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			if name = textproto.TrimString(name); name != "" {
				h.Del(name)
			}
		}
	}

	for _, name := range hopHeaders {
		h.Del(name)
	}
}

func copyHeader(to, from http.Header) {
	for k, v := range from {
		to[http.CanonicalHeaderKey(k)] = v
	}
}

func setGatewayHeaders(h http.Header, start, now time.Time) {
	h.Set(GatewayTimestampHeader, strconv.FormatInt(now.UnixMilli(), 10))
	h.Set(GatewayResponseTimeHeader, strconv.FormatInt(now.Sub(start).Milliseconds(), 10))
}

// creates the outgoing request to the target, based on the incoming one
func (e *Executor) mapRequest(ctx context.Context, r *http.Request, target string, rule routing.Rule) (*http.Request, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}

	u.Path = strings.TrimRight(u.Path, "/") + rule.Apply(r.URL.Path)
	u.RawPath = ""
	u.RawQuery = r.URL.RawQuery

	body := r.Body
	if r.ContentLength == 0 {
		body = nil
	}

	rr, err := http.NewRequestWithContext(ctx, r.Method, u.String(), body)
	if err != nil {
		return nil, err
	}

	rr.ContentLength = r.ContentLength
	rr.Header = r.Header.Clone()
	if rr.Header == nil {
		rr.Header = make(http.Header)
	}

	removeHopHeaders(rr.Header)
	e.forwarded.Set(rr, r)
	rr.Header.Set(GatewayTimestampHeader, strconv.FormatInt(e.now().UnixMilli(), 10))

	if !e.requestID.IsValid(rr.Header.Get(flowid.HeaderName)) {
		id, err := e.requestID.Generate()
		if err != nil {
			return nil, err
		}

		rr.Header.Set(flowid.HeaderName, id)
	}

	// the user is set only by the gateway
	rr.Header.Del(auth.UserIDHeader)
	if id := auth.UserID(ctx); id != "" {
		rr.Header.Set(auth.UserIDHeader, id)
	}

	return rr, nil
}

func timeoutFromContext(ctx context.Context, def time.Duration) time.Duration {
	if d, ok := ctx.Value(timeoutKey{}).(time.Duration); ok && d > 0 {
		return d
	}

	return def
}

func startFromContext(ctx context.Context, now func() time.Time) time.Time {
	if t, ok := ctx.Value(startKey{}).(time.Time); ok {
		return t
	}

	return now()
}

// classify maps the error of an upstream call to its cause.
func classify(clientCtx, callCtx context.Context, err error) *proxyError {
	if clientCtx.Err() != nil {
		return newProxyError(ErrClientDisconnected, err)
	}

	if errors.Is(context.Cause(callCtx), errUpstreamDeadline) {
		return newProxyError(ErrUpstreamTimeout, err)
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return newProxyError(ErrUpstreamTimeout, err)
	}

	return newProxyError(ErrUpstreamConnection, err)
}

// copies a stream with flushing on every successful read operation
// (similar to io.Copy but with flushing)
func copyStream(to io.Writer, flush func(), from io.Reader) (readErr, writeErr error) {
	b := make([]byte, proxyBufferSize)

	for {
		l, rerr := from.Read(b)
		if l > 0 {
			if _, werr := to.Write(b[:l]); werr != nil {
				return nil, werr
			}

			flush()
		}

		if rerr == io.EOF {
			return nil, nil
		}

		if rerr != nil {
			return rerr, nil
		}
	}
}

func flushFunc(w http.ResponseWriter) func() {
	rc := http.NewResponseController(w)
	return func() { _ = rc.Flush() }
}

// Forward calls the target with the request rewritten by rule and
// streams the response to w. The returned error has one of
// ErrUpstreamConnection, ErrUpstreamTimeout, ErrClientDisconnected or
// ErrGatewayInternal as its cause. When the error happens after the
// response headers were sent, the response is aborted and w must not be
// used for an error response.
func (e *Executor) Forward(ctx context.Context, w http.ResponseWriter, r *http.Request, target string, rule routing.Rule) error {
	start := startFromContext(ctx, e.now)
	out, err := e.mapRequest(ctx, r, target, rule)
	if err != nil {
		return newProxyError(ErrGatewayInternal, err)
	}

	callCtx, cancel := context.WithCancelCause(out.Context())
	defer cancel(nil)

	timer := time.AfterFunc(timeoutFromContext(ctx, e.timeout), func() { cancel(errUpstreamDeadline) })
	out, span := e.tracing.startClientSpan(out.WithContext(callCtx), target)
	defer span.End()

	rsp, err := e.transport.RoundTrip(out)
	if !timer.Stop() && err == nil {
		// the deadline fired right after the headers arrived, the body
		// is already canceled
		rsp.Body.Close()
		err = errUpstreamDeadline
	}

	if err != nil {
		perr := classify(ctx, callCtx, err)
		setSpanError(span, perr)
		e.log.Debugf("Upstream call to %s failed: %v", target, perr)
		return perr
	}

	defer rsp.Body.Close()
	setSpanStatus(span, rsp.StatusCode)

	h := w.Header()
	rh := rsp.Header.Clone()
	removeHopHeaders(rh)
	copyHeader(h, rh)
	setGatewayHeaders(h, start, e.now())

	flush := flushFunc(w)
	w.WriteHeader(rsp.StatusCode)
	flush()

	readErr, writeErr := copyStream(w, flush, rsp.Body)
	switch {
	case writeErr != nil, readErr != nil && ctx.Err() != nil:
		perr := newProxyError(ErrClientDisconnected, errors.Join(writeErr, readErr))
		span.SetAttributes(attribute.String(ClientRequestStateTag, ClientRequestCanceled))
		span.AddEvent(StreamErrorEvent)
		return perr
	case readErr != nil:
		perr := newProxyError(ErrUpstreamConnection, readErr)
		setSpanError(span, perr)
		span.AddEvent(StreamErrorEvent)
		e.log.Errorf("Error while copying the response stream of %s: %v", target, readErr)
		return perr
	}

	span.AddEvent(StreamBodyEvent)
	return nil
}
