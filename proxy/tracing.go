package proxy

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/fundflow/gateway/proxy"

	IngressSpanName = "ingress"
	ProxySpanName   = "proxy"

	ClientRequestStateTag = "client.request"
	HTTPMethodTag         = "http.request.method"
	HTTPPathTag           = "url.path"
	HTTPHostTag           = "server.address"
	HTTPRemoteAddrTag     = "client.address"
	HTTPStatusCodeTag     = "http.response.status_code"
	HTTPUrlTag            = "url.full"
	RequestIDTag          = "gateway.request_id"
	RouteIDTag            = "gateway.route_id"
	TargetTag             = "gateway.target"
	BreakerStateTag       = "gateway.breaker.state"

	ClientRequestCanceled = "canceled"

	StreamBodyEvent  = "stream_body"
	StreamErrorEvent = "stream_error"
)

type proxyTracing struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

func newProxyTracing(tp trace.TracerProvider, p propagation.TextMapPropagator) *proxyTracing {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	if p == nil {
		p = otel.GetTextMapPropagator()
	}

	return &proxyTracing{tracer: tp.Tracer(tracerName), propagator: p}
}

func (t *proxyTracing) startServerSpan(r *http.Request) (*http.Request, trace.Span) {
	ctx := t.propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := t.tracer.Start(ctx, IngressSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String(HTTPMethodTag, r.Method),
			attribute.String(HTTPPathTag, r.URL.Path),
			attribute.String(HTTPHostTag, r.Host),
			attribute.String(HTTPRemoteAddrTag, r.RemoteAddr),
		),
	)

	return r.WithContext(ctx), span
}

// startClientSpan starts the span of the upstream call and injects its
// context into the outgoing headers.
func (t *proxyTracing) startClientSpan(out *http.Request, target string) (*http.Request, trace.Span) {
	ctx, span := t.tracer.Start(out.Context(), ProxySpanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(HTTPMethodTag, out.Method),
			attribute.String(HTTPUrlTag, out.URL.Scheme+"://"+out.URL.Host+out.URL.Path),
			attribute.String(TargetTag, target),
		),
	)

	t.propagator.Inject(ctx, propagation.HeaderCarrier(out.Header))
	return out.WithContext(ctx), span
}

func setSpanStatus(span trace.Span, code int) {
	span.SetAttributes(attribute.Int(HTTPStatusCodeTag, code))
	if code >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(code))
	}
}

func setSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
