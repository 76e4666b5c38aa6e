// Package otel provides [OpenTelemetry] integration for the gateway.
//
// The tracing pipeline is configured from the standard OTEL_* environment
// variables, see [Init].
//
// [OpenTelemetry]: https://opentelemetry.io/
package otel

import (
	"context"
	"errors"
	"os"

	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/bombsimon/logrusr/v4"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("package", "otel")

const (
	// DebugExporter writes the spans into the debug log, select it with
	// OTEL_TRACES_EXPORTER=gateway-debug.
	DebugExporter = "gateway-debug"

	defaultServiceName = "gateway"
)

// logged at startup. OTEL_EXPORTER_OTLP_HEADERS is left out, it may carry
// credentials.
var environment = []string{
	"OTEL_TRACES_EXPORTER",
	"OTEL_EXPORTER_OTLP_PROTOCOL",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_SERVICE_NAME",
	"OTEL_RESOURCE_ATTRIBUTES",
	"OTEL_PROPAGATORS",
	"OTEL_BSP_MAX_QUEUE_SIZE",
	"OTEL_BSP_MAX_EXPORT_BATCH_SIZE",
	"OTEL_BSP_SCHEDULE_DELAY",
	"OTEL_BSP_EXPORT_TIMEOUT",
}

// Options configure OpenTelemetry pipeline.
type Options struct {
	// Initialized tells that the pipeline was set up by the embedding
	// program, [Init] leaves the global providers untouched.
	Initialized bool

	// ServiceName is used when OTEL_SERVICE_NAME and OTEL_RESOURCE_ATTRIBUTES
	// do not set it.
	ServiceName string
}

// pipeline collects the cleanup calls of the created components.
type pipeline struct {
	cleanup []func(context.Context) error
}

func (p *pipeline) add(f func(context.Context) error) {
	p.cleanup = append(p.cleanup, f)
}

// shutdown runs every cleanup once and joins their errors.
func (p *pipeline) shutdown(ctx context.Context) error {
	var err error
	for _, f := range p.cleanup {
		err = errors.Join(err, f(ctx))
	}

	p.cleanup = nil
	return err
}

// Init sets the global tracer provider and text map propagator of the
// gateway. When err is nil, the caller must call shutdown to flush the
// pending spans.
//
// The exporter is selected by OTEL_TRACES_EXPORTER, see
// [go.opentelemetry.io/contrib/exporters/autoexport]. Besides the standard
// exporters, [DebugExporter] writes the spans into the debug log. The
// propagators are selected by OTEL_PROPAGATORS, see
// [go.opentelemetry.io/contrib/propagators/autoprop]. The batch span
// processor reads the OTEL_BSP_* variables.
func Init(ctx context.Context, o *Options) (shutdown func(context.Context) error, err error) {
	if o.Initialized {
		log.Debug("OpenTelemetry pipeline initialized externally")
		return func(context.Context) error { return nil }, nil
	}

	for _, name := range environment {
		log.Debugf("%s: %s", name, os.Getenv(name))
	}

	p := &pipeline{}
	autoexport.RegisterSpanExporter(DebugExporter, p.debugExporter)

	provider, err := newTracerProvider(ctx, o.ServiceName)
	if err != nil {
		return nil, errors.Join(err, p.shutdown(ctx))
	}

	p.add(provider.Shutdown)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(autoprop.NewTextMapPropagator())
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) { log.Error(err) }))
	otel.SetLogger(logrusr.New(log))

	return p.shutdown, nil
}

func (p *pipeline) debugExporter(context.Context) (trace.SpanExporter, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(writerFunc(func(b []byte) (int, error) {
		log.Debugf("Span: %s", b)
		return len(b), nil
	})))
	if err != nil {
		return nil, err
	}

	p.add(exp.Shutdown)
	return exp, nil
}

func newTracerProvider(ctx context.Context, serviceName string) (*trace.TracerProvider, error) {
	exp, err := autoexport.NewSpanExporter(ctx)
	if err != nil {
		return nil, err
	}

	res, err := newResource(serviceName)
	if err != nil {
		return nil, errors.Join(err, exp.Shutdown(ctx))
	}

	return trace.NewTracerProvider(trace.WithBatcher(exp), trace.WithResource(res)), nil
}

// newResource merges the default service name under the environment
// provided resource attributes.
func newResource(serviceName string) (*resource.Resource, error) {
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	def := resource.NewSchemaless(attribute.String("service.name", serviceName))
	return resource.Merge(def, resource.Environment())
}

type writerFunc func([]byte) (int, error)

func (wf writerFunc) Write(p []byte) (int, error) {
	return wf(p)
}
