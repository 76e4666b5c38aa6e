package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestOtel(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "none")

	shutdown, err := Init(context.Background(), &Options{})
	if err != nil {
		t.Fatalf("Failed to init OTel: %v", err)
	}

	err = shutdown(context.Background())
	if err != nil {
		t.Fatalf("Failed to shutdown OTel: %v", err)
	}

	// shutdown is idempotent
	assert.NoError(t, shutdown(context.Background()))
}

func TestOtelDebugExporter(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", DebugExporter)

	shutdown, err := Init(context.Background(), &Options{ServiceName: "test-gateway"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestOtelInitializedExternally(t *testing.T) {
	shutdown, err := Init(context.Background(), &Options{Initialized: true})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestResourceServiceName(t *testing.T) {
	for _, tt := range []struct {
		name    string
		env     string
		service string
		want    string
	}{
		{"default", "", "", "gateway"},
		{"option", "", "edge", "edge"},
		{"environment wins", "service.name=from-env", "edge", "from-env"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OTEL_SERVICE_NAME", "")
			t.Setenv("OTEL_RESOURCE_ATTRIBUTES", tt.env)

			res, err := newResource(tt.service)
			require.NoError(t, err)

			v, ok := res.Set().Value(attribute.Key("service.name"))
			require.True(t, ok)
			assert.Equal(t, tt.want, v.AsString())
		})
	}
}

func TestPipelineShutdown(t *testing.T) {
	var calls int
	p := &pipeline{}
	p.add(func(context.Context) error { calls++; return nil })
	p.add(func(context.Context) error { calls++; return errors.New("flush failed") })

	assert.EqualError(t, p.shutdown(context.Background()), "flush failed")
	assert.NoError(t, p.shutdown(context.Background()))
	assert.Equal(t, 2, calls)
}
