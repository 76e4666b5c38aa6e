package config

import (
	"testing"

	"gopkg.in/yaml.v2"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundflow/gateway/otel"
)

func TestYamlFlag(t *testing.T) {
	t.Run("set", func(t *testing.T) {
		var o *otel.Options

		f := newYamlFlag(&o)
		v := `{servicename: gateway, initialized: true}`
		err := f.Set(v)

		require.NoError(t, err)
		assert.Equal(t, "gateway", o.ServiceName)
		assert.True(t, o.Initialized)
		assert.Equal(t, v, f.String())
	})

	t.Run("set empty", func(t *testing.T) {
		var o *otel.Options

		f := newYamlFlag(&o)
		err := f.Set("")

		require.NoError(t, err)
		assert.Equal(t, &otel.Options{}, o)
		assert.Equal(t, "", f.String())
	})

	t.Run("set invalid yaml", func(t *testing.T) {
		var o *otel.Options

		f := newYamlFlag(&o)
		err := f.Set(`This is not a valid YAML`)

		assert.Error(t, err)
		assert.Nil(t, o)
	})

	t.Run("unmarshal YAML", func(t *testing.T) {
		cfg := struct {
			OpenTelemetry *otel.Options `yaml:"open-telemetry"`
		}{}

		f := newYamlFlag(&cfg.OpenTelemetry)
		err := yaml.Unmarshal([]byte(`servicename: gateway`), f)

		require.NoError(t, err)
		assert.Equal(t, "gateway", cfg.OpenTelemetry.ServiceName)
	})

	t.Run("unmarshal invalid YAML", func(t *testing.T) {
		var o *otel.Options

		f := newYamlFlag(&o)
		err := yaml.Unmarshal([]byte(`[servicename]`), f)

		assert.Error(t, err)
	})

	t.Run("nil flag", func(t *testing.T) {
		var f *yamlFlag[otel.Options]
		assert.Equal(t, "", f.String())
	})
}
