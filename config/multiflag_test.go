package config

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestMultiFlagSet(t *testing.T) {
	for _, tc := range []struct {
		name   string
		args   []string
		values string
	}{
		{
			name:   "single value",
			args:   []string{"-exclude", "10.0.0.0/8"},
			values: "10.0.0.0/8",
		},
		{
			name:   "multiple values",
			args:   []string{"-exclude", "10.0.0.0/8", "-exclude", "127.0.0.1", "-exclude", "::1"},
			values: "10.0.0.0/8,127.0.0.1,::1",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var m multiFlag
			fs := flag.NewFlagSet("test", flag.ContinueOnError)
			fs.Var(&m, "exclude", "")

			require.NoError(t, fs.Parse(tc.args))
			assert.Equal(t, tc.values, m.String())
		})
	}
}

func TestMultiFlagYaml(t *testing.T) {
	m := multiFlag{"192.168.0.0/16"}
	require.NoError(t, yaml.Unmarshal([]byte("- 10.0.0.0/8\n- 127.0.0.1"), &m))
	assert.Equal(t, multiFlag{"10.0.0.0/8", "127.0.0.1"}, m)
}

func TestMultiFlagYamlErr(t *testing.T) {
	m := &multiFlag{}
	err := yaml.Unmarshal([]byte(`exclude: 10.0.0.0/8`), m)
	require.Error(t, err, "Failed to get error on wrong yaml input")
}
