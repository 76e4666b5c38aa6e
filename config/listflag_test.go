package config

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestListFlagSet(t *testing.T) {
	for _, tt := range []struct {
		name  string
		input string
		want  []string
	}{{
		name: "empty",
	}, {
		name:  "single target",
		input: "http://campaign-1:3002",
		want:  []string{"http://campaign-1:3002"},
	}, {
		name:  "multiple targets",
		input: "http://campaign-1:3002,http://campaign-2:3002",
		want:  []string{"http://campaign-1:3002", "http://campaign-2:3002"},
	}, {
		name:  "spaces and empty items",
		input: " http://campaign-1:3002, ,http://campaign-2:3002,",
		want:  []string{"http://campaign-1:3002", "http://campaign-2:3002"},
	}} {
		t.Run(tt.name, func(t *testing.T) {
			f := commaListFlag()
			require.NoError(t, f.Set(tt.input))
			assert.Equal(t, tt.want, f.values)
			assert.Equal(t, tt.input, f.String())
		})
	}
}

func TestListFlagReplacesValues(t *testing.T) {
	f := commaListFlag()
	require.NoError(t, f.Set("http://auth-1:3001,http://auth-2:3001"))
	require.NoError(t, f.Set("http://auth-3:3001"))
	assert.Equal(t, []string{"http://auth-3:3001"}, f.values)
}

func TestListFlagFromCommandLine(t *testing.T) {
	targets := commaListFlag()
	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	fs.Var(targets, "public-targets", "")

	require.NoError(t, fs.Parse([]string{"-public-targets=http://campaign-1:3002,http://campaign-2:3002"}))
	assert.Equal(t, []string{"http://campaign-1:3002", "http://campaign-2:3002"}, targets.values)
}

func TestListFlagUnmarshalYAML(t *testing.T) {
	var cfg struct {
		PublicTargets *listFlag `yaml:"public-targets"`
	}

	cfg.PublicTargets = commaListFlag()
	require.NoError(t, yaml.Unmarshal([]byte(`public-targets:
- http://campaign-1:3002
- http://campaign-2:3002
`), &cfg))

	assert.Equal(t, []string{"http://campaign-1:3002", "http://campaign-2:3002"}, cfg.PublicTargets.values)
	assert.Equal(t, "http://campaign-1:3002,http://campaign-2:3002", cfg.PublicTargets.String())

	err := yaml.Unmarshal([]byte(`public-targets: {target: http://campaign-1:3002}`), &cfg)
	assert.Error(t, err)
}

func TestListFlagNil(t *testing.T) {
	var f *listFlag
	assert.Equal(t, "", f.String())
	assert.NoError(t, f.Set("http://campaign-1:3002"))
}
