package solver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 20, cfg.MaxIterations)
	assert.Equal(t, 1e-3, cfg.Tolerance)
	assert.True(t, cfg.Flags.Has(FlagConstraints))
	assert.True(t, cfg.Flags.Has(FlagJointRotations))
	assert.Equal(t, SpaceLocal, cfg.Space)
	assert.NoError(t, cfg.Validate())
}

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    func() Config
		wantErr bool
	}{
		{
			name: "empty keeps defaults",
			yaml: "",
			want: DefaultConfig,
		},
		{
			name: "overrides",
			yaml: "max_iterations: 50\ntolerance: 0.01\nflags: [constraints]\nspace: global\n",
			want: func() Config {
				return Config{MaxIterations: 50, Tolerance: 0.01, Flags: FlagConstraints, Space: SpaceGlobal}
			},
		},
		{
			name: "no flags",
			yaml: "flags: []\n",
			want: func() Config {
				c := DefaultConfig()
				c.Flags = 0
				return c
			},
		},
		{name: "unknown flag", yaml: "flags: [gravity]\n", wantErr: true},
		{name: "unknown space", yaml: "space: tangent\n", wantErr: true},
		{name: "zero iterations", yaml: "max_iterations: 0\n", wantErr: true},
		{name: "negative tolerance", yaml: "tolerance: -1\n", wantErr: true},
		{name: "not yaml", yaml: "max_iterations: [\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig([]byte(tt.yaml))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want(), cfg)
		})
	}
}

func TestConfigYAMLRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Space = SpaceGlobal
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "joint-rotations")
	assert.Contains(t, string(data), "space: global")

	back, err := ParseConfig(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solver.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_iterations: 7\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxIterations)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "constraints|joint-rotations", DefaultConfig().Flags.String())
	assert.Equal(t, "", Flags(0).String())

	f, err := ParseFlag("joint-rotations")
	require.NoError(t, err)
	assert.Equal(t, FlagJointRotations, f)
	_, err = ParseFlag("nope")
	assert.Error(t, err)
}

func TestParseSpace(t *testing.T) {
	s, err := ParseSpace(" Global ")
	require.NoError(t, err)
	assert.Equal(t, SpaceGlobal, s)
	s, err = ParseSpace("")
	require.NoError(t, err)
	assert.Equal(t, SpaceLocal, s)
	assert.Equal(t, "local", SpaceLocal.String())
}
