package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestDefaultsWithoutFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	m, err := NewManager(path, viper.New())
	require.NoError(t, err)

	cfg, err := m.Get()
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
	require.Equal(t, path, m.GetConfigPath())
}

func TestFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
target_class: gvim
max_version: 4
remote:
  template: /mnt/{{.Host}}{{.Path}}
`), 0644))

	m, err := NewManager(path, viper.New())
	require.NoError(t, err)
	cfg, err := m.Get()
	require.NoError(t, err)

	require.Equal(t, "gvim", cfg.TargetClass)
	require.Equal(t, uint32(4), cfg.MaxVersion)
	require.Equal(t, "/mnt/{{.Host}}{{.Path}}", cfg.Remote.Template)
	// Untouched keys keep their defaults.
	require.Equal(t, []string{"SSH_CONNECTION"}, cfg.Remote.Env)
	require.Equal(t, 7077, cfg.ServerPort)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target_class: gvim\n"), 0644))
	t.Setenv("EMACSHERE_TARGET_CLASS", "code")

	m, err := NewManager(path, viper.New())
	require.NoError(t, err)
	cfg, err := m.Get()
	require.NoError(t, err)
	require.Equal(t, "code", cfg.TargetClass)
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_version: 9\n"), 0644))

	m, err := NewManager(path, viper.New())
	require.NoError(t, err)
	_, err = m.Get()
	require.ErrorContains(t, err, "max_version")
}

func TestMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target_class: [\n"), 0644))

	_, err := NewManager(path, viper.New())
	require.ErrorContains(t, err, "failed to parse config")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	m, err := NewManager(path, viper.New())
	require.NoError(t, err)

	cfg := Defaults()
	cfg.TargetClass = "gvim"
	require.NoError(t, m.Save(cfg))

	reloaded, err := NewManager(path, viper.New())
	require.NoError(t, err)
	got, err := reloaded.Get()
	require.NoError(t, err)
	require.Equal(t, cfg, got)
}
